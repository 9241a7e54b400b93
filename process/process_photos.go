package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"autocam/models"
	"autocam/pkg/blur"
	"autocam/pkg/triage"
)

// Global DB handle for helper funcs
var db *gorm.DB

// global flags (parsed in main)
var (
	verbose   bool
	threshold float64
)

// inFlight tracks photo ids currently being analyzed so a rescan that
// overlaps a slow analysis does not enqueue the same photo twice.
type inFlightSet struct {
	ids map[string]struct{}
	mu  sync.Mutex
}

func newInFlightSet() *inFlightSet {
	return &inFlightSet{ids: make(map[string]struct{}, 256)}
}

func (s *inFlightSet) tryAdd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *inFlightSet) remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func mustInitDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

// Main: scans the database for unanalyzed photos, scores them for blur and
// quality, and assigns each to the BLURRY or CLEAN set. This is the only
// writer of the automatic PENDING exit.
func main() {
	dirFlag := flag.String("dir", "uploads", "base directory photo files are stored under")
	interval := flag.Duration("interval", 5*time.Second, "rescan interval for new PENDING photos")
	once := flag.Bool("once", false, "Run a single scan pass and exit")
	watch := flag.Bool("watch", false, "Also watch the upload directory to wake scans immediately")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	flag.BoolVar(&verbose, "verbose", false, "Verbose per-photo logging")
	flag.Float64Var(&threshold, "threshold", blur.DefaultThreshold, "Laplacian variance threshold (lower = more photos pass as clean)")
	flag.Parse()

	db = mustInitDBFromEnv()

	pool := startWorkerPool(*dirFlag, effectiveWorkers(*workers))
	defer pool.close()

	n := pool.enqueuePending()
	log.Printf("initial scan queued %d photos (workers=%d)", n, effectiveWorkers(*workers))
	if *once {
		pool.close()
		pool.wait()
		return
	}

	wake := make(chan struct{}, 1)
	if *watch {
		go func() {
			if err := watchUploadDir(*dirFlag, wake); err != nil {
				log.Printf("WARN watch disabled: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-wake:
		}
		if n := pool.enqueuePending(); n > 0 {
			logV("rescan queued %d photos", n)
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

type workerPool struct {
	dir      string
	photoCh  chan models.Photo
	inFlight *inFlightSet
	wg       sync.WaitGroup
	closed   sync.Once
}

func startWorkerPool(dir string, workers int) *workerPool {
	p := &workerPool{dir: dir, photoCh: make(chan models.Photo, 1024), inFlight: newInFlightSet()}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for photo := range p.photoCh {
				processPhoto(p.dir, photo)
				p.inFlight.remove(photo.ID)
			}
		}()
	}
	return p
}

func (p *workerPool) close() { p.closed.Do(func() { close(p.photoCh) }) }
func (p *workerPool) wait()  { p.wg.Wait() }

// enqueuePending queues every photo that has never been analyzed and has not
// been marked failed. The analyzed_at guard is what makes is_blurry immutable:
// a photo is scored exactly once.
func (p *workerPool) enqueuePending() int {
	var photos []models.Photo
	if err := db.Where("analyzed_at IS NULL AND failed = false").
		Order("created_at asc").Find(&photos).Error; err != nil {
		log.Printf("ERROR scan pending: %v", err)
		return 0
	}
	queued := 0
	for _, photo := range photos {
		if !p.inFlight.tryAdd(photo.ID) {
			continue
		}
		p.photoCh <- photo
		queued++
	}
	return queued
}

// watchUploadDir wakes the scan loop when files land in the upload tree.
// Events are debounced so a burst import triggers one rescan, not hundreds.
func watchUploadDir(dir string, wake chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	// project subdirectories are created as uploads arrive; watch them too
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = w.Add(filepath.Join(dir, e.Name()))
			}
		}
	}
	log.Printf("Watching %s (debounced) ...", dir)

	var pending bool
	var last time.Time
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
					continue
				}
				if isSupportedExt(filepath.Base(ev.Name)) {
					pending = true
					last = time.Now()
				}
			}
		case <-ticker.C:
			if pending && time.Since(last) > 300*time.Millisecond { // stable
				pending = false
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}

func isSupportedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tif", ".tiff", ".bmp":
		return true
	}
	return false
}

// processPhoto scores one photo and writes the analysis result plus its set
// assignment in a single update. The WHERE clause re-checks analyzed_at so a
// concurrent worker can never double-classify.
func processPhoto(dir string, photo models.Photo) {
	path := filepath.Join(dir, filepath.FromSlash(photo.StorePath))
	if _, err := os.Stat(path); err != nil {
		// upload row can land before the file is fully written; leave it for the next scan
		logV("SKIP file not ready %s: %v", photo.FileName, err)
		return
	}
	res, err := blur.AnalyzeFile(path, threshold)
	if err != nil {
		markFailed(photo.ID, err)
		return
	}
	set := string(triage.ClassFor(res.IsBlurry))
	now := time.Now().UTC()
	quality := blur.QualityScore(res.BlurScore, res.ExposureScore, photo.HasFaces)
	out := db.Model(&models.Photo{}).
		Where("id = ? AND analyzed_at IS NULL", photo.ID).
		Updates(map[string]interface{}{
			"blur_score":     res.BlurScore,
			"is_blurry":      res.IsBlurry,
			"quality_score":  quality,
			"exposure_score": res.ExposureScore,
			"photo_set":      set,
			"analyzed_at":    now,
		})
	if out.Error != nil {
		log.Printf("ERROR update photo %s: %v", photo.ID, out.Error)
		return
	}
	if out.RowsAffected == 0 {
		logV("SKIP already analyzed %s", photo.ID)
		return
	}
	log.Printf("ANALYZED %s set=%s blur=%.1f quality=%.1f conf=%s", photo.FileName, set, res.BlurScore, quality, res.Confidence)
}

// markFailed records an analysis failure without deleting the photo so it can
// be reviewed. Failed photos stay PENDING and are not retried automatically.
func markFailed(id string, cause error) {
	reason := cause.Error()
	if len(reason) > 255 {
		reason = reason[:255]
	}
	if err := db.Model(&models.Photo{}).Where("id = ?", id).
		Updates(map[string]interface{}{"failed": true, "failed_reason": reason}).Error; err != nil {
		log.Printf("ERROR mark failed %s: %v", id, err)
		return
	}
	log.Printf("FAILED %s: %s", id, reason)
}
