package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"autocam/pkg/api"
	"autocam/pkg/collection"
)

// Lister is the slice of the API client the sync loop needs.
type Lister interface {
	ListPhotos(ctx context.Context, projectID string, q api.ListQuery) ([]api.Photo, error)
}

// Syncer polls the server for the project's photo list and swaps it into the
// store. Ticks never overlap: a tick that fires while a fetch is still in
// flight is dropped, not queued. A cancelled fetch never reaches the store.
type Syncer struct {
	store     *collection.Store
	lister    Lister
	projectID string
	interval  time.Duration
	log       zerolog.Logger

	inFlight atomic.Bool

	// OnSync, when set, is called after every completed tick with the sync
	// error (nil on success). The TUI uses it to push a refresh message.
	OnSync func(err error)
}

// DefaultInterval matches the review screen's poll cadence.
const DefaultInterval = 5 * time.Second

// NewSyncer returns a sync loop for one project. A non-positive interval
// falls back to DefaultInterval.
func NewSyncer(store *collection.Store, lister Lister, projectID string, interval time.Duration, log zerolog.Logger) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{store: store, lister: lister, projectID: projectID, interval: interval, log: log}
}

// Run polls until ctx is cancelled. The first sync happens immediately, the
// rest on a fixed ticker. Slow fetches skip ticks rather than stacking up.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Msg("initial sync failed")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn().Err(err).Msg("sync tick failed")
			}
		}
	}
}

// ErrSyncInFlight is returned when a tick is dropped because the previous
// fetch has not resolved yet.
var ErrSyncInFlight = errors.New("previous sync still in flight")

// RunOnce performs one fetch-and-replace cycle. The fetch start time travels
// with the response so the store can tell which local mutations the snapshot
// cannot know about yet.
func (s *Syncer) RunOnce(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug().Msg("sync tick dropped, previous fetch unresolved")
		return ErrSyncInFlight
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	photos, err := s.lister.ListPhotos(ctx, s.projectID, api.ListQuery{})
	if ctx.Err() != nil {
		// session torn down mid-fetch; the response must not touch the store
		return ctx.Err()
	}
	if err != nil {
		s.notify(err)
		return err
	}
	s.store.ReplaceAll(photos, start)
	s.log.Debug().Int("photos", len(photos)).Dur("took", time.Since(start)).Msg("sync applied")
	s.notify(nil)
	return nil
}

// InFlight reports whether a fetch is currently unresolved.
func (s *Syncer) InFlight() bool { return s.inFlight.Load() }

func (s *Syncer) notify(err error) {
	if s.OnSync != nil {
		s.OnSync(err)
	}
}
