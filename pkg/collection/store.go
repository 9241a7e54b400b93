// Package collection holds the client-side session state for one open
// project: the authoritative-at-last-sync photo list, per-set filtered and
// sorted views, the keyboard cursor, and the legacy marked-photo set.
//
// The store has exactly two write paths: ReplaceAll (sync) and ApplyPatch
// (mutation reconciliation and optimistic updates). Nothing else may mutate
// photo records; readers always get copies.
package collection

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autocam/pkg/api"
	"autocam/pkg/triage"
)

// Store is safe for concurrent use by the UI goroutine and the sync loop.
type Store struct {
	mu     sync.RWMutex
	log    zerolog.Logger
	photos []api.Photo
	index  map[string]int // id -> photos index

	// mutatedAt remembers when a photo was last patched locally, so a sync
	// snapshot fetched before that moment cannot roll the patch back.
	mutatedAt map[string]time.Time

	marked map[string]struct{} // independent of FINAL membership

	activeSet triage.Set
	cursor    int
	filters   Filters
	sort      Sort
}

// NewStore returns an empty store showing the CLEAN tab.
func NewStore() *Store {
	return &Store{
		log:       zerolog.Nop(),
		index:     make(map[string]int),
		mutatedAt: make(map[string]time.Time),
		marked:    make(map[string]struct{}),
		activeSet: triage.Clean,
	}
}

// SetLogger routes the store's no-op warnings somewhere visible.
func (s *Store) SetLogger(log zerolog.Logger) {
	s.mu.Lock()
	s.log = log
	s.mu.Unlock()
}

// ReplaceAll atomically swaps the authoritative photo list after a sync.
// syncStart is the moment the sync's fetch began: photos patched locally
// after that moment keep their local PhotoSet/IsSelected, because the server
// snapshot cannot reflect those mutations yet. The cursor resets to the top
// of the active view.
func (s *Store) ReplaceAll(photos []api.Photo, syncStart time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]api.Photo, len(photos))
	copy(next, photos)
	for i := range next {
		at, ok := s.mutatedAt[next[i].ID]
		if !ok || !at.After(syncStart) {
			continue
		}
		if prev, ok := s.index[next[i].ID]; ok {
			next[i].PhotoSet = s.photos[prev].PhotoSet
			next[i].IsSelected = s.photos[prev].IsSelected
		}
	}

	s.photos = next
	s.index = make(map[string]int, len(next))
	for i := range next {
		s.index[next[i].ID] = i
	}
	// marks and mutation stamps for photos that no longer exist are dropped
	for id := range s.marked {
		if _, ok := s.index[id]; !ok {
			delete(s.marked, id)
		}
	}
	for id, at := range s.mutatedAt {
		if _, ok := s.index[id]; !ok || !at.After(syncStart) {
			delete(s.mutatedAt, id)
		}
	}
	s.cursor = 0
}

// Patch is a partial photo update. Nil fields are left untouched.
type Patch struct {
	PhotoSet     *string
	IsSelected   *bool
	QualityScore *float64
}

// ApplyPatch merges fields into exactly one photo. An unknown id is a logged
// no-op, not an error: the store may already have been replaced underneath a
// slow mutation.
func (s *Store) ApplyPatch(id string, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		s.log.Warn().Str("photo_id", id).Msg("patch for unknown photo dropped")
		return
	}
	if p.PhotoSet != nil {
		s.photos[i].PhotoSet = *p.PhotoSet
	}
	if p.IsSelected != nil {
		s.photos[i].IsSelected = *p.IsSelected
	}
	if p.QualityScore != nil {
		s.photos[i].QualityScore = p.QualityScore
	}
	s.mutatedAt[id] = time.Now()
	s.clampCursorLocked()
}

// Get returns a copy of one photo.
func (s *Store) Get(id string) (api.Photo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return api.Photo{}, false
	}
	return s.photos[i], true
}

// Len returns the total number of photos in the session.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}

// Counts returns the number of photos in each set.
func (s *Store) Counts() map[triage.Set]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[triage.Set]int, len(triage.Sets))
	for i := range s.photos {
		counts[triage.Set(s.photos[i].PhotoSet)]++
	}
	return counts
}

// ActiveSet returns the current tab.
func (s *Store) ActiveSet() triage.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSet
}

// SetActiveSet switches tabs and resets the cursor to the top of the new
// view.
func (s *Store) SetActiveSet(set triage.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set == s.activeSet {
		return
	}
	s.activeSet = set
	s.cursor = 0
}

// Filters returns the active filters.
func (s *Store) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// SetFilters replaces the filters and clamps the cursor to the new view.
func (s *Store) SetFilters(f Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f
	s.clampCursorLocked()
}

// Sorting returns the active sort.
func (s *Store) Sorting() Sort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// SetSort replaces the sort order and clamps the cursor.
func (s *Store) SetSort(so Sort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = so
	s.clampCursorLocked()
}

// View returns the active set's filtered, sorted photo sequence.
func (s *Store) View() []api.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked(s.activeSet)
}

// ViewFor returns the filtered, sorted sequence for an arbitrary set using
// the given filters and sort, without touching session state.
func (s *Store) ViewFor(set triage.Set, f Filters, so Sort) []api.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return buildView(s.photos, set, f, so)
}

func (s *Store) viewLocked(set triage.Set) []api.Photo {
	return buildView(s.photos, set, s.filters, s.sort)
}

// Cursor returns the active photo index within the current view.
func (s *Store) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// MoveCursor shifts the cursor by delta, clamped to the current view.
func (s *Store) MoveCursor(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor += delta
	s.clampCursorLocked()
}

// CurrentPhoto returns the photo under the cursor, if the view is non-empty.
func (s *Store) CurrentPhoto() (api.Photo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := s.viewLocked(s.activeSet)
	if len(view) == 0 {
		return api.Photo{}, false
	}
	i := s.cursor
	if i >= len(view) {
		i = len(view) - 1
	}
	if i < 0 {
		i = 0
	}
	return view[i], true
}

func (s *Store) clampCursorLocked() {
	n := len(s.viewLocked(s.activeSet))
	if s.cursor >= n {
		s.cursor = n - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

// Mark adds a photo to the marked set (the legacy multi-select, which is a
// separate concept from FINAL membership).
func (s *Store) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		s.marked[id] = struct{}{}
	}
}

// Unmark removes a photo from the marked set.
func (s *Store) Unmark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.marked, id)
}

// ToggleMark flips a photo's marked state.
func (s *Store) ToggleMark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return
	}
	if _, ok := s.marked[id]; ok {
		delete(s.marked, id)
	} else {
		s.marked[id] = struct{}{}
	}
}

// IsMarked reports a photo's marked state.
func (s *Store) IsMarked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.marked[id]
	return ok
}

// MarkAllInView marks every photo in the active view.
func (s *Store) MarkAllInView() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.viewLocked(s.activeSet) {
		s.marked[p.ID] = struct{}{}
	}
}

// ClearMarks empties the marked set.
func (s *Store) ClearMarks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = make(map[string]struct{})
}

// MarkedIDs returns the marked photo ids in view order first, then the rest
// in list order.
func (s *Store) MarkedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.marked))
	for i := range s.photos {
		if _, ok := s.marked[s.photos[i].ID]; ok {
			out = append(out, s.photos[i].ID)
		}
	}
	return out
}
