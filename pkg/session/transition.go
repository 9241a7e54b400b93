// Package session wires the collection store to the persistence boundary:
// promote/demote with optimistic reconciliation, the polling sync loop, and
// the command dispatch the UI binds keys to.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"autocam/pkg/api"
	"autocam/pkg/collection"
	"autocam/pkg/triage"
)

// Boundary is the slice of the API client the transition service needs.
type Boundary interface {
	SelectPhotos(ctx context.Context, ids []string) (int, error)
	DeselectPhotos(ctx context.Context, ids []string) (int, error)
}

// Result reports one promote/demote outcome. Affected may be less than
// Requested when ids were skipped (not analyzed yet, already moved by a
// concurrent actor); that is partial success, not an error.
type Result struct {
	Demoted   bool
	Requested int
	Affected  int
}

// Partial reports whether some requested photos were skipped.
func (r Result) Partial() bool { return r.Affected < r.Requested }

// Transitioner moves photos into and out of FINAL and reconciles the store.
// The store is patched optimistically before the network call and reverted
// if the call fails. Single-flight discipline for the triage key lives here
// too (TryBegin/End) so the control loop can re-check it synchronously.
type Transitioner struct {
	store    *collection.Store
	boundary Boundary
	log      zerolog.Logger

	busy   atomic.Bool
	mu     sync.Mutex // serializes patch+call sequences that share the store
	closed atomic.Bool
}

// NewTransitioner returns a transition service over store and boundary.
func NewTransitioner(store *collection.Store, boundary Boundary, log zerolog.Logger) *Transitioner {
	return &Transitioner{store: store, boundary: boundary, log: log}
}

// TryBegin claims the single-flight slot. It must be called at invocation
// time, not captured earlier: a stale answer would let rapid key repeats
// issue duplicate calls.
func (t *Transitioner) TryBegin() bool {
	return t.busy.CompareAndSwap(false, true)
}

// End releases the single-flight slot.
func (t *Transitioner) End() { t.busy.Store(false) }

// Busy reports whether a triage-key operation is in flight.
func (t *Transitioner) Busy() bool { return t.busy.Load() }

// Close detaches the transitioner from its store. Operations still in flight
// complete against the server but their results are dropped instead of
// patching a store that no longer backs any view.
func (t *Transitioner) Close() { t.closed.Store(true) }

// Promote moves photos from BLURRY/CLEAN into FINAL. Ids that do not resolve
// to a promotable photo are silently excluded. An empty id list is rejected
// before any network call.
func (t *Transitioner) Promote(ctx context.Context, ids []string) (Result, error) {
	res := Result{Requested: len(ids)}
	if len(ids) == 0 {
		return res, &api.ValidationError{Msg: triage.ErrEmptySelection.Error()}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	eligible := make([]string, 0, len(ids))
	reverts := make(map[string]collection.Patch, len(ids))
	for _, id := range ids {
		p, ok := t.store.Get(id)
		if !ok || !triage.CanPromote(triage.Set(p.PhotoSet)) {
			continue
		}
		eligible = append(eligible, id)
		reverts[id] = snapshotPatch(p)
	}
	if len(eligible) == 0 {
		// nothing qualifies; no network call, no store change
		return res, nil
	}

	// optimistic: the server computes exactly these values on success
	finalSet := string(triage.Final)
	selected := true
	for _, id := range eligible {
		t.store.ApplyPatch(id, collection.Patch{PhotoSet: &finalSet, IsSelected: &selected})
	}

	affected, err := t.boundary.SelectPhotos(ctx, eligible)
	if t.closed.Load() {
		t.log.Debug().Int("ids", len(eligible)).Msg("promote result dropped after close")
		return res, nil
	}
	if err != nil {
		for id, patch := range reverts {
			t.store.ApplyPatch(id, patch)
		}
		return res, err
	}
	res.Affected = affected
	if res.Partial() {
		t.log.Info().Int("requested", res.Requested).Int("affected", affected).Msg("promote partially applied")
	}
	return res, nil
}

// Demote moves photos out of FINAL back to the class their immutable blur
// flag dictates. Failures are per-photo on the server; here a failed call
// reverts the whole optimistic patch and reports the error.
func (t *Transitioner) Demote(ctx context.Context, ids []string) (Result, error) {
	res := Result{Demoted: true, Requested: len(ids)}
	if len(ids) == 0 {
		return res, &api.ValidationError{Msg: triage.ErrEmptySelection.Error()}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	eligible := make([]string, 0, len(ids))
	reverts := make(map[string]collection.Patch, len(ids))
	for _, id := range ids {
		p, ok := t.store.Get(id)
		if !ok || !triage.CanDemote(triage.Set(p.PhotoSet)) {
			continue
		}
		eligible = append(eligible, id)
		reverts[id] = snapshotPatch(p)
		// destination recomputed from the blur flag, not from history
		target := string(triage.DemoteTarget(p.IsBlurry))
		unselected := false
		t.store.ApplyPatch(id, collection.Patch{PhotoSet: &target, IsSelected: &unselected})
	}
	if len(eligible) == 0 {
		for id, patch := range reverts {
			t.store.ApplyPatch(id, patch)
		}
		return res, nil
	}

	affected, err := t.boundary.DeselectPhotos(ctx, eligible)
	if t.closed.Load() {
		t.log.Debug().Int("ids", len(eligible)).Msg("demote result dropped after close")
		return res, nil
	}
	if err != nil {
		for id, patch := range reverts {
			t.store.ApplyPatch(id, patch)
		}
		return res, err
	}
	res.Affected = affected
	if res.Partial() {
		t.log.Info().Int("requested", res.Requested).Int("affected", affected).Msg("demote partially applied")
	}
	return res, nil
}

func snapshotPatch(p api.Photo) collection.Patch {
	set := p.PhotoSet
	sel := p.IsSelected
	return collection.Patch{PhotoSet: &set, IsSelected: &sel}
}
