package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"autocam/pkg/api"
	"autocam/pkg/collection"
	"autocam/pkg/triage"
)

type fakeBoundary struct {
	mu            sync.Mutex
	selectCalls   [][]string
	deselectCalls [][]string
	selectErr     error
	deselectErr   error
	affected      int // -1 means echo len(ids)
}

func newFakeBoundary() *fakeBoundary { return &fakeBoundary{affected: -1} }

func (f *fakeBoundary) SelectPhotos(ctx context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCalls = append(f.selectCalls, append([]string(nil), ids...))
	if f.selectErr != nil {
		return 0, f.selectErr
	}
	if f.affected >= 0 {
		return f.affected, nil
	}
	return len(ids), nil
}

func (f *fakeBoundary) DeselectPhotos(ctx context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deselectCalls = append(f.deselectCalls, append([]string(nil), ids...))
	if f.deselectErr != nil {
		return 0, f.deselectErr
	}
	if f.affected >= 0 {
		return f.affected, nil
	}
	return len(ids), nil
}

func (f *fakeBoundary) selects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.selectCalls)
}

func photo(id string, set triage.Set, isBlurry bool) api.Photo {
	return api.Photo{
		ID:         id,
		Filename:   id + ".jpg",
		PhotoSet:   string(set),
		IsBlurry:   isBlurry,
		IsSelected: set == triage.Final,
	}
}

func seeded(photos ...api.Photo) *collection.Store {
	s := collection.NewStore()
	s.ReplaceAll(photos, time.Now())
	return s
}

func TestPromoteSkipsIneligibleAndReportsPartial(t *testing.T) {
	store := seeded(photo("a", triage.Clean, false), photo("c", triage.Pending, false))
	fb := newFakeBoundary()
	tr := NewTransitioner(store, fb, zerolog.Nop())

	res, err := tr.Promote(context.Background(), []string{"a", "c"})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if res.Requested != 2 || res.Affected != 1 || !res.Partial() {
		t.Fatalf("result = %+v, want requested 2 affected 1", res)
	}
	if len(fb.selectCalls) != 1 || len(fb.selectCalls[0]) != 1 || fb.selectCalls[0][0] != "a" {
		t.Fatalf("boundary saw %v, want only the eligible photo", fb.selectCalls)
	}
	a, _ := store.Get("a")
	if a.PhotoSet != "FINAL" || !a.IsSelected {
		t.Fatalf("a not promoted locally: %+v", a)
	}
	c, _ := store.Get("c")
	if c.PhotoSet != "PENDING" || c.IsSelected {
		t.Fatalf("pending photo must be untouched: %+v", c)
	}
}

func TestPromoteNothingEligibleSkipsNetwork(t *testing.T) {
	store := seeded(photo("p", triage.Pending, false), photo("f", triage.Final, false))
	fb := newFakeBoundary()
	tr := NewTransitioner(store, fb, zerolog.Nop())

	res, err := tr.Promote(context.Background(), []string{"p", "f"})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if res.Affected != 0 {
		t.Fatalf("affected = %d, want 0", res.Affected)
	}
	if fb.selects() != 0 {
		t.Fatalf("no network call expected when nothing is eligible")
	}
}

func TestPromoteEmptyListIsValidationError(t *testing.T) {
	tr := NewTransitioner(seeded(), newFakeBoundary(), zerolog.Nop())
	if _, err := tr.Promote(context.Background(), nil); !api.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPromoteRevertsOnFailure(t *testing.T) {
	store := seeded(photo("a", triage.Clean, false))
	fb := newFakeBoundary()
	fb.selectErr = &api.TransientError{Err: context.DeadlineExceeded}
	tr := NewTransitioner(store, fb, zerolog.Nop())

	_, err := tr.Promote(context.Background(), []string{"a"})
	if !api.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	a, _ := store.Get("a")
	if a.PhotoSet != "CLEAN" || a.IsSelected {
		t.Fatalf("failed promote must leave the photo untouched: %+v", a)
	}
}

func TestDemoteRoutesByBlurFlag(t *testing.T) {
	store := seeded(photo("d", triage.Final, true), photo("e", triage.Final, false))
	fb := newFakeBoundary()
	tr := NewTransitioner(store, fb, zerolog.Nop())

	res, err := tr.Demote(context.Background(), []string{"d", "e"})
	if err != nil {
		t.Fatalf("demote failed: %v", err)
	}
	if res.Affected != 2 || !res.Demoted {
		t.Fatalf("result = %+v", res)
	}
	d, _ := store.Get("d")
	if d.PhotoSet != "BLURRY" || d.IsSelected {
		t.Fatalf("blurry photo must demote to BLURRY: %+v", d)
	}
	e, _ := store.Get("e")
	if e.PhotoSet != "CLEAN" || e.IsSelected {
		t.Fatalf("clean photo must demote to CLEAN: %+v", e)
	}
}

func TestDemoteRevertsOnFailure(t *testing.T) {
	store := seeded(photo("d", triage.Final, true))
	fb := newFakeBoundary()
	fb.deselectErr = &api.AuthorizationError{Status: 403, Msg: "forbidden"}
	tr := NewTransitioner(store, fb, zerolog.Nop())

	_, err := tr.Demote(context.Background(), []string{"d"})
	if !api.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	d, _ := store.Get("d")
	if d.PhotoSet != "FINAL" || !d.IsSelected {
		t.Fatalf("failed demote must leave the photo in FINAL: %+v", d)
	}
}

func TestTriageKeyIsSingleFlight(t *testing.T) {
	store := seeded(photo("a", triage.Clean, false), photo("b", triage.Clean, false))
	fb := newFakeBoundary()
	tr := NewTransitioner(store, fb, zerolog.Nop())
	ctl := NewController(store, tr, nil, zerolog.Nop())

	op1 := ctl.Dispatch(ActionTriage)
	if op1 == nil {
		t.Fatalf("first press must produce work")
	}
	// second press lands before the first call resolves
	if op2 := ctl.Dispatch(ActionTriage); op2 != nil {
		t.Fatalf("second press must be dropped, not queued")
	}

	if _, err := op1(context.Background()); err != nil {
		t.Fatalf("op failed: %v", err)
	}
	if fb.selects() != 1 {
		t.Fatalf("exactly one network call expected, got %d", fb.selects())
	}
	// slot freed, the key works again
	if op3 := ctl.Dispatch(ActionTriage); op3 == nil {
		t.Fatalf("triage must accept input again after the call resolves")
	}
}

func TestTriageOnFinalTabDemotes(t *testing.T) {
	store := seeded(photo("f", triage.Final, false))
	store.SetActiveSet(triage.Final)
	fb := newFakeBoundary()
	tr := NewTransitioner(store, fb, zerolog.Nop())
	ctl := NewController(store, tr, nil, zerolog.Nop())

	op := ctl.Dispatch(ActionTriage)
	if op == nil {
		t.Fatalf("expected work")
	}
	res, err := op(context.Background())
	if err != nil {
		t.Fatalf("op failed: %v", err)
	}
	if !res.Demoted {
		t.Fatalf("FINAL tab must demote, got %+v", res)
	}
	f, _ := store.Get("f")
	if f.PhotoSet != "CLEAN" {
		t.Fatalf("photo not demoted: %+v", f)
	}
}

func TestTriageOnEmptyViewIsNoop(t *testing.T) {
	store := seeded() // nothing to review
	tr := NewTransitioner(store, newFakeBoundary(), zerolog.Nop())
	ctl := NewController(store, tr, nil, zerolog.Nop())
	if op := ctl.Dispatch(ActionTriage); op != nil {
		t.Fatalf("empty view must not produce work")
	}
	if tr.Busy() {
		t.Fatalf("dropped action must not leave the slot claimed")
	}
}

func TestTriageMarkedClearsMarksOnSuccess(t *testing.T) {
	store := seeded(photo("a", triage.Clean, false), photo("b", triage.Clean, false))
	store.Mark("a")
	store.Mark("b")
	fb := newFakeBoundary()
	tr := NewTransitioner(store, fb, zerolog.Nop())
	ctl := NewController(store, tr, nil, zerolog.Nop())

	op := ctl.TriageMarked()
	if op == nil {
		t.Fatalf("expected batch work")
	}
	res, err := op(context.Background())
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if res.Affected != 2 {
		t.Fatalf("affected = %d, want 2", res.Affected)
	}
	if len(store.MarkedIDs()) != 0 {
		t.Fatalf("marks must be cleared after a successful batch")
	}
}

func TestCursorAndTabActions(t *testing.T) {
	store := seeded(
		photo("a", triage.Clean, false), photo("b", triage.Clean, false),
		photo("c", triage.Clean, false), photo("d", triage.Clean, false),
	)
	cols := 2
	ctl := NewController(store, NewTransitioner(store, newFakeBoundary(), zerolog.Nop()), func() int { return cols }, zerolog.Nop())

	ctl.Dispatch(ActionNextPhoto)
	if store.Cursor() != 1 {
		t.Fatalf("cursor = %d after next", store.Cursor())
	}
	ctl.Dispatch(ActionRowDown)
	if store.Cursor() != 3 {
		t.Fatalf("cursor = %d after row down", store.Cursor())
	}
	ctl.Dispatch(ActionRowUp)
	ctl.Dispatch(ActionPrevPhoto)
	if store.Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0", store.Cursor())
	}

	ctl.Dispatch(ActionNextSet)
	if store.ActiveSet() != triage.Final {
		t.Fatalf("next set from CLEAN = %s, want FINAL", store.ActiveSet())
	}
	ctl.Dispatch(ActionNextSet) // wraps to the first tab
	if store.ActiveSet() != triage.Pending {
		t.Fatalf("wrap failed, got %s", store.ActiveSet())
	}
	ctl.Dispatch(ActionPrevSet)
	if store.ActiveSet() != triage.Final {
		t.Fatalf("prev set from PENDING = %s, want FINAL", store.ActiveSet())
	}
}

type fakeLister struct {
	mu      sync.Mutex
	photos  []api.Photo
	err     error
	block   chan struct{} // when set, ListPhotos waits for it (or ctx)
	calls   int
}

func (f *fakeLister) ListPhotos(ctx context.Context, projectID string, q api.ListQuery) ([]api.Photo, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	photos := append([]api.Photo(nil), f.photos...)
	err := f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return photos, err
}

func TestSyncReplacesStore(t *testing.T) {
	store := collection.NewStore()
	fl := &fakeLister{photos: []api.Photo{photo("a", triage.Clean, false)}}
	sy := NewSyncer(store, fl, "proj", time.Minute, zerolog.Nop())

	if err := sy.RunOnce(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store not replaced, len = %d", store.Len())
	}
}

func TestSyncTicksNeverOverlap(t *testing.T) {
	store := collection.NewStore()
	release := make(chan struct{})
	fl := &fakeLister{block: release}
	sy := NewSyncer(store, fl, "proj", time.Minute, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- sy.RunOnce(context.Background()) }()

	// wait for the first fetch to be in flight
	deadline := time.After(2 * time.Second)
	for !sy.InFlight() {
		select {
		case <-deadline:
			t.Fatalf("first sync never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := sy.RunOnce(context.Background()); err != ErrSyncInFlight {
		t.Fatalf("overlapping tick must be dropped, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
}

// A promote that lands while a sync response is in flight must survive that
// sync: the snapshot was fetched before the mutation and cannot know it.
func TestSyncDoesNotRollBackInFlightPromote(t *testing.T) {
	store := collection.NewStore()
	store.ReplaceAll([]api.Photo{photo("g", triage.Clean, false)}, time.Now())

	release := make(chan struct{})
	fl := &fakeLister{photos: []api.Photo{photo("g", triage.Clean, false)}, block: release}
	sy := NewSyncer(store, fl, "proj", time.Minute, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- sy.RunOnce(context.Background()) }()
	deadline := time.After(2 * time.Second)
	for !sy.InFlight() {
		select {
		case <-deadline:
			t.Fatalf("sync never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// the user keeps g while the stale response is on the wire
	tr := NewTransitioner(store, newFakeBoundary(), zerolog.Nop())
	if _, err := tr.Promote(context.Background(), []string{"g"}); err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	g, _ := store.Get("g")
	if g.PhotoSet != "FINAL" || !g.IsSelected {
		t.Fatalf("stale sync rolled back the promote: %+v", g)
	}
}

func TestCancelledSyncNeverTouchesStore(t *testing.T) {
	store := collection.NewStore()
	store.ReplaceAll([]api.Photo{photo("a", triage.Clean, false)}, time.Now())

	release := make(chan struct{})
	fl := &fakeLister{photos: nil, block: release} // server would say "empty"
	sy := NewSyncer(store, fl, "proj", time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sy.RunOnce(ctx) }()
	deadline := time.After(2 * time.Second)
	for !sy.InFlight() {
		select {
		case <-deadline:
			t.Fatalf("sync never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err == nil {
		t.Fatalf("cancelled sync must report the cancellation")
	}
	if store.Len() != 1 {
		t.Fatalf("cancelled sync replaced the store")
	}
}

func TestSyncNotifiesOnCompletion(t *testing.T) {
	store := collection.NewStore()
	fl := &fakeLister{err: &api.TransientError{Err: context.DeadlineExceeded}}
	sy := NewSyncer(store, fl, "proj", time.Minute, zerolog.Nop())

	var got error
	sy.OnSync = func(err error) { got = err }
	_ = sy.RunOnce(context.Background())
	if !api.IsTransient(got) {
		t.Fatalf("callback error = %v, want transient", got)
	}

	fl.mu.Lock()
	fl.err = nil
	fl.mu.Unlock()
	got = context.DeadlineExceeded
	_ = sy.RunOnce(context.Background())
	if got != nil {
		t.Fatalf("callback must see nil on success, got %v", got)
	}
}
