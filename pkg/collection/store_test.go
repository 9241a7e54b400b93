package collection

import (
	"fmt"
	"testing"
	"time"

	"autocam/pkg/api"
	"autocam/pkg/triage"
)

func photo(id string, set triage.Set, isBlurry bool) api.Photo {
	quality := 50.0
	return api.Photo{
		ID:           id,
		Filename:     id + ".jpg",
		PhotoSet:     string(set),
		IsBlurry:     isBlurry,
		IsSelected:   set == triage.Final,
		QualityScore: &quality,
		CreatedAt:    time.Unix(1700000000, 0),
	}
}

func seeded(photos ...api.Photo) *Store {
	s := NewStore()
	s.ReplaceAll(photos, time.Now())
	return s
}

func TestReplaceAllResetsCursor(t *testing.T) {
	s := seeded(photo("a", triage.Clean, false), photo("b", triage.Clean, false), photo("c", triage.Clean, false))
	s.MoveCursor(2)
	if s.Cursor() != 2 {
		t.Fatalf("cursor = %d, want 2", s.Cursor())
	}
	s.ReplaceAll([]api.Photo{photo("a", triage.Clean, false)}, time.Now())
	if s.Cursor() != 0 {
		t.Fatalf("cursor after ReplaceAll = %d, want 0", s.Cursor())
	}
}

func TestApplyPatchUnknownIDIsNoop(t *testing.T) {
	s := seeded(photo("a", triage.Clean, false))
	set := string(triage.Final)
	s.ApplyPatch("ghost", Patch{PhotoSet: &set}) // must not panic or change anything
	got, _ := s.Get("a")
	if got.PhotoSet != string(triage.Clean) {
		t.Fatalf("unrelated photo mutated: %s", got.PhotoSet)
	}
}

func TestApplyPatchMergesFields(t *testing.T) {
	s := seeded(photo("a", triage.Blurry, true))
	set := string(triage.Final)
	sel := true
	s.ApplyPatch("a", Patch{PhotoSet: &set, IsSelected: &sel})
	got, _ := s.Get("a")
	if got.PhotoSet != "FINAL" || !got.IsSelected {
		t.Fatalf("patch not applied: %+v", got)
	}
	if !got.IsBlurry {
		t.Fatalf("untouched field changed")
	}
}

func TestCursorClampsAtBothEnds(t *testing.T) {
	s := seeded(photo("a", triage.Clean, false), photo("b", triage.Clean, false))
	s.MoveCursor(-5)
	if s.Cursor() != 0 {
		t.Fatalf("cursor below zero: %d", s.Cursor())
	}
	s.MoveCursor(99)
	if s.Cursor() != 1 {
		t.Fatalf("cursor past end: %d", s.Cursor())
	}
}

func TestSetActiveSetResetsCursor(t *testing.T) {
	s := seeded(photo("a", triage.Clean, false), photo("b", triage.Clean, false), photo("c", triage.Blurry, true))
	s.MoveCursor(1)
	s.SetActiveSet(triage.Blurry)
	if s.Cursor() != 0 {
		t.Fatalf("cursor not reset on tab switch: %d", s.Cursor())
	}
	cur, ok := s.CurrentPhoto()
	if !ok || cur.ID != "c" {
		t.Fatalf("current photo = %+v, want c", cur)
	}
}

func TestHideBlurrySuppressedOnBlurryTab(t *testing.T) {
	s := seeded(photo("a", triage.Blurry, true), photo("b", triage.Blurry, true), photo("c", triage.Clean, false))
	f := Filters{HideBlurry: true}

	blurryView := s.ViewFor(triage.Blurry, f, Sort{})
	if len(blurryView) != 2 {
		t.Fatalf("BLURRY view must ignore hide-blurry, got %d photos", len(blurryView))
	}

	// On other tabs the filter applies: a blurry photo promoted to FINAL is hidden.
	s.ApplyPatch("a", Patch{PhotoSet: strPtr("FINAL"), IsSelected: boolPtr(true)})
	finalView := s.ViewFor(triage.Final, f, Sort{})
	if len(finalView) != 0 {
		t.Fatalf("hide-blurry must apply outside the BLURRY tab, got %d photos", len(finalView))
	}
}

func TestQualityFilterPassesUnscoredPhotos(t *testing.T) {
	unscored := photo("p", triage.Pending, false)
	unscored.QualityScore = nil
	s := seeded(unscored)
	minQ := 80.0
	view := s.ViewFor(triage.Pending, Filters{MinQuality: &minQ}, Sort{})
	if len(view) != 1 {
		t.Fatalf("photos without a score must not be filtered out")
	}
}

func TestSortKeysAndDirections(t *testing.T) {
	a := photo("a", triage.Clean, false)
	b := photo("b", triage.Clean, false)
	c := photo("c", triage.Clean, false)
	qa, qb, qc := 10.0, 30.0, 20.0
	a.QualityScore, b.QualityScore, c.QualityScore = &qa, &qb, &qc
	a.SizeBytes, b.SizeBytes, c.SizeBytes = 300, 100, 200
	ta := time.Unix(3000, 0)
	tb := time.Unix(1000, 0)
	tc := time.Unix(2000, 0)
	a.CapturedAt, b.CapturedAt, c.CapturedAt = &ta, &tb, &tc
	s := seeded(a, b, c)

	ids := func(view []api.Photo) string {
		out := ""
		for _, p := range view {
			out += p.ID
		}
		return out
	}

	if got := ids(s.ViewFor(triage.Clean, Filters{}, Sort{Key: SortQuality})); got != "acb" {
		t.Fatalf("quality asc = %s, want acb", got)
	}
	if got := ids(s.ViewFor(triage.Clean, Filters{}, Sort{Key: SortQuality, Desc: true})); got != "bca" {
		t.Fatalf("quality desc = %s, want bca", got)
	}
	if got := ids(s.ViewFor(triage.Clean, Filters{}, Sort{Key: SortFilename})); got != "abc" {
		t.Fatalf("filename asc = %s, want abc", got)
	}
	if got := ids(s.ViewFor(triage.Clean, Filters{}, Sort{Key: SortSize})); got != "bca" {
		t.Fatalf("size asc = %s, want bca", got)
	}
	if got := ids(s.ViewFor(triage.Clean, Filters{}, Sort{Key: SortCaptured})); got != "bca" {
		t.Fatalf("captured asc = %s, want bca", got)
	}
}

func TestSortTiesKeepOriginalOrder(t *testing.T) {
	var photos []api.Photo
	for i := 0; i < 6; i++ {
		p := photo(fmt.Sprintf("p%d", i), triage.Clean, false)
		q := 42.0
		p.QualityScore = &q
		photos = append(photos, p)
	}
	s := seeded(photos...)
	view := s.ViewFor(triage.Clean, Filters{}, Sort{Key: SortQuality, Desc: true})
	for i, p := range view {
		if p.ID != fmt.Sprintf("p%d", i) {
			t.Fatalf("tie order broken at %d: %s", i, p.ID)
		}
	}
}

func TestMarkedSetIndependentOfFinal(t *testing.T) {
	s := seeded(photo("a", triage.Clean, false), photo("b", triage.Final, false))
	s.Mark("a")
	if !s.IsMarked("a") {
		t.Fatalf("a should be marked")
	}
	if s.IsMarked("b") {
		t.Fatalf("FINAL membership must not imply marked")
	}
	got, _ := s.Get("a")
	if got.IsSelected {
		t.Fatalf("marking must not touch isSelected")
	}
	s.ToggleMark("a")
	if s.IsMarked("a") {
		t.Fatalf("toggle should unmark")
	}
	s.MarkAllInView() // active set is CLEAN; only a qualifies
	if ids := s.MarkedIDs(); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("mark-all-in-view marked %v", ids)
	}
	s.ClearMarks()
	if len(s.MarkedIDs()) != 0 {
		t.Fatalf("clear left marks behind")
	}
}

// A sync that began before a local mutation must not roll the mutation back.
func TestReplaceAllKeepsPatchesNewerThanSyncStart(t *testing.T) {
	s := seeded(photo("g", triage.Clean, false))

	syncStart := time.Now().Add(-10 * time.Millisecond)
	// promote lands while the sync response is still in flight
	s.ApplyPatch("g", Patch{PhotoSet: strPtr("FINAL"), IsSelected: boolPtr(true)})

	// stale server snapshot still shows g in CLEAN
	s.ReplaceAll([]api.Photo{photo("g", triage.Clean, false)}, syncStart)

	got, _ := s.Get("g")
	if got.PhotoSet != "FINAL" || !got.IsSelected {
		t.Fatalf("stale sync rolled back an optimistic promote: %+v", got)
	}

	// the next tick starts after the mutation and is allowed to win
	s.ReplaceAll([]api.Photo{photo("g", triage.Clean, false)}, time.Now())
	got, _ = s.Get("g")
	if got.PhotoSet != "CLEAN" {
		t.Fatalf("fresh sync must be authoritative, got %s", got.PhotoSet)
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
