package triage

import (
	"testing"

	"pgregory.net/rapid"
)

func TestParseSet(t *testing.T) {
	for _, s := range []string{"PENDING", "BLURRY", "CLEAN", "FINAL"} {
		if _, err := ParseSet(s); err != nil {
			t.Fatalf("ParseSet(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseSet("DELETED"); err == nil {
		t.Fatalf("expected error for unknown set")
	}
	if _, err := ParseSet("final"); err == nil {
		t.Fatalf("set values are case sensitive wire literals")
	}
}

func TestPromotePreconditions(t *testing.T) {
	if CanPromote(Pending) {
		t.Fatalf("PENDING must not be promotable before analysis")
	}
	if CanPromote(Final) {
		t.Fatalf("FINAL is already final")
	}
	if !CanPromote(Blurry) || !CanPromote(Clean) {
		t.Fatalf("BLURRY and CLEAN must be promotable")
	}
}

func TestDemotePreconditions(t *testing.T) {
	for _, s := range []Set{Pending, Blurry, Clean} {
		if CanDemote(s) {
			t.Fatalf("%s must not be demotable", s)
		}
	}
	if !CanDemote(Final) {
		t.Fatalf("FINAL must be demotable")
	}
}

func TestDemoteTarget(t *testing.T) {
	if got := DemoteTarget(true); got != Blurry {
		t.Fatalf("blurry photo must return to BLURRY, got %s", got)
	}
	if got := DemoteTarget(false); got != Clean {
		t.Fatalf("clean photo must return to CLEAN, got %s", got)
	}
}

// Promoting then demoting always lands a photo back in its original class,
// because the destination is recomputed from the immutable blur flag.
func TestPromoteDemoteRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		isBlurry := rapid.Bool().Draw(t, "isBlurry")
		origin := ClassFor(isBlurry)
		if !CanPromote(origin) {
			t.Fatalf("class %s not promotable", origin)
		}
		// promote
		cur := Final
		if !CanDemote(cur) {
			t.Fatalf("promoted photo not demotable")
		}
		// demote
		if back := DemoteTarget(isBlurry); back != origin {
			t.Fatalf("round trip moved photo from %s to %s", origin, back)
		}
	})
}
