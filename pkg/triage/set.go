// Package triage implements the photo set state machine: every photo lives in
// exactly one of four sets and only a handful of transitions between them are
// legal.
package triage

import "fmt"

// Set is the workflow state of a photo.
type Set string

const (
	// Pending means the photo has not been analyzed yet.
	Pending Set = "PENDING"
	// Blurry means analysis classified the photo as blurry.
	Blurry Set = "BLURRY"
	// Clean means analysis classified the photo as sharp.
	Clean Set = "CLEAN"
	// Final means the user promoted the photo into the export set.
	Final Set = "FINAL"
)

// Sets lists all sets in tab order.
var Sets = []Set{Pending, Blurry, Clean, Final}

// ParseSet validates a wire value.
func ParseSet(s string) (Set, error) {
	switch Set(s) {
	case Pending, Blurry, Clean, Final:
		return Set(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSet, s)
}

// Valid reports whether s is one of the four set values.
func (s Set) Valid() bool {
	_, err := ParseSet(string(s))
	return err == nil
}

// CanPromote reports whether a photo in set s may be moved to FINAL.
// PENDING photos cannot be finalized before analysis, and FINAL is already
// there.
func CanPromote(s Set) bool {
	return s == Blurry || s == Clean
}

// CanDemote reports whether a photo in set s may be moved out of FINAL.
func CanDemote(s Set) bool {
	return s == Final
}

// DemoteTarget returns the set a photo returns to when it leaves FINAL.
// The origin set is not stored anywhere; it is recomputed from the blur flag.
// That is only correct because IsBlurry is written once by the analysis
// worker and never re-evaluated afterwards. If it ever changed while a photo
// sat in FINAL, demotion would route to the new class, not the one the photo
// was promoted from.
func DemoteTarget(isBlurry bool) Set {
	if isBlurry {
		return Blurry
	}
	return Clean
}

// ClassFor returns the analyzed class for a blur flag. It is the automatic
// PENDING exit applied by the analysis worker and intentionally the same
// computation as DemoteTarget.
func ClassFor(isBlurry bool) Set {
	return DemoteTarget(isBlurry)
}
