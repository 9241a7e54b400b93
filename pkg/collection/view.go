package collection

import (
	"sort"
	"strings"

	"autocam/pkg/api"
	"autocam/pkg/triage"
)

// Filters narrow a set view. The zero value hides nothing.
type Filters struct {
	MinQuality *float64 // photos without a score yet always pass
	HideBlurry bool     // suppressed while viewing the BLURRY set
	OnlyFaces  bool
}

// SortKey selects the view ordering.
type SortKey int

const (
	SortCaptured SortKey = iota
	SortQuality
	SortFilename
	SortSize
)

func (k SortKey) String() string {
	switch k {
	case SortQuality:
		return "quality"
	case SortFilename:
		return "filename"
	case SortSize:
		return "size"
	default:
		return "captured"
	}
}

// Sort is a key plus direction. Ties keep original list order (stable sort).
type Sort struct {
	Key  SortKey
	Desc bool
}

// buildView filters and orders the photos of one set. The hide-blurry filter
// is ignored on the BLURRY tab: that tab exists to review blurry photos for
// rescue, and honoring the filter there would always produce an empty view.
func buildView(photos []api.Photo, set triage.Set, f Filters, so Sort) []api.Photo {
	out := make([]api.Photo, 0, len(photos))
	hideBlurry := f.HideBlurry && set != triage.Blurry
	for i := range photos {
		p := photos[i]
		if triage.Set(p.PhotoSet) != set {
			continue
		}
		if hideBlurry && p.IsBlurry {
			continue
		}
		if f.OnlyFaces && !p.HasFaces {
			continue
		}
		if f.MinQuality != nil && p.QualityScore != nil && *p.QualityScore < *f.MinQuality {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		less, eq := compare(&out[i], &out[j], so.Key)
		if eq {
			return false // stable sort keeps original order for ties
		}
		if so.Desc {
			return !less
		}
		return less
	})
	return out
}

// compare returns whether a sorts before b under key, and whether they tie.
func compare(a, b *api.Photo, key SortKey) (less, eq bool) {
	switch key {
	case SortQuality:
		av, bv := scoreOrZero(a.QualityScore), scoreOrZero(b.QualityScore)
		return av < bv, av == bv
	case SortFilename:
		c := strings.Compare(a.Filename, b.Filename)
		return c < 0, c == 0
	case SortSize:
		return a.SizeBytes < b.SizeBytes, a.SizeBytes == b.SizeBytes
	default: // SortCaptured; photos without a capture time fall back to upload time
		at, bt := a.CreatedAt, b.CreatedAt
		if a.CapturedAt != nil {
			at = *a.CapturedAt
		}
		if b.CapturedAt != nil {
			bt = *b.CapturedAt
		}
		return at.Before(bt), at.Equal(bt)
	}
}

func scoreOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
