// Package blur scores photo sharpness using Laplacian variance.
//
// A Laplacian kernel responds to edges; sharp images have many strong edges
// and therefore a high variance of the filter response, blurred images a low
// one. The image is analyzed twice: once on the center 50% region (where the
// subject usually is) and once on the full frame. A sharp center classifies
// the photo as clean even when the background is out of focus, so
// depth-of-field shots are not punished; only when both passes fall below the
// threshold is the photo considered blurry (motion blur or camera shake).
package blur

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultThreshold is the Laplacian variance below which a photo counts as
// blurry. Tuned strict so only truly sharp photos are classified clean.
const DefaultThreshold = 150.0

// maxDimension is the downsampling bound applied before analysis. Blur
// detection works as well on a downsampled image and is much faster.
const maxDimension = 1280

// Result holds one photo's analysis outcome.
type Result struct {
	IsBlurry       bool
	BlurScore      float64 // Laplacian variance, higher = sharper
	QualityScore   float64 // 0-100
	ExposureScore  float64 // 0-100
	Confidence     string  // high, medium, low
	Method         string
	CenterVariance float64
	FullVariance   float64
}

// AnalyzeFile opens and analyzes an image file.
func AnalyzeFile(path string, threshold float64) (Result, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, err
	}
	return Analyze(img, threshold), nil
}

// Analyze scores a decoded image. threshold <= 0 selects DefaultThreshold.
func Analyze(img image.Image, threshold float64) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	gray := grayscale(downsample(img))

	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	center := image.Rect(w/4, h/4, w*3/4, h*3/4)

	centerVar := laplacianVariance(gray, center)
	fullVar := laplacianVariance(gray, gray.Bounds())

	res := Result{
		CenterVariance: centerVar,
		FullVariance:   fullVar,
		ExposureScore:  exposureScore(gray),
	}

	switch {
	case centerVar > threshold:
		// Sharp subject; a blurry background is fine.
		res.IsBlurry = false
		res.BlurScore = centerVar
		res.Confidence = "high"
		res.Method = "region_based_laplacian"
	case fullVar > threshold:
		res.IsBlurry = false
		res.BlurScore = fullVar
		res.Confidence = "high"
		res.Method = "full_image_laplacian"
	default:
		res.IsBlurry = true
		res.BlurScore = math.Max(centerVar, fullVar)
		res.Confidence = confidenceBelow(threshold - res.BlurScore)
		res.Method = "region_based_laplacian"
	}
	res.QualityScore = QualityScore(res.BlurScore, res.ExposureScore, false)
	return res
}

func confidenceBelow(distance float64) string {
	switch {
	case distance > 50:
		return "high"
	case distance > 20:
		return "medium"
	default:
		return "low"
	}
}

// QualityScore combines blur (50%), exposure (30%) and a face bonus (20
// points) into a 0-100 score. Blur variance is normalized against 500 as the
// practical top of the sharpness range.
func QualityScore(blurScore, exposureScore float64, hasFaces bool) float64 {
	blurNorm := math.Min(100, blurScore/500*100)
	faceBonus := 0.0
	if hasFaces {
		faceBonus = 20
	}
	q := blurNorm*0.5 + exposureScore*0.3 + faceBonus
	return math.Max(0, math.Min(100, q))
}

// downsample bounds the larger image dimension to maxDimension.
func downsample(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return img
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

// grayscale converts to 8-bit luma stored row-major.
func grayscale(img image.Image) *grayImage {
	b := img.Bounds()
	g := &grayImage{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			r, gg, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Rec. 601 luma, same weighting imaging.Grayscale uses.
			g.pix[y*g.w+x] = (0.299*float64(r) + 0.587*float64(gg) + 0.114*float64(bb)) / 257.0
		}
	}
	return g
}

type grayImage struct {
	w, h int
	pix  []float64
}

func (g *grayImage) Bounds() image.Rectangle { return image.Rect(0, 0, g.w, g.h) }

func (g *grayImage) at(x, y int) float64 { return g.pix[y*g.w+x] }

// laplacianVariance applies the 4-neighbor Laplacian kernel over rect
// (clipped to the interior so the kernel always fits) and returns the
// variance of the response.
func laplacianVariance(g *grayImage, rect image.Rectangle) float64 {
	rect = rect.Intersect(image.Rect(1, 1, g.w-1, g.h-1))
	if rect.Empty() {
		return 0
	}
	n := rect.Dx() * rect.Dy()
	resp := make([]float64, 0, n)
	sum := 0.0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			resp = append(resp, v)
			sum += v
		}
	}
	mean := sum / float64(n)
	variance := 0.0
	for _, v := range resp {
		d := v - mean
		variance += d * d
	}
	return variance / float64(n)
}

// exposureScore scores mean brightness against middle gray (127): 100 at the
// ideal, 0 when fully black or fully white.
func exposureScore(g *grayImage) float64 {
	if len(g.pix) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range g.pix {
		sum += v
	}
	mean := sum / float64(len(g.pix))
	distance := math.Abs(mean - 127)
	return math.Max(0, 100-distance/127*100)
}
