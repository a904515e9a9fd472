package vision

import (
	"image"

	"github.com/andresmejia3/rashplayer/internal/types"
)

// Color trigger defaults.
const (
	DefaultColorTolerance = 15
	DefaultColorMinPixels = 100
)

// ColorRegion summarizes the pixels that matched a color predicate.
type ColorRegion struct {
	Count  int
	Center image.Point     // integer centroid, valid when Count > 0
	Bounds image.Rectangle // tight bounding box, empty when Count == 0
}

// FindColorRegion counts the pixels of img inside region whose HSV lies
// within tolerance of target on every channel, with hue wrapping.
func FindColorRegion(img *image.RGBA, region types.Rect, target types.HSV, tolerance int) ColorRegion {
	return scanColor(img, region.Within(img.Bounds()), func(r, g, b uint8) bool {
		return withinTolerance(RGBToHSV(r, g, b), target, tolerance)
	})
}

// FindHSVRange counts the pixels inside region whose HSV falls in rng.
func FindHSVRange(img *image.RGBA, region types.Rect, rng types.HSVRange) ColorRegion {
	return scanColor(img, region.Within(img.Bounds()), func(r, g, b uint8) bool {
		return rng.Contains(RGBToHSVPrecise(r, g, b))
	})
}

func scanColor(img *image.RGBA, r image.Rectangle, match func(r, g, b uint8) bool) ColorRegion {
	var out ColorRegion
	var sumX, sumY int64
	minX, minY, maxX, maxY := r.Max.X, r.Max.Y, r.Min.X-1, r.Min.Y-1

	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x, off = x+1, off+4 {
			if !match(img.Pix[off], img.Pix[off+1], img.Pix[off+2]) {
				continue
			}
			out.Count++
			sumX += int64(x)
			sumY += int64(y)
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}

	if out.Count > 0 {
		out.Center = image.Pt(int(sumX/int64(out.Count)), int(sumY/int64(out.Count)))
		out.Bounds = image.Rect(minX, minY, maxX+1, maxY+1)
	}
	return out
}
