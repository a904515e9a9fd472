package vision

import (
	"image"

	"github.com/andresmejia3/rashplayer/internal/types"
)

// EdgeThreshold is the summed gradient a scan-line must exceed to count as an edge.
const EdgeThreshold = 1000

// DetectEdge finds the scan-line inside region with the largest summed
// absolute RGB difference between its two neighbours. Horizontal edges are
// rows, vertical edges are columns. pos is -1 when the region is too thin to
// have an interior line.
func DetectEdge(img *image.RGBA, region types.Rect, horizontal bool) (pos, strength int, found bool) {
	r := region.Within(img.Bounds())
	pos = -1
	if horizontal {
		for y := r.Min.Y + 1; y < r.Max.Y-1; y++ {
			prev := img.PixOffset(r.Min.X, y-1)
			next := img.PixOffset(r.Min.X, y+1)
			sum := 0
			for i := 0; i < r.Dx()*4; i += 4 {
				sum += gradient(img.Pix[prev+i:], img.Pix[next+i:])
			}
			if sum > strength {
				strength, pos = sum, y
			}
		}
	} else {
		for x := r.Min.X + 1; x < r.Max.X-1; x++ {
			sum := 0
			for y := r.Min.Y; y < r.Max.Y; y++ {
				sum += gradient(img.Pix[img.PixOffset(x-1, y):], img.Pix[img.PixOffset(x+1, y):])
			}
			if sum > strength {
				strength, pos = sum, x
			}
		}
	}
	return pos, strength, strength > EdgeThreshold
}

func gradient(a, b []uint8) int {
	return absDiff(a[0], b[0]) + absDiff(a[1], b[1]) + absDiff(a[2], b[2])
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// regionCenter is the midpoint of the clamped region.
func regionCenter(r image.Rectangle) image.Point {
	return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
}
