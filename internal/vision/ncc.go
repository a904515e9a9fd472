package vision

import (
	"image"
	"math"
	"sync"
)

const (
	coarseStride = 4
	fineGate     = 0.5 // the fine pass only runs when the coarse best exceeds this
)

// planePool recycles intensity planes between cycles so matching does not
// allocate once the pool is warm.
var planePool = sync.Pool{
	New: func() any {
		b := make([]float32, 0, 256*256)
		return &b
	},
}

// grayTemplate is a template reduced to channel-mean intensities.
type grayTemplate struct {
	w, h  int
	pix   []float32
	sumSq float64
}

func newGrayTemplate(img *image.RGBA) grayTemplate {
	b := img.Bounds()
	g := grayTemplate{w: b.Dx(), h: b.Dy(), pix: make([]float32, b.Dx()*b.Dy())}
	fillPlane(img, b, g.pix)
	for _, v := range g.pix {
		g.sumSq += float64(v) * float64(v)
	}
	return g
}

// fillPlane writes the intensities of img inside r into dst, row-major with width r.Dx().
func fillPlane(img *image.RGBA, r image.Rectangle, dst []float32) {
	w := r.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		row := dst[(y-r.Min.Y)*w : (y-r.Min.Y+1)*w]
		for x := range row {
			p := img.Pix[off+x*4 : off+x*4+3 : off+x*4+3]
			row[x] = float32(int(p[0])+int(p[1])+int(p[2])) / 3
		}
	}
}

// nccAt scores the window at (x, y) of a plane of width pw against t.
// The score is the uncentred normalized cross-correlation, in [0, 1] for
// non-negative intensities.
func nccAt(plane []float32, pw, x, y int, t *grayTemplate) float32 {
	var prod, fsq float64
	for ty := 0; ty < t.h; ty++ {
		row := plane[(y+ty)*pw+x : (y+ty)*pw+x+t.w]
		trow := t.pix[ty*t.w : (ty+1)*t.w]
		for tx, tv := range trow {
			f := float64(row[tx])
			prod += f * float64(tv)
			fsq += f * f
		}
	}
	denom := math.Sqrt(fsq * t.sumSq)
	if denom == 0 {
		return 0
	}
	return float32(prod / denom)
}

// matchTemplate searches region of img for t with a coarse pass at
// coarseStride followed by a ±coarseStride fine pass around the best
// coarse hit. It returns the best window's top-left corner and score.
// A region smaller than the template yields region.Min and score 0.
func matchTemplate(img *image.RGBA, region image.Rectangle, t *grayTemplate) (image.Point, float32) {
	pw, ph := region.Dx(), region.Dy()
	if t.w == 0 || t.h == 0 || pw < t.w || ph < t.h {
		return region.Min, 0
	}

	bufp := planePool.Get().(*[]float32)
	defer planePool.Put(bufp)
	if cap(*bufp) < pw*ph {
		*bufp = make([]float32, pw*ph)
	}
	plane := (*bufp)[:pw*ph]
	fillPlane(img, region, plane)

	maxX, maxY := pw-t.w, ph-t.h
	var best float32
	bx, by := 0, 0

	// 1. Coarse pass
	for y := 0; y <= maxY; y += coarseStride {
		for x := 0; x <= maxX; x += coarseStride {
			if s := nccAt(plane, pw, x, y, t); s > best {
				best, bx, by = s, x, y
			}
		}
	}

	// 2. Fine pass around the coarse winner
	if best > fineGate {
		cx, cy := bx, by
		for y := max(cy-coarseStride, 0); y <= min(cy+coarseStride, maxY); y++ {
			for x := max(cx-coarseStride, 0); x <= min(cx+coarseStride, maxX); x++ {
				if s := nccAt(plane, pw, x, y, t); s > best {
					best, bx, by = s, x, y
				}
			}
		}
	}

	return image.Pt(region.Min.X+bx, region.Min.Y+by), best
}
