package vision

import (
	"image"

	"github.com/andresmejia3/rashplayer/internal/types"
)

// DensityOptions tunes ColumnObjects. Zero fields select the defaults.
type DensityOptions struct {
	Bins      int // column bins across the region, default 100
	MinWidth  int // objects must be wider than this, default 20
	MinHeight int // objects must be taller than this, default 50
	Max       int // maximum objects returned, default 10
}

func (o DensityOptions) withDefaults() DensityOptions {
	if o.Bins <= 0 {
		o.Bins = 100
	}
	if o.MinWidth <= 0 {
		o.MinWidth = 20
	}
	if o.MinHeight <= 0 {
		o.MinHeight = 50
	}
	if o.Max <= 0 {
		o.Max = 10
	}
	return o
}

// Object is an elongated vertical region found by column density.
type Object struct {
	Bounds image.Rectangle
	Top    bool // hangs from the upper third of the search region
}

func (o Object) Center() image.Point { return regionCenter(o.Bounds) }

// ColumnObjects bins the region into vertical columns, counts pixels in rng
// per column, and merges runs of dense columns (more than a quarter of the
// region height) into objects.
func ColumnObjects(img *image.RGBA, region types.Rect, rng types.HSVRange, opts DensityOptions) []Object {
	opts = opts.withDefaults()
	r := region.Within(img.Bounds())
	if r.Empty() {
		return nil
	}
	colW := max(r.Dx()/opts.Bins, 1)

	counts := make([]int, opts.Bins)
	minY := make([]int, opts.Bins)
	maxY := make([]int, opts.Bins)
	for i := range minY {
		minY[i] = r.Max.Y
		maxY[i] = r.Min.Y - 1
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x, off = x+1, off+4 {
			if !rng.Contains(RGBToHSVPrecise(img.Pix[off], img.Pix[off+1], img.Pix[off+2])) {
				continue
			}
			col := min((x-r.Min.X)/colW, opts.Bins-1)
			counts[col]++
			minY[col] = min(minY[col], y)
			maxY[col] = max(maxY[col], y)
		}
	}

	var out []Object
	dense := r.Dy() / 4
	start := -1
	// The extra iteration closes a run that reaches the last bin.
	for col := 0; col <= opts.Bins && len(out) < opts.Max; col++ {
		isDense := col < opts.Bins && counts[col] > dense
		switch {
		case isDense && start < 0:
			start = col
		case !isDense && start >= 0:
			top, bottom := r.Max.Y, r.Min.Y-1
			for c := start; c < col; c++ {
				top = min(top, minY[c])
				bottom = max(bottom, maxY[c])
			}
			x0 := r.Min.X + start*colW
			w := (col - start) * colW
			h := bottom - top + 1
			if w > opts.MinWidth && h > opts.MinHeight {
				out = append(out, Object{
					Bounds: image.Rect(x0, top, x0+w, bottom+1),
					Top:    top-r.Min.Y < r.Dy()/3,
				})
			}
			start = -1
		}
	}
	return out
}

// SplitObject cuts o at the longest vertical run of pixels outside rng along
// its centre column, yielding a top and a bottom part. Obstacles that share
// columns above and below an opening merge in ColumnObjects; splitting them
// lets PairGap see the pair. ok is false when o has no interior opening.
func SplitObject(img *image.RGBA, o Object, rng types.HSVRange) (top, bottom Object, ok bool) {
	b := o.Bounds.Intersect(img.Bounds())
	if b.Empty() {
		return Object{}, Object{}, false
	}
	x := b.Min.X + b.Dx()/2

	bestStart, bestLen := 0, 0
	runStart := -1
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		inside := false
		if y < b.Max.Y {
			off := img.PixOffset(x, y)
			inside = !rng.Contains(RGBToHSVPrecise(img.Pix[off], img.Pix[off+1], img.Pix[off+2]))
		}
		switch {
		case inside && runStart < 0:
			runStart = y
		case !inside && runStart >= 0:
			// openings touching the object's own edges are not gaps
			if runStart > b.Min.Y && y < b.Max.Y && y-runStart > bestLen {
				bestStart, bestLen = runStart, y-runStart
			}
			runStart = -1
		}
	}
	if bestLen == 0 {
		return Object{}, Object{}, false
	}
	top = Object{Bounds: image.Rect(b.Min.X, b.Min.Y, b.Max.X, bestStart), Top: true}
	bottom = Object{Bounds: image.Rect(b.Min.X, bestStart+bestLen, b.Max.X, b.Max.Y), Top: false}
	return top, bottom, true
}

// MaxPairDistance is the largest horizontal centre distance for two objects to pair.
const MaxPairDistance = 100

// PairGap pairs top and bottom objects whose centres are less than
// MaxPairDistance apart horizontally and returns the centre of the leftmost
// opening: x is the pair midpoint, y is halfway between the top object's
// lower edge and the bottom object's upper edge.
func PairGap(objs []Object) (image.Point, bool) {
	var gap image.Point
	found := false
	bestX := 0
	for i := range objs {
		for j := i + 1; j < len(objs); j++ {
			a, b := objs[i], objs[j]
			if a.Top == b.Top {
				continue
			}
			ca, cb := a.Center(), b.Center()
			dx := ca.X - cb.X
			if dx < 0 {
				dx = -dx
			}
			if dx >= MaxPairDistance {
				continue
			}
			pairX := (ca.X + cb.X) / 2
			if found && pairX >= bestX {
				continue
			}
			top, bottom := a, b
			if !a.Top {
				top, bottom = b, a
			}
			bestX, found = pairX, true
			gap = image.Pt(pairX, (top.Bounds.Max.Y+bottom.Bounds.Min.Y)/2)
		}
	}
	return gap, found
}
