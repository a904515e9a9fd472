package vision

import "github.com/andresmejia3/rashplayer/internal/types"

// RGBToHSV converts with integer arithmetic on the OpenCV scale (H 0..180,
// S and V 0..255). This is the conversion used by color triggers.
func RGBToHSV(r, g, b uint8) types.HSV {
	ri, gi, bi := int(r), int(g), int(b)
	hi := max(ri, gi, bi)
	lo := min(ri, gi, bi)
	delta := hi - lo

	var c types.HSV
	c.V = uint8(hi)
	if hi != 0 {
		c.S = uint8(255 * delta / hi)
	}
	switch {
	case delta == 0:
		c.H = 0
	case hi == ri:
		h := 30 * (gi - bi) / delta
		if gi < bi {
			h += 180
		}
		c.H = uint8(h)
	case hi == gi:
		c.H = uint8(30*(bi-ri)/delta + 60)
	default:
		c.H = uint8(30*(ri-gi)/delta + 120)
	}
	return c
}

// RGBToHSVPrecise converts through floating point, truncating onto the same
// scale. Profile detectors calibrated against OpenCV ranges use this one.
func RGBToHSVPrecise(r, g, b uint8) types.HSV {
	rf, gf, bf := float32(r)/255, float32(g)/255, float32(b)/255
	cmax := max(rf, gf, bf)
	cmin := min(rf, gf, bf)
	delta := cmax - cmin

	var hf float32
	if delta != 0 {
		switch cmax {
		case rf:
			hf = 60 * fmod6((gf-bf)/delta)
		case gf:
			hf = 60 * ((bf-rf)/delta + 2)
		default:
			hf = 60 * ((rf-gf)/delta + 4)
		}
	}
	if hf < 0 {
		hf += 360
	}
	var sf float32
	if cmax != 0 {
		sf = delta / cmax
	}
	return types.HSV{H: uint8(hf / 2), S: uint8(sf * 255), V: uint8(cmax * 255)}
}

// fmod6 matches C fmodf(x, 6): the result carries the sign of x.
func fmod6(x float32) float32 {
	n := float32(int32(x / 6))
	return x - n*6
}

// hueDistance is the circular distance on the 180-step hue wheel.
func hueDistance(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	if d > 90 {
		d = 180 - d
	}
	return d
}

// withinTolerance reports whether every channel of c is within tol of target.
func withinTolerance(c, target types.HSV, tol int) bool {
	if hueDistance(c.H, target.H) > tol {
		return false
	}
	ds := int(c.S) - int(target.S)
	dv := int(c.V) - int(target.V)
	return ds <= tol && -ds <= tol && dv <= tol && -dv <= tol
}
