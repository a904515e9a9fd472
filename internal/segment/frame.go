package segment

import "image"

// FrameView is the frame buffer region of a segment. Every accessor clamps
// to the buffer capacity, so producer metadata can never cause an
// out-of-range access.
type FrameView struct {
	pix []byte
}

// Cap returns the frame buffer capacity in bytes.
func (f FrameView) Cap() int { return len(f.pix) }

// Image returns an RGBA image sharing the frame buffer. Dimensions are
// clamped to the maximum frame size and to the buffer capacity. A
// non-positive width or height yields an empty image.
func (f FrameView) Image(width, height, stride int) *image.RGBA {
	width = min(width, MaxFrameWidth)
	height = min(height, MaxFrameHeight)
	if width <= 0 || height <= 0 {
		return &image.RGBA{}
	}
	if stride < width*FrameChannels {
		stride = width * FrameChannels
	}
	if stride*height > len(f.pix) {
		height = len(f.pix) / stride
		if height == 0 {
			return &image.RGBA{}
		}
	}
	// Zero-copy: the image aliases the shared buffer
	return &image.RGBA{
		Pix:    f.pix[: stride*height : stride*height],
		Stride: stride,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// Write copies img into the buffer with a tight stride and returns the
// geometry actually written. Images larger than the maximum frame are cropped.
func (f FrameView) Write(img *image.RGBA) (width, height, stride int) {
	b := img.Bounds()
	width = min(b.Dx(), MaxFrameWidth)
	height = min(b.Dy(), MaxFrameHeight)
	stride = width * FrameChannels
	for y := 0; y < height; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(f.pix[y*stride:(y+1)*stride], src[:stride])
	}
	return width, height, stride
}
