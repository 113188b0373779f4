package detection

import (
	"image"

	"jordanella.com/linemod/internal/cv"
)

// DefaultMaxColorRows is the tallest color frame matched at native resolution
const DefaultMaxColorRows = 960

// DownsampleColor bounds matching cost for tall color frames: when img has more
// than maxRows rows, only the first maxRows rows are kept and the result is
// halved on both axes. Depth frames never go through this, so callers must
// deliver depth already registered to the reduced color resolution.
func DownsampleColor(img *image.RGBA, maxRows int) *image.RGBA {
	b := img.Bounds()
	if maxRows <= 0 || b.Dy() <= maxRows {
		return img
	}
	top := img.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+maxRows)).(*image.RGBA)
	return cv.HalveRGBA(top)
}
