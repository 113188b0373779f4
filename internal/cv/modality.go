package cv

import (
	"image"
	"math/bits"
)

// NumLabels is the number of quantized orientations per modality.
// A code is either 0 (no evidence) or a byte with one bit per label.
const NumLabels = 8

// CodeMap holds one quantized code per pixel.
type CodeMap struct {
	Width, Height int
	Pix           []uint8
}

func newCodeMap(w, h int) CodeMap {
	return CodeMap{Width: w, Height: h, Pix: make([]uint8, w*h)}
}

// At returns the code at x, y
func (c CodeMap) At(x, y int) uint8 {
	return c.Pix[y*c.Width+x]
}

// NonZero counts pixels that carry any code
func (c CodeMap) NonZero() int {
	n := 0
	for _, v := range c.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// gray views the codes as an 8-bit image without copying
func (c CodeMap) gray() *image.Gray {
	return &image.Gray{Pix: c.Pix, Stride: c.Width, Rect: image.Rect(0, 0, c.Width, c.Height)}
}

func (c CodeMap) halve() CodeMap {
	g := halveGray(c.gray())
	return CodeMap{Width: g.Rect.Dx(), Height: g.Rect.Dy(), Pix: g.Pix}
}

// labelOf converts a single-bit code to its label index
func labelOf(code uint8) uint8 {
	return uint8(bits.TrailingZeros8(code))
}

// Modality turns one channel of a Frame into quantized codes.
type Modality interface {
	Name() string
	// Process prepares the base pyramid level. mask may be nil.
	Process(frame Frame, mask *image.Gray) (QuantizedPyramid, error)
}

// QuantizedPyramid walks one modality down the image pyramid.
type QuantizedPyramid interface {
	// Quantize returns the codes at the current level
	Quantize() CodeMap
	// ExtractTemplate picks discriminative features inside the mask
	ExtractTemplate() []Feature
	// PyrDown moves to the next, half-resolution level
	PyrDown()
}

// responder is implemented by pyramids that carry a per-pixel strength next
// to their codes
type responder interface {
	Response() []float32
}
