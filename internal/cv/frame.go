package cv

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
)

// Frame is one synchronized color+depth capture.
// Depth values are millimetres; 0 means the sensor returned no reading.
type Frame struct {
	Color *image.RGBA
	Depth *image.Gray16
}

// NewFrame allocates a black, zero-depth frame of the given size
func NewFrame(width, height int) Frame {
	color := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(color.Pix); i += 4 {
		color.Pix[i] = 255
	}
	return Frame{
		Color: color,
		Depth: image.NewGray16(image.Rect(0, 0, width, height)),
	}
}

// Size returns the spatial extent shared by both modalities
func (f Frame) Size() image.Point {
	if f.Color == nil {
		return image.Point{}
	}
	return f.Color.Bounds().Size()
}

// Validate checks that both modalities are present and co-registered
func (f Frame) Validate() error {
	if f.Color == nil || f.Depth == nil {
		return ErrInvalidImage
	}
	cs := f.Color.Bounds().Size()
	ds := f.Depth.Bounds().Size()
	if cs != ds {
		return fmt.Errorf("%w: color %dx%d, depth %dx%d", ErrDimensionMismatch, cs.X, cs.Y, ds.X, ds.Y)
	}
	if cs.X == 0 || cs.Y == 0 {
		return ErrInvalidImage
	}
	return nil
}

// DepthAt returns the raw depth reading at x, y relative to the frame origin
func (f Frame) DepthAt(x, y int) uint16 {
	b := f.Depth.Bounds()
	off := f.Depth.PixOffset(b.Min.X+x, b.Min.Y+y)
	return uint16(f.Depth.Pix[off])<<8 | uint16(f.Depth.Pix[off+1])
}

// ObjectSet is the full template set for one object identity as delivered by
// an external store: one color/depth/mask triple per view plus the parallel
// rotation and translation sequences.
type ObjectSet struct {
	ObjectID     string
	Images       []*image.RGBA
	Depths       []*image.Gray16
	Masks        []*image.Gray
	Rotations    []*mat.Dense
	Translations []*mat.VecDense
}

// Len returns the number of template views
func (s ObjectSet) Len() int {
	return len(s.Images)
}

// Error types
var (
	ErrDimensionMismatch = fmt.Errorf("color and depth dimensions differ")
	ErrInvalidImage      = fmt.Errorf("invalid image provided")
	ErrInvalidThreshold  = fmt.Errorf("threshold must be within [0, 100]")
	ErrInvalidConfig     = fmt.Errorf("invalid match configuration")
	ErrObjectExists      = fmt.Errorf("object identity already has templates")
)
