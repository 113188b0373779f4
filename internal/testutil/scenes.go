// Package testutil builds synthetic RGB-D scenes shared by the package tests.
package testutil

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"jordanella.com/linemod/internal/cv"
)

// TexturedScene fills a w x h frame with random colored blocks over a depth
// ramp, so most block edges carry strong gradients. The same seed always
// gives the same frame.
func TexturedScene(seed int64, w, h, block int) cv.Frame {
	rng := rand.New(rand.NewSource(seed))
	frame := cv.NewFrame(w, h)

	cols := (w + block - 1) / block
	rows := (h + block - 1) / block
	palette := make([]color.RGBA, cols*rows)
	for i := range palette {
		palette[i] = color.RGBA{
			R: uint8(rng.Intn(256)),
			G: uint8(rng.Intn(256)),
			B: uint8(rng.Intn(256)),
			A: 255,
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			frame.Color.SetRGBA(x, y, palette[(y/block)*cols+x/block])
			frame.Depth.SetGray16(x, y, color.Gray16{Y: uint16(900 + 2*x)})
		}
	}
	return frame
}

// FlatPatch is a uniform color at a uniform depth
func FlatPatch(w, h int, c color.RGBA, depth uint16) cv.Frame {
	frame := cv.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			frame.Color.SetRGBA(x, y, c)
			frame.Depth.SetGray16(x, y, color.Gray16{Y: depth})
		}
	}
	return frame
}

// Embed returns a copy of dst with src pasted at the given top-left
func Embed(dst, src cv.Frame, at image.Point) cv.Frame {
	size := dst.Size()
	out := cv.NewFrame(size.X, size.Y)
	copy(out.Color.Pix, dst.Color.Pix)
	copy(out.Depth.Pix, dst.Depth.Pix)

	b := src.Color.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Color.SetRGBA(at.X+x, at.Y+y, src.Color.RGBAAt(b.Min.X+x, b.Min.Y+y))
			out.Depth.SetGray16(at.X+x, at.Y+y, color.Gray16{Y: src.DepthAt(x, y)})
		}
	}
	return out
}

// RectMask is a w x h mask with r set to 255
func RectMask(w, h int, r image.Rectangle) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, w, h))
	r = r.Intersect(mask.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return mask
}

// FullMask is a w x h mask with every pixel set
func FullMask(w, h int) *image.Gray {
	return RectMask(w, h, image.Rect(0, 0, w, h))
}

// IdentityRotation returns a 3x3 identity matrix
func IdentityRotation() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// ZeroTranslation returns the 3-vector (0, 0, 0)
func ZeroTranslation() *mat.VecDense {
	return mat.NewVecDense(3, nil)
}

// Translation returns the 3-vector (x, y, z)
func Translation(x, y, z float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{x, y, z})
}

// ObjectSet repeats one view n times with identity rotations and
// translations (0, 0, i)
func ObjectSet(objectID string, frame cv.Frame, mask *image.Gray, n int) cv.ObjectSet {
	set := cv.ObjectSet{ObjectID: objectID}
	for i := 0; i < n; i++ {
		set.Images = append(set.Images, frame.Color)
		set.Depths = append(set.Depths, frame.Depth)
		set.Masks = append(set.Masks, mask)
		set.Rotations = append(set.Rotations, IdentityRotation())
		set.Translations = append(set.Translations, Translation(0, 0, float64(i)))
	}
	return set
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
