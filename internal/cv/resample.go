package cv

import (
	"image"

	"golang.org/x/image/draw"
)

// halfSize rounds up like a Gaussian pyramid step does
func halfSize(w, h int) (int, int) {
	return (w + 1) / 2, (h + 1) / 2
}

// HalveRGBA returns a bilinear half-resolution copy of img
func HalveRGBA(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := halfSize(b.Dx(), b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// halveGray downsamples a mask or code map with nearest-neighbour sampling,
// so code bits are never blended.
func halveGray(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := halfSize(b.Dx(), b.Dy())
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// halveBitmap is halveGray for binary masks
func halveBitmap(src bitmap) bitmap {
	g := image.NewGray(image.Rect(0, 0, src.w, src.h))
	for i, v := range src.pix {
		if v {
			g.Pix[i] = 255
		}
	}
	return maskBitmap(halveGray(g))
}
