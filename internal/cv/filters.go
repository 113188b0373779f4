package cv

import (
	"image"
	"math"
)

// plane is a single float channel with a zero origin
type plane struct {
	w, h int
	pix  []float32
}

func newPlane(w, h int) plane {
	return plane{w: w, h: h, pix: make([]float32, w*h)}
}

// at reads with replicated borders
func (p plane) at(x, y int) float32 {
	x = clampInt(x, 0, p.w-1)
	y = clampInt(y, 0, p.h-1)
	return p.pix[y*p.w+x]
}

// rgbPlanes splits an RGBA image into three float planes, ignoring alpha
func rgbPlanes(img *image.RGBA) [3]plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var planes [3]plane
	for c := range planes {
		planes[c] = newPlane(w, h)
	}
	for y := 0; y < h; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			idx := row + x*4
			i := y*w + x
			planes[0].pix[i] = float32(img.Pix[idx])
			planes[1].pix[i] = float32(img.Pix[idx+1])
			planes[2].pix[i] = float32(img.Pix[idx+2])
		}
	}
	return planes
}

// 7-tap binomial kernel, close to a 7x7 Gaussian with sigma 1.4
var blurKernel = [7]float32{1, 6, 15, 20, 15, 6, 1}

const blurNorm = 64

// blur applies the separable binomial kernel with replicated borders
func blur(src plane) plane {
	tmp := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var sum float32
			for k := -3; k <= 3; k++ {
				sum += blurKernel[k+3] * src.at(x+k, y)
			}
			tmp.pix[y*src.w+x] = sum / blurNorm
		}
	}
	dst := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var sum float32
			for k := -3; k <= 3; k++ {
				sum += blurKernel[k+3] * tmp.at(x, y+k)
			}
			dst.pix[y*src.w+x] = sum / blurNorm
		}
	}
	return dst
}

// sobel returns the 3x3 Sobel derivatives of src
func sobel(src plane) (dx, dy plane) {
	dx = newPlane(src.w, src.h)
	dy = newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			tl, tc, tr := src.at(x-1, y-1), src.at(x, y-1), src.at(x+1, y-1)
			ml, mr := src.at(x-1, y), src.at(x+1, y)
			bl, bc, br := src.at(x-1, y+1), src.at(x, y+1), src.at(x+1, y+1)
			i := y*src.w + x
			dx.pix[i] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			dy.pix[i] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return dx, dy
}

// bitmap is a binary mask with a zero origin
type bitmap struct {
	w, h int
	pix  []bool
}

func newBitmap(w, h int) bitmap {
	return bitmap{w: w, h: h, pix: make([]bool, w*h)}
}

// fullBitmap marks every pixel as set
func fullBitmap(w, h int) bitmap {
	b := newBitmap(w, h)
	for i := range b.pix {
		b.pix[i] = true
	}
	return b
}

// maskBitmap converts an 8-bit mask; any non-zero pixel is foreground
func maskBitmap(mask *image.Gray) bitmap {
	r := mask.Bounds()
	b := newBitmap(r.Dx(), r.Dy())
	for y := 0; y < b.h; y++ {
		row := mask.PixOffset(r.Min.X, r.Min.Y+y)
		for x := 0; x < b.w; x++ {
			b.pix[y*b.w+x] = mask.Pix[row+x] != 0
		}
	}
	return b
}

func (b bitmap) count() int {
	n := 0
	for _, v := range b.pix {
		if v {
			n++
		}
	}
	return n
}

// erode shrinks the mask with a 3x3 square, replicating the border
func erode(src bitmap, iterations int) bitmap {
	cur := src
	for it := 0; it < iterations; it++ {
		next := newBitmap(cur.w, cur.h)
		for y := 0; y < cur.h; y++ {
			for x := 0; x < cur.w; x++ {
				keep := true
				for dy := -1; dy <= 1 && keep; dy++ {
					for dx := -1; dx <= 1 && keep; dx++ {
						nx := clampInt(x+dx, 0, cur.w-1)
						ny := clampInt(y+dy, 0, cur.h-1)
						keep = cur.pix[ny*cur.w+nx]
					}
				}
				next.pix[y*cur.w+x] = keep
			}
		}
		cur = next
	}
	return cur
}

// chessboardDistance returns, for every set pixel, the chessboard distance to
// the nearest unset pixel. Pixels outside the image count as unset.
func chessboardDistance(src bitmap) []float32 {
	const inf = math.MaxFloat32
	d := make([]float32, len(src.pix))
	get := func(x, y int) float32 {
		if x < 0 || y < 0 || x >= src.w || y >= src.h {
			return 0
		}
		return d[y*src.w+x]
	}
	for i, v := range src.pix {
		if v {
			d[i] = inf
		}
	}
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			i := y*src.w + x
			if d[i] == 0 {
				continue
			}
			m := minFloat(get(x-1, y-1), get(x, y-1), get(x+1, y-1), get(x-1, y))
			if m+1 < d[i] {
				d[i] = m + 1
			}
		}
	}
	for y := src.h - 1; y >= 0; y-- {
		for x := src.w - 1; x >= 0; x-- {
			i := y*src.w + x
			if d[i] == 0 {
				continue
			}
			m := minFloat(get(x+1, y+1), get(x, y+1), get(x-1, y+1), get(x+1, y))
			if m+1 < d[i] {
				d[i] = m + 1
			}
		}
	}
	return d
}

func minFloat(values ...float32) float32 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
