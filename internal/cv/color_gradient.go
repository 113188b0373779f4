package cv

import (
	"image"
	"math"
)

// neighborThreshold is how many pixels of a 3x3 patch must agree on an
// orientation before the centre pixel takes it
const neighborThreshold = 5

// ColorGradient quantizes the dominant image gradient orientation.
type ColorGradient struct {
	WeakThreshold   float32 // gradient magnitude below this yields no code
	StrongThreshold float32 // magnitude required for a template feature
	NumFeatures     int
}

// NewColorGradient creates the color modality
func NewColorGradient(weak, strong float32, numFeatures int) *ColorGradient {
	return &ColorGradient{
		WeakThreshold:   weak,
		StrongThreshold: strong,
		NumFeatures:     numFeatures,
	}
}

// Name implements Modality
func (cg *ColorGradient) Name() string {
	return "ColorGradient"
}

// Process implements Modality
func (cg *ColorGradient) Process(frame Frame, mask *image.Gray) (QuantizedPyramid, error) {
	if frame.Color == nil {
		return nil, ErrInvalidImage
	}
	p := &colorGradientPyramid{modality: cg, src: frame.Color}
	if mask != nil {
		if mask.Bounds().Size() != frame.Color.Bounds().Size() {
			return nil, ErrDimensionMismatch
		}
		p.mask = maskBitmap(mask)
		p.hasMask = true
	}
	p.update()
	return p, nil
}

type colorGradientPyramid struct {
	modality  *ColorGradient
	src       *image.RGBA
	mask      bitmap
	hasMask   bool
	magnitude plane
	angle     CodeMap
}

func (p *colorGradientPyramid) update() {
	p.magnitude, p.angle = quantizedOrientations(p.src, p.modality.WeakThreshold)
}

func (p *colorGradientPyramid) Quantize() CodeMap {
	return p.angle
}

// Response exposes the squared gradient magnitude of the current level
func (p *colorGradientPyramid) Response() []float32 {
	return p.magnitude.pix
}

func (p *colorGradientPyramid) PyrDown() {
	p.src = HalveRGBA(p.src)
	if p.hasMask {
		p.mask = halveBitmap(p.mask)
	}
	p.update()
}

// ExtractTemplate keeps strong gradients on the mask border, where the object
// separates from the background.
func (p *colorGradientPyramid) ExtractTemplate() []Feature {
	w, h := p.angle.Width, p.angle.Height
	var region bitmap
	if p.hasMask {
		inner := erode(p.mask, 1)
		region = newBitmap(w, h)
		for i := range region.pix {
			region.pix[i] = p.mask.pix[i] && !inner.pix[i]
		}
	} else {
		region = fullBitmap(w, h)
	}

	strongSq := p.modality.StrongThreshold * p.modality.StrongThreshold
	var candidates []candidate
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !region.pix[i] {
				continue
			}
			code := p.angle.Pix[i]
			if code == 0 {
				continue
			}
			if score := p.magnitude.pix[i]; score > strongSq {
				candidates = append(candidates, candidate{
					f:     Feature{X: x, Y: y, Label: labelOf(code), Response: score},
					score: score,
				})
			}
		}
	}
	if len(candidates) == 0 || p.modality.NumFeatures <= 0 {
		return nil
	}

	sortCandidates(candidates)
	distance := float32(len(candidates)/p.modality.NumFeatures + 1)
	return selectScatteredFeatures(candidates, p.modality.NumFeatures, distance)
}

// quantizedOrientations returns the squared gradient magnitude and the
// hysteresis-filtered orientation codes of img.
func quantizedOrientations(img *image.RGBA, weak float32) (plane, CodeMap) {
	channels := rgbPlanes(img)
	w, h := channels[0].w, channels[0].h

	var dxs, dys [3]plane
	for c := range channels {
		dxs[c], dys[c] = sobel(blur(channels[c]))
	}

	// Per pixel, keep the channel with the largest gradient
	magnitude := newPlane(w, h)
	raw := make([]uint8, w*h)
	for i := 0; i < w*h; i++ {
		best := 0
		bestMag := float32(-1)
		for c := 0; c < 3; c++ {
			m := dxs[c].pix[i]*dxs[c].pix[i] + dys[c].pix[i]*dys[c].pix[i]
			if m > bestMag {
				bestMag = m
				best = c
			}
		}
		magnitude.pix[i] = bestMag
		deg := math.Atan2(float64(dys[best].pix[i]), float64(dxs[best].pix[i])) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		// 16 bins over the full circle, folded so opposite directions share a label
		raw[i] = uint8(int(deg*16/360)) & 7
	}

	angle := newCodeMap(w, h)
	weakSq := weak * weak
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if magnitude.pix[i] <= weakSq {
				continue
			}
			var hist [NumLabels]int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					hist[raw[(y+dy)*w+x+dx]]++
				}
			}
			maxVotes, index := 0, 0
			for l, v := range hist {
				if v > maxVotes {
					maxVotes = v
					index = l
				}
			}
			if maxVotes >= neighborThreshold {
				angle.Pix[i] = 1 << uint(index)
			}
		}
	}
	return magnitude, angle
}
