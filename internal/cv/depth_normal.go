package cv

import (
	"image"
	"math"
)

// normalRadius is the pixel distance of the 8 neighbours used in the plane fit
const normalRadius = 2

// Normals tilted less than this from the viewing axis share label 0; the
// remaining labels split the azimuth of tilted normals into equal sectors.
const frontalTiltDegrees = 20.0

// DepthNormal quantizes surface normals estimated from the depth map.
type DepthNormal struct {
	DistanceThreshold   int // depths beyond this (mm) are ignored
	DifferenceThreshold int // neighbours differing by more (mm) are not on the same surface
	NumFeatures         int
	ExtractThreshold    int     // minimum distance (px) from a differing label for a feature
	FocalLength         float64 // pixels
}

// NewDepthNormal creates the depth modality
func NewDepthNormal(distance, difference, numFeatures, extract int, focal float64) *DepthNormal {
	return &DepthNormal{
		DistanceThreshold:   distance,
		DifferenceThreshold: difference,
		NumFeatures:         numFeatures,
		ExtractThreshold:    extract,
		FocalLength:         focal,
	}
}

// Name implements Modality
func (dn *DepthNormal) Name() string {
	return "DepthNormal"
}

// Process implements Modality
func (dn *DepthNormal) Process(frame Frame, mask *image.Gray) (QuantizedPyramid, error) {
	if frame.Depth == nil {
		return nil, ErrInvalidImage
	}
	p := &depthNormalPyramid{
		modality: dn,
		normal:   quantizedNormals(frame.Depth, dn.DistanceThreshold, dn.DifferenceThreshold, dn.FocalLength),
	}
	if mask != nil {
		if mask.Bounds().Size() != frame.Depth.Bounds().Size() {
			return nil, ErrDimensionMismatch
		}
		p.mask = maskBitmap(mask)
		p.hasMask = true
	}
	return p, nil
}

type depthNormalPyramid struct {
	modality *DepthNormal
	normal   CodeMap
	mask     bitmap
	hasMask  bool
}

func (p *depthNormalPyramid) Quantize() CodeMap {
	return p.normal
}

// PyrDown resamples the quantized normals rather than recomputing them
func (p *depthNormalPyramid) PyrDown() {
	p.normal = p.normal.halve()
	if p.hasMask {
		p.mask = halveBitmap(p.mask)
	}
}

// ExtractTemplate prefers pixels deep inside homogeneous normal regions,
// away from the unreliable object border.
func (p *depthNormalPyramid) ExtractTemplate() []Feature {
	w, h := p.normal.Width, p.normal.Height
	var region bitmap
	if p.hasMask {
		region = erode(p.mask, 2)
	} else {
		region = fullBitmap(w, h)
	}

	var distances [NumLabels][]float32
	for l := 0; l < NumLabels; l++ {
		same := newBitmap(w, h)
		bit := uint8(1) << uint(l)
		for i, code := range p.normal.Pix {
			same.pix[i] = code == bit && region.pix[i]
		}
		distances[l] = chessboardDistance(same)
	}

	var labelCounts [NumLabels]int
	var candidates []candidate
	threshold := float32(p.modality.ExtractThreshold)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			code := p.normal.Pix[i]
			if !region.pix[i] || code == 0 {
				continue
			}
			label := labelOf(code)
			if score := distances[label][i]; score >= threshold {
				candidates = append(candidates, candidate{
					f:     Feature{X: x, Y: y, Label: label},
					score: score,
				})
				labelCounts[label]++
			}
		}
	}
	if len(candidates) == 0 || p.modality.NumFeatures <= 0 {
		return nil
	}

	// Penalize labels with many candidates so features spread over all orientations
	biggest := 0
	for _, n := range labelCounts {
		if n > biggest {
			biggest = n
		}
	}
	for i := range candidates {
		c := &candidates[i]
		c.score *= float32(biggest) / float32(labelCounts[c.f.Label])
	}
	sortCandidates(candidates)

	area := float64(w * h)
	if p.hasMask {
		area = float64(region.count())
	}
	distance := float32(math.Sqrt(area)/math.Sqrt(float64(p.modality.NumFeatures)) + 1.5)
	return selectScatteredFeatures(candidates, p.modality.NumFeatures, distance)
}

var neighborOffsets = [8][2]int{
	{-normalRadius, -normalRadius}, {0, -normalRadius}, {normalRadius, -normalRadius},
	{-normalRadius, 0}, {normalRadius, 0},
	{-normalRadius, normalRadius}, {0, normalRadius}, {normalRadius, normalRadius},
}

// quantizedNormals fits a local plane at each valid pixel and quantizes the
// normal: a frontal cap plus NumLabels-1 azimuth sectors.
func quantizedNormals(depth *image.Gray16, distanceThreshold, differenceThreshold int, focal float64) CodeMap {
	b := depth.Bounds()
	w, h := b.Dx(), b.Dy()
	d := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := depth.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			off := row + x*2
			d[y*w+x] = int(depth.Pix[off])<<8 | int(depth.Pix[off+1])
		}
	}

	valid := func(v int) bool {
		return v > 0 && v < distanceThreshold
	}

	out := newCodeMap(w, h)
	sector := 2 * math.Pi / (NumLabels - 1)
	tanFrontal := math.Tan(frontalTiltDegrees * math.Pi / 180)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := d[y*w+x]
			if !valid(center) {
				continue
			}
			var a00, a01, a11, b0, b1 float64
			for _, o := range neighborOffsets {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				nd := d[ny*w+nx]
				if !valid(nd) || abs(nd-center) >= differenceThreshold {
					continue
				}
				dx, dy := float64(o[0]), float64(o[1])
				diff := float64(nd - center)
				a00 += dx * dx
				a01 += dx * dy
				a11 += dy * dy
				b0 += dx * diff
				b1 += dy * diff
			}
			det := a00*a11 - a01*a01
			if det <= 0 {
				continue
			}
			// Depth gradient scaled by det; the normal is (f*gx, f*gy, -z)
			ddx := a11*b0 - a01*b1
			ddy := -a01*b0 + a00*b1
			nx := focal * ddx
			ny := focal * ddy
			nz := det * float64(center)
			if math.Hypot(nx, ny) < tanFrontal*nz {
				out.Pix[y*w+x] = 1
				continue
			}
			azimuth := math.Atan2(ny, nx) + math.Pi
			label := 1 + int(azimuth/sector)%(NumLabels-1)
			out.Pix[y*w+x] = 1 << uint(label)
		}
	}
	return out
}
