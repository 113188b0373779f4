package cv

import (
	"image"
	"math"
)

// Template is one stored view of an object, reduced to sparse features on
// every pyramid level. Immutable once added to a Store.
type Template struct {
	ObjectID string
	Index    int

	// Offset is the top-left of the feature bounding box in the source
	// image; Width and Height are its size at the base level.
	Offset        image.Point
	Width, Height int

	Levels []TemplateLevel
	Pose   *Pose
}

// TemplateLevel holds the features of one pyramid level, relative to the
// bounding box origin at that level.
type TemplateLevel struct {
	Width, Height int
	Features      []Feature
}

// NumFeatures returns the base-level feature count
func (t *Template) NumFeatures() int {
	if len(t.Levels) == 0 {
		return 0
	}
	return len(t.Levels[0].Features)
}

// Empty reports whether the template can never match
func (t *Template) Empty() bool {
	return t.NumFeatures() == 0
}

// SeedLevel returns the coarsest level such that it and every finer level
// carry features, or -1 for an empty template. Small masks can lose all
// features on coarse levels; matching then seeds from this level instead.
func (t *Template) SeedLevel() int {
	seed := -1
	for l, level := range t.Levels {
		if len(level.Features) == 0 {
			break
		}
		seed = l
	}
	return seed
}

// Region returns the template footprint at the given base-level location
func (t *Template) Region(at image.Point) Region {
	return NewRegion(at.X, at.Y, at.X+t.Width, at.Y+t.Height)
}

// TemplateSource is the raw material for one template
type TemplateSource struct {
	Frame Frame
	Mask  *image.Gray // nil uses the whole image
	Pose  *Pose
}

// buildTemplate extracts features for every modality on every level and
// crops them to a shared bounding box.
func buildTemplate(src TemplateSource, modalities []Modality, levels int) (*Template, error) {
	if err := src.Frame.Validate(); err != nil {
		return nil, err
	}
	if src.Mask != nil && src.Mask.Bounds().Size() != src.Frame.Size() {
		return nil, ErrDimensionMismatch
	}

	pyramids := make([]QuantizedPyramid, len(modalities))
	for i, m := range modalities {
		qp, err := m.Process(src.Frame, src.Mask)
		if err != nil {
			return nil, err
		}
		pyramids[i] = qp
	}

	tmpl := &Template{Levels: make([]TemplateLevel, levels), Pose: src.Pose}
	for l := 0; l < levels; l++ {
		if l > 0 {
			for _, qp := range pyramids {
				qp.PyrDown()
			}
		}
		for i, qp := range pyramids {
			for _, f := range qp.ExtractTemplate() {
				f.Modality = i
				tmpl.Levels[l].Features = append(tmpl.Levels[l].Features, f)
			}
		}
	}
	cropTemplate(tmpl)
	return tmpl, nil
}

// cropTemplate shifts all levels so the shared base-level bounding box starts
// at the origin. The box origin is kept even so level l's origin is exactly
// the base origin >> l.
func cropTemplate(t *Template) {
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	for l, level := range t.Levels {
		for _, f := range level.Features {
			x, y := f.X<<uint(l), f.Y<<uint(l)
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if minX == math.MaxInt {
		return
	}
	if minX%2 == 1 {
		minX--
	}
	if minY%2 == 1 {
		minY--
	}

	t.Offset = image.Point{X: minX, Y: minY}
	t.Width = maxX - minX
	t.Height = maxY - minY
	for l := range t.Levels {
		level := &t.Levels[l]
		level.Width = t.Width >> uint(l)
		level.Height = t.Height >> uint(l)
		ox, oy := minX>>uint(l), minY>>uint(l)
		for i := range level.Features {
			f := &level.Features[i]
			f.X -= ox
			f.Y -= oy
			// rounding at deeper levels can push a feature one pixel past the scaled box
			level.Width = max(level.Width, f.X)
			level.Height = max(level.Height, f.Y)
		}
	}
}
