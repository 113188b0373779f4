package cv

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Pose is the object rotation and translation a template view was captured at.
type Pose struct {
	R *mat.Dense    // 3x3
	T *mat.VecDense // 3
}

// NewPose validates and copies a rotation/translation pair
func NewPose(r *mat.Dense, t *mat.VecDense) (*Pose, error) {
	if r == nil || t == nil {
		return nil, fmt.Errorf("pose needs both rotation and translation")
	}
	if rows, cols := r.Dims(); rows != 3 || cols != 3 {
		return nil, fmt.Errorf("rotation must be 3x3, got %dx%d", rows, cols)
	}
	if t.Len() != 3 {
		return nil, fmt.Errorf("translation must have 3 elements, got %d", t.Len())
	}
	return &Pose{R: mat.DenseCopyOf(r), T: mat.VecDenseCopyOf(t)}, nil
}

// IdentityPose is no rotation and no translation
func IdentityPose() *Pose {
	return &Pose{
		R: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		T: mat.NewVecDense(3, nil),
	}
}

// Clone returns a deep copy so callers cannot mutate the stored pose
func (p *Pose) Clone() *Pose {
	return &Pose{R: mat.DenseCopyOf(p.R), T: mat.VecDenseCopyOf(p.T)}
}
