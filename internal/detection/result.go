package detection

import (
	"encoding/json"
	"image"

	"gonum.org/v1/gonum/mat"
)

// Result is a match enriched with the pose of its template
type Result struct {
	ObjectID      string
	TemplateIndex int
	Location      image.Point
	Score         float64
	Rotation      *mat.Dense    // 3x3
	Translation   *mat.VecDense // 3
}

type resultJSON struct {
	ObjectID      string     `json:"object_id"`
	TemplateIndex int        `json:"template_index"`
	X             int        `json:"x"`
	Y             int        `json:"y"`
	Score         float64    `json:"score"`
	Rotation      [9]float64 `json:"rotation"`
	Translation   [3]float64 `json:"translation"`
}

// MarshalJSON flattens the rotation row-major
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		ObjectID:      r.ObjectID,
		TemplateIndex: r.TemplateIndex,
		X:             r.Location.X,
		Y:             r.Location.Y,
		Score:         r.Score,
	}
	if r.Rotation != nil {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				out.Rotation[i*3+j] = r.Rotation.At(i, j)
			}
		}
	}
	if r.Translation != nil {
		for i := 0; i < 3; i++ {
			out.Translation[i] = r.Translation.AtVec(i)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a result written by MarshalJSON
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{
		ObjectID:      in.ObjectID,
		TemplateIndex: in.TemplateIndex,
		Location:      image.Point{X: in.X, Y: in.Y},
		Score:         in.Score,
		Rotation:      mat.NewDense(3, 3, in.Rotation[:]),
		Translation:   mat.NewVecDense(3, in.Translation[:]),
	}
	return nil
}
