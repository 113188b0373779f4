package cv

import (
	"fmt"
	"image"
)

// LevelSignature is the frame's representation at one pyramid level.
type LevelSignature struct {
	T             int // spread width at this level
	Width, Height int
	Quantized     []CodeMap   // per modality, unspread
	Spread        []CodeMap   // per modality
	Response      [][]float32 // per modality, nil when the modality has none

	memories []*linearMemory // top level only
}

// Signature is the per-level, per-modality quantized representation of a
// frame. It is immutable once computed.
type Signature struct {
	Levels []LevelSignature
}

// Top returns the coarsest level
func (s *Signature) Top() *LevelSignature {
	return &s.Levels[len(s.Levels)-1]
}

// ComputeSignature quantizes frame with every modality, spreads the codes
// with spreadT[l] at pyramid level l and linearizes the coarsest level.
// A non-nil mask zeroes codes outside it.
func ComputeSignature(frame Frame, mask *image.Gray, modalities []Modality, spreadT []int) (*Signature, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if len(modalities) == 0 || len(spreadT) == 0 {
		return nil, ErrInvalidConfig
	}

	pyramids := make([]QuantizedPyramid, len(modalities))
	for i, m := range modalities {
		qp, err := m.Process(frame, mask)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		pyramids[i] = qp
	}

	var maskBits bitmap
	if mask != nil {
		maskBits = maskBitmap(mask)
	}

	sig := &Signature{Levels: make([]LevelSignature, len(spreadT))}
	for l, t := range spreadT {
		if l > 0 {
			for _, qp := range pyramids {
				qp.PyrDown()
			}
			if mask != nil {
				maskBits = halveBitmap(maskBits)
			}
		}
		level := LevelSignature{T: t}
		for _, qp := range pyramids {
			q := qp.Quantize()
			if mask != nil {
				q = restrict(q, maskBits)
			}
			level.Width, level.Height = q.Width, q.Height
			level.Quantized = append(level.Quantized, q)
			level.Spread = append(level.Spread, spread(q, t))
			var response []float32
			if r, ok := qp.(responder); ok {
				response = r.Response()
			}
			level.Response = append(level.Response, response)
		}
		sig.Levels[l] = level
	}

	top := sig.Top()
	for _, sp := range top.Spread {
		top.memories = append(top.memories, linearize(sp, top.T))
	}
	return sig, nil
}

func restrict(q CodeMap, mask bitmap) CodeMap {
	out := newCodeMap(q.Width, q.Height)
	for i, v := range q.Pix {
		if mask.pix[i] {
			out.Pix[i] = v
		}
	}
	return out
}
