package cv

import (
	"context"
	"errors"
	"io"
)

// FrameSource delivers co-registered RGB-D frames. NextFrame returns io.EOF
// once the source is exhausted.
type FrameSource interface {
	NextFrame() (Frame, error)
}

// SliceSource replays frames held in memory
type SliceSource struct {
	frames []Frame
	pos    int
}

// NewSliceSource creates a source over frames
func NewSliceSource(frames ...Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// NextFrame implements FrameSource
func (s *SliceSource) NextFrame() (Frame, error) {
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Drain calls fn for every frame until the source ends, fn fails or ctx is done
func Drain(ctx context.Context, src FrameSource, fn func(Frame) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := src.NextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
