package media

import (
	"context"
	"io"
)

// MemorySource serves a fixed slice of frames. Used by tests and by callers
// that already hold decoded frames.
type MemorySource struct {
	frames []*Frame
	fps    float64
	pos    int
}

// NewMemorySource wraps frames already in index order.
func NewMemorySource(frames []*Frame, fps float64) *MemorySource {
	return &MemorySource{frames: frames, fps: fps}
}

func (s *MemorySource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *MemorySource) FPS() float64 { return s.fps }

func (s *MemorySource) Close() error { return nil }
