package media

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSource reads pre-extracted frames from a directory of image files,
// sorted by name. Each file counts as one sampled frame; raw frame indexes
// are reconstructed from the position and stride.
type DirSource struct {
	paths  []string
	stride int
	fps    float64
	pos    int
}

// NewDirSource lists the jpg/jpeg/png files in dir. An empty directory is an
// InputError, same as a video no frames can be extracted from.
func NewDirSource(dir string, stride int, fps float64) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &InputError{Path: dir, Err: err}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, &InputError{Path: dir, Err: fmt.Errorf("no frame images found")}
	}
	sort.Strings(paths)

	return &DirSource{paths: paths, stride: stride, fps: fps}, nil
}

func (s *DirSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}

	f, err := os.Open(s.paths[s.pos])
	if err != nil {
		return nil, fmt.Errorf("reading frame %q: %w", s.paths[s.pos], err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %q: %w", s.paths[s.pos], err)
	}

	index := s.pos * s.stride
	s.pos++
	return &Frame{
		Index:     index,
		Timestamp: float64(index) / s.fps,
		Image:     img,
	}, nil
}

func (s *DirSource) FPS() float64 { return s.fps }

func (s *DirSource) Close() error { return nil }
