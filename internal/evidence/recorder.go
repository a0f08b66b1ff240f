// Package evidence persists proof frames for violation events. One JPEG per
// qualifying event, stored under session-scoped directories, written at most
// once per event reference. A failed write is reported and counted but never
// aborts the session; the event stays on the timeline without an artifact.
package evidence

import (
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"

	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/metrics"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// Artifact is one stored proof frame. Write-once; it always corresponds to a
// violation event with the same ID.
type Artifact struct {
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id"`
	Path      string `json:"path"`
}

// Recorder writes proof frames for one session.
type Recorder struct {
	sessionID string
	dir       string
	cfg       *config.Config
	metrics   *metrics.Metrics

	mu      sync.Mutex
	written map[string]*Artifact
}

// NewRecorder creates the session's evidence directory under root.
func NewRecorder(root, sessionID string, cfg *config.Config, m *metrics.Metrics) (*Recorder, error) {
	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating evidence directory: %w", err)
	}
	return &Recorder{
		sessionID: sessionID,
		dir:       dir,
		cfg:       cfg,
		metrics:   m,
		written:   map[string]*Artifact{},
	}, nil
}

// Record persists the frame backing an event. Returns (nil, nil) for kinds
// that are not configured for capture and for audio events, which have no
// frame. Calling twice with the same event reference returns the first
// artifact without writing a second file.
func (r *Recorder) Record(ev signal.ViolationEvent, frame *media.Frame) (*Artifact, error) {
	if !ev.Kind.Visual() || !r.cfg.CapturesEvidence(ev.Kind) {
		return nil, nil
	}
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("event %s has no frame to record", ev.ID)
	}

	r.mu.Lock()
	if a, ok := r.written[ev.ID]; ok {
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	path := filepath.Join(r.dir, ev.ID+".jpg")
	if err := r.writeJPEG(path, frame.Image); err != nil {
		if r.metrics != nil {
			r.metrics.EvidenceFailed.Inc()
		}
		slog.Error("evidence write failed, event kept without artifact",
			"session", r.sessionID, "event", ev.ID, "error", err)
		return nil, err
	}

	artifact := &Artifact{SessionID: r.sessionID, EventID: ev.ID, Path: path}
	r.mu.Lock()
	r.written[ev.ID] = artifact
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.EvidenceWritten.Inc()
	}
	slog.Debug("evidence recorded", "session", r.sessionID, "event", ev.ID, "path", path)
	return artifact, nil
}

// Artifacts returns the artifacts written so far, keyed by event ID.
func (r *Recorder) Artifacts() map[string]*Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Artifact, len(r.written))
	for k, v := range r.written {
		out[k] = v
	}
	return out
}

// Dir returns the session's evidence directory.
func (r *Recorder) Dir() string {
	return r.dir
}

func (r *Recorder) writeJPEG(path string, img image.Image) error {
	resized := resizeToWidth(img, r.cfg.Evidence.ResizeWidth)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	if err := jpeg.Encode(f, resized, &jpeg.Options{Quality: r.cfg.Evidence.JPEGQuality}); err != nil {
		f.Close()
		return fmt.Errorf("encoding %q: %w", path, err)
	}
	return f.Close()
}

// resizeToWidth downscales img to the target width, preserving aspect.
// Frames already at or below the target are stored as-is.
func resizeToWidth(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= width {
		return img
	}
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
