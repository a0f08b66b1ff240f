// Package detect defines the capability interface the analysis pipeline
// calls for each sampled frame and audio window, and the adapters that turn
// capability outputs into signals. The pipeline never depends on which model
// backs a capability; a failing capability degrades one signal, never the
// session.
package detect

import (
	"fmt"
	"log/slog"

	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// Observation is the partial, per-capability view of one frame. Nil pointer
// fields mean the capability has no opinion on that aspect; only non-nil
// fields are merged into the frame's signal.
type Observation struct {
	FacePresent   *bool
	FaceCount     *int
	GazeOffScreen *bool
	MouthActive   *bool
	Objects       []signal.ObjectClass
}

// Capability produces an observation from one video frame. Implementations
// must be stateless with respect to frames so the pipeline can call them
// concurrently; returning an error (or panicking) marks that frame degraded.
type Capability interface {
	Name() string
	Observe(frame *media.Frame) (Observation, error)
}

// AudioCapability scores one audio window's speaker against the session's
// reference voice, in [0,1].
type AudioCapability interface {
	Name() string
	Analyze(w *media.AudioWindow) (float64, error)
}

// observeGuarded runs a capability and converts panics into errors so one
// bad frame cannot take down the pipeline.
func observeGuarded(c Capability, frame *media.Frame) (obs Observation, err error) {
	defer func() {
		if r := recover(); r != nil {
			obs = Observation{}
			err = fmt.Errorf("detector %s panicked on frame %d: %v", c.Name(), frame.Index, r)
		}
	}()
	return c.Observe(frame)
}

// AudioAdapter wraps an AudioCapability into the AudioSignal contract: a
// total function of its window that yields a neutral degraded signal instead
// of failing.
type AudioAdapter struct {
	backend AudioCapability
}

// NewAudioAdapter wraps an audio capability.
func NewAudioAdapter(backend AudioCapability) *AudioAdapter {
	return &AudioAdapter{backend: backend}
}

// Analyze scores a window. A failed capability yields a full-match degraded
// signal so missing audio analysis never manufactures violations.
func (a *AudioAdapter) Analyze(w *media.AudioWindow) signal.AudioSignal {
	sig := signal.AudioSignal{
		WindowStart:  w.Start,
		WindowEnd:    w.End,
		SpeakerMatch: 1.0,
	}

	score, err := a.analyzeGuarded(w)
	if err != nil {
		slog.Warn("audio detector failed, window degraded",
			"detector", a.backend.Name(), "window_start", w.Start, "error", err)
		sig.Degraded = true
		return sig
	}

	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	sig.SpeakerMatch = score
	return sig
}

func (a *AudioAdapter) analyzeGuarded(w *media.AudioWindow) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio detector %s panicked on window %d: %v", a.backend.Name(), w.Index, r)
		}
	}()
	return a.backend.Analyze(w)
}
