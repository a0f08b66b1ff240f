package detect

import (
	"log/slog"

	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/metrics"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// BoundCapability attaches pipeline scheduling to a capability. Every runs
// the capability on every Nth sampled frame, keyed off the frame's sample
// position so the cadence is stable under concurrent analysis. Sticky
// replays the most recent cadence observation on skipped frames so
// run-length rules see a continuous value instead of gaps.
type BoundCapability struct {
	Capability Capability
	Every      int
	Sticky     bool
}

// due reports whether the capability runs at this sample position.
func (b *BoundCapability) due(samplePos int) bool {
	every := b.Every
	if every < 1 {
		every = 1
	}
	return samplePos%every == 0
}

// capabilityResult is one capability's output for one frame. ran is false on
// frames the cadence skipped.
type capabilityResult struct {
	obs Observation
	ran bool
	err error
}

// FrameWork carries one frame's per-capability results from the concurrent
// workers to the ordered fusion stage.
type FrameWork struct {
	frame   *media.Frame
	results []capabilityResult
}

// FrameAnalyzer fuses a set of capabilities into one FrameSignal per sampled
// frame. Fields no capability claims keep neutral values: one face, present,
// looking at the screen, mouth still, no objects.
//
// Observe is safe for concurrent use across frames. Fuse holds the sticky
// replay state and must be called from a single goroutine in frame order;
// anything else would let a skipped frame replay an observation from a frame
// that comes after it.
type FrameAnalyzer struct {
	caps    []*BoundCapability
	stride  int
	metrics *metrics.Metrics
	last    []*Observation
}

// NewFrameAnalyzer builds an analyzer over bound capabilities. stride is the
// frame sampling stride, used to recover sample positions from raw frame
// indexes. metrics may be nil.
func NewFrameAnalyzer(caps []*BoundCapability, stride int, m *metrics.Metrics) *FrameAnalyzer {
	if stride < 1 {
		stride = 1
	}
	return &FrameAnalyzer{
		caps:    caps,
		stride:  stride,
		metrics: m,
		last:    make([]*Observation, len(caps)),
	}
}

// Observe runs every due capability against the frame. The expensive
// detector work happens here, so workers can call it concurrently.
func (a *FrameAnalyzer) Observe(frame *media.Frame) *FrameWork {
	w := &FrameWork{frame: frame, results: make([]capabilityResult, len(a.caps))}

	samplePos := frame.Index / a.stride
	for i, bound := range a.caps {
		if !bound.due(samplePos) {
			continue
		}
		obs, err := observeGuarded(bound.Capability, frame)
		w.results[i] = capabilityResult{obs: obs, ran: true, err: err}
	}
	return w
}

// Fuse merges one frame's results into its fused signal. A capability
// failure leaves its fields neutral and marks the signal degraded; the
// other capabilities still contribute. Skipped frames replay the previous
// cadence observation for sticky capabilities.
func (a *FrameAnalyzer) Fuse(w *FrameWork) signal.FrameSignal {
	sig := signal.FrameSignal{
		FrameIndex:  w.frame.Index,
		Timestamp:   w.frame.Timestamp,
		FacePresent: true,
		FaceCount:   1,
	}

	for i, bound := range a.caps {
		r := w.results[i]
		switch {
		case r.ran && r.err != nil:
			slog.Warn("detector failed, frame degraded",
				"detector", bound.Capability.Name(), "frame", w.frame.Index, "error", r.err)
			if a.metrics != nil {
				a.metrics.DetectorErrors.WithLabelValues(bound.Capability.Name()).Inc()
			}
			sig.Degraded = true
		case r.ran:
			mergeObservation(&sig, r.obs)
			if bound.Sticky {
				saved := r.obs
				a.last[i] = &saved
			}
		case bound.Sticky && a.last[i] != nil:
			mergeObservation(&sig, *a.last[i])
		}
	}

	return sig
}

// Analyze observes and fuses in one step, for sequential callers.
func (a *FrameAnalyzer) Analyze(frame *media.Frame) signal.FrameSignal {
	return a.Fuse(a.Observe(frame))
}

func mergeObservation(sig *signal.FrameSignal, obs Observation) {
	if obs.FacePresent != nil {
		sig.FacePresent = *obs.FacePresent
	}
	if obs.FaceCount != nil {
		sig.FaceCount = *obs.FaceCount
	}
	if obs.GazeOffScreen != nil {
		sig.GazeOffScreen = *obs.GazeOffScreen
	}
	if obs.MouthActive != nil {
		sig.MouthActive = *obs.MouthActive
	}
	if len(obs.Objects) > 0 {
		sig.Objects = append(sig.Objects, obs.Objects...)
	}
}
