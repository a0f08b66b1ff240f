// Package aggregate converts continuous per-frame and per-window signals
// into discrete, debounced violation events. Run-length rules suppress
// single-frame detector noise; presence-style rules (extra face, prohibited
// object, speaker mismatch) fire on the first detection of a run and stay
// quiet until the condition clears and re-triggers.
package aggregate

import (
	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// Aggregator holds one session's rolling debounce state. It is owned by a
// single goroutine; the pipeline serializes signals by timestamp before they
// get here.
type Aggregator struct {
	cfg    *config.Config
	runs   map[signal.ViolationKind]int
	active map[signal.ViolationKind]bool
}

// New creates an aggregator for one session.
func New(cfg *config.Config) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		runs:   map[signal.ViolationKind]int{},
		active: map[signal.ViolationKind]bool{},
	}
}

// ObserveFrame feeds one frame signal through the debounce rules and
// returns the events it fires, if any. Degraded frames freeze all counters:
// a failed detector must neither extend nor break a run.
func (a *Aggregator) ObserveFrame(sig signal.FrameSignal) []signal.ViolationEvent {
	if sig.Degraded {
		return nil
	}

	var events []signal.ViolationEvent

	if ev, ok := a.runLength(signal.KindNoFace, !sig.FacePresent, sig, nil); ok {
		events = append(events, ev)
	}
	if ev, ok := a.runLength(signal.KindLookingAway, sig.GazeOffScreen, sig, nil); ok {
		events = append(events, ev)
	}
	if ev, ok := a.runLength(signal.KindTalking, sig.MouthActive, sig, nil); ok {
		events = append(events, ev)
	}

	if ev, ok := a.edge(signal.KindMultiFace, sig.FaceCount > 1, sig, map[string]any{
		"num_faces": sig.FaceCount,
	}); ok {
		events = append(events, ev)
	}
	if ev, ok := a.edge(signal.KindObjectDetected, len(sig.Objects) > 0, sig, map[string]any{
		"objects": sig.Objects,
	}); ok {
		events = append(events, ev)
	}

	return events
}

// runLength advances the consecutive-frame counter for kind. When the
// counter reaches the configured threshold the event fires and the counter
// resets to zero, so a condition held for M frames with threshold K yields
// exactly ⌊M/K⌋ events.
func (a *Aggregator) runLength(kind signal.ViolationKind, cond bool, sig signal.FrameSignal, details map[string]any) (signal.ViolationEvent, bool) {
	if !cond {
		a.runs[kind] = 0
		return signal.ViolationEvent{}, false
	}

	a.runs[kind]++
	if a.runs[kind] < a.cfg.RunThreshold(kind) {
		return signal.ViolationEvent{}, false
	}

	a.runs[kind] = 0
	return signal.NewFrameEvent(kind, sig, details), true
}

// edge fires once at the start of a run and rearms only after the condition
// clears. The presence of a second face or a phone is significant even on a
// single sampled frame.
func (a *Aggregator) edge(kind signal.ViolationKind, cond bool, sig signal.FrameSignal, details map[string]any) (signal.ViolationEvent, bool) {
	if !cond {
		a.active[kind] = false
		return signal.ViolationEvent{}, false
	}
	if a.active[kind] {
		return signal.ViolationEvent{}, false
	}
	a.active[kind] = true
	return signal.NewFrameEvent(kind, sig, details), true
}

// ObserveWindow applies the speaker-consistency rule to one audio window.
// Mismatch is edge-triggered across consecutive windows, like the other
// presence rules.
func (a *Aggregator) ObserveWindow(sig signal.AudioSignal) []signal.ViolationEvent {
	if sig.Degraded {
		return nil
	}

	if sig.SpeakerMatch >= a.cfg.Audio.SpeakerMatchFloor {
		a.active[signal.KindSpeakerMismatch] = false
		return nil
	}
	if a.active[signal.KindSpeakerMismatch] {
		return nil
	}
	a.active[signal.KindSpeakerMismatch] = true

	return []signal.ViolationEvent{signal.NewWindowEvent(signal.KindSpeakerMismatch, sig, map[string]any{
		"speaker_match_score": sig.SpeakerMatch,
	})}
}

// Merge interleaves two timestamp-ordered event streams into one
// non-decreasing timeline. Ties keep events from the first stream ahead, so
// video events at a window boundary precede the window's audio event.
func Merge(video, audio []signal.ViolationEvent) []signal.ViolationEvent {
	if len(audio) == 0 {
		return video
	}
	if len(video) == 0 {
		return audio
	}

	merged := make([]signal.ViolationEvent, 0, len(video)+len(audio))
	i, j := 0, 0
	for i < len(video) && j < len(audio) {
		if video[i].Timestamp <= audio[j].Timestamp {
			merged = append(merged, video[i])
			i++
		} else {
			merged = append(merged, audio[j])
			j++
		}
	}
	merged = append(merged, video[i:]...)
	merged = append(merged, audio[j:]...)
	return merged
}
