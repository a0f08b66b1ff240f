// Package signal defines the per-frame and per-window detector outputs and
// the discrete violation events derived from them. Signals are raw detector
// observations, not yet judged against policy; events are policy-triggered
// occurrences emitted by the aggregator. Both are immutable after creation.
package signal

import (
	"fmt"
	"strings"
)

// ObjectClass identifies a category of prohibited object a detector can flag.
type ObjectClass string

const (
	ObjectPhone    ObjectClass = "phone"
	ObjectBook     ObjectClass = "book"
	ObjectNotes    ObjectClass = "notes"
	ObjectEarpiece ObjectClass = "earpiece"
	ObjectScreen   ObjectClass = "screen"
)

// FrameSignal is the fused observation for one sampled video frame.
// Degraded marks a frame where at least one detector failed; its fields for
// that capability hold neutral values rather than real observations.
type FrameSignal struct {
	FrameIndex    int           `json:"frame_index"`
	Timestamp     float64       `json:"timestamp"`
	FacePresent   bool          `json:"face_present"`
	FaceCount     int           `json:"face_count"`
	GazeOffScreen bool          `json:"gaze_off_screen"`
	MouthActive   bool          `json:"mouth_active"`
	Objects       []ObjectClass `json:"objects,omitempty"`
	Degraded      bool          `json:"degraded,omitempty"`
}

// AudioSignal is the speaker-consistency observation for one audio window.
// SpeakerMatch is the similarity of the window's speaker to the session's
// reference voice, in [0,1].
type AudioSignal struct {
	WindowStart  float64 `json:"window_start"`
	WindowEnd    float64 `json:"window_end"`
	SpeakerMatch float64 `json:"speaker_match_score"`
	Degraded     bool    `json:"degraded,omitempty"`
}

// ViolationKind identifies the policy rule a violation event fired under.
type ViolationKind string

const (
	KindNoFace          ViolationKind = "NO_FACE"
	KindLookingAway     ViolationKind = "LOOKING_AWAY"
	KindMultiFace       ViolationKind = "MULTI_FACE"
	KindObjectDetected  ViolationKind = "OBJECT_DETECTED"
	KindTalking         ViolationKind = "TALKING"
	KindSpeakerMismatch ViolationKind = "SPEAKER_MISMATCH"
)

// Kinds returns all violation kinds in a stable order.
func Kinds() []ViolationKind {
	return []ViolationKind{
		KindNoFace,
		KindLookingAway,
		KindMultiFace,
		KindObjectDetected,
		KindTalking,
		KindSpeakerMismatch,
	}
}

// Visual reports whether events of this kind originate from a video frame
// that can be persisted as evidence. SPEAKER_MISMATCH has no frame to save.
func (k ViolationKind) Visual() bool {
	return k != KindSpeakerMismatch
}

func (k ViolationKind) String() string {
	return string(k)
}

// ParseViolationKind converts a config or flag value to a ViolationKind.
func ParseViolationKind(s string) (ViolationKind, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, k := range Kinds() {
		if normalized == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid violation kind %q: must be one of %v", s, Kinds())
}

// Severity levels attached to events. The score weight table is keyed by
// kind; severity is the qualitative classification carried on the event for
// reporting.
const (
	SeverityLow    = 0.3
	SeverityMedium = 0.6
	SeverityHigh   = 1.0
)

var kindSeverity = map[ViolationKind]float64{
	KindNoFace:          SeverityMedium,
	KindLookingAway:     SeverityLow,
	KindMultiFace:       SeverityHigh,
	KindObjectDetected:  SeverityHigh,
	KindTalking:         SeverityLow,
	KindSpeakerMismatch: SeverityHigh,
}

// BaseSeverity returns the default severity for a kind.
func BaseSeverity(k ViolationKind) float64 {
	return kindSeverity[k]
}

// ViolationEvent is one policy-triggered occurrence on the session timeline.
// ID is deterministic per (kind, source position) so evidence recording can
// be idempotent. FrameIndex is -1 for audio-sourced events.
type ViolationEvent struct {
	ID         string         `json:"id"`
	Timestamp  float64        `json:"timestamp"`
	Kind       ViolationKind  `json:"kind"`
	Severity   float64        `json:"severity"`
	FrameIndex int            `json:"frame_index"`
	Details    map[string]any `json:"details,omitempty"`
}

// NewFrameEvent creates a violation event anchored to a sampled video frame.
func NewFrameEvent(kind ViolationKind, sig FrameSignal, details map[string]any) ViolationEvent {
	return ViolationEvent{
		ID:         fmt.Sprintf("%s-f%06d", strings.ToLower(string(kind)), sig.FrameIndex),
		Timestamp:  sig.Timestamp,
		Kind:       kind,
		Severity:   BaseSeverity(kind),
		FrameIndex: sig.FrameIndex,
		Details:    details,
	}
}

// NewWindowEvent creates a violation event anchored to an audio window.
// The event timestamp is the window start, which is what the merge with the
// video timeline orders on.
func NewWindowEvent(kind ViolationKind, sig AudioSignal, details map[string]any) ViolationEvent {
	return ViolationEvent{
		ID:         fmt.Sprintf("%s-w%08.2f", strings.ToLower(string(kind)), sig.WindowStart),
		Timestamp:  sig.WindowStart,
		Kind:       kind,
		Severity:   BaseSeverity(kind),
		FrameIndex: -1,
		Details:    details,
	}
}
