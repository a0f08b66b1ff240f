// Package session provides an append-only NDJSON log of what happened while
// a recording was analyzed. The log is a live side channel for operators
// tailing a run; the authoritative record is the persisted report.
package session

import (
	"time"

	"github.com/proctorlens/proctorlens/internal/signal"
)

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventSessionEnd    EventType = "session_complete"
	EventViolation     EventType = "violation"
	EventEvidenceSaved EventType = "evidence_saved"
	EventError         EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(sessionID, videoPath, audioPath string, fps float64) map[string]any {
	d := map[string]any{
		"session_id": sessionID,
		"video":      videoPath,
		"fps":        fps,
	}
	if audioPath != "" {
		d["audio"] = audioPath
	}
	return d
}

// SessionCompleteData returns event data for a session end.
func SessionCompleteData(score float64, verdict string, violations, framesAnalyzed int, durationMs int64) map[string]any {
	return map[string]any{
		"score":           score,
		"verdict":         verdict,
		"violations":      violations,
		"frames_analyzed": framesAnalyzed,
		"duration_ms":     durationMs,
	}
}

// ViolationData returns event data for a detected violation.
func ViolationData(ev signal.ViolationEvent) map[string]any {
	d := map[string]any{
		"event_id":  ev.ID,
		"kind":      string(ev.Kind),
		"severity":  ev.Severity,
		"timestamp": ev.Timestamp,
	}
	if ev.FrameIndex >= 0 {
		d["frame_index"] = ev.FrameIndex
	}
	for k, v := range ev.Details {
		d[k] = v
	}
	return d
}

// EvidenceSavedData returns event data for a stored evidence frame.
func EvidenceSavedData(eventID, path string) map[string]any {
	return map[string]any{
		"event_id": eventID,
		"path":     path,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
