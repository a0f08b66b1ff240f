// Package report assembles and persists the session report external
// collaborators read: final score, verdict, chronological event timeline
// with evidence references, and processing metadata. Building a report is a
// pure transformation of finalized scoring state; nothing here recomputes
// scores or verdicts.
package report

import (
	"time"

	"github.com/proctorlens/proctorlens/internal/evidence"
	"github.com/proctorlens/proctorlens/internal/score"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// TimelineEntry is one violation event as persisted, with its evidence
// reference when a proof frame was stored.
type TimelineEntry struct {
	ID         string               `json:"id"`
	Timestamp  float64              `json:"timestamp"`
	Kind       signal.ViolationKind `json:"kind"`
	Severity   float64              `json:"severity"`
	FrameIndex int                  `json:"frame_index"`
	Evidence   string               `json:"evidence,omitempty"`
	Details    map[string]any       `json:"details,omitempty"`
}

// Meta is the processing metadata block.
type Meta struct {
	FramesAnalyzed  int     `json:"frames_analyzed"`
	AudioWindows    int     `json:"audio_windows"`
	FPS             float64 `json:"fps"`
	DurationSeconds float64 `json:"duration_seconds"`
	Degraded        bool    `json:"degraded"`
	DegradedReason  string  `json:"degraded_reason,omitempty"`
}

// Report is the persisted record for one session.
type Report struct {
	SessionID   string          `json:"session_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Score       float64         `json:"score"`
	Verdict     score.Verdict   `json:"verdict"`
	Counts      map[string]int  `json:"violation_counts"`
	Timeline    []TimelineEntry `json:"timeline"`
	Meta        Meta            `json:"meta"`
}

// Build produces the report for a finalized session. Events keep their
// timeline order; each event that has an artifact carries its stored path.
func Build(state *score.State, artifacts map[string]*evidence.Artifact, meta Meta) *Report {
	r := &Report{
		SessionID:   state.SessionID,
		GeneratedAt: time.Now().UTC(),
		Score:       state.Score,
		Verdict:     state.Verdict,
		Counts:      map[string]int{},
		Timeline:    make([]TimelineEntry, 0, len(state.Timeline)),
		Meta:        meta,
	}

	for kind, n := range state.Counts {
		r.Counts[string(kind)] = n
	}

	for _, ev := range state.Timeline {
		entry := TimelineEntry{
			ID:         ev.ID,
			Timestamp:  ev.Timestamp,
			Kind:       ev.Kind,
			Severity:   ev.Severity,
			FrameIndex: ev.FrameIndex,
			Details:    ev.Details,
		}
		if a, ok := artifacts[ev.ID]; ok {
			entry.Evidence = a.Path
		}
		r.Timeline = append(r.Timeline, entry)
	}

	return r
}

// BuildDegraded produces the minimal report for a session whose input could
// not be analyzed. The verdict stays at the CLEAN default: no frame was ever
// judged, and a verdict must still exist.
func BuildDegraded(sessionID, reason string) *Report {
	return &Report{
		SessionID:   sessionID,
		GeneratedAt: time.Now().UTC(),
		Score:       score.InitialScore,
		Verdict:     score.VerdictClean,
		Counts:      map[string]int{},
		Timeline:    []TimelineEntry{},
		Meta: Meta{
			Degraded:       true,
			DegradedReason: reason,
		},
	}
}
