package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/proctorlens/proctorlens/internal/score"
)

// InterpretScore returns a plain-language label for an integrity score (0-100).
func InterpretScore(s float64) string {
	switch {
	case s >= 90:
		return "High integrity (>=90)"
	case s >= 70:
		return "Minor concerns (70-90)"
	case s >= 50:
		return "Significant concerns (50-70)"
	default:
		return "Severe concerns (<50)"
	}
}

// InterpretVerdict explains what a verdict means for a reviewer.
func InterpretVerdict(v score.Verdict) string {
	switch v {
	case score.VerdictCheating:
		return "Strong evidence of violations. Review the timeline and evidence frames before taking action."
	case score.VerdictSuspicious:
		return "Repeated or notable violations were observed. A manual review is recommended."
	default:
		return "No significant violations were observed."
	}
}

// FormatSummary produces a full plain-language summary of a session report.
func FormatSummary(r *Report) string {
	var b strings.Builder

	b.WriteString("=== Session Summary ===\n\n")
	b.WriteString(fmt.Sprintf("Session:   %s\n", r.SessionID))
	b.WriteString(fmt.Sprintf("Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("Score:     %.1f — %s\n", r.Score, InterpretScore(r.Score)))
	b.WriteString(fmt.Sprintf("Verdict:   %s\n", r.Verdict))
	b.WriteString(fmt.Sprintf("           %s\n", InterpretVerdict(r.Verdict)))

	if r.Meta.Degraded {
		reason := r.Meta.DegradedReason
		if reason == "" {
			reason = "input could not be analyzed"
		}
		b.WriteString(fmt.Sprintf("\nWARNING: analysis was degraded: %s\n", reason))
	}

	if len(r.Counts) > 0 {
		kinds := make([]string, 0, len(r.Counts))
		for k := range r.Counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		b.WriteString("\nViolations:\n")
		for _, k := range kinds {
			b.WriteString(fmt.Sprintf("  %-18s %d\n", k, r.Counts[k]))
		}
	}

	if len(r.Timeline) > 0 {
		b.WriteString("\nTimeline:\n")
		for _, e := range r.Timeline {
			b.WriteString(fmt.Sprintf("  [%8.2fs] %s", e.Timestamp, e.Kind))
			if e.Evidence != "" {
				b.WriteString(fmt.Sprintf(" (evidence: %s)", e.Evidence))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(fmt.Sprintf("\nAnalyzed %d frames", r.Meta.FramesAnalyzed))
	if r.Meta.AudioWindows > 0 {
		b.WriteString(fmt.Sprintf(" and %d audio windows", r.Meta.AudioWindows))
	}
	b.WriteString(fmt.Sprintf(" over %.1fs.\n", r.Meta.DurationSeconds))

	return b.String()
}
