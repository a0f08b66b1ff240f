// Package score maintains the running integrity score and the verdict state
// machine for one session. Scoring is deterministic and explainable: every
// event subtracts a configured per-kind weight, and the verdict is a pure
// function of the score and the violation tallies. Verdicts never improve
// over a session.
package score

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// InitialScore is the integrity score every session starts from.
const InitialScore = 100.0

// Verdict is the session-level integrity classification.
type Verdict string

const (
	VerdictClean      Verdict = "CLEAN"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictCheating   Verdict = "CHEATING"
)

var verdictRank = map[Verdict]int{
	VerdictClean:      0,
	VerdictSuspicious: 1,
	VerdictCheating:   2,
}

func (v Verdict) String() string {
	return string(v)
}

// AtLeast returns true if v is at or above the target verdict.
func (v Verdict) AtLeast(target Verdict) bool {
	return verdictRank[v] >= verdictRank[target]
}

// ParseVerdict converts a stored or flag value to a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLEAN":
		return VerdictClean, nil
	case "SUSPICIOUS":
		return VerdictSuspicious, nil
	case "CHEATING":
		return VerdictCheating, nil
	default:
		return VerdictClean, fmt.Errorf("invalid verdict %q: must be clean, suspicious, or cheating", s)
	}
}

// State is one session's scoring state. Owned exclusively by the Scorer
// until Finalize, after which it is read-only.
type State struct {
	SessionID string
	Score     float64
	Counts    map[signal.ViolationKind]int
	Verdict   Verdict
	Timeline  []signal.ViolationEvent
}

// Scorer applies violation events to a session's state.
type Scorer struct {
	cfg   *config.Config
	state *State

	highCount    int
	lastVisual   float64
	lastMismatch float64
	collusion    bool
	finalized    bool
}

// NewScorer creates the scoring state for one session.
func NewScorer(sessionID string, cfg *config.Config) *Scorer {
	return &Scorer{
		cfg: cfg,
		state: &State{
			SessionID: sessionID,
			Score:     InitialScore,
			Counts:    map[signal.ViolationKind]int{},
			Verdict:   VerdictClean,
		},
		lastVisual:   math.Inf(-1),
		lastMismatch: math.Inf(-1),
	}
}

// Apply records one event: appends it to the timeline, subtracts the
// configured penalty, and advances the verdict state machine. Events must
// arrive in non-decreasing timestamp order.
func (s *Scorer) Apply(ev signal.ViolationEvent) {
	if s.finalized {
		slog.Warn("event applied after finalize, ignored", "session", s.state.SessionID, "event", ev.ID)
		return
	}

	s.state.Timeline = append(s.state.Timeline, ev)
	s.state.Counts[ev.Kind]++

	s.state.Score -= s.cfg.Weight(ev.Kind)
	if s.state.Score < 0 {
		s.state.Score = 0
	}

	if s.cfg.HighSeverity(ev.Kind) {
		s.highCount++
	}

	// Collusion: a speaker mismatch close in time to any visual violation.
	if ev.Kind == signal.KindSpeakerMismatch {
		s.lastMismatch = ev.Timestamp
	} else {
		s.lastVisual = ev.Timestamp
	}
	if math.Abs(s.lastVisual-s.lastMismatch) <= s.cfg.Verdict.CollusionWindow {
		s.collusion = true
	}

	s.advanceVerdict()
}

// advanceVerdict evaluates both transitions so a single event can escalate
// CLEAN straight through SUSPICIOUS to CHEATING. Downgrades never happen.
func (s *Scorer) advanceVerdict() {
	if s.state.Verdict == VerdictClean {
		if s.state.Score < s.cfg.Verdict.SuspiciousBelow || s.highCount >= 1 {
			s.state.Verdict = VerdictSuspicious
		}
	}
	if s.state.Verdict == VerdictSuspicious {
		if s.state.Score < s.cfg.Verdict.CheatingBelow ||
			s.highCount >= s.cfg.Verdict.HighRecurrence ||
			s.collusion {
			s.state.Verdict = VerdictCheating
		}
	}
}

// Finalize freezes the verdict and hands the state over read-only.
func (s *Scorer) Finalize() *State {
	s.finalized = true
	return s.state
}

// State returns the live state for inspection. Callers must not mutate it.
func (s *Scorer) State() *State {
	return s.state
}
