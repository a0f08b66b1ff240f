package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/proctorlens/proctorlens/internal/score"
)

// Store persists one JSON report file per session under a root directory.
type Store struct {
	dir string
}

// Summary is the listing view of a stored report.
type Summary struct {
	SessionID   string
	GeneratedAt time.Time
	Score       float64
	Verdict     score.Verdict
	Violations  int
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the report file path for a session ID.
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the report as indented JSON, replacing any previous report for
// the same session.
func (s *Store) Save(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	path := s.Path(r.SessionID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// Load reads and validates a stored report. Documents that fail schema
// validation are rejected rather than partially decoded.
func (s *Store) Load(sessionID string) (*Report, error) {
	data, err := os.ReadFile(s.Path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading report for session %q: %w", sessionID, err)
	}
	if errs := ValidateReportBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("report for session %q is invalid: %s", sessionID, strings.Join(errs, "; "))
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding report for session %q: %w", sessionID, err)
	}
	return &r, nil
}

// List returns summaries for every readable report, newest first. Files that
// are not valid reports are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		r, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, Summary{
			SessionID:   r.SessionID,
			GeneratedAt: r.GeneratedAt,
			Score:       r.Score,
			Verdict:     r.Verdict,
			Violations:  len(r.Timeline),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out, nil
}
