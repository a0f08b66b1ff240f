package engine

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/metrics"
	"github.com/proctorlens/proctorlens/internal/report"
	"github.com/proctorlens/proctorlens/internal/score"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// testConfig returns a validated default policy with stride 1, so scripted
// frame indexes map one to one onto sampled frames, writing into tmp dirs.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Sampling.FrameStride = 1
	dir := t.TempDir()
	cfg.Storage.ReportsDir = filepath.Join(dir, "sessions")
	cfg.Storage.EvidenceDir = filepath.Join(dir, "evidence")
	cfg.Storage.SessionLog = func() *bool { b := false; return &b }()
	return cfg
}

// frames builds n sequential frames at the given fps sharing one small image.
func frames(n int, fps float64) []*media.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	out := make([]*media.Frame, n)
	for i := range out {
		out[i] = &media.Frame{Index: i, Timestamp: float64(i) / fps, Image: img}
	}
	return out
}

func scriptedDetector(name string, ranges []map[string]any) config.DetectorConfig {
	return config.DetectorConfig{
		Name:   name,
		Type:   "scripted",
		Params: map[string]any{"ranges": ranges},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg, metrics.New())
	require.NoError(t, err)
	return e
}

func eventKinds(rep *report.Report) []signal.ViolationKind {
	kinds := make([]signal.ViolationKind, 0, len(rep.Timeline))
	for _, e := range rep.Timeline {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestProcess_FaceAbsenceDebounced(t *testing.T) {
	// 300 frames with the face gone for frames 50-65. The run threshold of
	// 10 must collapse the whole span into exactly one NO_FACE event.
	cfg := testConfig(t)
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("face", []map[string]any{
			{"from": 50, "to": 65, "face_present": false},
		}),
	}
	e := newTestEngine(t, cfg)

	rep, err := e.ProcessOpened(context.Background(), media.NewMemorySource(frames(300, 30), 30), nil, "sess-a")
	require.NoError(t, err)

	require.Equal(t, []signal.ViolationKind{signal.KindNoFace}, eventKinds(rep))
	require.Equal(t, 59, rep.Timeline[0].FrameIndex)
	require.InDelta(t, 95, rep.Score, 1e-9)
	require.Equal(t, score.VerdictClean, rep.Verdict)
	require.Equal(t, 300, rep.Meta.FramesAnalyzed)
	require.InDelta(t, 30, rep.Meta.FPS, 1e-9)
}

func TestProcess_PhoneIsImmediatelySuspicious(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("objects", []map[string]any{
			{"from": 120, "to": 120, "objects": []string{"phone"}},
		}),
	}
	e := newTestEngine(t, cfg)

	rep, err := e.ProcessOpened(context.Background(), media.NewMemorySource(frames(200, 30), 30), nil, "sess-b")
	require.NoError(t, err)

	require.Equal(t, []signal.ViolationKind{signal.KindObjectDetected}, eventKinds(rep))
	require.Equal(t, 120, rep.Timeline[0].FrameIndex)
	require.InDelta(t, 75, rep.Score, 1e-9)
	require.True(t, rep.Verdict.AtLeast(score.VerdictSuspicious))
	require.NotEqual(t, score.VerdictCheating, rep.Verdict)

	// One evidence artifact, persisted and referenced from the timeline.
	require.NotEmpty(t, rep.Timeline[0].Evidence)
	require.FileExists(t, rep.Timeline[0].Evidence)
}

func TestProcess_RepeatedMultiFaceEscalatesToCheating(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("faces", []map[string]any{
			{"from": 40, "to": 40, "face_count": 2},
			{"from": 200, "to": 200, "face_count": 2},
		}),
	}
	e := newTestEngine(t, cfg)

	rep, err := e.ProcessOpened(context.Background(), media.NewMemorySource(frames(300, 30), 30), nil, "sess-c")
	require.NoError(t, err)

	require.Equal(t, []signal.ViolationKind{signal.KindMultiFace, signal.KindMultiFace}, eventKinds(rep))
	require.Equal(t, 40, rep.Timeline[0].FrameIndex)
	require.Equal(t, 200, rep.Timeline[1].FrameIndex)
	require.Equal(t, score.VerdictCheating, rep.Verdict)
}

func TestProcess_CollusionAcrossStreams(t *testing.T) {
	// A gaze violation around 12s and a speaker mismatch window starting at
	// 15s. With the suspicious threshold raised just above the final score,
	// the collusion rule alone must cross into CHEATING.
	cfg := testConfig(t)
	cfg.Verdict.SuspiciousBelow = 85
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("gaze", []map[string]any{
			{"from": 358, "to": 362, "gaze_off_screen": true},
		}),
	}
	cfg.AudioDetector = &config.DetectorConfig{
		Name: "speaker",
		Type: "scripted",
		Params: map[string]any{
			"ranges": []map[string]any{
				{"from_seconds": 15.0, "to_seconds": 20.0, "score": 0.4},
			},
		},
	}
	e := newTestEngine(t, cfg)

	windows := media.NewMemoryWindowSource([]*media.AudioWindow{
		{Index: 0, Start: 0, End: 5, SampleRate: 16000},
		{Index: 1, Start: 5, End: 10, SampleRate: 16000},
		{Index: 2, Start: 10, End: 15, SampleRate: 16000},
		{Index: 3, Start: 15, End: 20, SampleRate: 16000},
	})

	rep, err := e.ProcessOpened(context.Background(), media.NewMemorySource(frames(600, 30), 30), windows, "sess-d")
	require.NoError(t, err)

	require.Equal(t, []signal.ViolationKind{signal.KindLookingAway, signal.KindSpeakerMismatch}, eventKinds(rep))
	require.Equal(t, score.VerdictCheating, rep.Verdict)
	require.Greater(t, rep.Score, cfg.Verdict.CheatingBelow, "the collusion rule fired, not the score floor")
	require.Equal(t, 4, rep.Meta.AudioWindows)
	require.InDelta(t, 20, rep.Meta.DurationSeconds, 1e-9)
}

// truncatedSource fails with an input error after yielding its frames, like
// a recording whose tail is corrupt.
type truncatedSource struct {
	*media.MemorySource
	served int
	limit  int
}

func (s *truncatedSource) Next(ctx context.Context) (*media.Frame, error) {
	if s.served >= s.limit {
		return nil, &media.InputError{Path: "corrupt.mp4", Err: errors.New("exit status 1")}
	}
	s.served++
	return s.MemorySource.Next(ctx)
}

func TestProcess_CorruptTailKeepsPartialAnalysis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("faces", []map[string]any{
			{"from": 30, "to": 30, "face_count": 2},
		}),
	}
	e := newTestEngine(t, cfg)

	source := &truncatedSource{MemorySource: media.NewMemorySource(frames(200, 30), 30), limit: 80}
	rep, err := e.ProcessOpened(context.Background(), source, nil, "sess-truncated")
	require.NoError(t, err)

	// Everything observed before the failure survives; the session is not
	// degraded away.
	require.False(t, rep.Meta.Degraded)
	require.Equal(t, 80, rep.Meta.FramesAnalyzed)
	require.Equal(t, []signal.ViolationKind{signal.KindMultiFace}, eventKinds(rep))
}

func TestProcessSession_UnreadableVideoDegrades(t *testing.T) {
	cfg := testConfig(t)
	e := newTestEngine(t, cfg)

	rep, err := e.ProcessSession(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "", "sess-e")
	require.NoError(t, err, "unreadable input is a report, not an error")

	require.True(t, rep.Meta.Degraded)
	require.NotEmpty(t, rep.Meta.DegradedReason)
	require.Equal(t, score.VerdictClean, rep.Verdict)
	require.Empty(t, rep.Timeline)

	// The degraded report must be on disk like any other.
	store, err := report.NewStore(cfg.Storage.ReportsDir)
	require.NoError(t, err)
	loaded, err := store.Load("sess-e")
	require.NoError(t, err)
	require.True(t, loaded.Meta.Degraded)
}

func TestProcess_EventOrderStableUnderWorkers(t *testing.T) {
	// With many workers racing, events must still come out in frame order.
	cfg := testConfig(t)
	cfg.Workers = 8
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("faces", []map[string]any{
			{"from": 10, "to": 10, "face_count": 2},
			{"from": 50, "to": 50, "face_count": 3},
			{"from": 90, "to": 90, "face_count": 2},
			{"from": 130, "to": 130, "face_count": 4},
		}),
	}
	e := newTestEngine(t, cfg)

	rep, err := e.ProcessOpened(context.Background(), media.NewMemorySource(frames(200, 30), 30), nil, "sess-order")
	require.NoError(t, err)

	require.Len(t, rep.Timeline, 4)
	for i, want := range []int{10, 50, 90, 130} {
		require.Equal(t, want, rep.Timeline[i].FrameIndex)
	}
}

func TestProcess_CancellationPersistsDegradedReport(t *testing.T) {
	cfg := testConfig(t)
	e := newTestEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := e.ProcessOpened(ctx, media.NewMemorySource(frames(100, 30), 30), nil, "sess-cancel")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	require.True(t, rep.Meta.Degraded)
}

func TestProcess_DegradedFramesDoNotFireEvents(t *testing.T) {
	// The face detector fails over frames 50-65; with no trustworthy face
	// signal those frames must not extend or start a NO_FACE run.
	cfg := testConfig(t)
	cfg.Detectors = []config.DetectorConfig{
		scriptedDetector("face", []map[string]any{
			{"from": 50, "to": 65, "fail": true},
		}),
	}
	e := newTestEngine(t, cfg)

	rep, err := e.ProcessOpened(context.Background(), media.NewMemorySource(frames(100, 30), 30), nil, "sess-degraded")
	require.NoError(t, err)
	require.Empty(t, rep.Timeline)
	require.Equal(t, score.VerdictClean, rep.Verdict)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.New()
	cfg.Verdict.CheatingBelow = 90
	cfg.Verdict.SuspiciousBelow = 80

	_, err := New(cfg, nil)
	require.Error(t, err)
	require.True(t, config.IsConfigError(err))
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID("/recordings/candidate-7.mp4")
	require.Regexp(t, `^candidate-7-[0-9a-f]{8}$`, id)
	require.NotEqual(t, id, NewSessionID("/recordings/candidate-7.mp4"))
}
