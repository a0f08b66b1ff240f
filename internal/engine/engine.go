// Package engine orchestrates one full session analysis: frame and audio
// sources feed concurrent detector workers, the aggregator turns signals into
// violation events, and the scorer reduces the merged timeline to a verdict
// and persisted report.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/proctorlens/proctorlens/internal/aggregate"
	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/detect"
	"github.com/proctorlens/proctorlens/internal/evidence"
	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/metrics"
	"github.com/proctorlens/proctorlens/internal/report"
	"github.com/proctorlens/proctorlens/internal/score"
	"github.com/proctorlens/proctorlens/internal/session"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// Engine analyzes recorded sessions under one validated policy.
type Engine struct {
	cfg     *config.Config
	metrics *metrics.Metrics
}

// New validates the policy and returns an engine. An invalid config is
// rejected here, never midway through a session.
func New(cfg *config.Config, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}
	return &Engine{cfg: cfg, metrics: m}, nil
}

// NewSessionID derives a session ID from the video path plus a short random
// suffix so repeated runs over the same recording stay distinct.
func NewSessionID(videoPath string) string {
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return fmt.Sprintf("%s-%s", stem, uuid.NewString()[:8])
}

type videoStats struct {
	events        []signal.ViolationEvent
	frames        int
	degraded      int
	lastTimestamp float64
	fps           float64
}

type audioStats struct {
	events  []signal.ViolationEvent
	windows int
	lastEnd float64
}

// ProcessSession analyzes one recording and persists its report. audioPath
// may be empty for video-only sessions. Unreadable input is a valid outcome:
// it yields a degraded report and a nil error. The returned report is always
// saved before returning, including the degraded and canceled cases.
func (e *Engine) ProcessSession(ctx context.Context, videoPath, audioPath, sessionID string) (*report.Report, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = NewSessionID(videoPath)
	}
	log := slog.With("session", sessionID)

	store, err := report.NewStore(e.cfg.Storage.ReportsDir)
	if err != nil {
		return nil, err
	}

	analyzer, err := e.newAnalyzer()
	if err != nil {
		return nil, err
	}

	var logger session.Logger = session.NopLogger{}
	if e.cfg.SessionLogEnabled() {
		jl, err := session.NewJSONLogger(session.LogPath(e.cfg.Storage.ReportsDir, sessionID))
		if err != nil {
			log.Warn("session log disabled", "error", err)
		} else {
			logger = jl
		}
	}
	defer logger.Close()

	source, err := media.OpenVideo(ctx, videoPath, e.cfg.Sampling.FrameStride, e.cfg.Sampling.FPSFallback)
	if err != nil {
		if media.IsInputError(err) {
			return e.saveDegraded(store, logger, sessionID, err.Error())
		}
		return nil, err
	}
	defer source.Close()

	return e.processOpened(ctx, store, logger, source, analyzer, videoPath, audioPath, sessionID, start, log)
}

// ProcessOpened analyzes a session from already-open sources. Tests use it to
// inject in-memory media.
func (e *Engine) ProcessOpened(ctx context.Context, source media.FrameSource, windows media.WindowSource, sessionID string) (*report.Report, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = NewSessionID("session")
	}
	log := slog.With("session", sessionID)

	store, err := report.NewStore(e.cfg.Storage.ReportsDir)
	if err != nil {
		return nil, err
	}

	analyzer, err := e.newAnalyzer()
	if err != nil {
		return nil, err
	}

	return e.run(ctx, store, session.NopLogger{}, source, windows, analyzer, sessionID, start, log)
}

// newAnalyzer builds the detector set from the policy.
func (e *Engine) newAnalyzer() (*detect.FrameAnalyzer, error) {
	caps := make([]*detect.BoundCapability, 0, len(e.cfg.Detectors))
	for _, dc := range e.cfg.Detectors {
		c, err := detect.New(dc)
		if err != nil {
			return nil, fmt.Errorf("detector %q: %w", dc.Name, err)
		}
		caps = append(caps, c)
	}
	return detect.NewFrameAnalyzer(caps, e.cfg.Sampling.FrameStride, e.metrics), nil
}

func (e *Engine) processOpened(ctx context.Context, store *report.Store, logger session.Logger, source media.FrameSource, analyzer *detect.FrameAnalyzer, videoPath, audioPath, sessionID string, start time.Time, log *slog.Logger) (*report.Report, error) {
	var windows media.WindowSource
	if audioPath != "" {
		if e.cfg.AudioDetector == nil {
			log.Warn("audio provided but no audio detector configured, skipping audio analysis")
		} else {
			ws, err := media.OpenAudio(audioPath, e.cfg.Audio.WindowSeconds)
			if err != nil {
				// Bad audio degrades the audio channel only; the video
				// analysis still produces a full report.
				log.Warn("audio unreadable, continuing without it", "error", err)
				if lerr := logger.Log(session.NewEvent(session.EventError, session.ErrorData("audio unreadable", map[string]any{"path": audioPath, "error": err.Error()}))); lerr != nil {
					log.Debug("session log write failed", "error", lerr)
				}
			} else {
				windows = ws
				defer ws.Close()
			}
		}
	}

	if err := logger.Log(session.NewEvent(session.EventSessionStart, session.SessionStartData(sessionID, videoPath, audioPath, source.FPS()))); err != nil {
		log.Debug("session log write failed", "error", err)
	}

	return e.run(ctx, store, logger, source, windows, analyzer, sessionID, start, log)
}

func (e *Engine) run(ctx context.Context, store *report.Store, logger session.Logger, source media.FrameSource, windows media.WindowSource, analyzer *detect.FrameAnalyzer, sessionID string, start time.Time, log *slog.Logger) (*report.Report, error) {
	recorder, err := evidence.NewRecorder(e.cfg.Storage.EvidenceDir, sessionID, e.cfg, e.metrics)
	if err != nil {
		return nil, err
	}

	var (
		vstats videoStats
		astats audioStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vstats, err = e.runVideo(gctx, source, analyzer, recorder, logger)
		return err
	})
	if windows != nil && e.cfg.AudioDetector != nil {
		g.Go(func() error {
			var err error
			astats, err = e.runAudio(gctx, windows, logger)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			// Canceled mid-run: persist what we know as a degraded report so
			// the session is never silently lost.
			rep, _ := e.saveDegraded(store, logger, sessionID, "analysis canceled: "+ctx.Err().Error())
			return rep, ctx.Err()
		}
		if media.IsInputError(err) && vstats.frames == 0 {
			return e.saveDegraded(store, logger, sessionID, err.Error())
		}
		// A mid-stream read failure after usable frames: report on what was
		// analyzed rather than discarding it.
		log.Warn("input ended early", "error", err, "frames", vstats.frames)
		if lerr := logger.Log(session.NewEvent(session.EventError, session.ErrorData("input ended early", map[string]any{"error": err.Error()}))); lerr != nil {
			log.Debug("session log write failed", "error", lerr)
		}
	}

	merged := aggregate.Merge(vstats.events, astats.events)
	scorer := score.NewScorer(sessionID, e.cfg)
	for _, ev := range merged {
		scorer.Apply(ev)
	}
	state := scorer.Finalize()

	duration := vstats.lastTimestamp
	if astats.lastEnd > duration {
		duration = astats.lastEnd
	}
	meta := report.Meta{
		FramesAnalyzed:  vstats.frames,
		AudioWindows:    astats.windows,
		FPS:             vstats.fps,
		DurationSeconds: duration,
	}

	rep := report.Build(state, recorder.Artifacts(), meta)
	path, err := store.Save(rep)
	if err != nil {
		return nil, err
	}

	e.metrics.Sessions.WithLabelValues(string(state.Verdict)).Inc()
	if err := logger.Log(session.NewEvent(session.EventSessionEnd, session.SessionCompleteData(state.Score, string(state.Verdict), len(state.Timeline), vstats.frames, time.Since(start).Milliseconds()))); err != nil {
		log.Debug("session log write failed", "error", err)
	}
	log.Info("session complete",
		"verdict", state.Verdict,
		"score", state.Score,
		"violations", len(state.Timeline),
		"frames", vstats.frames,
		"report", path,
	)
	return rep, nil
}

// runVideo fans sampled frames out to a bounded worker pool and feeds the
// results back to the aggregator in frame order.
func (e *Engine) runVideo(ctx context.Context, source media.FrameSource, analyzer *detect.FrameAnalyzer, recorder *evidence.Recorder, logger session.Logger) (videoStats, error) {
	stats := videoStats{fps: source.FPS()}
	agg := aggregate.New(e.cfg)

	results := make(chan frameResult, e.cfg.Workers*2)
	sem := make(chan struct{}, e.cfg.Workers)

	var readErr error
	go func() {
		defer close(results)
		var wg sync.WaitGroup
		seq := 0
		for {
			frame, err := source.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				readErr = err
				break
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(seq int, frame *media.Frame) {
				defer wg.Done()
				defer func() { <-sem }()
				results <- frameResult{seq: seq, frame: frame, work: analyzer.Observe(frame)}
			}(seq, frame)
			seq++
		}
		wg.Wait()
	}()

	buf := newReorderBuffer()
	for res := range results {
		for _, r := range buf.add(res) {
			sig := analyzer.Fuse(r.work)
			stats.frames++
			stats.lastTimestamp = sig.Timestamp
			if sig.Degraded {
				stats.degraded++
			}
			e.metrics.FramesAnalyzed.Inc()

			for _, ev := range agg.ObserveFrame(sig) {
				stats.events = append(stats.events, ev)
				e.metrics.Events.WithLabelValues(string(ev.Kind)).Inc()
				if err := logger.Log(session.NewEvent(session.EventViolation, session.ViolationData(ev))); err != nil {
					slog.Debug("session log write failed", "error", err)
				}
				art, err := recorder.Record(ev, r.frame)
				if err != nil {
					continue
				}
				if art != nil {
					if err := logger.Log(session.NewEvent(session.EventEvidenceSaved, session.EvidenceSavedData(ev.ID, art.Path))); err != nil {
						slog.Debug("session log write failed", "error", err)
					}
				}
			}
		}
	}
	if !buf.drained() {
		// Only reachable if a worker vanished without sending, which the
		// deferred sends above prevent.
		return stats, fmt.Errorf("frame reorder buffer not drained")
	}
	return stats, readErr
}

// runAudio scores speaker consistency window by window. Audio is cheap
// relative to frames, so a single sequential loop is enough.
func (e *Engine) runAudio(ctx context.Context, windows media.WindowSource, logger session.Logger) (audioStats, error) {
	var stats audioStats

	backend, err := detect.NewAudio(*e.cfg.AudioDetector)
	if err != nil {
		return stats, fmt.Errorf("audio detector %q: %w", e.cfg.AudioDetector.Name, err)
	}
	adapter := detect.NewAudioAdapter(backend)
	agg := aggregate.New(e.cfg)

	for {
		w, err := windows.Next(ctx)
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		sig := adapter.Analyze(w)
		stats.windows++
		stats.lastEnd = sig.WindowEnd
		e.metrics.AudioWindows.Inc()

		for _, ev := range agg.ObserveWindow(sig) {
			stats.events = append(stats.events, ev)
			e.metrics.Events.WithLabelValues(string(ev.Kind)).Inc()
			if err := logger.Log(session.NewEvent(session.EventViolation, session.ViolationData(ev))); err != nil {
				slog.Debug("session log write failed", "error", err)
			}
		}
	}
}

func (e *Engine) saveDegraded(store *report.Store, logger session.Logger, sessionID, reason string) (*report.Report, error) {
	slog.Error("session degraded", "session", sessionID, "reason", reason)
	if err := logger.Log(session.NewEvent(session.EventError, session.ErrorData(reason, nil))); err != nil {
		slog.Debug("session log write failed", "error", err)
	}

	rep := report.BuildDegraded(sessionID, reason)
	if _, err := store.Save(rep); err != nil {
		return nil, err
	}
	e.metrics.Sessions.WithLabelValues(string(rep.Verdict)).Inc()
	return rep, nil
}
