package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/engine"
	"github.com/proctorlens/proctorlens/internal/metrics"
	"github.com/proctorlens/proctorlens/internal/report"
	"github.com/proctorlens/proctorlens/internal/score"
)

var (
	audioPath   string
	configPath  string
	sessionID   string
	workers     int
	interpret   bool
	metricsAddr string
)

func newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze a recorded session",
		Long: `Analyze a recorded session video (and optional audio track) for integrity
violations.

The video may be a file handed to ffmpeg or a directory of pre-extracted
frames. The report is written to the configured reports directory; evidence
frames for flagged violations are stored alongside it.`,
		Args: cobra.ExactArgs(1),
		RunE: analyzeCommandE,
	}

	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "WAV audio track for speaker-consistency analysis")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Analysis policy YAML (default: built-in policy)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session ID (default: derived from the video name)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent frame workers (overrides config)")
	cmd.Flags().BoolVar(&interpret, "interpret", false, "Print a plain-language interpretation of the report")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during analysis (e.g. :9090)")

	return cmd
}

func analyzeCommandE(cmd *cobra.Command, args []string) error {
	videoPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	m := metrics.New()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				slog.Warn("metrics endpoint failed", "addr", metricsAddr, "error", err)
			}
		}()
	}

	eng, err := engine.New(cfg, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := eng.ProcessSession(ctx, videoPath, audioPath, sessionID)
	if err != nil {
		return err
	}

	if interpret {
		fmt.Print(report.FormatSummary(rep))
	} else {
		fmt.Printf("Session:    %s\n", rep.SessionID)
		fmt.Printf("Score:      %.1f\n", rep.Score)
		fmt.Printf("Verdict:    %s\n", rep.Verdict)
		fmt.Printf("Violations: %d\n", len(rep.Timeline))
		if rep.Meta.Degraded {
			fmt.Printf("Degraded:   %s\n", rep.Meta.DegradedReason)
		}
	}

	if rep.Verdict.AtLeast(score.VerdictSuspicious) {
		return &FlaggedError{SessionID: rep.SessionID, Verdict: string(rep.Verdict)}
	}
	return nil
}
