package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/proctorlens/proctorlens/internal/report"
	"github.com/proctorlens/proctorlens/internal/session"
)

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and inspect analyzed sessions",
		Long: `List and inspect analyzed sessions.

Each analyzed session leaves a JSON report and, when enabled, an NDJSON event
log in the reports directory.`,
	}

	cmd.AddCommand(newSessionsListCommand())
	cmd.AddCommand(newSessionsLogCommand())

	return cmd
}

func newSessionsListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored session reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := report.NewStore(dir)
			if err != nil {
				return err
			}
			summaries, err := store.List()
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No session reports found.")
				return nil
			}

			fmt.Printf("%-32s %-10s %8s %10s  %s\n", "Session", "Verdict", "Score", "Violations", "Generated")
			fmt.Println("─────────────────────────────────────────────────────────────────────────────────")
			for _, s := range summaries {
				fmt.Printf("%-32s %-10s %8.1f %10d  %s\n",
					s.SessionID, s.Verdict, s.Score, s.Violations,
					s.GeneratedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "sessions", "Reports directory")

	return cmd
}

// formatEvent renders one log event on a single line with data keys sorted,
// so replayed output is stable across runs.
func formatEvent(ev session.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-16s", ev.Timestamp.Format("15:04:05.000"), ev.Type)

	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Data[k])
	}
	return b.String()
}

func newSessionsLogCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "log <session-id>",
		Short: "Replay a session's NDJSON event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := session.LogPath(dir, args[0])
			events, err := session.ReadEvents(path)
			if err != nil {
				return fmt.Errorf("reading session log %s: %w", filepath.Base(path), err)
			}

			for _, ev := range events {
				fmt.Println(formatEvent(ev))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "sessions", "Reports directory")

	return cmd
}
