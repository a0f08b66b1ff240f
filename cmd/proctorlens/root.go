package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proctorlens",
		Short: "ProctorLens - offline exam session integrity analysis",
		Long: `ProctorLens analyzes recorded exam and interview sessions for integrity
violations.

It fuses per-frame detector signals and optional speaker-consistency audio
analysis into a violation timeline, an integrity score, and a final
CLEAN/SUSPICIOUS/CHEATING verdict, with evidence frames persisted for review.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newAnalyzeCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newSessionsCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
