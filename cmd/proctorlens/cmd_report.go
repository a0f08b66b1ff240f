package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proctorlens/proctorlens/internal/report"
)

func newReportCommand() *cobra.Command {
	var (
		dir    string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Show a stored session report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := report.NewStore(dir)
			if err != nil {
				return err
			}

			rep, err := store.Load(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			fmt.Print(report.FormatSummary(rep))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "sessions", "Reports directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw report JSON")

	return cmd
}
