package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/health"
)

// newHealthCmd creates the "gloop health" subcommand: print the last
// exported health report.
func newHealthCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the daemon's last health report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			data, err := os.ReadFile(paths.HealthJSON())
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "no health report yet - is the daemon running?")
				return nil
			}
			if err != nil {
				return err
			}

			var report health.Report
			if err := json.Unmarshal(data, &report); err != nil {
				return fmt.Errorf("parse health report: %w", err)
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, string(data))
				return nil
			}
			s := report.Summary
			fmt.Fprintf(out, "exported:  %s\n", report.Timestamp)
			fmt.Fprintf(out, "uptime:    %s\n", s.Uptime)
			fmt.Fprintf(out, "api:       %s success\n", s.APISuccessRate)
			fmt.Fprintf(out, "assistant: %s success (%d spawns)\n", s.CLISuccessRate, report.Raw.CLISpawns)
			fmt.Fprintf(out, "ticks:     %s skipped\n", s.TickEfficiency)
			fmt.Fprintf(out, "memories:  %d stored, %d heartbeats\n", s.MemoriesStored, s.Heartbeats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw JSON report")
	return cmd
}
