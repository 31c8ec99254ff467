package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/memory"
)

// newRecallCmd creates the "gloop recall" subcommand: full-text search over
// stored findings.
func newRecallCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search persistent memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			store, err := memory.Open(paths.MemoryDB())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			results, err := store.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, r := range results {
				tags := ""
				if len(r.Tags) > 0 {
					tags = " [" + strings.Join(r.Tags, ",") + "]"
				}
				fmt.Fprintf(out, "%6.2f  %s%s\n", r.Score, r.Content, tags)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results")
	return cmd
}
