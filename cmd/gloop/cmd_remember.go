package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/memory"
)

// newRememberCmd creates the "gloop remember" subcommand: store a finding
// directly in the memory database.
func newRememberCmd() *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "remember <fact>",
		Short: "Store a fact in persistent memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			store, err := memory.Open(paths.MemoryDB())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(tags) == 0 {
				tags = []string{"manual"}
			}
			id, err := store.AddFinding(cmd.Context(), strings.Join(args, " "), tags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored finding %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags for the finding (comma separated)")
	return cmd
}
