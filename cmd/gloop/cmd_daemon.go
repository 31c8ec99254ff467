package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
)

// newDaemonCmd creates the "gloop daemon" subcommand: the foreground daemon
// process.
func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the daemon in the foreground",
		Long:  "Runs the dispatch loop, mailbox watcher, and scheduled ticks\nuntil interrupted. Exits cleanly if a daemon is already running.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := homeDir(cmd)
			cfg, err := daemon.LoadConfig(home)
			if err != nil {
				return err
			}

			paths := daemon.Paths{Home: home}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			logger, err := daemon.NewLogger(paths)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Run(ctx); err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "daemon already running - exiting")
					return nil
				}
				return err
			}
			return nil
		},
	}
}
