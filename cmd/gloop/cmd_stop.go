package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/lockfile"
)

// newStopCmd creates the "gloop stop" subcommand: SIGTERM to the daemon
// recorded in the lock file.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			pid, alive := lockfile.HolderPID(paths.LockFile())
			if !alive {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
				return nil
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find daemon process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon %d: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to daemon (pid %d)\n", pid)
			return nil
		},
	}
}
