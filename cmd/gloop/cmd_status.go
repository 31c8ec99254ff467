package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/lockfile"
)

// newStatusCmd creates the "gloop status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and shell status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			out := cmd.OutOrStdout()

			if pid, alive := lockfile.HolderPID(paths.LockFile()); alive {
				fmt.Fprintf(out, "daemon: running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(out, "daemon: not running")
			}

			if pid, alive := lockfile.HolderPID(paths.ShellLock()); alive {
				fmt.Fprintf(out, "shell:  running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(out, "shell:  not running")
			}

			if until, resting := daemon.RestUntil(paths.RestFile()); resting {
				fmt.Fprintf(out, "rest:   until %s\n", until.Format(time.Kitchen))
			}
			return nil
		},
	}
}
