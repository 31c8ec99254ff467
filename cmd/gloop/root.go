package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gloop/internal/version"
	"gloop/pkg/daemon"
)

// newRootCmd creates the root gloop command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gloop",
		Short:         "Gloop autonomous assistant daemon",
		Long:          "gloop runs the autonomous assistant daemon and talks to it\nthrough its filesystem mailbox.",
		Version:       fmt.Sprintf("gloop %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().String("home", daemon.DefaultHome(), "base directory for daemon state")

	cmd.AddCommand(
		newDaemonCmd(),
		newStatusCmd(),
		newStopCmd(),
		newTaskCmd(),
		newSayCmd(),
		newRememberCmd(),
		newRecallCmd(),
		newHealthCmd(),
	)

	return cmd
}

// homeDir resolves the --home flag.
func homeDir(cmd *cobra.Command) string {
	home, err := cmd.Flags().GetString("home")
	if err != nil || home == "" {
		return daemon.DefaultHome()
	}
	return home
}
