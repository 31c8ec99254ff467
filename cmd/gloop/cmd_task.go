package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/mailbox"
)

// newTaskCmd creates the "gloop task" subcommand: drop a task in the
// daemon's inbox.
func newTaskCmd() *cobra.Command {
	var heavy bool
	var taskContext string
	var noSpeak bool

	cmd := &cobra.Command{
		Use:   "task <prompt>",
		Short: "Drop a task in the daemon inbox",
		Long:  "Writes a task message the running daemon will pick up.\nWith --heavy the task goes straight to the assistant subprocess.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			inbox, err := mailbox.Open(paths.Inbox())
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			msg := &mailbox.Message{CreatedAt: time.Now().Format(time.RFC3339)}
			prefix := mailbox.PrefixTask
			if heavy {
				prefix = mailbox.PrefixCLITask
				msg.Task = text
				msg.Context = taskContext
				if noSpeak {
					speak := false
					msg.SpeakResult = &speak
				}
			} else {
				msg.Prompt = text
			}

			name, err := inbox.Put(prefix, msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&heavy, "heavy", false, "send to the assistant subprocess instead of the cheap model")
	cmd.Flags().StringVar(&taskContext, "context", "", "extra context for a heavy task")
	cmd.Flags().BoolVar(&noSpeak, "no-speak", false, "do not speak the result of a heavy task")
	return cmd
}
