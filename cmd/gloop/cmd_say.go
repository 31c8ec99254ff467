package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gloop/pkg/daemon"
	"gloop/pkg/dispatch"
	"gloop/pkg/mailbox"
)

// newSayCmd creates the "gloop say" subcommand: queue a spoken message.
func newSayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <message>",
		Short: "Queue a message for the voice channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := daemon.Paths{Home: homeDir(cmd)}
			outbox, err := mailbox.Open(paths.Outbox())
			if err != nil {
				return err
			}

			text := dispatch.Sanitize(strings.Join(args, " "))
			name, err := outbox.Put(mailbox.PrefixSpeech, &mailbox.Message{
				To:        "rev",
				Message:   text,
				Voice:     "Gloop",
				PlayLocal: true,
				CreatedAt: time.Now().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", name)
			return nil
		},
	}
}
