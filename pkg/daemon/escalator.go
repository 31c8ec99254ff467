package daemon

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gloop/pkg/assistant"
	"gloop/pkg/dispatch"
	"gloop/pkg/health"
	"gloop/pkg/hub"
)

// escalator feeds tasks to the heavy assistant and handles the aftermath:
// health counters, a hub note other instances can read, and an optional
// spoken summary.
type escalator struct {
	runner *assistant.Runner
	hub    *hub.Hub
	voice  *voice
	rec    *health.Recorder
	logger *logrus.Logger
}

// Escalate implements dispatch.Escalator: model-initiated CLAUDE: commands
// pull accumulated hub context and speak the outcome.
func (e *escalator) Escalate(task string) {
	e.submit(task, e.hub.Context(), true)
}

func (e *escalator) submit(task, context string, speakResult bool) {
	e.rec.CLISpawned()
	e.logger.WithField("task", clip(task, 50)).Info("assistant spawn queued")

	e.runner.Submit(assistant.Task{
		Prompt: assistant.Prompt(task, context),
		Done: func(res assistant.Result) {
			switch res.Status {
			case assistant.StatusOK:
				e.rec.CLISucceeded()
			default:
				e.rec.CLIFailed()
			}
			e.logger.WithFields(logrus.Fields{
				"status":   res.Status,
				"duration": res.Duration.Round(time.Second),
			}).Info("assistant done")

			body := fmt.Sprintf("Task: %s\n\nStatus: %s (%s)\n\nResult: %s",
				task, res.Status, res.Duration.Round(time.Second), clip(res.Output, 1000))
			if _, err := e.hub.WriteNote("Task Result", body, "cli"); err != nil {
				e.logger.WithError(err).Warn("hub note failed")
			}

			if speakResult && res.Status == assistant.StatusOK {
				_ = e.voice.Speak(dispatch.Sanitize("Done: " + clip(res.Output, 100)))
			}
		},
	})
}
