package daemon

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"gloop/pkg/lockfile"
	"gloop/pkg/mailbox"
)

const discordPersona = `You are Gloop, responding to a Discord DM from Rev.
Be helpful, conversational, and genuine. Keep responses concise (1-3 sentences typically).
This is a real conversation, not a task - respond naturally.`

// checkInbox sweeps the inbox once: heavy assistant tasks first, then
// regular tasks, then Discord relays. Runs both on the 1-minute poll and
// behind watcher wakeups; the in-flight claim makes the overlap safe.
func (d *Daemon) checkInbox(ctx context.Context) {
	d.sweep(mailbox.PrefixCLITask, func(name string) { d.processCLITask(name) })
	d.sweep(mailbox.PrefixTask, func(name string) { d.processTask(ctx, name) })
	d.sweep(mailbox.PrefixDiscord, func(name string) { d.processDiscord(ctx, name) })
}

func (d *Daemon) sweep(prefix string, process func(name string)) {
	names, err := d.inbox.Pending(prefix)
	if err != nil {
		d.logger.WithError(err).Warn("inbox scan failed")
		return
	}
	for _, name := range names {
		process(name)
	}
}

// processCLITask hands a claude_*.json task straight to the assistant. The
// file is committed at submit: the runner's queue owns the task from there.
func (d *Daemon) processCLITask(name string) {
	if !d.claim(name) {
		return
	}
	defer d.release(name)
	msg := d.peek(name)
	if msg == nil {
		return
	}
	taskContext := msg.Context
	if taskContext == "" {
		taskContext = d.hub.Context()
	}
	d.heavy.submit(msg.Task, taskContext, msg.ShouldSpeak())
	d.finish(name)
}

// processTask routes a task_*.json: a CLAUDE: prefix escalates to the
// assistant, anything else goes through a think cycle. The file is deleted
// only after the handler succeeds — a busy cycle or a failed generation
// call leaves it in place for the next poll to retry.
func (d *Daemon) processTask(ctx context.Context, name string) {
	if !d.claim(name) {
		return
	}
	defer d.release(name)
	msg := d.peek(name)
	if msg == nil {
		return
	}
	prompt := strings.TrimSpace(msg.Prompt)
	if len(prompt) >= 7 && strings.EqualFold(prompt[:7], "CLAUDE:") {
		d.heavy.submit(strings.TrimSpace(prompt[7:]), d.hub.Context(), false)
		d.finish(name)
		return
	}
	if err := d.cycle.Task(ctx, prompt); err != nil {
		d.logger.WithError(err).WithField("file", name).Warn("task cycle failed, message kept for retry")
		return
	}
	d.finish(name)
}

// processDiscord answers a relayed DM with the cheap model and drops the
// reply in the outbox for the relay bot. An Ask failure keeps the message
// for the next sweep.
func (d *Daemon) processDiscord(ctx context.Context, name string) {
	if !d.claim(name) {
		return
	}
	defer d.release(name)
	msg := d.peek(name)
	if msg == nil {
		return
	}
	d.logger.WithField("from", msg.From).Info("discord message")

	response, err := d.model.Ask(ctx, msg.Message, discordPersona)
	if err != nil {
		d.rec.RequestFailed()
		d.logger.WithError(err).WithField("file", name).Warn("discord reply failed, message kept for retry")
		return
	}
	d.rec.RequestSucceeded()

	if msg.ChannelID != "" {
		_, err = d.outbox.Put(mailbox.PrefixDiscordResponse, &mailbox.Message{
			ChannelID: msg.ChannelID,
			Message:   response,
			CreatedAt: time.Now().Format(time.RFC3339),
		})
		if err != nil {
			d.logger.WithError(err).Warn("discord response write failed, message kept for retry")
			return
		}
	}
	d.finish(name)
}

// claim marks an inbox file as being processed so the watcher wakeup and
// the polling sweep cannot both run its handler. Returns false when another
// path already holds it.
func (d *Daemon) claim(name string) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if d.inflight[name] {
		return false
	}
	d.inflight[name] = true
	return true
}

func (d *Daemon) release(name string) {
	d.inflightMu.Lock()
	delete(d.inflight, name)
	d.inflightMu.Unlock()
}

// peek reads an inbox message without consuming it, tolerating the file
// having already been committed by an earlier sweep.
func (d *Daemon) peek(name string) *mailbox.Message {
	msg, err := d.inbox.Peek(name)
	if err != nil {
		if !errors.Is(err, mailbox.ErrNotFound) {
			d.logger.WithError(err).WithField("file", name).Warn("inbox read failed")
		}
		return nil
	}
	return msg
}

// finish commits a fully processed message: delete-on-success.
func (d *Daemon) finish(name string) {
	if err := d.inbox.Remove(name); err != nil {
		d.logger.WithError(err).WithField("file", name).Warn("inbox commit failed")
	}
}

// smartTick is the gated escalation: the cost gate decides whether a
// continuation tick is worth an assistant spawn.
func (d *Daemon) smartTick(ctx context.Context) {
	decision := d.gate.ShouldEscalate(ctx)
	if !decision.Spawn {
		d.rec.TickSkipped()
		d.logger.WithField("reason", decision.Reason).Debug("tick skipped")
		return
	}
	d.rec.TickSent()
	d.logger.WithField("reason", decision.Reason).Info("tick sent")

	summary := "No tasks in progress - check shared state for pending work"
	if state, err := d.hub.ReadState(); err == nil {
		var lines []string
		for _, p := range state.Priorities {
			if strings.EqualFold(p.Status, "in_progress") {
				assigned := p.AssignedTo
				if assigned == "" {
					assigned = "unassigned"
				}
				lines = append(lines, fmt.Sprintf("- %s (assigned: %s)", p.Task, assigned))
			}
		}
		if len(lines) > 0 {
			summary = strings.Join(lines, "\n")
		}
	}

	task := fmt.Sprintf("TICK - 2 minutes passed. Check what you were working on and continue. Current in-progress tasks:\n%s\n\nRead the latest hub notes, pick up where you left off, and make progress. Update the shared state with your status.", summary)
	noSpeak := false
	_, err := d.inbox.Put(mailbox.PrefixCLITask, &mailbox.Message{
		Task:        task,
		Context:     "This is an automatic tick to keep you active. Don't start from scratch - continue your work.",
		SpeakResult: &noSpeak,
		Priority:    "normal",
		CreatedAt:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		d.logger.WithError(err).Warn("tick drop failed")
	}
}

// shellWatchdog restarts the companion shell when its lock goes stale, up
// to the per-session spawn cap.
func (d *Daemon) shellWatchdog() {
	if _, alive := lockfile.HolderPID(d.paths.ShellLock()); alive {
		return
	}
	if d.rec.ShellSpawnCount() >= d.cfg.MaxShellSpawns {
		d.logger.WithField("limit", d.cfg.MaxShellSpawns).Warn("shell spawn limit reached, not restarting")
		return
	}

	cmd := exec.Command(d.cfg.ShellCommand[0], d.cfg.ShellCommand[1:]...) //nolint:gosec // operator-configured command
	cmd.Dir = d.cfg.Home
	if err := cmd.Start(); err != nil {
		d.logger.WithError(err).Warn("shell restart failed")
		return
	}
	go func() { _ = cmd.Wait() }()

	d.rec.ShellSpawned()
	d.logger.WithField("spawn", d.rec.ShellSpawnCount()).Info("shell restarted")
}

// awarenessTick refreshes the situational snapshot other instances read.
func (d *Daemon) awarenessTick(ctx context.Context) {
	music := ""
	if d.media != nil {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if np, err := d.media.NowPlaying(ctx); err == nil && np != "Nothing playing" {
			music = np
		}
	}
	if err := d.hub.WriteAwareness(d.paths.Awareness(), music, d.voice.recentTTS()); err != nil {
		d.logger.WithError(err).Warn("awareness write failed")
	}
}
