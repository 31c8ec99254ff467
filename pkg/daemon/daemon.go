// Package daemon is the composition root: it wires the mailbox, memory,
// model client, dispatcher, think cycle, cost gate, assistant runner, and
// watcher together and runs the schedule. One instance per base directory,
// enforced by a PID lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"gloop/pkg/assistant"
	"gloop/pkg/costgate"
	"gloop/pkg/dispatch"
	"gloop/pkg/emby"
	"gloop/pkg/health"
	"gloop/pkg/hub"
	"gloop/pkg/lockfile"
	"gloop/pkg/mailbox"
	"gloop/pkg/memory"
	"gloop/pkg/pollinations"
	"gloop/pkg/think"
	"gloop/pkg/watcher"
)

// ErrAlreadyRunning re-exports the lock sentinel so callers treat a
// duplicate daemon as a clean no-op.
var ErrAlreadyRunning = lockfile.ErrAlreadyRunning

// Daemon owns all long-lived components.
type Daemon struct {
	cfg    Config
	paths  Paths
	logger *logrus.Logger

	rec        *health.Recorder
	store      *memory.Store
	hub        *hub.Hub
	inbox      *mailbox.Queue
	outbox     *mailbox.Queue
	shellInbox *mailbox.Queue
	model      *pollinations.Client
	media      *emby.Client
	runner     *assistant.Runner
	voice      *voice
	heavy      *escalator
	disp       *dispatch.Dispatcher
	cycle      *think.Cycle
	gate       *costgate.Gate

	// inflight guards each inbox file while a handler runs: the watcher
	// wakeup and the polling sweep both feed the same process functions,
	// and a message now stays on disk until its handler succeeds.
	inflightMu sync.Mutex
	inflight   map[string]bool

	resting bool
}

// NewLogger builds the daemon logger: text-formatted, mirrored to stdout
// and the append-only heartbeat log.
func NewLogger(paths Paths) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	f, err := os.OpenFile(paths.HeartbeatLog(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // log file
	if err != nil {
		return nil, fmt.Errorf("daemon: open heartbeat log: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, nil
}

// New wires the daemon's components for a base directory.
func New(cfg Config, logger *logrus.Logger) (*Daemon, error) {
	paths := Paths{Home: cfg.Home}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	store, err := memory.Open(paths.MemoryDB())
	if err != nil {
		return nil, fmt.Errorf("daemon: open memory: %w", err)
	}
	h, err := hub.Open(paths.HubDir())
	if err != nil {
		return nil, err
	}
	inbox, err := mailbox.Open(paths.Inbox())
	if err != nil {
		return nil, err
	}
	outbox, err := mailbox.Open(paths.Outbox())
	if err != nil {
		return nil, err
	}
	shellInbox, err := mailbox.Open(paths.ShellInbox())
	if err != nil {
		return nil, err
	}

	rec := health.NewRecorder()

	var modelOpts []pollinations.Option
	if cfg.PollinationsURL != "" {
		modelOpts = append(modelOpts, pollinations.WithURL(cfg.PollinationsURL))
	}
	if cfg.Model != "" {
		modelOpts = append(modelOpts, pollinations.WithModel(cfg.Model))
	}
	model := pollinations.New(modelOpts...)

	var media *emby.Client
	if cfg.EmbyURL != "" {
		media = emby.New(cfg.EmbyURL, cfg.EmbyAPIKey)
	}

	runner := assistant.NewRunner(nil, cfg.AssistantWorkdir, assistant.DefaultTimeout)
	v := &voice{outbox: outbox, shell: shellInbox, rec: rec, logger: logger}
	heavy := &escalator{runner: runner, hub: h, voice: v, rec: rec, logger: logger}
	notes := &vault{dir: paths.ThoughtsDir(), logger: logger}

	var mediaDep dispatch.Media
	if media != nil {
		mediaDep = media
	}
	disp := dispatch.New(store, v, notes, mediaDep, heavy, rec, logger)
	cycle := think.New(model, disp, store, rec, paths.ReflectionLog(), logger)
	gate := costgate.New(h, model)

	return &Daemon{
		cfg:        cfg,
		paths:      paths,
		logger:     logger,
		rec:        rec,
		store:      store,
		hub:        h,
		inbox:      inbox,
		outbox:     outbox,
		shellInbox: shellInbox,
		model:      model,
		media:      media,
		runner:     runner,
		voice:      v,
		heavy:      heavy,
		disp:       disp,
		cycle:      cycle,
		gate:       gate,
		inflight:   make(map[string]bool),
	}, nil
}

// Run acquires the instance lock and runs until ctx is cancelled. Returns
// ErrAlreadyRunning when another daemon holds the lock.
func (d *Daemon) Run(ctx context.Context) error {
	lock, err := lockfile.Acquire(d.paths.LockFile())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	defer func() { _ = d.store.Close() }()

	d.logger.Info("daemon starting")
	if _, err := d.store.AddFinding(ctx,
		fmt.Sprintf("Daemon started at %s with memory system active", time.Now().Format(time.RFC3339)),
		[]string{"daemon", "startup", "lifecycle"}); err != nil {
		d.logger.WithError(err).Warn("startup finding failed")
	}

	if err := d.startWatcher(ctx); err != nil {
		return err
	}

	scheduler, err := d.startSchedule(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = scheduler.Shutdown() }()

	// First sweep immediately rather than waiting a minute.
	d.checkInbox(ctx)
	d.logger.Info("watching inbox (watcher + polling backup), heartbeat every 15 min")

	// Rest state is re-checked every second so a WAKE takes effect
	// promptly.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			d.logger.Info("HEALTH: " + d.rec.LogLine())
			return nil
		case <-ticker.C:
			_, resting := RestUntil(d.paths.RestFile())
			if resting != d.resting {
				d.resting = resting
				if resting {
					d.logger.Info("rest mode on, scheduled ticks suppressed")
				} else {
					d.logger.Info("rest mode off")
				}
			}
		}
	}
}

// startWatcher wires filesystem wakeups for the inbox and hub. The watcher
// is a latency optimization on top of the polling sweeps, so its handlers
// re-use the same claim-then-process path.
func (d *Daemon) startWatcher(ctx context.Context) error {
	w, err := watcher.New(d.logger)
	if err != nil {
		return err
	}
	w.Handle(mailbox.PrefixCLITask, ".json", func(path string) {
		d.logger.WithField("file", filepath.Base(path)).Info("watcher: assistant task")
		d.processCLITask(filepath.Base(path))
	})
	w.Handle(mailbox.PrefixTask, ".json", func(path string) {
		d.processTask(ctx, filepath.Base(path))
	})
	w.Handle(mailbox.PrefixDiscord, ".json", func(path string) {
		d.processDiscord(ctx, filepath.Base(path))
	})
	w.Handle("", ".md", func(path string) {
		d.logger.WithField("file", filepath.Base(path)).Debug("hub note")
	})

	if err := w.Watch(d.paths.Inbox()); err != nil {
		return err
	}
	if err := w.Watch(d.paths.HubDir()); err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.WithError(err).Warn("watcher stopped")
		}
	}()
	return nil
}

// startSchedule registers the periodic jobs. Generative ticks go through
// the rest gate; plumbing jobs (inbox, health, awareness, watchdog) keep
// running while resting.
func (d *Daemon) startSchedule(ctx context.Context) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("daemon: scheduler: %w", err)
	}

	jobs := []struct {
		name  string
		every time.Duration
		gated bool
		fn    func()
	}{
		{"inbox", time.Minute, false, func() { d.checkInbox(ctx) }},
		{"smart-tick", 2 * time.Minute, true, func() { d.smartTick(ctx) }},
		{"shell-watchdog", 5 * time.Minute, false, d.shellWatchdog},
		{"reflection", 5 * time.Minute, true, func() {
			if err := d.cycle.Reflect(ctx); err != nil {
				d.logger.WithError(err).Warn("reflection failed")
			}
		}},
		{"heartbeat", 15 * time.Minute, true, func() {
			if err := d.cycle.Heartbeat(ctx); err != nil && !errors.Is(err, think.ErrBusy) {
				d.logger.WithError(err).Warn("heartbeat failed")
			}
		}},
		{"health-log", 30 * time.Minute, false, func() { d.logger.Info("HEALTH: " + d.rec.LogLine()) }},
		{"health-export", 30 * time.Second, false, func() {
			if err := d.rec.Export(d.paths.HealthJSON()); err != nil {
				d.logger.WithError(err).Warn("health export failed")
			}
		}},
		{"awareness", 30 * time.Second, false, func() { d.awarenessTick(ctx) }},
	}

	for _, job := range jobs {
		fn := job.fn
		if job.gated {
			fn = d.gated(fn)
		}
		if _, err := scheduler.NewJob(
			gocron.DurationJob(job.every),
			gocron.NewTask(fn),
			gocron.WithName(job.name),
		); err != nil {
			return nil, fmt.Errorf("daemon: schedule %s: %w", job.name, err)
		}
	}

	scheduler.Start()
	return scheduler, nil
}

// gated suppresses a job while resting.
func (d *Daemon) gated(fn func()) func() {
	return func() {
		if _, resting := RestUntil(d.paths.RestFile()); resting {
			return
		}
		fn()
	}
}
