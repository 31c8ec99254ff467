// Package watcher delivers filesystem events for the mailbox directories.
// fsnotify gives low-latency wakeups; the polling sweeps in the daemon remain
// the source of truth, so a missed event here is never fatal. A short TTL
// cache collapses the create/write bursts editors and atomic renames produce
// into one delivery per file.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// debounceTTL is how long repeat events for the same path are swallowed.
const debounceTTL = 5 * time.Second

// Handler receives the full path of a settled file.
type Handler func(path string)

type route struct {
	prefix string
	suffix string
	fn     Handler
}

// Watcher multiplexes fsnotify events to prefix/suffix-matched handlers.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce *cache.Cache
	logger   *logrus.Logger
	routes   []route
}

// New creates a Watcher.
func New(logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		debounce: cache.New(debounceTTL, 2*debounceTTL),
		logger:   logger,
	}, nil
}

// Watch adds a directory to the watch set.
func (w *Watcher) Watch(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", dir, err)
	}
	return nil
}

// Handle registers a handler for files whose base name matches both prefix
// and suffix. Registration order is match order; first match wins. Not safe
// to call once Run has started.
func (w *Watcher) Handle(prefix, suffix string, fn Handler) {
	w.routes = append(w.routes, route{prefix: prefix, suffix: suffix, fn: fn})
}

// Run pumps events until ctx is done. Handlers run on the event goroutine;
// they are expected to be quick (enqueue, not process).
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			w.deliver(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) deliver(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return // temp file from an atomic write
	}
	// Add fails when the key is already present, which is exactly the
	// debounce: only the first event in the TTL window goes through.
	if err := w.debounce.Add(path, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}
	for _, r := range w.routes {
		if strings.HasPrefix(name, r.prefix) && strings.HasSuffix(name, r.suffix) {
			r.fn(path)
			return
		}
	}
}
