package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRoutesByPrefixAndSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tasks := &recorder{}
	heavy := &recorder{}
	w.Handle("claude_", ".json", heavy.handle)
	w.Handle("task_", ".json", tasks.handle)
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	writeFile(t, dir, "claude_20260101_1.json")
	writeFile(t, dir, "task_20260101_1.json")
	writeFile(t, dir, "unrelated.txt")

	if !waitFor(t, func() bool { return heavy.count() == 1 && tasks.count() == 1 }) {
		t.Fatalf("routing incomplete: heavy=%d tasks=%d", heavy.count(), tasks.count())
	}
	// The unmatched file must never arrive.
	time.Sleep(50 * time.Millisecond)
	if heavy.count() != 1 || tasks.count() != 1 {
		t.Errorf("unexpected deliveries: heavy=%d tasks=%d", heavy.count(), tasks.count())
	}
}

func TestDebounceCollapsesEventBursts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &recorder{}
	w.Handle("task_", ".json", rec.handle)
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	path := filepath.Join(dir, "task_burst.json")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if !waitFor(t, func() bool { return rec.count() >= 1 }) {
		t.Fatal("no delivery for burst")
	}
	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("burst delivered %d times, want 1", got)
	}
}

func TestDotFilesIgnored(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &recorder{}
	w.Handle("", ".json", rec.handle)
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	writeFile(t, dir, ".tmp-task_1.json")
	writeFile(t, dir, "task_real.json")

	if !waitFor(t, func() bool { return rec.count() == 1 }) {
		t.Fatalf("deliveries = %d, want 1", rec.count())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if filepath.Base(rec.paths[0]) != "task_real.json" {
		t.Errorf("delivered %s, want task_real.json", rec.paths[0])
	}
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
