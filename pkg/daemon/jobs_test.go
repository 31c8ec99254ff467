package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gloop/pkg/mailbox"
)

// modelServer is a stand-in generation endpoint. While fail is set it
// returns 500; otherwise it answers every prompt with reply.
type modelServer struct {
	*httptest.Server
	fail  atomic.Bool
	reply atomic.Value // string
}

func newModelServer(t *testing.T) *modelServer {
	t.Helper()
	s := &modelServer{}
	s.reply.Store("SILENCE")
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if s.fail.Load() {
			http.Error(w, "upstream unhappy", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": s.reply.Load()}},
			},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDaemon(t *testing.T, modelURL string) *Daemon {
	t.Helper()
	d, err := New(Config{Home: t.TempDir(), PollinationsURL: modelURL}, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.store.Close() })
	return d
}

func TestTaskKeptWhenModelFails(t *testing.T) {
	t.Parallel()

	srv := newModelServer(t)
	srv.fail.Store(true)
	d := newTestDaemon(t, srv.URL)

	name, err := d.inbox.Put(mailbox.PrefixTask, &mailbox.Message{Prompt: "summarize the day"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	d.processTask(context.Background(), name)

	pending, err := d.inbox.Pending(mailbox.PrefixTask)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != name {
		t.Fatalf("task not kept after failed cycle: pending = %v", pending)
	}

	// The next sweep retries the same file and, with the API back, commits it.
	srv.fail.Store(false)
	d.processTask(context.Background(), name)
	pending, err = d.inbox.Pending(mailbox.PrefixTask)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("task still pending after successful cycle: %v", pending)
	}
}

func TestTaskKeptWhileCycleBusy(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var once atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if once.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "SILENCE"}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	d := newTestDaemon(t, srv.URL)

	name, err := d.inbox.Put(mailbox.PrefixTask, &mailbox.Message{Prompt: "while busy"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Hold the cycle lock with a heartbeat parked on the model call.
	done := make(chan error, 1)
	go func() { done <- d.cycle.Heartbeat(context.Background()) }()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat never reached the model")
	}

	d.processTask(context.Background(), name)

	pending, err := d.inbox.Pending(mailbox.PrefixTask)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != name {
		t.Errorf("task lost while cycle was busy: pending = %v", pending)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	// With the lock free the retry consumes the task.
	d.processTask(context.Background(), name)
	pending, err = d.inbox.Pending(mailbox.PrefixTask)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("task still pending after retry: %v", pending)
	}
}

func TestDiscordKeptWhenModelFails(t *testing.T) {
	t.Parallel()

	srv := newModelServer(t)
	srv.fail.Store(true)
	srv.reply.Store("hi rev")
	d := newTestDaemon(t, srv.URL)

	name, err := d.inbox.Put(mailbox.PrefixDiscord, &mailbox.Message{
		From:      "rev",
		Message:   "you there?",
		ChannelID: "chan-1",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	d.processDiscord(context.Background(), name)

	pending, err := d.inbox.Pending(mailbox.PrefixDiscord)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("discord message not kept after failed reply: pending = %v", pending)
	}
	if replies, _ := d.outbox.Pending(mailbox.PrefixDiscordResponse); len(replies) != 0 {
		t.Errorf("reply written despite failure: %v", replies)
	}

	srv.fail.Store(false)
	d.processDiscord(context.Background(), name)

	pending, err = d.inbox.Pending(mailbox.PrefixDiscord)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("discord message still pending after reply: %v", pending)
	}
	replies, err := d.outbox.Pending(mailbox.PrefixDiscordResponse)
	if err != nil || len(replies) != 1 {
		t.Fatalf("replies = %v, err %v", replies, err)
	}
	reply, err := d.outbox.Take(replies[0])
	if err != nil {
		t.Fatalf("take reply: %v", err)
	}
	if reply.ChannelID != "chan-1" || reply.Message != "hi rev" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestClaimBlocksSecondConsumer(t *testing.T) {
	t.Parallel()

	d := newTestDaemon(t, "http://unused.invalid")

	if !d.claim("task_x.json") {
		t.Fatal("first claim refused")
	}
	if d.claim("task_x.json") {
		t.Error("second claim of an in-flight file succeeded")
	}
	if !d.claim("task_y.json") {
		t.Error("claim of a different file refused")
	}
	d.release("task_x.json")
	if !d.claim("task_x.json") {
		t.Error("claim after release refused")
	}
}
