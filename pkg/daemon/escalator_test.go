package daemon

import (
	"context"
	"strings"
	"testing"
	"time"

	"gloop/pkg/assistant"
	"gloop/pkg/health"
	"gloop/pkg/hub"
	"gloop/pkg/mailbox"
)

type stubProcess struct{ out string }

func (p *stubProcess) Wait() error    { return nil }
func (p *stubProcess) Kill() error    { return nil }
func (p *stubProcess) Output() string { return p.out }

type stubSpawner struct{ out string }

func (s *stubSpawner) Spawn(_ context.Context, _, _ string) (assistant.Process, error) {
	return &stubProcess{out: s.out}, nil
}

func newTestEscalator(t *testing.T, output string) (*escalator, *hub.Hub, *mailbox.Queue, *health.Recorder) {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{Home: dir}
	if err := paths.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	coord, err := hub.Open(paths.HubDir())
	if err != nil {
		t.Fatal(err)
	}
	outbox, err := mailbox.Open(paths.Outbox())
	if err != nil {
		t.Fatal(err)
	}
	shell, err := mailbox.Open(paths.ShellInbox())
	if err != nil {
		t.Fatal(err)
	}

	logger := quietLogger()
	rec := health.NewRecorder()
	v := &voice{outbox: outbox, shell: shell, rec: rec, logger: logger}
	runner := assistant.NewRunner(&stubSpawner{out: output}, dir, time.Minute)
	return &escalator{runner: runner, hub: coord, voice: v, rec: rec, logger: logger}, coord, outbox, rec
}

func TestEscalateWritesHubNoteAndSpeaks(t *testing.T) {
	t.Parallel()

	esc, coord, outbox, rec := newTestEscalator(t, "did the thing")
	esc.Escalate("do X")

	notes := waitForNote(t, coord)
	if len(notes) != 1 {
		t.Fatalf("hub has %d notes, want 1", len(notes))
	}
	body := notes[0].Content
	if !strings.Contains(body, "Task: do X") || !strings.Contains(body, "Status: ok") {
		t.Errorf("note body = %q", body)
	}
	if !strings.Contains(body, "did the thing") {
		t.Errorf("note body missing result: %q", body)
	}

	speech, err := outbox.Pending(mailbox.PrefixSpeech)
	if err != nil {
		t.Fatal(err)
	}
	if len(speech) != 1 {
		t.Fatalf("outbox has %d speech messages, want 1", len(speech))
	}
	msg, err := outbox.Take(speech[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg.Message, "Done: did the thing") {
		t.Errorf("spoken = %q", msg.Message)
	}

	raw := rec.Snapshot().Raw
	if raw.CLISpawns != 1 || raw.CLISuccesses != 1 || raw.CLIFailures != 0 {
		t.Errorf("counters = %+v", raw)
	}
}

func TestSubmitWithoutSpeakStaysSilent(t *testing.T) {
	t.Parallel()

	esc, coord, outbox, _ := newTestEscalator(t, "quiet result")
	esc.submit("background chore", "", false)

	waitForNote(t, coord)

	speech, err := outbox.Pending(mailbox.PrefixSpeech)
	if err != nil {
		t.Fatal(err)
	}
	if len(speech) != 0 {
		t.Errorf("outbox has %d speech messages, want 0", len(speech))
	}
}

// waitForNote polls the hub until the assistant's completion note lands.
func waitForNote(t *testing.T, coord *hub.Hub) []hub.Note {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		notes, err := coord.Latest(5)
		if err != nil {
			t.Fatal(err)
		}
		if len(notes) > 0 {
			return notes
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for hub note")
	return nil
}
