package costgate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gloop/pkg/hub"
)

// countingAsker fails the test if the gate reaches the network when an
// earlier check should have refused.
type countingAsker struct {
	answer string
	err    error
	calls  int
}

func (a *countingAsker) Ask(_ context.Context, prompt, system string) (string, error) {
	a.calls++
	if !strings.Contains(system, "YES or NO") {
		return "", errors.New("missing strict instruction")
	}
	_ = prompt
	return a.answer, a.err
}

func openHub(t *testing.T) *hub.Hub {
	t.Helper()
	h, err := hub.Open(t.TempDir())
	if err != nil {
		t.Fatalf("hub.Open: %v", err)
	}
	return h
}

func withInProgress(t *testing.T, h *hub.Hub) {
	t.Helper()
	err := h.WriteState(hub.SharedState{
		Priorities: []hub.Priority{
			{Task: "organize photo library backups from the NAS", Status: "in_progress"},
			{Task: "done thing", Status: "done"},
		},
	}, "test")
	if err != nil {
		t.Fatalf("WriteState: %v", err)
	}
}

func TestRefusesWithoutInProgressWorkBeforeNetwork(t *testing.T) {
	t.Parallel()

	h := openHub(t)
	asker := &countingAsker{answer: "YES"}
	d := New(h, asker).ShouldEscalate(context.Background())
	if d.Spawn {
		t.Error("gate approved with no in-progress work")
	}
	if asker.calls != 0 {
		t.Errorf("model consulted %d times, want 0", asker.calls)
	}
}

func TestRefusesOnRecentAssistantActivityBeforeNetwork(t *testing.T) {
	t.Parallel()

	h := openHub(t)
	withInProgress(t, h)
	if _, err := h.WriteNote("summary", "just finished", "cli"); err != nil {
		t.Fatalf("WriteNote: %v", err)
	}

	asker := &countingAsker{answer: "YES"}
	d := New(h, asker).ShouldEscalate(context.Background())
	if d.Spawn {
		t.Error("gate approved despite recent assistant note")
	}
	if asker.calls != 0 {
		t.Errorf("model consulted %d times, want 0", asker.calls)
	}
}

func TestModelYesApproves(t *testing.T) {
	t.Parallel()

	h := openHub(t)
	withInProgress(t, h)
	asker := &countingAsker{answer: "yes, go ahead"}
	d := New(h, asker).ShouldEscalate(context.Background())
	if !d.Spawn {
		t.Errorf("gate refused on model YES: %s", d.Reason)
	}
	if asker.calls != 1 {
		t.Errorf("model consulted %d times, want 1", asker.calls)
	}
}

func TestModelNoRefuses(t *testing.T) {
	t.Parallel()

	h := openHub(t)
	withInProgress(t, h)
	d := New(h, &countingAsker{answer: "NO\nnothing urgent"}).ShouldEscalate(context.Background())
	if d.Spawn {
		t.Error("gate approved on model NO")
	}
	if !strings.Contains(d.Reason, "NO") {
		t.Errorf("reason = %q, want model answer included", d.Reason)
	}
}

func TestModelErrorRefuses(t *testing.T) {
	t.Parallel()

	h := openHub(t)
	withInProgress(t, h)
	d := New(h, &countingAsker{err: errors.New("503")}).ShouldEscalate(context.Background())
	if d.Spawn {
		t.Error("gate approved despite model error, default must refuse")
	}
}

func TestTaskTruncationInPrompt(t *testing.T) {
	t.Parallel()

	state := hub.SharedState{Priorities: []hub.Priority{
		{Task: strings.Repeat("a", 100), Status: "IN_PROGRESS"},
	}}
	tasks := inProgressTasks(state)
	if len(tasks) != 1 || len(tasks[0]) != 30 {
		t.Errorf("tasks = %v, want one 30-byte entry", tasks)
	}
}
