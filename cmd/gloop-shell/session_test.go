package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gloop/pkg/hub"
)

func TestParseRest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want time.Duration
		ok   bool
	}{
		{"minutes suffix", "REST 15m", 15 * time.Minute, true},
		{"min suffix", "rest 10 min", 10 * time.Minute, true},
		{"hours", "REST 1h", time.Hour, true},
		{"hour word", "REST 2 hour", 2 * time.Hour, true},
		{"bare number is minutes", "REST 30", 30 * time.Minute, true},
		{"lowercase", "rest 5m", 5 * time.Minute, true},
		{"no duration", "REST", 0, false},
		{"not a rest", "tell me about rust", 0, false},
		{"zero", "REST 0", 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseRest(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseRest(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("parseRest(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWakeCommand(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"WAKE", "wake", "WAKE UP", "wake up", "  Wake  "} {
		if !isWakeCommand(in) {
			t.Errorf("isWakeCommand(%q) = false, want true", in)
		}
	}
	for _, in := range []string{"wake me at 8", "awaken", ""} {
		if isWakeCommand(in) {
			t.Errorf("isWakeCommand(%q) = true, want false", in)
		}
	}
}

func TestTimeContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		elapsed time.Duration
		known   bool
		want    string
	}{
		{30 * time.Second, true, "Rev just messaged (seconds ago)"},
		{3 * time.Minute, true, "Rev messaged 3 min ago - recent"},
		{12 * time.Minute, true, "Rev messaged 12 mins ago - might be busy"},
		{45 * time.Minute, true, "Rev messaged 45 mins ago - been a while, they may have stepped away"},
		{0, false, "No conversation history yet"},
	}
	for _, tt := range tests {
		if got := timeContext(tt.elapsed, tt.known); got != tt.want {
			t.Errorf("timeContext(%v, %v) = %q, want %q", tt.elapsed, tt.known, got, tt.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 16, 28, 0, 0, time.UTC)
	got := buildPrompt("PERSONA TEXT", "Rev just messaged (seconds ago)", "say hi", now)

	for _, want := range []string{
		"PERSONA TEXT",
		"Current time: 4:28 PM (Tuesday, March 4, 2025)",
		"Rev just messaged (seconds ago)",
		"YOUR TASK:\nsay hi",
		"Your stdout IS the shell window.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestLoadPersonaFallsBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if got := loadPersona(filepath.Join(dir, "missing.md")); got != defaultPersona {
		t.Errorf("missing persona file: got %q", got)
	}

	path := filepath.Join(dir, "persona.md")
	if err := os.WriteFile(path, []byte("custom persona"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := loadPersona(path); got != "custom persona" {
		t.Errorf("loadPersona = %q, want custom persona", got)
	}
}

func TestTickTaskPrefersActivePriority(t *testing.T) {
	t.Parallel()

	coord := openHub(t)
	st := hub.SharedState{Priorities: []hub.Priority{
		{Task: "ship the widget", Status: "in_progress"},
	}}
	if err := coord.WriteState(st, "test"); err != nil {
		t.Fatal(err)
	}

	convo := &conversation{}
	convo.entries = append(convo.entries, chatEntry{Role: "rev", Content: "hello?", Timestamp: time.Now().Format(time.RFC3339)})

	task := tickTask(coord, convo)
	if !strings.Contains(task, "Continue working on: ship the widget") {
		t.Errorf("tick task = %q, want continuation of active priority", task)
	}
}

func TestTickTaskAnswersRev(t *testing.T) {
	t.Parallel()

	convo := &conversation{}
	convo.entries = append(convo.entries, chatEntry{Role: "rev", Content: "you there?", Timestamp: time.Now().Format(time.RFC3339)})

	task := tickTask(openHub(t), convo)
	if !strings.Contains(task, "needs a response") {
		t.Errorf("tick task = %q, want reply prompt", task)
	}
	if !strings.Contains(task, "you there?") {
		t.Errorf("tick task = %q, want conversation context included", task)
	}
}

func TestTickTaskSilentWhenNothingToDo(t *testing.T) {
	t.Parallel()

	convo := &conversation{}
	convo.entries = append(convo.entries, chatEntry{Role: "gloop", Content: "all done", Timestamp: time.Now().Format(time.RFC3339)})

	if task := tickTask(openHub(t), convo); task != "" {
		t.Errorf("tick task = %q, want empty", task)
	}
}

func TestRateLimitDetection(t *testing.T) {
	t.Parallel()

	if !isRateLimited("5-hour limit reached. Try again later.") {
		t.Error("expected rate-limit detection on limit reached")
	}
	if isRateLimited("here is your answer") {
		t.Error("false positive rate-limit detection")
	}
}

func openHub(t *testing.T) *hub.Hub {
	t.Helper()
	coord, err := hub.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return coord
}
