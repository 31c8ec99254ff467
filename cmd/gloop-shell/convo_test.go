package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConversationRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conversation.json")
	c := &conversation{path: path}
	c.add("rev", "hello")
	c.add("gloop", "hi there")

	loaded := loadConversation(path)
	if len(loaded.entries) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(loaded.entries))
	}
	if loaded.entries[0].Role != "rev" || loaded.entries[0].Content != "hello" {
		t.Errorf("first entry = %+v", loaded.entries[0])
	}
	if loaded.entries[1].Timestamp == "" {
		t.Error("timestamp not recorded")
	}
}

func TestLoadConversationFiltersTickNoise(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conversation.json")
	entries := []chatEntry{
		{Role: "rev", Content: "real message", Timestamp: time.Now().Format(time.RFC3339)},
		{Role: "gloop", Content: "TICK: 2 minutes passed", Timestamp: time.Now().Format(time.RFC3339)},
	}
	data, _ := json.Marshal(entries)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded := loadConversation(path)
	if len(loaded.entries) != 1 {
		t.Fatalf("loaded %d entries, want 1 (tick filtered)", len(loaded.entries))
	}
	if loaded.entries[0].Content != "real message" {
		t.Errorf("kept %q", loaded.entries[0].Content)
	}
}

func TestLoadConversationMissingFile(t *testing.T) {
	t.Parallel()

	c := loadConversation(filepath.Join(t.TempDir(), "nope.json"))
	if len(c.entries) != 0 {
		t.Errorf("expected empty conversation, got %d entries", len(c.entries))
	}
}

func TestSaveKeepsRecentEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conversation.json")
	c := &conversation{path: path}
	for i := 0; i < 40; i++ {
		c.add("rev", fmt.Sprintf("message number %d with unique content", i))
	}

	loaded := loadConversation(path)
	if len(loaded.entries) > keepEntries {
		t.Fatalf("persisted %d entries, want at most %d", len(loaded.entries), keepEntries)
	}
	last := loaded.entries[len(loaded.entries)-1]
	if !strings.Contains(last.Content, "message number 39") {
		t.Errorf("newest entry lost: %q", last.Content)
	}
}

func TestCondense(t *testing.T) {
	t.Parallel()

	c := &conversation{}
	long := strings.Repeat("x", 400)
	c.entries = []chatEntry{
		{Role: "gloop", Content: "TICK: noise"},
		{Role: "gloop", Content: "5-hour limit reached, resets 4am"},
		{Role: "rev", Content: "duplicate duplicate duplicate duplicate duplicate one"},
		{Role: "rev", Content: "duplicate duplicate duplicate duplicate duplicate two"},
		{Role: "gloop", Content: long},
	}
	c.condense()

	if len(c.entries) != 2 {
		t.Fatalf("condensed to %d entries, want 2", len(c.entries))
	}
	// Near-duplicates collapse to the first occurrence.
	if !strings.HasSuffix(c.entries[0].Content, "one") {
		t.Errorf("kept wrong duplicate: %q", c.entries[0].Content)
	}
	if got := c.entries[1].Content; len(got) != 303 || !strings.HasSuffix(got, "...") {
		t.Errorf("long entry not truncated: len=%d", len(got))
	}
}

func TestContextFormat(t *testing.T) {
	t.Parallel()

	c := &conversation{}
	if c.context() != "" {
		t.Error("empty conversation should produce empty context")
	}

	c.entries = []chatEntry{
		{Role: "rev", Content: "what's up"},
		{Role: "gloop", Content: strings.Repeat("y", 250)},
	}
	got := c.context()
	if !strings.HasPrefix(got, "CONVERSATION HISTORY:\n") {
		t.Errorf("context header missing:\n%s", got)
	}
	if !strings.Contains(got, "REV: what's up") {
		t.Errorf("context missing rev line:\n%s", got)
	}
	// Entries are clipped to 200 bytes in the prompt.
	if strings.Contains(got, strings.Repeat("y", 201)) {
		t.Error("context entry not clipped")
	}
}

func TestSinceLast(t *testing.T) {
	t.Parallel()

	c := &conversation{}
	if _, ok := c.sinceLast(); ok {
		t.Error("empty conversation should have no elapsed time")
	}

	c.entries = []chatEntry{{
		Role:      "rev",
		Content:   "hi",
		Timestamp: time.Now().Add(-10 * time.Minute).Format(time.RFC3339),
	}}
	elapsed, ok := c.sinceLast()
	if !ok {
		t.Fatal("expected elapsed time")
	}
	if elapsed < 9*time.Minute || elapsed > 11*time.Minute {
		t.Errorf("elapsed = %v, want ~10m", elapsed)
	}
}
