package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// keepEntries is how much history survives a save.
	keepEntries = 20
	// condenseAt triggers a condense pass before trimming.
	condenseAt = 30
	// contextEntries is how much history goes into an assistant prompt.
	contextEntries = 10
)

// chatEntry is one persisted conversation turn.
type chatEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// conversation is the persistent chat history behind the shell window. It is
// only touched from the program loop, so no locking.
type conversation struct {
	path    string
	entries []chatEntry
}

// loadConversation reads history from path. Tick noise is dropped on load and
// only the most recent entries are kept. A missing or unreadable file starts
// an empty conversation rather than failing the shell.
func loadConversation(path string) *conversation {
	c := &conversation{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var entries []chatEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return c
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Content, "TICK:") {
			continue
		}
		c.entries = append(c.entries, e)
	}
	if len(c.entries) > keepEntries {
		c.entries = c.entries[len(c.entries)-keepEntries:]
	}
	return c
}

// add appends a turn and persists.
func (c *conversation) add(role, content string) {
	c.entries = append(c.entries, chatEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	c.save()
}

// save writes the trimmed history back to disk. Long histories are condensed
// first so the file stays readable.
func (c *conversation) save() {
	if len(c.entries) > condenseAt {
		c.condense()
	}
	entries := c.entries
	if len(entries) > keepEntries {
		entries = entries[len(entries)-keepEntries:]
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path, data, 0o644)
}

// condense strips noise from old history: tick prompts, rate-limit chatter,
// near-duplicate messages, and over-long entries.
func (c *conversation) condense() {
	seen := make(map[string]bool)
	var condensed []chatEntry
	for _, e := range c.entries {
		content := e.Content
		if strings.HasPrefix(content, "TICK:") {
			continue
		}
		lower := strings.ToLower(content)
		if strings.Contains(lower, "limit reached") || strings.Contains(lower, "resets 4am") {
			continue
		}
		key := strings.ToLower(clipEntry(content, 50))
		if seen[key] {
			continue
		}
		seen[key] = true
		if len(content) > 300 {
			e.Content = clipEntry(content, 300) + "..."
		}
		condensed = append(condensed, e)
	}
	if len(condensed) > keepEntries {
		condensed = condensed[len(condensed)-keepEntries:]
	}
	c.entries = condensed
}

// context formats recent history for an assistant prompt.
func (c *conversation) context() string {
	if len(c.entries) == 0 {
		return ""
	}
	entries := c.entries
	if len(entries) > contextEntries {
		entries = entries[len(entries)-contextEntries:]
	}
	lines := []string{"CONVERSATION HISTORY:"}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(e.Role), clipEntry(e.Content, 200)))
	}
	return strings.Join(lines, "\n")
}

// lastRole returns the role of the most recent entry, or "" when empty.
func (c *conversation) lastRole() string {
	if len(c.entries) == 0 {
		return ""
	}
	return c.entries[len(c.entries)-1].Role
}

// sinceLast returns the elapsed time since the newest entry.
func (c *conversation) sinceLast() (time.Duration, bool) {
	if len(c.entries) == 0 {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, c.entries[len(c.entries)-1].Timestamp)
	if err != nil {
		return 0, false
	}
	return time.Since(t), true
}

// clipEntry truncates to at most n bytes without splitting a multi-byte rune.
func clipEntry(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
