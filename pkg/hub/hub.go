// Package hub implements the cross-instance coordination directory: free-text
// markdown notes with a YAML front-matter header, plus the shared_state.json
// coordination document. Any Gloop process (daemon, shell, spawned assistant)
// reads and writes here; writes are last-writer-wins with no transactional
// merge.
package hub

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// SharedStateFile is the coordination document's filename within the hub.
const SharedStateFile = "shared_state.json"

// frontMatter is the YAML header on every hub note.
type frontMatter struct {
	Timestamp string `yaml:"timestamp"`
	Source    string `yaml:"source"`
	Title     string `yaml:"title"`
}

// Note is one hub note read back from disk.
type Note struct {
	File    string
	Content string
}

// Hub is a handle on the coordination directory.
type Hub struct {
	dir string
}

// Open returns a Hub over dir, creating it if needed.
func Open(dir string) (*Hub, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("hub: create %s: %w", dir, err)
	}
	return &Hub{dir: dir}, nil
}

// Dir returns the hub directory.
func (h *Hub) Dir() string { return h.dir }

// WriteNote writes a markdown note with front matter. The filename embeds
// timestamp, source, and a sanitized title so listings sort chronologically
// and the cost gate can spot recent activity per source.
func (h *Hub) WriteNote(title, body, source string) (string, error) {
	fm, err := yaml.Marshal(frontMatter{
		Timestamp: time.Now().Format(time.RFC3339),
		Source:    source,
		Title:     title,
	})
	if err != nil {
		return "", fmt.Errorf("hub: marshal front matter: %w", err)
	}

	content := fmt.Sprintf("---\n%s---\n\n%s\n", fm, body)
	name := fmt.Sprintf("%s_%s_%s.md",
		time.Now().Format("20060102_150405"), source, safeTitle(title))

	tmp := filepath.Join(h.dir, "."+name)
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil { //nolint:gosec // hub notes are shared by design
		return "", fmt.Errorf("hub: write note: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(h.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("hub: publish note: %w", err)
	}
	return name, nil
}

// Latest returns up to n notes, newest first by filename.
func (h *Hub) Latest(n int) ([]Note, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, fmt.Errorf("hub: list %s: %w", h.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if n > 0 && len(names) > n {
		names = names[:n]
	}

	notes := make([]Note, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(h.dir, name)) //nolint:gosec // confined to hub dir
		if err != nil {
			continue // note removed mid-scan; skip
		}
		notes = append(notes, Note{File: name, Content: string(data)})
	}
	return notes, nil
}

// Context assembles accumulated hub context for the heavy assistant: the
// latest notes, each truncated, separated by file markers. Returns "" when
// the hub is empty.
func (h *Hub) Context() string {
	notes, err := h.Latest(10)
	if err != nil || len(notes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, fmt.Sprintf("--- %s ---\n%s", n.File, truncate(n.Content, 500)))
	}
	return strings.Join(parts, "\n\n")
}

// RecentActivity reports whether any note from the given source was written
// within the window. The cost gate uses this to avoid redundant assistant
// spawns.
func (h *Hub) RecentActivity(source string, window time.Duration) (bool, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return false, fmt.Errorf("hub: list %s: %w", h.dir, err)
	}
	cutoff := time.Now().Add(-window)
	marker := "_" + source + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), marker) || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// safeTitle keeps alphanumerics, spaces, dashes and underscores, capped at
// 50 bytes, with spaces collapsed to dashes.
func safeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	s := b.String()
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		s = "note"
	}
	return s
}

// truncate cuts to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
