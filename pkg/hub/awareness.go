package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// HubFile is one recently modified note in the awareness snapshot.
type HubFile struct {
	File     string `json:"file"`
	Modified string `json:"modified"`
}

// Awareness is the situational snapshot the spawned assistant reads to know
// what is happening around it without asking.
type Awareness struct {
	Timestamp   string    `json:"timestamp"`
	Music       string    `json:"music,omitempty"`
	RecentTTS   []string  `json:"recent_tts"`
	HubActivity []HubFile `json:"hub_activity"`
}

// WriteAwareness snapshots current context to path: what is playing, the
// last spoken messages, and the three most recently touched hub notes.
func (h *Hub) WriteAwareness(path, music string, recentTTS []string) error {
	aw := Awareness{
		Timestamp:   time.Now().Format(time.RFC3339),
		Music:       music,
		RecentTTS:   recentTTS,
		HubActivity: h.recentFiles(3),
	}
	if aw.RecentTTS == nil {
		aw.RecentTTS = []string{}
	}

	data, err := json.MarshalIndent(aw, "", "  ")
	if err != nil {
		return fmt.Errorf("hub: marshal awareness: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // read by other instances
		return fmt.Errorf("hub: write awareness: %w", err)
	}
	return nil
}

func (h *Hub) recentFiles(n int) []HubFile {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return []HubFile{}
	}

	type stamped struct {
		name string
		mod  time.Time
	}
	var files []stamped
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, stamped{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	if len(files) > n {
		files = files[:n]
	}

	out := make([]HubFile, 0, len(files))
	for _, f := range files {
		out = append(out, HubFile{File: f.name, Modified: f.mod.Format(time.RFC3339)})
	}
	return out
}

// AwarenessPath is the conventional snapshot location under a base dir.
func AwarenessPath(baseDir string) string {
	return filepath.Join(baseDir, "awareness_state.json")
}
