package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// vault persists NOTE: commands as markdown files in the thoughts directory.
type vault struct {
	dir    string
	logger *logrus.Logger
}

func (v *vault) SaveNote(title, body string) error {
	now := time.Now()
	name := fmt.Sprintf("%s_%s.md", now.Format("20060102_1504"), sanitizeTitle(title))

	content := fmt.Sprintf(`---
created: %s
source: gloop_daemon
tags: [daemon, thought, gloop]
---

# %s

%s
`, now.Format("2006-01-02 15:04"), title, body)

	if err := os.WriteFile(filepath.Join(v.dir, name), []byte(content), 0o644); err != nil { //nolint:gosec // vault file
		return fmt.Errorf("daemon: save note: %w", err)
	}
	v.logger.WithField("title", clip(title, 30)).Info("note saved")
	return nil
}

// sanitizeTitle keeps alphanumerics, spaces, dashes and underscores, capped
// at 50 bytes.
func sanitizeTitle(title string) string {
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
