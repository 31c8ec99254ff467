package daemon

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"gloop/pkg/health"
	"gloop/pkg/mailbox"
)

// voice delivers spoken text: one message to the outbox for the TTS relay,
// one echo to the shell inbox so the chat window shows what was said. It
// keeps the last few utterances for the awareness snapshot.
type voice struct {
	outbox *mailbox.Queue
	shell  *mailbox.Queue
	rec    *health.Recorder
	logger *logrus.Logger

	mu     sync.Mutex
	recent []string
}

func (v *voice) Speak(text string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := v.outbox.Put(mailbox.PrefixSpeech, &mailbox.Message{
		To:        "rev",
		Message:   text,
		Voice:     "Gloop",
		PlayLocal: true,
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	// Shell echo is best-effort; the spoken message already went out.
	if _, err := v.shell.Put(mailbox.PrefixShellMessage, &mailbox.Message{
		From:      "Gloop",
		Text:      text,
		CreatedAt: now,
	}); err != nil {
		v.logger.WithError(err).Warn("shell echo failed")
	}

	v.mu.Lock()
	v.recent = append(v.recent, text)
	if len(v.recent) > 5 {
		v.recent = v.recent[len(v.recent)-5:]
	}
	v.mu.Unlock()

	v.rec.MessageSpoken()
	v.logger.WithField("text", clip(text, 50)).Info("speak")
	return nil
}

// recentTTS returns the last spoken messages, newest last.
func (v *voice) recentTTS() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.recent))
	copy(out, v.recent)
	return out
}

// clip truncates to at most n bytes without splitting a multi-byte rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
