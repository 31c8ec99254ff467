// Package mailbox implements the one-JSON-file-per-message queues that Gloop
// processes use to talk to each other. Each directory (inbox, outbox,
// shell_inbox, shell_outbox) is one logical queue with a single designated
// consumer role; filenames embed a microsecond timestamp so listing order is
// arrival order.
//
// Delivery contract: a producer makes a message visible with one atomic
// rename, and only the consumer deletes it, only after full successful
// processing. That delete-on-success step is the sole concurrency control —
// there is no file locking — so at-most-once delivery holds as long as each
// directory keeps exactly one consumer role.
package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message kind prefixes. The prefix is the routing key: consumers list by
// prefix and watchers classify dropped files by it.
const (
	PrefixTask            = "task_"             // free-form prompt for the generation API
	PrefixCLITask         = "claude_"           // task for the heavy assistant
	PrefixDiscord         = "discord_"          // relayed Discord message
	PrefixSpeech          = "message_"          // outbox speech for the delivery bot
	PrefixDiscordResponse = "discord_response_" // reply routed back to Discord
	PrefixShellMessage    = "msg_"              // message for the shell chat window
)

// Sentinel errors returned by Take.
var (
	// ErrNotFound means the file was gone by the time we tried to read it —
	// typically the other redundant consumer path got there first. Callers
	// treat it as "nothing to do", which is what makes the poll+watch
	// duplication safe.
	ErrNotFound = errors.New("mailbox: message not found")

	// ErrQuarantined means the file held invalid JSON and was moved to the
	// failed/ sub-directory for manual inspection.
	ErrQuarantined = errors.New("mailbox: message quarantined")
)

// failedDir is the quarantine sub-directory for undecodable messages.
const failedDir = "failed"

// Message is one unit of mailbox communication. Fields beyond CreatedAt are
// populated per kind; unused fields stay empty and are omitted on the wire.
type Message struct {
	// Task fields (task_*, claude_*).
	Prompt      string `json:"prompt,omitempty"`
	Task        string `json:"task,omitempty"`
	Context     string `json:"context,omitempty"`
	SpeakResult *bool  `json:"speak_result,omitempty"`
	Priority    string `json:"priority,omitempty"`

	// Discord relay fields (discord_*).
	From      string `json:"from,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`

	// Speech / delivery fields (message_*, discord_response_*, msg_*).
	To        string `json:"to,omitempty"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Voice     string `json:"voice,omitempty"`
	PlayLocal bool   `json:"play_local,omitempty"`

	CreatedAt string `json:"timestamp,omitempty"`
}

// ShouldSpeak reports whether the producer asked for the result to be spoken.
// Absent flag defaults to true, matching the inbox task convention.
func (m *Message) ShouldSpeak() bool {
	if m.SpeakResult == nil {
		return true
	}
	return *m.SpeakResult
}

// Queue is one mailbox directory.
type Queue struct {
	dir string
}

// Open returns a Queue over dir, creating it (and its quarantine area) if
// needed.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mailbox: create %s: %w", dir, err)
	}
	return &Queue{dir: dir}, nil
}

// Dir returns the queue's directory.
func (q *Queue) Dir() string { return q.dir }

// Put writes msg as a new file named prefix + microsecond timestamp + short
// unique suffix. The document is marshalled to a dot-tmp name first and then
// renamed, so a concurrent scanner can never observe a partially written
// message. Put never overwrites: the uuid suffix breaks ties between
// producers racing within the same microsecond.
func (q *Queue) Put(prefix string, msg *Message) (string, error) {
	if msg.CreatedAt == "" {
		msg.CreatedAt = time.Now().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mailbox: marshal message: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s%s_%06d_%s.json",
		prefix,
		now.Format("20060102_150405"),
		now.Nanosecond()/1000,
		uuid.NewString()[:8])

	tmp := filepath.Join(q.dir, ".tmp-"+name)
	final := filepath.Join(q.dir, name)

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("mailbox: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("mailbox: publish %s: %w", name, err)
	}
	return name, nil
}

// Pending lists the queue's .json filenames matching prefix, sorted
// lexicographically — which, given the timestamp-embedded names, is arrival
// order. Temp files and the quarantine area are never reported.
func (q *Queue) Pending(prefix string) ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("mailbox: list %s: %w", q.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue // in-flight temp file from a producer
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Take reads and removes one message. On a clean read the file is deleted
// (the at-most-once commit point). If the file is already gone, ErrNotFound.
// If the contents do not decode, the file is moved into failed/ and
// ErrQuarantined is returned; either way the caller's scan loop continues.
//
// Take is for consumers whose processing cannot fail (display, drain). When
// the handler can fail and the message must survive for retry, use Peek and
// commit with Remove only after the handler succeeds.
func (q *Queue) Take(name string) (*Message, error) {
	msg, err := q.Peek(name)
	if err != nil {
		return nil, err
	}
	if err := q.Remove(name); err != nil {
		return nil, err
	}
	return msg, nil
}

// Peek reads one message without consuming it: the file stays in place and
// keeps appearing in Pending until Remove commits it. Decode failures still
// quarantine — a malformed file will never parse better on retry.
func (q *Queue) Peek(name string) (*Message, error) {
	path := filepath.Join(q.dir, name)
	data, err := os.ReadFile(path) //nolint:gosec // path is confined to the queue dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mailbox: read %s: %w", name, err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		if qErr := q.quarantine(name); qErr != nil {
			return nil, fmt.Errorf("mailbox: quarantine %s after decode error: %w", name, qErr)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrQuarantined, name, err)
	}
	return &msg, nil
}

// Remove deletes a processed message: the delete-on-success commit point.
// Removing an already-gone message is not an error.
func (q *Queue) Remove(name string) error {
	if err := os.Remove(filepath.Join(q.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("mailbox: remove %s: %w", name, err)
	}
	return nil
}

// quarantine moves a malformed message into failed/ for manual inspection.
func (q *Queue) quarantine(name string) error {
	dir := filepath.Join(q.dir, failedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}
	if err := os.Rename(filepath.Join(q.dir, name), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}
	return nil
}
