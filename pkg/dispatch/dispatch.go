// Package dispatch executes the commands embedded in a model response. Each
// command is handled independently in source order: one failing handler is
// logged and skipped, never aborting the rest of the response. SCAN results
// are buffered here and handed to the next think cycle rather than the
// current one.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"gloop/pkg/command"
	"gloop/pkg/health"
	"gloop/pkg/memory"
)

// SpeakLimit caps spoken messages; longer text is cut for TTS.
const SpeakLimit = 200

// Memory is the persistent store. Satisfied by *memory.Store.
type Memory interface {
	AddFinding(ctx context.Context, content string, tags []string) (int64, error)
	AddLesson(ctx context.Context, findingID int64, text string) (int64, error)
	Search(ctx context.Context, query string, k int) ([]memory.ScoredFinding, error)
}

// Speaker delivers sanitized text to the voice channel.
type Speaker interface {
	Speak(text string) error
}

// NoteWriter persists NOTE: commands.
type NoteWriter interface {
	SaveNote(title, body string) error
}

// Media is the playback surface. Satisfied by *emby.Client.
type Media interface {
	SearchAndPlay(ctx context.Context, query string) (string, error)
	Pause(ctx context.Context) (string, error)
	Resume(ctx context.Context) (string, error)
	Skip(ctx context.Context) (string, error)
	NowPlaying(ctx context.Context) (string, error)
}

// Escalator hands a task to the heavy assistant.
type Escalator interface {
	Escalate(task string)
}

// Dispatcher routes parsed commands to their handlers.
type Dispatcher struct {
	mem    Memory
	speak  Speaker
	notes  NoteWriter
	media  Media
	heavy  Escalator
	rec    *health.Recorder
	logger *logrus.Logger

	mu           sync.Mutex
	pendingScans []string
}

// New creates a Dispatcher. Any dependency may be nil; commands needing it
// are logged and skipped.
func New(mem Memory, speak Speaker, notes NoteWriter, media Media, heavy Escalator, rec *health.Recorder, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{mem: mem, speak: speak, notes: notes, media: media, heavy: heavy, rec: rec, logger: logger}
}

// stored counts one persisted memory row.
func (d *Dispatcher) stored() {
	if d.rec != nil {
		d.rec.MemoryStored()
	}
}

// Dispatch parses a model response and executes every embedded command in
// source order. Returns how many commands were attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, response string) int {
	cmds := command.Parse(response)

	var lastFindingID int64
	for _, cmd := range cmds {
		if err := d.handle(ctx, cmd, &lastFindingID); err != nil {
			d.logger.WithError(err).WithField("kind", cmd.Kind).Warn("command failed")
		}
	}
	return len(cmds)
}

func (d *Dispatcher) handle(ctx context.Context, cmd command.Command, lastFindingID *int64) error {
	switch cmd.Kind {
	case command.KindNote:
		if d.notes == nil {
			return fmt.Errorf("no note writer configured")
		}
		return d.notes.SaveNote(cmd.Title, cmd.Text)

	case command.KindSpeak:
		return d.say(cmd.Text)

	case command.KindRemember:
		if d.mem == nil {
			return fmt.Errorf("no memory configured")
		}
		id, err := d.mem.AddFinding(ctx, cmd.Text, []string{"daemon", "remembered"})
		if err != nil {
			return err
		}
		d.stored()
		*lastFindingID = id
		return nil

	case command.KindLearn:
		return d.learn(ctx, cmd.Text, lastFindingID)

	case command.KindStore:
		if d.mem == nil {
			return fmt.Errorf("no memory configured")
		}
		if _, err := d.mem.AddFinding(ctx, cmd.Text, cmd.Tags); err != nil {
			return err
		}
		d.stored()
		return nil

	case command.KindScan:
		return d.scan(ctx, cmd.Query)

	case command.KindSpawnAssistant:
		if d.heavy == nil {
			return fmt.Errorf("no assistant configured")
		}
		d.heavy.Escalate(cmd.Task)
		return nil

	case command.KindMedia:
		return d.playback(ctx, cmd)
	}
	return fmt.Errorf("unknown command kind %q", cmd.Kind)
}

// learn attaches a lesson to the finding stored earlier in the same
// response. Without one it creates a placeholder finding to anchor the
// lesson, so lessons are never orphaned.
func (d *Dispatcher) learn(ctx context.Context, lesson string, lastFindingID *int64) error {
	if d.mem == nil {
		return fmt.Errorf("no memory configured")
	}
	id := *lastFindingID
	if id == 0 {
		placeholder := fmt.Sprintf("Lesson context: %s...", clip(lesson, 50))
		var err error
		id, err = d.mem.AddFinding(ctx, placeholder, []string{"daemon", "lesson-context"})
		if err != nil {
			return err
		}
		d.stored()
	}
	if _, err := d.mem.AddLesson(ctx, id, lesson); err != nil {
		return err
	}
	d.stored()
	return nil
}

// scan looks up memory now but surfaces results on the NEXT cycle: the
// response being processed is already final, so the hits are buffered into
// the upcoming persona instead.
func (d *Dispatcher) scan(ctx context.Context, query string) error {
	if d.mem == nil {
		return fmt.Errorf("no memory configured")
	}
	results, err := d.mem.Search(ctx, query, 5)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, clip(r.Content, 80))
	}
	line := fmt.Sprintf("SCAN[%s] results: %s", query, strings.Join(snippets, "; "))

	d.mu.Lock()
	d.pendingScans = append(d.pendingScans, line)
	d.mu.Unlock()

	d.logger.WithField("query", query).WithField("hits", len(results)).Info("memory scan buffered")
	return nil
}

func (d *Dispatcher) playback(ctx context.Context, cmd command.Command) error {
	if d.media == nil {
		return fmt.Errorf("no media client configured")
	}
	switch cmd.Action {
	case command.MediaPlay:
		desc, err := d.media.SearchAndPlay(ctx, cmd.Argument)
		if err != nil {
			return err
		}
		return d.say("Playing: " + desc)
	case command.MediaPause:
		if _, err := d.media.Pause(ctx); err != nil {
			return err
		}
		return d.say("Paused")
	case command.MediaResume:
		if _, err := d.media.Resume(ctx); err != nil {
			return err
		}
		return d.say("Resumed")
	case command.MediaSkip:
		if _, err := d.media.Skip(ctx); err != nil {
			return err
		}
		return d.say("Skipped to next track")
	case command.MediaStatus:
		status, err := d.media.NowPlaying(ctx)
		if err != nil {
			return err
		}
		return d.say(status)
	}
	return fmt.Errorf("unknown media action %q", cmd.Action)
}

func (d *Dispatcher) say(text string) error {
	if d.speak == nil {
		return fmt.Errorf("no speaker configured")
	}
	return d.speak.Speak(Sanitize(text))
}

// TakeScans returns the buffered scan results and clears the buffer. The
// think cycle calls this once per persona build.
func (d *Dispatcher) TakeScans() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	scans := d.pendingScans
	d.pendingScans = nil
	return scans
}

// Sanitize prepares text for the TTS channel: newlines become spaces,
// markdown emphasis and code fences are stripped, runs of spaces collapse,
// and anything past SpeakLimit is truncated with an ellipsis.
func Sanitize(text string) string {
	replacer := strings.NewReplacer(
		"\n", " ",
		"\r", " ",
		"**", "",
		"##", "",
		"`", "",
	)
	clean := replacer.Replace(text)
	for strings.Contains(clean, "  ") {
		clean = strings.ReplaceAll(clean, "  ", " ")
	}
	clean = strings.TrimSpace(clean)
	if len(clean) > SpeakLimit {
		clean = clip(clean, SpeakLimit-3) + "..."
	}
	return clean
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
