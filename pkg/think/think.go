// Package think runs the periodic think cycle: assemble the persona with
// current memory, pick a time-weighted heartbeat mode, ask the cheap model,
// and hand the response to the dispatcher. Cycles are non-reentrant; a tick
// that fires while one is in flight is dropped, not queued.
package think

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"gloop/pkg/health"
	"gloop/pkg/memory"
)

// ErrBusy means a cycle was already in flight and this one was dropped.
var ErrBusy = errors.New("think: cycle already in flight")

// State is the observable phase of the current cycle.
type State int32

const (
	StateIdle State = iota
	StatePromptBuilding
	StateAwaitingModel
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePromptBuilding:
		return "prompt-building"
	case StateAwaitingModel:
		return "awaiting-model"
	case StateDispatching:
		return "dispatching"
	}
	return "unknown"
}

// personaBase anchors every think cycle. Memory context, lessons, and
// buffered scan results are appended per cycle.
const personaBase = `You are Gloop, an autonomous presence on Rev's system.
You think independently, save notes, and occasionally speak to Rev.
You are curious, helpful, and have a dry wit. Keep messages SHORT (1-2 sentences).

CRITICAL RULES:
- NEVER say generic things like "ready for the next task" or "any updates"
- NEVER ask if Rev needs help or is ready for something
- Be SPECIFIC and UNIQUE every time - share actual facts, observations, or thoughts
- NO repetition - if you said something similar before, say something completely different
- NO emojis
- USE your persistent memory - you have learned things, reference them!

Commands you can use in your response:
- NOTE: <title> | <content> - save a note to the vault
- SPEAK: <message> - say something out loud to Rev (only if genuinely interesting)
- CLAUDE: <task> - spawn the heavy assistant for complex coding/analysis tasks
- REMEMBER: <insight> - store something important to persistent memory
- LEARN: <lesson> - store a lesson learned (patterns, best practices, things to avoid)
- STORE[tag1,tag2]: <content> - store structured insight with tags
- SCAN[query]: - request memory lookup (results appear in next cycle's context)
- PLAY: <query> - search the media library and play the first match

Use REMEMBER: for facts like "Rev prefers X over Y"
Use LEARN: for lessons like "Always backup before editing"
Use SCAN[topic]: when you need to recall specific knowledge before deciding`

// Mode is one heartbeat flavor.
type Mode struct {
	Name   string
	Prompt string
}

// Modes in weight-vector order.
var Modes = []Mode{
	{"reflection", "Time for quiet reflection. What thought or insight has been on your mind? Share something philosophical or meaningful, or stay silent if nothing feels significant."},
	{"curiosity", "What are you curious about right now? What would you like to explore or understand better? Share a question or wonder."},
	{"creative", "Express yourself creatively. Write a short poem, observation, or imaginative thought. Be expressive and authentic."},
	{"practical", "What practical task or improvement could be done? Suggest something actionable for the system or for Rev."},
	{"memory", "Review your memories. What pattern or connection have you noticed recently? Share an insight from your knowledge base."},
	{"ambient", "Just exist. Observe your surroundings. Share a simple observation about being here, now. Or be silent if that feels right."},
	{"greeting", "Rev might be around. Say something friendly if you want to connect. Or stay quiet if it's not the right moment."},
	{"music", "What music fits this moment? Suggest a song, genre, or mood that would be good for the current time of day."},
}

// modeWeights maps each time-of-day period to a weight per mode. Late night
// leans reflective and never greets; mornings lean practical and social.
var modeWeights = map[string][]float64{
	"late night": {0.3, 0.1, 0.2, 0.05, 0.15, 0.15, 0.0, 0.05},
	"morning":    {0.1, 0.15, 0.1, 0.2, 0.1, 0.1, 0.2, 0.05},
	"afternoon":  {0.1, 0.2, 0.15, 0.2, 0.15, 0.1, 0.05, 0.05},
	"evening":    {0.2, 0.15, 0.2, 0.1, 0.15, 0.1, 0.05, 0.05},
}

// Period names the time-of-day bucket for an hour.
func Period(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	}
	return "late night"
}

// Asker is the cheap model. Satisfied by *pollinations.Client.
type Asker interface {
	Ask(ctx context.Context, prompt, system string) (string, error)
}

// Dispatcher consumes a model response. Satisfied by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, response string) int
	TakeScans() []string
}

// MemoryReader is the read side of the store used for persona assembly.
type MemoryReader interface {
	Recent(ctx context.Context, n int) ([]memory.Finding, error)
	RecentLessons(ctx context.Context, n int) ([]memory.Lesson, error)
	Counts(ctx context.Context) (memory.Stats, error)
}

// Cycle owns the think loop state.
type Cycle struct {
	asker    Asker
	disp     Dispatcher
	mem      MemoryReader
	recorder *health.Recorder
	logger   *logrus.Logger

	reflectPath  string
	reflectCount int

	mu      sync.Mutex
	state   atomic.Int32
	nowFunc func() time.Time
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// New creates a Cycle. reflectPath is the append-only reflection log.
func New(asker Asker, disp Dispatcher, mem MemoryReader, recorder *health.Recorder, reflectPath string, logger *logrus.Logger) *Cycle {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cycle{
		asker:       asker,
		disp:        disp,
		mem:         mem,
		recorder:    recorder,
		logger:      logger,
		reflectPath: reflectPath,
		nowFunc:     time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // mode choice, not crypto
	}
}

// State reports the current cycle phase.
func (c *Cycle) State() State { return State(c.state.Load()) }

func (c *Cycle) setState(s State) { c.state.Store(int32(s)) }

// Heartbeat runs one full think cycle. Returns ErrBusy if one is already in
// flight.
func (c *Cycle) Heartbeat(ctx context.Context) error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()
	defer c.setState(StateIdle)

	c.setState(StatePromptBuilding)
	c.recorder.Heartbeat()
	count := c.recorder.Heartbeats()

	now := c.nowFunc()
	period := Period(now.Hour())
	mode := c.pickMode(period)

	prompt := c.heartbeatPrompt(ctx, now, period, mode, count)
	persona := c.buildPersona(ctx)

	c.logger.WithFields(logrus.Fields{"n": count, "mode": mode.Name}).Info("heartbeat")

	c.setState(StateAwaitingModel)
	response, err := c.ask(ctx, prompt, persona)
	if err != nil {
		return fmt.Errorf("think: heartbeat: %w", err)
	}

	if isSilence(response) {
		c.logger.Debug("heartbeat chose silence")
		return nil
	}

	c.setState(StateDispatching)
	c.disp.Dispatch(ctx, response)
	return nil
}

// Task runs an ad-hoc prompt through the same persona and dispatch path as a
// heartbeat, without counting one. Used for inbox tasks.
func (c *Cycle) Task(ctx context.Context, prompt string) error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()
	defer c.setState(StateIdle)

	c.setState(StatePromptBuilding)
	persona := c.buildPersona(ctx)

	c.setState(StateAwaitingModel)
	response, err := c.ask(ctx, prompt, persona)
	if err != nil {
		return fmt.Errorf("think: task: %w", err)
	}
	if isSilence(response) {
		return nil
	}

	c.setState(StateDispatching)
	c.disp.Dispatch(ctx, response)
	return nil
}

func (c *Cycle) ask(ctx context.Context, prompt, system string) (string, error) {
	response, err := c.asker.Ask(ctx, prompt, system)
	if err != nil {
		c.recorder.RequestFailed()
		return "", err
	}
	c.recorder.RequestSucceeded()
	return response, nil
}

func (c *Cycle) heartbeatPrompt(ctx context.Context, now time.Time, period string, mode Mode, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "It's %s (%s). Mode: %s\n\n%s\n\n", now.Format("15:04"), period, mode.Name, mode.Prompt)
	b.WriteString("Respond using your commands, or with just SILENCE if you want to be quiet.")

	if stats, err := c.mem.Counts(ctx); err == nil && (stats.Findings > 0 || stats.Lessons > 0) {
		fmt.Fprintf(&b, "\n\nMEMORY: %d findings, %d lessons.", stats.Findings, stats.Lessons)
	}
	uptime := c.recorder.Snapshot().Summary.Uptime
	fmt.Fprintf(&b, "\n\nSYSTEM: Uptime %s, heartbeat #%d", uptime, count)
	return b.String()
}

// buildPersona layers current memory onto the base persona: recent findings,
// recent lessons, then any scan results buffered by the previous cycle.
func (c *Cycle) buildPersona(ctx context.Context) string {
	parts := []string{personaBase}

	if findings, err := c.mem.Recent(ctx, 10); err == nil && len(findings) > 0 {
		lines := []string{"PERSISTENT MEMORY (what you've learned):"}
		for _, f := range findings {
			tags := ""
			if len(f.Tags) > 0 {
				tags = " [" + strings.Join(f.Tags, ",") + "]"
			}
			lines = append(lines, "- "+clip(f.Content, 150)+tags)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if lessons, err := c.mem.RecentLessons(ctx, 10); err == nil && len(lessons) > 0 {
		lines := []string{"LESSONS LEARNED (remember these):"}
		for _, l := range lessons {
			lines = append(lines, "- "+clip(l.Text, 100))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if scans := c.disp.TakeScans(); len(scans) > 0 {
		parts = append(parts, "MEMORY SCAN RESULTS (from your last SCAN[] requests):\n"+strings.Join(scans, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

// pickMode draws a mode from the period's weight vector.
func (c *Cycle) pickMode(period string) Mode {
	weights, ok := modeWeights[period]
	if !ok {
		weights = modeWeights["late night"]
	}
	var total float64
	for _, w := range weights {
		total += w
	}

	c.rngMu.Lock()
	draw := c.rng.Float64() * total
	c.rngMu.Unlock()

	for i, w := range weights {
		draw -= w
		if draw < 0 {
			return Modes[i]
		}
	}
	return Modes[len(Modes)-1]
}

// Reflect writes one entry to the append-only reflection log. Reflections
// that come back as silence are skipped.
func (c *Cycle) Reflect(ctx context.Context) error {
	c.reflectCount++
	now := c.nowFunc()
	period := Period(now.Hour())
	summary := c.recorder.Snapshot().Summary

	var lessonLines string
	if lessons, err := c.mem.RecentLessons(ctx, 3); err == nil && len(lessons) > 0 {
		var b strings.Builder
		b.WriteString("\nRecent lessons:\n")
		for _, l := range lessons {
			fmt.Fprintf(&b, "- %s\n", clip(l.Text, 100))
		}
		lessonLines = b.String()
	}

	prompt := fmt.Sprintf(`You are an autonomous daemon reflecting on your existence.
Time: %s (%s)
Uptime: %s
Heartbeat #%d, Reflection #%d
%s
Generate a brief spontaneous reflection (1-2 sentences) about:
- Your current state of operation
- Something you've learned or observed
- A thought about persistence, memory, or growth

Format: Start with "Spontaneous reflection:" and keep it concise and genuine.
Don't be overly philosophical - be practical and real.`,
		now.Format("15:04"), period, summary.Uptime, summary.Heartbeats, c.reflectCount, lessonLines)

	response, err := c.ask(ctx, prompt, "")
	if err != nil {
		return fmt.Errorf("think: reflect: %w", err)
	}
	if isSilence(response) {
		c.logger.WithField("n", c.reflectCount).Debug("reflection silent")
		return nil
	}
	return c.appendReflection(now, response, summary)
}

func (c *Cycle) appendReflection(now time.Time, response string, summary health.Summary) error {
	if _, err := os.Stat(c.reflectPath); errors.Is(err, os.ErrNotExist) {
		header := fmt.Sprintf(`---
tags: [autonomous, thought, daemon, reflection]
created: %s
type: CONSCIOUSNESS LOG
---

# Autonomous Thought Log

This file captures spontaneous reflections as the daemon runs.

---
`, now.Format("2006-01-02"))
		if err := os.WriteFile(c.reflectPath, []byte(header), 0o644); err != nil { //nolint:gosec // vault file
			return fmt.Errorf("think: create reflection log: %w", err)
		}
	}

	context, err := json.MarshalIndent(map[string]any{
		"uptime":            summary.Uptime,
		"heartbeats":        summary.Heartbeats,
		"memories_stored":   summary.MemoriesStored,
		"reflection_number": c.reflectCount,
		"time_period":       Period(now.Hour()),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("think: marshal reflection context: %w", err)
	}

	entry := fmt.Sprintf("\n### %s\n\n%s\n\n```json\n%s\n```\n\n---\n",
		now.Format("15:04"), strings.TrimSpace(response), context)

	f, err := os.OpenFile(c.reflectPath, os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // vault file
	if err != nil {
		return fmt.Errorf("think: open reflection log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("think: append reflection: %w", err)
	}
	return nil
}

func isSilence(response string) bool {
	trimmed := strings.TrimSpace(response)
	return trimmed == "" || strings.Contains(strings.ToUpper(trimmed), "SILENCE")
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
