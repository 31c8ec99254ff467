package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"gloop/pkg/assistant"
	"gloop/pkg/daemon"
	"gloop/pkg/hub"
	"gloop/pkg/mailbox"
)

const (
	// tickInterval is how often the shell considers handing the assistant a
	// continuation task.
	tickInterval = 120 // seconds

	// pollInterval is the shell inbox scan cadence.
	pollInterval = 500 * time.Millisecond

	// spawnCooldown keeps ticks from stacking spawns right after one finished.
	spawnCooldown = time.Minute

	// assistantTimeout bounds one interactive assistant run. Shorter than the
	// daemon's because someone is watching the window.
	assistantTimeout = 5 * time.Minute

	displayLimit = 1500
	historyLimit = 2000
)

// secondMsg drives the countdown and rest-expiry checks.
type secondMsg time.Time

// incoming is one message drained from the shell inbox.
type incoming struct {
	From string
	Text string
}

// inboxMsg carries drained shell inbox messages into the program loop.
type inboxMsg []incoming

// resultMsg carries a finished assistant run into the program loop.
type resultMsg assistant.Result

// lineKind selects the style a chat line renders with.
type lineKind int

const (
	lineRev lineKind = iota
	lineAssistant
	lineSystem
)

type chatLine struct {
	From string
	Text string
	Kind lineKind
}

// Model is the Bubble Tea model for the shell window. All mutation happens on
// the program loop; the assistant runner reports back through the results
// channel.
type Model struct {
	paths   daemon.Paths
	coord   *hub.Hub
	inbox   *mailbox.Queue
	runner  *assistant.Runner
	convo   *conversation
	persona string

	results chan resultMsg

	lines     []chatLine
	countdown int
	resting   bool
	restUntil time.Time
	lastSpawn time.Time

	vp    viewport.Model
	input textinput.Model
	ready bool
}

// newModel wires the shell's dependencies off the shared base directory.
func newModel(paths daemon.Paths) (Model, error) {
	cfg, err := daemon.LoadConfig(paths.Home)
	if err != nil {
		return Model{}, err
	}
	coord, err := hub.Open(paths.HubDir())
	if err != nil {
		return Model{}, err
	}
	inbox, err := mailbox.Open(paths.ShellInbox())
	if err != nil {
		return Model{}, err
	}

	ti := textinput.New()
	ti.Placeholder = "Message Gloop (REST 15m to pause, WAKE to resume)"
	ti.Focus()
	ti.CharLimit = 2000

	m := Model{
		paths:     paths,
		coord:     coord,
		inbox:     inbox,
		runner:    assistant.NewRunner(nil, cfg.AssistantWorkdir, assistantTimeout),
		convo:     loadConversation(paths.Conversation()),
		persona:   loadPersona(paths.Persona()),
		results:   make(chan resultMsg, 8),
		countdown: tickInterval,
		input:     ti,
	}
	if until, ok := daemon.RestUntil(paths.RestFile()); ok {
		m.resting = true
		m.restUntil = until
	}
	m.reloadHistory()
	return m, nil
}

// reloadHistory seeds the chat window with the tail of the saved conversation.
func (m *Model) reloadHistory() {
	entries := m.convo.entries
	if len(entries) > contextEntries {
		entries = entries[len(entries)-contextEntries:]
	}
	for _, e := range entries {
		kind := lineAssistant
		from := "Gloop"
		if e.Role == "rev" {
			kind = lineRev
			from = "Rev"
		}
		m.lines = append(m.lines, chatLine{From: from, Text: e.Content, Kind: kind})
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(secondCmd(), pollInboxCmd(m.inbox), waitResultCmd(m.results), textinput.Blink)
}

// secondCmd emits a secondMsg after one second.
func secondCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return secondMsg(t)
	})
}

// pollInboxCmd drains the shell inbox on a timer. The drain happens off the
// program loop; only the resulting messages cross back in.
func pollInboxCmd(q *mailbox.Queue) tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return inboxMsg(drainInbox(q))
	})
}

// drainInbox consumes every pending shell message. A file that vanished
// between list and read was taken by a previous scan; skip it.
func drainInbox(q *mailbox.Queue) []incoming {
	names, err := q.Pending(mailbox.PrefixShellMessage)
	if err != nil {
		return nil
	}
	var msgs []incoming
	for _, name := range names {
		msg, err := q.Take(name)
		if err != nil {
			// Gone or quarantined; either way the scan moves on.
			continue
		}
		if msg.Text == "" {
			continue
		}
		from := msg.From
		if from == "" {
			from = "Gloop"
		}
		msgs = append(msgs, incoming{From: from, Text: msg.Text})
	}
	return msgs
}

// waitResultCmd blocks on the results channel until an assistant run lands.
func waitResultCmd(ch chan resultMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case secondMsg:
		m.tickSecond()
		return m, secondCmd()

	case inboxMsg:
		for _, in := range msg {
			m.addLine(in.From, in.Text, lineAssistant)
		}
		if len(msg) > 0 {
			m.refreshViewport()
		}
		return m, pollInboxCmd(m.inbox)

	case resultMsg:
		m.receiveResult(assistant.Result(msg))
		return m, waitResultCmd(m.results)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		text := m.input.Value()
		m.input.SetValue("")
		if text != "" {
			m.submit(text)
		}
		return m, nil
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles one line of user input: REST and WAKE commands locally,
// everything else goes to the assistant.
func (m *Model) submit(text string) {
	if isRestCommand(text) {
		d, ok := parseRest(text)
		if !ok {
			m.addSystem("Usage: REST 15m, REST 1h, REST 30")
			m.refreshViewport()
			return
		}
		m.rest(d)
		m.addSystem(fmt.Sprintf("Resting for %d min. Type WAKE to resume.", int(d.Minutes())))
		m.refreshViewport()
		return
	}
	if isWakeCommand(text) {
		m.wake()
		m.addSystem("Awake! Back to normal ticks.")
		m.refreshViewport()
		return
	}

	m.addLine("Rev", text, lineRev)
	m.convo.add("rev", text)
	context := m.convo.context()
	m.spawn(fmt.Sprintf("%s\n\nREV'S NEW MESSAGE: %s\n\nRespond to Rev. Keep it conversational.", context, text))
	m.refreshViewport()
}

// spawn hands a task to the assistant runner. The runner queues FIFO while a
// run is in flight, so this never blocks the UI.
func (m *Model) spawn(task string) {
	prompt := buildPrompt(m.persona, m.situation(), task, time.Now())
	m.lastSpawn = time.Now()
	m.runner.Submit(assistant.Task{
		Prompt: prompt,
		Done: func(r assistant.Result) {
			m.results <- resultMsg(r)
		},
	})
}

// situation builds the situational-awareness line for the prompt.
func (m *Model) situation() string {
	elapsed, known := m.convo.sinceLast()
	return timeContext(elapsed, known)
}

// receiveResult handles a finished assistant run: rate limits trigger an
// automatic rest, anything else is displayed and saved.
func (m *Model) receiveResult(r assistant.Result) {
	defer m.refreshViewport()

	switch r.Status {
	case assistant.StatusTimeout:
		m.addSystem("Assistant timed out")
		return
	case assistant.StatusFailed:
		m.addSystem("Assistant error: " + clipEntry(r.Output, 200))
		return
	}

	if r.Output == "" {
		return
	}
	if isRateLimited(r.Output) {
		m.rest(time.Hour)
		m.addSystem("Rate limit hit. Auto-resting for 60 min.")
		return
	}
	m.addLine("Gloop", clipEntry(r.Output, displayLimit), lineAssistant)
	m.convo.add("gloop", clipEntry(r.Output, historyLimit))
}

// tickSecond runs once per second: counts down to the next tick, expires
// rests, and fires the continuation tick when due.
func (m *Model) tickSecond() {
	if m.resting {
		if until, ok := daemon.RestUntil(m.paths.RestFile()); ok {
			m.restUntil = until
		} else {
			m.wake()
			m.addSystem("Rest over. Back to normal ticks.")
			m.refreshViewport()
		}
		return
	}
	// A rest started elsewhere (gloop daemon, another window) applies here too.
	if until, ok := daemon.RestUntil(m.paths.RestFile()); ok {
		m.resting = true
		m.restUntil = until
		return
	}

	m.countdown--
	if m.countdown > 0 {
		return
	}
	m.countdown = tickInterval

	if m.runner.Busy() || time.Since(m.lastSpawn) < spawnCooldown {
		return
	}
	if task := tickTask(m.coord, m.convo); task != "" {
		m.spawn(task)
	}
}

// rest pauses ticks until now+d and shares the deadline with the daemon.
func (m *Model) rest(d time.Duration) {
	m.resting = true
	m.restUntil = time.Now().Add(d)
	_ = daemon.WriteRest(m.paths.RestFile(), m.restUntil)
}

// wake ends a rest early.
func (m *Model) wake() {
	m.resting = false
	m.restUntil = time.Time{}
	m.countdown = tickInterval
	_ = daemon.ClearRest(m.paths.RestFile())
}

func (m *Model) addLine(from, text string, kind lineKind) {
	m.lines = append(m.lines, chatLine{From: from, Text: text, Kind: kind})
}

func (m *Model) addSystem(text string) {
	m.addLine("System", text, lineSystem)
}
