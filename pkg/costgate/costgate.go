// Package costgate decides whether a gated tick is worth a heavy assistant
// spawn. Three ordered checks, each able to refuse: no in-progress work
// refuses, recent assistant hub activity refuses, and finally the cheap
// model gets a strict YES/NO vote. The first two checks are pure local
// reads; the network is only touched when they both pass. The default on
// any doubt is to refuse, because a skipped tick costs nothing and a spawn
// costs real money.
package costgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gloop/pkg/hub"
)

// assistantSource is the hub note source tag the spawned assistant writes
// under; recent notes from it mean a spawn just happened.
const assistantSource = "cli"

// recentWindow is how long after an assistant hub note the gate keeps
// refusing.
const recentWindow = 5 * time.Minute

const decisionSystem = "You are a minimal decision maker. Reply YES or NO only."

// Asker is the cheap-model vote. Satisfied by *pollinations.Client.
type Asker interface {
	Ask(ctx context.Context, prompt, system string) (string, error)
}

// Gate evaluates whether to escalate a tick.
type Gate struct {
	hub   *hub.Hub
	asker Asker
}

// New creates a Gate.
func New(h *hub.Hub, asker Asker) *Gate {
	return &Gate{hub: h, asker: asker}
}

// Decision is the gate's verdict with a loggable reason.
type Decision struct {
	Spawn  bool
	Reason string
}

// ShouldEscalate runs the three checks in order and short-circuits on the
// first refusal.
func (g *Gate) ShouldEscalate(ctx context.Context) Decision {
	state, err := g.hub.ReadState()
	if err != nil {
		return Decision{Reason: "shared state unreadable: " + err.Error()}
	}

	tasks := inProgressTasks(state)
	if len(tasks) == 0 {
		return Decision{Reason: "no tasks in progress"}
	}

	recent, err := g.hub.RecentActivity(assistantSource, recentWindow)
	if err != nil {
		return Decision{Reason: "hub unreadable: " + err.Error()}
	}
	if recent {
		return Decision{Reason: "assistant recently active"}
	}

	prompt := fmt.Sprintf(`Current tasks: %s

Should we spawn the heavy assistant now? Consider:
- Is there actual work to do?
- Has the assistant been active recently?
- Is this a good time (night = less urgent)?

Reply with just: YES or NO`, strings.Join(tasks, ", "))

	answer, err := g.asker.Ask(ctx, prompt, decisionSystem)
	if err != nil {
		return Decision{Reason: "model unavailable: " + err.Error()}
	}
	if strings.Contains(strings.ToUpper(answer), "YES") {
		return Decision{Spawn: true, Reason: "model approved"}
	}
	return Decision{Reason: "model declined: " + firstLine(answer)}
}

// inProgressTasks collects in-progress priority names, each truncated for
// the decision prompt.
func inProgressTasks(state hub.SharedState) []string {
	var tasks []string
	for _, p := range state.Priorities {
		if !strings.EqualFold(p.Status, "in_progress") {
			continue
		}
		task := p.Task
		if len(task) > 30 {
			task = task[:30]
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
