// Package health tracks daemon performance counters. All counters live in a
// single Recorder behind a mutex — handlers on any goroutine bump them, the
// export tick reads a consistent snapshot. Counters are monotonic and reset
// only on process restart.
package health

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Recorder owns the process-wide health counters.
type Recorder struct {
	mu    sync.Mutex
	start time.Time

	successfulRequests int
	failedRequests     int
	cliSpawns          int
	cliSuccesses       int
	cliFailures        int
	memoriesStored     int
	messagesSpoken     int
	heartbeats         int
	ticksSent          int
	ticksSkipped       int
	shellSpawns        int
}

// NewRecorder creates a Recorder with the start timestamp set to now.
func NewRecorder() *Recorder {
	return &Recorder{start: time.Now()}
}

// Counter bump methods. One per tracked event; each is called by exactly the
// handler that completes the event.

func (r *Recorder) RequestSucceeded() { r.bump(&r.successfulRequests) }
func (r *Recorder) RequestFailed()    { r.bump(&r.failedRequests) }
func (r *Recorder) CLISpawned()       { r.bump(&r.cliSpawns) }
func (r *Recorder) CLISucceeded()     { r.bump(&r.cliSuccesses) }
func (r *Recorder) CLIFailed()        { r.bump(&r.cliFailures) }
func (r *Recorder) MemoryStored()     { r.bump(&r.memoriesStored) }
func (r *Recorder) MessageSpoken()    { r.bump(&r.messagesSpoken) }
func (r *Recorder) Heartbeat()        { r.bump(&r.heartbeats) }
func (r *Recorder) TickSent()         { r.bump(&r.ticksSent) }
func (r *Recorder) TickSkipped()      { r.bump(&r.ticksSkipped) }
func (r *Recorder) ShellSpawned()     { r.bump(&r.shellSpawns) }

func (r *Recorder) bump(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

// ShellSpawnCount returns how many times the shell watchdog has restarted
// the shell this session.
func (r *Recorder) ShellSpawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shellSpawns
}

// Heartbeats returns the heartbeat count so prompts can reference it.
func (r *Recorder) Heartbeats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heartbeats
}

// Summary is the derived, human-oriented view of the counters.
type Summary struct {
	Uptime         string `json:"uptime"`
	APISuccessRate string `json:"api_success_rate"`
	CLISuccessRate string `json:"cli_success_rate"`
	// TickEfficiency is the fraction of gated ticks skipped — higher means
	// more spawn cost avoided.
	TickEfficiency string `json:"tick_efficiency"`
	MemoriesStored int    `json:"memories_stored"`
	Heartbeats     int    `json:"heartbeats"`
}

// Raw is the counter snapshot included alongside the summary for dashboards
// that want to do their own math.
type Raw struct {
	SuccessfulRequests int `json:"successful_requests"`
	FailedRequests     int `json:"failed_requests"`
	CLISpawns          int `json:"cli_spawns"`
	CLISuccesses       int `json:"cli_successes"`
	CLIFailures        int `json:"cli_failures"`
	MemoriesStored     int `json:"memories_stored"`
	MessagesSpoken     int `json:"messages_spoken"`
	Heartbeats         int `json:"heartbeats"`
	TicksSent          int `json:"ticks_sent"`
	TicksSkipped       int `json:"ticks_skipped"`
	ShellSpawns        int `json:"shell_spawns"`
}

// Report is the full health document written to health.json.
type Report struct {
	Timestamp string  `json:"timestamp"`
	Summary   Summary `json:"summary"`
	Raw       Raw     `json:"raw"`
}

// Snapshot builds a consistent Report from the current counters.
func (r *Recorder) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Report{
		Timestamp: time.Now().Format(time.RFC3339),
		Summary: Summary{
			Uptime:         formatUptime(time.Since(r.start)),
			APISuccessRate: ratePercent(r.successfulRequests, r.successfulRequests+r.failedRequests),
			CLISuccessRate: ratePercent(r.cliSuccesses, r.cliSuccesses+r.cliFailures),
			TickEfficiency: ratePercent(r.ticksSkipped, r.ticksSent+r.ticksSkipped),
			MemoriesStored: r.memoriesStored,
			Heartbeats:     r.heartbeats,
		},
		Raw: Raw{
			SuccessfulRequests: r.successfulRequests,
			FailedRequests:     r.failedRequests,
			CLISpawns:          r.cliSpawns,
			CLISuccesses:       r.cliSuccesses,
			CLIFailures:        r.cliFailures,
			MemoriesStored:     r.memoriesStored,
			MessagesSpoken:     r.messagesSpoken,
			Heartbeats:         r.heartbeats,
			TicksSent:          r.ticksSent,
			TicksSkipped:       r.ticksSkipped,
			ShellSpawns:        r.shellSpawns,
		},
	}
}

// Export rewrites the health JSON file wholesale with the current snapshot.
func (r *Recorder) Export(path string) error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("health: marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("health: write %s: %w", path, err)
	}
	return nil
}

// LogLine formats the one-line periodic health summary for the heartbeat log.
func (r *Recorder) LogLine() string {
	s := r.Snapshot().Summary
	return fmt.Sprintf("uptime=%s api=%s cli=%s ticks_saved=%s memories=%d",
		s.Uptime, s.APISuccessRate, s.CLISuccessRate, s.TickEfficiency, s.MemoriesStored)
}

// ratePercent renders numerator/denominator as "NN.N%"; zero denominator
// reports 0.0%.
func ratePercent(num, den int) string {
	if den == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(num)/float64(den)*100)
}

// formatUptime renders a duration as "Hh Mm" or "Mm Ss" for short runs.
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
