// Package assistant runs the heavy CLI assistant as a subprocess. Spawns are
// expensive, so the runner is strictly single-flight: one subprocess at a
// time, extra requests queue FIFO and run in arrival order. A wall-clock
// timeout is its own outcome, distinct from subprocess failure, so the
// health counters can tell a hung spawn from a broken one.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout is the wall-clock budget for one assistant run.
const DefaultTimeout = 10 * time.Minute

// Status classifies how a run ended.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Result is the outcome of one assistant run.
type Result struct {
	Output   string
	Status   Status
	Duration time.Duration
}

// Process is a started assistant subprocess.
type Process interface {
	Wait() error
	Kill() error
	Output() string
}

// Spawner starts assistant subprocesses. The exec implementation is the real
// one; tests substitute their own.
type Spawner interface {
	Spawn(ctx context.Context, prompt, workdir string) (Process, error)
}

// ExecSpawner implements Spawner using os/exec.
type ExecSpawner struct{}

// Spawn starts `claude -p` in text mode with the given prompt.
func (s *ExecSpawner) Spawn(ctx context.Context, prompt, workdir string) (Process, error) {
	cmd := exec.CommandContext(ctx, "claude", "-p", prompt, "--output-format", "text")
	cmd.Dir = workdir

	var outBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &outBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn assistant: %w", err)
	}
	return &execProcess{cmd: cmd, output: &outBuf}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	output *strings.Builder
}

func (p *execProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	return nil
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	return nil
}

func (p *execProcess) Output() string { return p.output.String() }

// Prompt assembles the final subprocess prompt from a task and optional
// accumulated context, and tells the assistant to report back through the
// hub so other instances see what happened.
func Prompt(task, context string) string {
	prompt := task
	if context != "" {
		prompt = fmt.Sprintf("CONTEXT:\n%s\n\nTASK:\n%s", context, task)
	}
	return prompt + "\n\nWhen done, write a summary to the hub folder for other instances."
}

// Task is one queued assistant request. Done, if set, is invoked on the
// worker goroutine when the run completes.
type Task struct {
	Prompt string
	Done   func(Result)
}

// Runner serializes assistant runs.
type Runner struct {
	spawner Spawner
	workdir string
	timeout time.Duration

	mu      sync.Mutex
	running bool
	queue   []Task
}

// NewRunner creates a Runner. A nil spawner gets the exec implementation.
func NewRunner(spawner Spawner, workdir string, timeout time.Duration) *Runner {
	if spawner == nil {
		spawner = &ExecSpawner{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{spawner: spawner, workdir: workdir, timeout: timeout}
}

// Busy reports whether a run is in flight or queued.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running || len(r.queue) > 0
}

// QueueLen reports how many tasks are waiting behind the current run.
func (r *Runner) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Submit enqueues a task. If the runner is idle a worker goroutine starts
// draining immediately; otherwise the task waits its turn.
func (r *Runner) Submit(task Task) {
	r.mu.Lock()
	r.queue = append(r.queue, task)
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.drain()
}

func (r *Runner) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.running = false
			r.mu.Unlock()
			return
		}
		task := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		result := r.Run(context.Background(), task.Prompt)
		if task.Done != nil {
			task.Done(result)
		}
	}
}

// Run executes one assistant subprocess synchronously, independent of the
// queue. Callers that need single-flight semantics use Submit instead.
func (r *Runner) Run(ctx context.Context, prompt string) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	proc, err := r.spawner.Spawn(ctx, prompt, r.workdir)
	if err != nil {
		return Result{Output: err.Error(), Status: StatusFailed, Duration: time.Since(start)}
	}

	err = proc.Wait()
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			_ = proc.Kill()
			return Result{Output: proc.Output(), Status: StatusTimeout, Duration: elapsed}
		}
		return Result{Output: proc.Output(), Status: StatusFailed, Duration: elapsed}
	}
	return Result{Output: strings.TrimSpace(proc.Output()), Status: StatusOK, Duration: elapsed}
}
