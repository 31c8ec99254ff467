package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory.
const HomeEnv = "GLOOP_HOME"

// DefaultHome resolves the base directory: $GLOOP_HOME, else ~/.gloop.
func DefaultHome() string {
	if v := os.Getenv(HomeEnv); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gloop"
	}
	return filepath.Join(home, ".gloop")
}

// Paths lays out the daemon's files under one base directory. Everything the
// daemon, shell, and spawned assistant share lives here.
type Paths struct {
	Home string
}

func (p Paths) Inbox() string      { return filepath.Join(p.Home, "inbox") }
func (p Paths) Outbox() string     { return filepath.Join(p.Home, "outbox") }
func (p Paths) ShellInbox() string { return filepath.Join(p.Home, "shell_inbox") }
func (p Paths) HubDir() string     { return filepath.Join(p.Home, "hub") }
func (p Paths) ThoughtsDir() string { return filepath.Join(p.Home, "thoughts") }

func (p Paths) MemoryDB() string      { return filepath.Join(p.Home, "memory.db") }
func (p Paths) HealthJSON() string    { return filepath.Join(p.Home, "health.json") }
func (p Paths) HeartbeatLog() string  { return filepath.Join(p.Home, "daemon_heartbeat.log") }
func (p Paths) ReflectionLog() string { return filepath.Join(p.ThoughtsDir(), "autonomous_thought.md") }
func (p Paths) Awareness() string     { return filepath.Join(p.Home, "awareness_state.json") }

func (p Paths) LockFile() string  { return filepath.Join(p.Home, "gloop.lock") }
func (p Paths) ShellLock() string { return filepath.Join(p.Home, "shell.lock") }
func (p Paths) RestFile() string  { return filepath.Join(p.Home, "rest.json") }

func (p Paths) Conversation() string { return filepath.Join(p.Home, "shell_conversation.json") }
func (p Paths) Persona() string      { return filepath.Join(p.Home, "shell_persona.md") }
func (p Paths) ConfigTOML() string   { return filepath.Join(p.Home, "config.toml") }
func (p Paths) DotEnv() string       { return filepath.Join(p.Home, ".env") }

// EnsureDirs creates the directory tree.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.Home, p.Inbox(), p.Outbox(), p.ShellInbox(), p.HubDir(), p.ThoughtsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("daemon: create %s: %w", dir, err)
		}
	}
	return nil
}
