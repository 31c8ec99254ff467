// Package main implements the gloop-shell chat window: a terminal UI for
// talking to the assistant, sharing the daemon's mailbox directories.
package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"gloop/pkg/daemon"
	"gloop/pkg/lockfile"
)

func main() {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "gloop-shell needs a terminal")
		os.Exit(1)
	}

	paths := daemon.Paths{Home: daemon.DefaultHome()}
	if err := paths.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lock, err := lockfile.Acquire(paths.ShellLock())
	if errors.Is(err, lockfile.ErrAlreadyRunning) {
		fmt.Println("shell already running - exiting")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lock.Release() }()

	m, err := newModel(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running shell: %v\n", err)
		os.Exit(1)
	}
}
