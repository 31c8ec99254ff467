package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// restState is the tiny document the shell and daemon share to coordinate
// rest periods. Whoever writes it last wins; clearing it means awake.
type restState struct {
	Until string `json:"until"`
}

// WriteRest records a rest deadline. Scheduled ticks are suppressed until
// then.
func WriteRest(path string, until time.Time) error {
	data, err := json.Marshal(restState{Until: until.Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("daemon: marshal rest state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // shared with the shell
		return fmt.Errorf("daemon: write rest state: %w", err)
	}
	return nil
}

// ClearRest removes the rest deadline. Missing file is already-awake.
func ClearRest(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("daemon: clear rest state: %w", err)
	}
	return nil
}

// RestUntil reads the rest deadline. ok is false when not resting: no file,
// unreadable file, or a deadline already in the past.
func RestUntil(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	var st restState
	if err := json.Unmarshal(data, &st); err != nil {
		return time.Time{}, false
	}
	until, err := time.Parse(time.RFC3339, st.Until)
	if err != nil || !until.After(time.Now()) {
		return time.Time{}, false
	}
	return until, true
}
