package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Priority is one tracked work item in the shared state document.
type Priority struct {
	Task       string `json:"task"`
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// Instance is one process's presence record.
type Instance struct {
	Status    string `json:"status"`
	WorkingOn string `json:"working_on,omitempty"`
	LastSeen  string `json:"last_seen"`
}

// SharedState is the whole-document coordination state. Readers get whatever
// the last writer left; there is no merge.
type SharedState struct {
	Priorities      []Priority          `json:"priorities"`
	ActiveInstances map[string]Instance `json:"active_instances"`
	Decisions       []string            `json:"decisions"`
	LastUpdated     string              `json:"last_updated"`
	UpdatedBy       string              `json:"updated_by"`
}

// ReadState loads shared_state.json. A missing file yields an empty state,
// not an error; a corrupt file is an error so the caller does not clobber
// someone else's half-written update with zeros.
func (h *Hub) ReadState() (SharedState, error) {
	var st SharedState
	data, err := os.ReadFile(filepath.Join(h.dir, SharedStateFile))
	if errors.Is(err, os.ErrNotExist) {
		return SharedState{ActiveInstances: map[string]Instance{}}, nil
	}
	if err != nil {
		return st, fmt.Errorf("hub: read state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("hub: parse state: %w", err)
	}
	if st.ActiveInstances == nil {
		st.ActiveInstances = map[string]Instance{}
	}
	return st, nil
}

// WriteState replaces shared_state.json wholesale, stamping the writer.
func (h *Hub) WriteState(st SharedState, writer string) error {
	st.LastUpdated = time.Now().Format(time.RFC3339)
	st.UpdatedBy = writer
	if st.ActiveInstances == nil {
		st.ActiveInstances = map[string]Instance{}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("hub: marshal state: %w", err)
	}
	path := filepath.Join(h.dir, SharedStateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // shared by design
		return fmt.Errorf("hub: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("hub: publish state: %w", err)
	}
	return nil
}

// Checkin updates one instance's presence record, preserving the rest of the
// document.
func (h *Hub) Checkin(name, status, workingOn string) error {
	st, err := h.ReadState()
	if err != nil {
		return err
	}
	st.ActiveInstances[name] = Instance{
		Status:    status,
		WorkingOn: workingOn,
		LastSeen:  time.Now().Format(time.RFC3339),
	}
	return h.WriteState(st, name)
}

// HasActivePriority reports whether any priority is marked in progress. The
// cost gate treats this as "someone is already on it".
func (st SharedState) HasActivePriority() bool {
	for _, p := range st.Priorities {
		if strings.EqualFold(p.Status, "in_progress") {
			return true
		}
	}
	return false
}
