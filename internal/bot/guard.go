package bot

import (
	"sync"
	"time"
)

// RunState is a snapshot of the front end's run bookkeeping.
type RunState struct {
	Busy         bool      `json:"busy"`
	Operation    string    `json:"operation,omitempty"`
	LastRunID    string    `json:"last_run_id,omitempty"`
	LastStarted  time.Time `json:"last_started,omitzero"`
	LastFinished time.Time `json:"last_finished,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}

// RunGuard allows at most one operation at a time across chat commands and
// scheduled runs.
type RunGuard struct {
	mu    sync.Mutex
	state RunState
	now   func() time.Time
}

// NewRunGuard returns an idle guard.
func NewRunGuard() *RunGuard {
	return &RunGuard{now: time.Now}
}

// TryAcquire marks the guard busy with op. It returns false if another
// operation already holds it.
func (g *RunGuard) TryAcquire(op string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Busy {
		return false
	}
	g.state.Busy = true
	g.state.Operation = op
	g.state.LastStarted = g.now()
	return true
}

// Release frees the guard and records the outcome of the operation.
func (g *RunGuard) Release(runID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Busy = false
	g.state.Operation = ""
	g.state.LastFinished = g.now()
	if runID != "" {
		g.state.LastRunID = runID
	}
	g.state.LastError = ""
	if err != nil {
		g.state.LastError = err.Error()
	}
}

// State returns a copy of the current state.
func (g *RunGuard) State() RunState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
