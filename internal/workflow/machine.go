// Package workflow implements the ordered stage machine shown as the
// session's execution plan.
package workflow

import (
	"errors"
	"sync"

	"github.com/user/urbanflow/internal/types"
)

// ErrInvalidTransition is returned by Advance when the machine is already
// terminal (every stage completed).
var ErrInvalidTransition = errors.New("workflow: no active step to advance")

// Observer is notified synchronously after each successful transition.
type Observer func(steps []types.WorkflowStep)

// Machine is an ordered fixed list of named stages. Statuses are monotonic
// left to right: completed stages precede the single active stage, which
// precedes all pending stages. There are no backward transitions; restarting
// means constructing a fresh Machine.
type Machine struct {
	mu        sync.RWMutex
	steps     []types.WorkflowStep
	observers []Observer
}

// New creates a Machine from the given stage definitions. The first stage
// starts active, the rest pending. Statuses on the inputs are ignored.
func New(steps []types.WorkflowStep) *Machine {
	owned := make([]types.WorkflowStep, len(steps))
	copy(owned, steps)
	for i := range owned {
		if i == 0 {
			owned[i].Status = types.StepActive
		} else {
			owned[i].Status = types.StepPending
		}
	}
	return &Machine{steps: owned}
}

// DefaultPlan returns the standard four-stage simulation plan.
func DefaultPlan() []types.WorkflowStep {
	return []types.WorkflowStep{
		{ID: "1", Label: "Intent Analysis", Description: "Parse query & objectives"},
		{ID: "2", Label: "Geometry Analysis", Description: "Parse STL, set bounds"},
		{ID: "3", Label: "Solver Orchestration", Description: "Configure CFD parameters"},
		{ID: "4", Label: "Result Integration", Description: "Heat maps & comfort index"},
	}
}

// Subscribe registers an observer for future transitions.
func (m *Machine) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Advance completes the active stage and activates the next pending one.
// On a terminal machine it returns ErrInvalidTransition and changes nothing.
func (m *Machine) Advance() error {
	m.mu.Lock()
	idx := -1
	for i, s := range m.steps {
		if s.Status == types.StepActive {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrInvalidTransition
	}

	m.steps[idx].Status = types.StepCompleted
	if idx+1 < len(m.steps) {
		m.steps[idx+1].Status = types.StepActive
	}
	snapshot := m.snapshotLocked()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
	return nil
}

// Current returns the active stage, or false if the machine is terminal.
func (m *Machine) Current() (types.WorkflowStep, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.steps {
		if s.Status == types.StepActive {
			return s, true
		}
	}
	return types.WorkflowStep{}, false
}

// Terminal reports whether every stage has completed.
func (m *Machine) Terminal() bool {
	_, ok := m.Current()
	return !ok
}

// Steps returns a stable copy of the stage list with current statuses.
func (m *Machine) Steps() []types.WorkflowStep {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() []types.WorkflowStep {
	out := make([]types.WorkflowStep, len(m.steps))
	copy(out, m.steps)
	return out
}
