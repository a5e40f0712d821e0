// Package simulation tracks one simulation run from submission to terminal
// state against the backend gateway.
package simulation

import (
	"context"
	"errors"
	"sync"

	"github.com/user/urbanflow/internal/gateway"
	"github.com/user/urbanflow/pkg/agent"
)

// State is the lifecycle position of a run.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in flight.
	ErrAlreadyRunning = errors.New("simulation: a run is already in flight")
	// ErrFinished is returned by Start on a terminal lifecycle; a new run
	// needs a new Lifecycle.
	ErrFinished = errors.New("simulation: lifecycle already finished")
	// ErrNotRunning is returned by Poll outside the Running state.
	ErrNotRunning = errors.New("simulation: no run in progress")
)

// Snapshot is a point-in-time view of a run for consumers.
type Snapshot struct {
	State     State                    `json:"state"`
	SessionID string                   `json:"session_id,omitempty"`
	Progress  int                      `json:"progress"`
	Message   string                   `json:"message,omitempty"`
	Results   *agent.SimulationResults `json:"results,omitempty"`
}

// Observer is notified synchronously after every state or progress change.
// Presentation layers watch for the Completed/Failed transition instead of
// relying on wall-clock delays.
type Observer func(Snapshot)

// Lifecycle is the state machine over a single simulation run:
// NotStarted -> Starting -> Running -> Completed | Failed. Terminal states
// are final; the backend session id never changes once issued. The guard in
// Start is the sole cross-operation mutual exclusion the session needs.
type Lifecycle struct {
	gw *gateway.Gateway

	mu        sync.Mutex
	state     State
	sessionID string
	progress  int
	message   string
	results   *agent.SimulationResults
	observers []Observer
}

// New creates a Lifecycle in the NotStarted state.
func New(gw *gateway.Gateway) *Lifecycle {
	return &Lifecycle{gw: gw, state: StateNotStarted}
}

// Subscribe registers an observer for future changes.
func (l *Lifecycle) Subscribe(fn Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Start submits the run. A second Start while one is in flight fails with
// ErrAlreadyRunning rather than silently superseding it; Start on a terminal
// lifecycle fails with ErrFinished. State is left unchanged on either.
func (l *Lifecycle) Start(ctx context.Context, req *agent.SimulationRequest) error {
	l.mu.Lock()
	switch l.state {
	case StateStarting, StateRunning:
		l.mu.Unlock()
		return ErrAlreadyRunning
	case StateCompleted, StateFailed:
		l.mu.Unlock()
		return ErrFinished
	}
	l.state = StateStarting
	l.mu.Unlock()
	l.notify()

	resp := l.gw.StartSimulation(ctx, req)
	l.apply(ctx, resp)
	return nil
}

// Poll refreshes progress for a running session. A success status triggers
// exactly one results fetch; the status payload may omit results to keep
// polling cheap.
func (l *Lifecycle) Poll(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return ErrNotRunning
	}
	sessionID := l.sessionID
	l.mu.Unlock()

	resp := l.gw.PollStatus(ctx, sessionID)
	l.apply(ctx, resp)
	return nil
}

// apply folds a backend response into the state machine. Late responses
// arriving after a terminal transition are discarded.
func (l *Lifecycle) apply(ctx context.Context, resp *agent.SimulationResponse) {
	l.mu.Lock()
	if l.state == StateCompleted || l.state == StateFailed {
		l.mu.Unlock()
		return
	}
	if l.sessionID == "" {
		l.sessionID = resp.SessionID
	}
	l.message = resp.Message

	switch resp.Status {
	case agent.StatusPending:
		l.state = StateRunning
		if resp.Progress > l.progress {
			l.progress = resp.Progress
		}
		l.mu.Unlock()
		l.notify()

	case agent.StatusSuccess:
		if resp.Results == nil {
			sessionID := l.sessionID
			l.mu.Unlock()
			full := l.gw.FetchResults(ctx, sessionID)
			l.mu.Lock()
			if full.Status == agent.StatusSuccess {
				l.results = full.Results
			} else {
				l.message = full.Message
			}
		} else {
			l.results = resp.Results
		}
		l.state = StateCompleted
		l.progress = 100
		l.mu.Unlock()
		l.notify()

	case agent.StatusError:
		l.state = StateFailed
		l.mu.Unlock()
		l.notify()

	default:
		l.mu.Unlock()
	}
}

// Snapshot returns the current view of the run.
func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		State:     l.state,
		SessionID: l.sessionID,
		Progress:  l.progress,
		Message:   l.message,
		Results:   l.results,
	}
}

// Terminal reports whether the run has reached Completed or Failed.
func (l *Lifecycle) Terminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateCompleted || l.state == StateFailed
}

// SessionID returns the backend session id, empty until issued.
func (l *Lifecycle) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

func (l *Lifecycle) notify() {
	l.mu.Lock()
	snap := Snapshot{
		State:     l.state,
		SessionID: l.sessionID,
		Progress:  l.progress,
		Message:   l.message,
		Results:   l.results,
	}
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}
