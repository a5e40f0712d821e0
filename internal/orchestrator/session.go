// Package orchestrator binds user intents to the message log, the workflow
// machine, and the simulation lifecycle for one workspace session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/urbanflow/internal/chatlog"
	"github.com/user/urbanflow/internal/gateway"
	"github.com/user/urbanflow/internal/simulation"
	"github.com/user/urbanflow/internal/types"
	"github.com/user/urbanflow/internal/workflow"
	"github.com/user/urbanflow/pkg/agent"
)

var (
	// ErrUnknownForm is returned when the referenced message is not a form.
	ErrUnknownForm = errors.New("orchestrator: message is not a pending form")
	// ErrUnknownOption is returned when the option id is not among the
	// form's options. The log is left untouched.
	ErrUnknownOption = errors.New("orchestrator: unknown form option")
	// ErrEmptyInput is returned for blank user text.
	ErrEmptyInput = errors.New("orchestrator: empty input")
)

// FormPolicy decides whether an agent reply should be presented as a
// decision form instead of plain text. Returning nil keeps the reply as
// text. The default policy never forms; the trigger heuristic is a product
// decision that lives outside the core.
type FormPolicy func(turn agent.Turn) *types.FormRequest

// Session owns one conversation: its message log, its workflow machine, and
// at most one simulation run in flight. All writes go through OnUserText and
// OnFormResolved; everything else is read access.
type Session struct {
	ID  types.SessionID
	Key types.SessionKey

	log        *chatlog.Log
	flow       *workflow.Machine
	gw         *gateway.Gateway
	transcript *TranscriptBuilder
	formPolicy FormPolicy
	now        func() time.Time

	mu        sync.Mutex
	run       *simulation.Lifecycle
	compareFn []func()
}

// Option configures optional behavior on a Session.
type Option func(*Session)

// WithFormPolicy installs the form-trigger policy.
func WithFormPolicy(p FormPolicy) Option {
	return func(s *Session) { s.formPolicy = p }
}

// WithClock overrides the message timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithPlan overrides the workflow stage list.
func WithPlan(steps []types.WorkflowStep) Option {
	return func(s *Session) { s.flow = workflow.New(steps) }
}

// WithTranscriptBudget bounds the token count of history sent per chat call.
func WithTranscriptBudget(maxTokens int) Option {
	return func(s *Session) { s.transcript = NewTranscriptBuilder(maxTokens) }
}

// New creates a Session bound to the given gateway with the default
// four-stage plan.
func New(key types.SessionKey, gw *gateway.Gateway, opts ...Option) *Session {
	s := &Session{
		ID:   types.NewSessionID(),
		Key:  key,
		log:  chatlog.New(),
		flow: workflow.New(workflow.DefaultPlan()),
		gw:   gw,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transcript == nil {
		s.transcript = NewTranscriptBuilder(defaultTranscriptBudget)
	}
	return s
}

// Log exposes the message log for read access and observer registration.
func (s *Session) Log() *chatlog.Log { return s.log }

// Workflow exposes the stage machine for read access and observer
// registration.
func (s *Session) Workflow() *workflow.Machine { return s.flow }

// Messages returns the conversation in append order.
func (s *Session) Messages() []types.Message { return s.log.All() }

// Steps returns the workflow stages with current statuses.
func (s *Session) Steps() []types.WorkflowStep { return s.flow.Steps() }

// Simulation returns a snapshot of the current run, or a NotStarted snapshot
// when no run has been requested yet.
func (s *Session) Simulation() simulation.Snapshot {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return simulation.Snapshot{State: simulation.StateNotStarted}
	}
	return run.Snapshot()
}

// OnUserText appends the user's message, exchanges one chat turn with the
// backend, and appends exactly one reply message: either plain text or, when
// the form policy fires, a decision form.
func (s *Session) OnUserText(ctx context.Context, text string) (types.Message, error) {
	if text == "" {
		return types.Message{}, ErrEmptyInput
	}

	s.log.Append(types.Message{
		Sender: types.SenderUser,
		Kind:   types.MessageText,
		Text:   text,
		At:     s.now(),
	})

	transcript := s.transcript.Build(s.log.All())
	turn := s.gw.Converse(ctx, text, transcript)

	reply := types.Message{
		Sender: types.SenderAgent,
		Kind:   types.MessageText,
		Text:   turn.Content,
		At:     s.now(),
	}
	if s.formPolicy != nil {
		if form := s.formPolicy(turn); form != nil {
			reply = types.Message{
				Sender: types.SenderAgent,
				Kind:   types.MessageForm,
				Form:   form,
				At:     s.now(),
			}
		}
	}
	reply.ID = s.log.Append(reply)
	return reply, nil
}

// OnFormResolved records the user's choice from a posted form and kicks off
// a simulation run derived from the chosen option. The form message itself
// is never mutated. Invalid intents (unknown form, unknown option, run
// already in flight) fail without appending anything.
func (s *Session) OnFormResolved(ctx context.Context, formID types.MessageID, optionID string) error {
	formMsg, ok := s.log.Get(formID)
	if !ok || formMsg.Kind != types.MessageForm || formMsg.Form == nil {
		return ErrUnknownForm
	}
	opt, ok := formMsg.Form.Option(optionID)
	if !ok {
		return ErrUnknownOption
	}

	s.mu.Lock()
	if s.run != nil && !s.run.Terminal() {
		s.mu.Unlock()
		return simulation.ErrAlreadyRunning
	}
	run := simulation.New(s.gw)
	run.Subscribe(s.onRunChange)
	s.run = run
	s.mu.Unlock()

	// Capture the driving intent before the confirmation message lands.
	query := s.lastUserQuery()

	s.log.Append(types.Message{
		Sender: types.SenderUser,
		Kind:   types.MessageText,
		Text:   fmt.Sprintf("%s selected. Proceed.", opt.Label),
		At:     s.now(),
	})
	s.log.Append(types.Message{
		Sender: types.SenderAgent,
		Kind:   types.MessageStatus,
		Text:   "Initiating solver orchestration. This may take a moment...",
		At:     s.now(),
	})

	req := &agent.SimulationRequest{
		Query:      query,
		Parameters: &agent.SimulationParameters{Resolution: opt.ID},
	}
	if err := run.Start(ctx, req); err != nil {
		// Fresh lifecycle; only reachable if a concurrent start slipped in.
		return err
	}
	return nil
}

// PollSimulation drives one poll tick of the current run. Safe to call after
// abandonment: without a running lifecycle it is a no-op.
func (s *Session) PollSimulation(ctx context.Context) {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return
	}
	if err := run.Poll(ctx); err != nil {
		// Late ticks against a terminal run are expected and discarded.
		if !errors.Is(err, simulation.ErrNotRunning) {
			slog.Warn("simulation poll failed", "session_id", string(s.ID), "error", err)
		}
	}
}

// onRunChange reacts to lifecycle transitions. Exactly one terminal
// notification fires per run; a completed run narrates its results and
// advances the workflow exactly once.
func (s *Session) onRunChange(snap simulation.Snapshot) {
	switch snap.State {
	case simulation.StateCompleted:
		text := "Simulation complete."
		if snap.Results != nil {
			text = fmt.Sprintf("Simulation complete. Mean PET %.1f, peak PET %.1f.",
				snap.Results.MeanPET, snap.Results.MaxPET)
		}
		s.log.Append(types.Message{
			Sender: types.SenderAgent,
			Kind:   types.MessageStatus,
			Text:   text,
			At:     s.now(),
		})
		if err := s.flow.Advance(); err != nil {
			slog.Warn("workflow already terminal", "session_id", string(s.ID))
		}
	case simulation.StateFailed:
		text := "Simulation failed."
		if snap.Message != "" {
			text = "Simulation failed: " + snap.Message
		}
		s.log.Append(types.Message{
			Sender: types.SenderAgent,
			Kind:   types.MessageStatus,
			Text:   text,
			At:     s.now(),
		})
	}
}

// ExportReport downloads the current run's report in the given format. A nil
// payload means there is nothing to export (demo mode or no finished run).
func (s *Session) ExportReport(ctx context.Context, format string) []byte {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil || run.SessionID() == "" {
		return nil
	}
	return s.gw.ExportReport(ctx, run.SessionID(), format)
}

// SubscribeCompare registers a listener for comparison requests.
func (s *Session) SubscribeCompare(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compareFn = append(s.compareFn, fn)
}

// RequestComparison is a pure view-navigation signal: observers are notified
// and no core state changes.
func (s *Session) RequestComparison() {
	s.mu.Lock()
	listeners := make([]func(), len(s.compareFn))
	copy(listeners, s.compareFn)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// lastUserQuery returns the newest user text message, used as the
// simulation query.
func (s *Session) lastUserQuery() string {
	all := s.log.All()
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if m.Sender == types.SenderUser && m.Kind == types.MessageText {
			return m.Text
		}
	}
	return "run simulation"
}
