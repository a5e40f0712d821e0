package workflow

import (
	"errors"
	"testing"

	"github.com/user/urbanflow/internal/types"
)

// checkMonotonic fails the test if statuses are not completed* active? pending*.
func checkMonotonic(t *testing.T, steps []types.WorkflowStep) {
	t.Helper()
	phase := 0 // 0=completed, 1=active seen, 2=pending
	active := 0
	for _, s := range steps {
		switch s.Status {
		case types.StepCompleted:
			if phase > 0 {
				t.Fatalf("completed step %s after active/pending", s.ID)
			}
		case types.StepActive:
			active++
			if phase > 1 {
				t.Fatalf("active step %s after pending", s.ID)
			}
			phase = 1
		case types.StepPending:
			phase = 2
		}
	}
	if active > 1 {
		t.Fatalf("expected at most one active step, got %d", active)
	}
}

func TestMachineInitialState(t *testing.T) {
	m := New(DefaultPlan())

	cur, ok := m.Current()
	if !ok {
		t.Fatal("expected an active step on a fresh machine")
	}
	if cur.Label != "Intent Analysis" {
		t.Errorf("expected first step active, got %q", cur.Label)
	}
	checkMonotonic(t, m.Steps())
}

func TestMachineAdvanceToTerminal(t *testing.T) {
	plan := DefaultPlan()
	m := New(plan)

	for i := 0; i < len(plan); i++ {
		checkMonotonic(t, m.Steps())
		if err := m.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}

	if !m.Terminal() {
		t.Error("expected machine to be terminal after advancing through all steps")
	}
	for _, s := range m.Steps() {
		if s.Status != types.StepCompleted {
			t.Errorf("step %s: expected completed, got %s", s.ID, s.Status)
		}
	}
}

func TestMachineAdvancePastTerminal(t *testing.T) {
	m := New([]types.WorkflowStep{{ID: "1", Label: "Only"}})
	if err := m.Advance(); err != nil {
		t.Fatal(err)
	}

	before := m.Steps()
	err := m.Advance()
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	after := m.Steps()
	for i := range before {
		if before[i].Status != after[i].Status {
			t.Error("failed advance must leave state unchanged")
		}
	}
}

func TestMachineObserver(t *testing.T) {
	m := New(DefaultPlan())

	var notifications int
	m.Subscribe(func(steps []types.WorkflowStep) {
		notifications++
		checkMonotonic(t, steps)
	})

	if err := m.Advance(); err != nil {
		t.Fatal(err)
	}
	if notifications != 1 {
		t.Errorf("expected 1 notification, got %d", notifications)
	}

	cur, ok := m.Current()
	if !ok || cur.Label != "Geometry Analysis" {
		t.Errorf("expected Geometry Analysis active, got %+v", cur)
	}
}
