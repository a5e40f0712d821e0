package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/urbanflow/pkg/agent"
)

// demoProgressStep is how much a demo run advances per status poll.
const demoProgressStep = 25

// demoBackend produces deterministic local data so the workspace stays fully
// exercisable without a live backend.
type demoBackend struct {
	now func() time.Time

	mu       sync.Mutex
	progress map[string]int
}

func newDemoBackend(now func() time.Time) *demoBackend {
	return &demoBackend{
		now:      now,
		progress: make(map[string]int),
	}
}

func (d *demoBackend) chat(message string) agent.Turn {
	return agent.Turn{
		Role:      agent.RoleAgent,
		Content:   fmt.Sprintf("[Demo Mode] I received your message: %q. To enable full agent functionality, configure a backend endpoint.", message),
		Timestamp: d.now(),
	}
}

func (d *demoBackend) start(_ *agent.SimulationRequest) *agent.SimulationResponse {
	id := fmt.Sprintf("demo-%d", d.now().UnixMilli())

	d.mu.Lock()
	d.progress[id] = 0
	d.mu.Unlock()

	return &agent.SimulationResponse{
		Status:    agent.StatusPending,
		SessionID: id,
		Message:   "[Demo Mode] Simulation queued locally. Configure a backend endpoint to run real solvers.",
		Progress:  0,
	}
}

// status advances the run by a fixed increment per poll; once it reaches 100
// the run reports success. The status payload stays cheap: full results come
// from a separate results call.
func (d *demoBackend) status(sessionID string) *agent.SimulationResponse {
	d.mu.Lock()
	p := d.progress[sessionID] + demoProgressStep
	if p > 100 {
		p = 100
	}
	d.progress[sessionID] = p
	d.mu.Unlock()

	if p >= 100 {
		return &agent.SimulationResponse{
			Status:    agent.StatusSuccess,
			SessionID: sessionID,
			Message:   "[Demo Mode] Simulation complete.",
			Progress:  100,
		}
	}
	return &agent.SimulationResponse{
		Status:    agent.StatusPending,
		SessionID: sessionID,
		Message:   "[Demo Mode] Solver running.",
		Progress:  p,
	}
}

func (d *demoBackend) results(sessionID string) *agent.SimulationResponse {
	return &agent.SimulationResponse{
		Status:    agent.StatusSuccess,
		SessionID: sessionID,
		Message:   "[Demo Mode] Showing mock results.",
		Results: &agent.SimulationResults{
			MeanPET:   35.2,
			MaxPET:    38.5,
			WindSpeed: 1.2,
			Recommendations: []string{
				"Increase canopy cover by 20% in the north-east quadrant",
				"Consider adding water features for evaporative cooling",
				"Install high-albedo materials on exposed surfaces",
			},
		},
	}
}
