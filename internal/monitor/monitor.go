// Package monitor keeps a periodically refreshed view of backend
// reachability so surfaces can show live / demo / offline without probing
// on every request.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/user/urbanflow/internal/gateway"
)

// Mode is the workspace's operating mode as of the last probe.
type Mode string

const (
	// ModeDemo means no backend endpoint is configured.
	ModeDemo Mode = "demo"
	// ModeLive means the configured backend answered the last probe.
	ModeLive Mode = "live"
	// ModeOffline means the configured backend failed the last probe.
	ModeOffline Mode = "offline"
)

// Monitor probes the gateway's health on a cron schedule.
type Monitor struct {
	gw       *gateway.Gateway
	cron     *cron.Cron
	schedule string
	mode     atomic.Value
}

// New creates a Monitor with the given cron schedule, e.g. "@every 30s".
func New(gw *gateway.Gateway, schedule string) *Monitor {
	if schedule == "" {
		schedule = "@every 30s"
	}
	m := &Monitor{
		gw:       gw,
		cron:     cron.New(),
		schedule: schedule,
	}
	m.mode.Store(ModeDemo)
	return m
}

// Start probes once immediately, then on every schedule tick.
func (m *Monitor) Start() error {
	m.probe()
	if _, err := m.cron.AddFunc(m.schedule, m.probe); err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (m *Monitor) Stop() {
	m.cron.Stop()
}

// Refresh probes immediately, outside the schedule. Called after a config
// reload swaps the gateway's provider so surfaces don't report a stale mode
// until the next tick.
func (m *Monitor) Refresh() {
	m.probe()
}

// Mode returns the mode as of the last probe.
func (m *Monitor) Mode() Mode {
	return m.mode.Load().(Mode)
}

func (m *Monitor) probe() {
	var next Mode
	switch {
	case !m.gw.Configured():
		next = ModeDemo
	case m.gw.HealthCheck(context.Background()):
		next = ModeLive
	default:
		next = ModeOffline
	}

	if prev := m.Mode(); prev != next {
		slog.Info("backend mode changed", "from", string(prev), "to", string(next))
	}
	m.mode.Store(next)
}
