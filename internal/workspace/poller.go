package workspace

import (
	"context"
	"log/slog"
	"time"
)

// Poller drives status polls for every live session's simulation run on a
// fixed interval. Polls go through the intent queue so they never interleave
// with a user intent on the same session.
type Poller struct {
	registry *Registry
	queue    *Queue
	interval time.Duration
}

// NewPoller creates a Poller ticking at the given interval.
func NewPoller(registry *Registry, queue *Queue, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{registry: registry, queue: queue, interval: interval}
}

// Run ticks until the context is cancelled. Sessions without a running
// simulation are skipped cheaply; late ticks against finished runs are
// discarded by the lifecycle.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) tick() {
	for _, sess := range p.registry.All() {
		sess := sess
		err := p.queue.Submit(sess.ID, func(ctx context.Context) {
			sess.PollSimulation(ctx)
		})
		if err != nil {
			// A full lane means the session is already saturated with
			// intents; the next tick retries.
			slog.Debug("poll enqueue skipped", "session_id", string(sess.ID), "error", err)
		}
	}
}
