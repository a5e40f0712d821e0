// Package gateway is the single point of contact with the remote
// conversational/simulation backend. Every call degrades to a deterministic
// in-band value when the backend is unconfigured or failing; a network
// failure never surfaces as an error to the session layer.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/urbanflow/pkg/agent"
)

const fallbackReply = "Sorry, I encountered an error connecting to the backend. Please check if the server is running."

// Gateway wraps an agent.Provider with demo-mode fallback and
// failure-swallowing. A nil provider selects demo mode: every call returns
// deterministic local data with no network activity. The provider may be
// swapped at runtime, so the daemon's config reload can move a running
// process between demo and live without a restart.
type Gateway struct {
	mu       sync.RWMutex
	provider agent.Provider

	retry   *RetryPolicy
	timeout time.Duration
	now     func() time.Time

	demo *demoBackend
}

// Option configures optional behavior on a Gateway.
type Option func(*Gateway)

// WithRetryPolicy overrides the backoff policy used before falling back.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithClock overrides the clock used for demo session ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithTimeout bounds each backend call. Timeouts are treated like any other
// transport failure.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// New creates a Gateway. Pass a nil provider to run in demo mode.
func New(provider agent.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider: provider,
		retry:    DefaultRetryPolicy(),
		timeout:  30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.demo = newDemoBackend(g.now)
	return g
}

// Configured reports whether a backend endpoint has been supplied.
func (g *Gateway) Configured() bool {
	return g.backend() != nil
}

// SetProvider replaces the backend provider. Pass nil to drop back to demo
// mode. Calls already in flight finish against the provider they started
// with.
func (g *Gateway) SetProvider(p agent.Provider) {
	g.mu.Lock()
	g.provider = p
	g.mu.Unlock()
}

func (g *Gateway) backend() agent.Provider {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.provider
}

// HealthCheck probes the backend with a bounded timeout. It returns false,
// never an error, when unconfigured or unreachable; the caller's only valid
// reaction is to switch to demo mode.
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	p := g.backend()
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := p.Health(ctx); err != nil {
		slog.Warn("backend health check failed", "error", err)
		return false
	}
	return true
}

// Converse performs one chat exchange. Unconfigured mode returns a canned
// demo turn echoing the input; any transport or protocol failure returns a
// canned apology turn instead of an error.
func (g *Gateway) Converse(ctx context.Context, message string, transcript []agent.Turn) agent.Turn {
	p := g.backend()
	if p == nil {
		return g.demo.chat(message)
	}

	var turn *agent.Turn
	err := g.retry.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		turn, err = p.Chat(callCtx, message, transcript)
		return err
	})
	if err != nil {
		slog.Error("chat exchange failed", "error", err)
		return agent.Turn{
			Role:      agent.RoleAgent,
			Content:   fallbackReply,
			Timestamp: g.now(),
		}
	}

	turn.Content = sanitizeContent(turn.Content)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = g.now()
	}
	return *turn
}

// StartSimulation submits a run, falling back to a local demo run when
// unconfigured and to a status-error response on failure.
func (g *Gateway) StartSimulation(ctx context.Context, req *agent.SimulationRequest) *agent.SimulationResponse {
	p := g.backend()
	if p == nil {
		return g.demo.start(req)
	}

	resp, err := g.call(ctx, func(callCtx context.Context) (*agent.SimulationResponse, error) {
		return p.StartSimulation(callCtx, req)
	})
	if err != nil {
		slog.Error("start simulation failed", "error", err)
		return &agent.SimulationResponse{
			Status:  agent.StatusError,
			Message: "Failed to start simulation. Please check your backend connection.",
		}
	}
	return resp
}

// PollStatus reports progress for a running session.
func (g *Gateway) PollStatus(ctx context.Context, sessionID string) *agent.SimulationResponse {
	p := g.backend()
	if p == nil {
		return g.demo.status(sessionID)
	}

	resp, err := g.call(ctx, func(callCtx context.Context) (*agent.SimulationResponse, error) {
		return p.SimulationStatus(callCtx, sessionID)
	})
	if err != nil {
		slog.Error("poll status failed", "session_id", sessionID, "error", err)
		return &agent.SimulationResponse{
			Status:    agent.StatusError,
			SessionID: sessionID,
			Message:   "Failed to retrieve simulation status.",
		}
	}
	return resp
}

// FetchResults retrieves the full result set for a finished session.
func (g *Gateway) FetchResults(ctx context.Context, sessionID string) *agent.SimulationResponse {
	p := g.backend()
	if p == nil {
		return g.demo.results(sessionID)
	}

	resp, err := g.call(ctx, func(callCtx context.Context) (*agent.SimulationResponse, error) {
		return p.SimulationResults(callCtx, sessionID)
	})
	if err != nil {
		slog.Error("fetch results failed", "session_id", sessionID, "error", err)
		return &agent.SimulationResponse{
			Status:    agent.StatusError,
			SessionID: sessionID,
			Message:   "Failed to retrieve simulation results.",
		}
	}
	return resp
}

// ExportReport downloads a rendered report. Demo mode and failures both
// yield nil, which callers treat as "nothing to export".
func (g *Gateway) ExportReport(ctx context.Context, sessionID, format string) []byte {
	p := g.backend()
	if p == nil {
		slog.Warn("backend not configured, cannot export report", "session_id", sessionID)
		return nil
	}

	var data []byte
	err := g.retry.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		data, err = p.ExportReport(callCtx, sessionID, format)
		return err
	})
	if err != nil {
		slog.Error("export report failed", "session_id", sessionID, "format", format, "error", err)
		return nil
	}
	return data
}

func (g *Gateway) call(ctx context.Context, fn func(context.Context) (*agent.SimulationResponse, error)) (*agent.SimulationResponse, error) {
	var resp *agent.SimulationResponse
	err := g.retry.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		resp, err = fn(callCtx)
		return err
	})
	return resp, err
}

// sanitizeContent converts HTML-fragment replies to markdown so they render
// cleanly in text surfaces. Plain text passes through untouched.
func sanitizeContent(content string) string {
	if !strings.Contains(content, "</") && !strings.Contains(content, "/>") {
		return content
	}
	md, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(md)
}
