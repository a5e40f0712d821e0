package agent

import (
	"context"
	"time"
)

// Provider defines the interface for talking to a simulation backend.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing.
type Provider interface {
	// Health probes the backend; a nil error means reachable.
	Health(ctx context.Context) error

	// Chat sends one message plus the prior transcript and returns the
	// backend's reply turn.
	Chat(ctx context.Context, message string, history []Turn) (*Turn, error)

	// StartSimulation submits a new run.
	StartSimulation(ctx context.Context, req *SimulationRequest) (*SimulationResponse, error)

	// SimulationStatus reports progress for a running session.
	SimulationStatus(ctx context.Context, sessionID string) (*SimulationResponse, error)

	// SimulationResults fetches the full result set for a finished session.
	SimulationResults(ctx context.Context, sessionID string) (*SimulationResponse, error)

	// ExportReport downloads a rendered report in the given format.
	ExportReport(ctx context.Context, sessionID, format string) ([]byte, error)
}

// Config holds common configuration for backend providers.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}
