// Package rest implements the agent.Provider interface against the
// simulation backend's JSON-over-HTTP contract.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/user/urbanflow/pkg/agent"
)

const defaultTimeout = 30 * time.Second

// Client is an HTTP client for the simulation backend.
type Client struct {
	config     *agent.Config
	httpClient *http.Client
}

// New creates a backend client with the given configuration.
func New(config *agent.Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatRequest is the POST /chat request body.
type chatRequest struct {
	Message string       `json:"message"`
	History []agent.Turn `json:"history"`
}

// chatResponse is the POST /chat response body. Older backends use
// "message" instead of "response" for the reply text.
type chatResponse struct {
	Response string          `json:"response"`
	Message  string          `json:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// Chat performs one POST /chat exchange.
func (c *Client) Chat(ctx context.Context, message string, history []agent.Turn) (*agent.Turn, error) {
	body, err := json.Marshal(chatRequest{Message: message, History: history})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	content := chatResp.Response
	if content == "" {
		content = chatResp.Message
	}
	if content == "" {
		return nil, fmt.Errorf("empty reply from backend")
	}

	return &agent.Turn{
		Role:      agent.RoleAgent,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  chatResp.Metadata,
	}, nil
}

// StartSimulation submits POST /simulation/start.
func (c *Client) StartSimulation(ctx context.Context, simReq *agent.SimulationRequest) (*agent.SimulationResponse, error) {
	body, err := json.Marshal(simReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/simulation/start", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return c.simulationResponse(req)
}

// SimulationStatus fetches GET /simulation/{id}/status.
func (c *Client) SimulationStatus(ctx context.Context, sessionID string) (*agent.SimulationResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/simulation/"+url.PathEscape(sessionID)+"/status", nil)
	if err != nil {
		return nil, err
	}
	return c.simulationResponse(req)
}

// SimulationResults fetches GET /simulation/{id}/results.
func (c *Client) SimulationResults(ctx context.Context, sessionID string) (*agent.SimulationResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/simulation/"+url.PathEscape(sessionID)+"/results", nil)
	if err != nil {
		return nil, err
	}
	return c.simulationResponse(req)
}

func (c *Client) simulationResponse(req *http.Request) (*agent.SimulationResponse, error) {
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var simResp agent.SimulationResponse
	if err := json.Unmarshal(body, &simResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &simResp, nil
}

// ExportReport downloads GET /simulation/{id}/export?format= as a binary blob.
func (c *Client) ExportReport(ctx context.Context, sessionID, format string) ([]byte, error) {
	path := "/simulation/" + url.PathEscape(sessionID) + "/export?format=" + url.QueryEscape(format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return c.do(req)
}
