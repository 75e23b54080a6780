// Package apiclient provides an HTTP client for the thirdeye v1 API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Client is an HTTP client for the thirdeye v1 API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ErrorResponse represents an error response from the server.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Violation *domain.Violation `json:"violation,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("thirdeye returned status %d: %s", e.StatusCode, e.Message)
}

// ViolationError is returned when the server refuses an eye for ordering or policy reasons.
type ViolationError struct {
	StatusCode int
	Violation  *domain.Violation
}

func (e *ViolationError) Error() string {
	v := e.Violation
	return fmt.Sprintf("order violation: got %s, expected %v (%s)", v.Got, v.Expected, v.Reason)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call thirdeye: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Violation != nil {
				return &ViolationError{StatusCode: resp.StatusCode, Violation: errResp.Violation}
			}
			if errResp.Error != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Submit calls POST /v1/pipeline/submit with a task.
func (c *Client) Submit(ctx context.Context, sessionID, task string) (*domain.FlowResult, error) {
	var result domain.FlowResult
	req := domain.SubmitRequest{SessionID: sessionID, Task: task}
	if err := c.do(ctx, http.MethodPost, "/v1/pipeline/submit", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunEye calls POST /v1/pipeline/submit with a single eye.
func (c *Client) RunEye(ctx context.Context, sessionID string, eye domain.Eye, input string) (*domain.Envelope, error) {
	var env domain.Envelope
	req := domain.SubmitRequest{SessionID: sessionID, Eye: eye, Input: input}
	if err := c.do(ctx, http.MethodPost, "/v1/pipeline/submit", req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Rerun calls POST /v1/pipeline/rerun.
func (c *Client) Rerun(ctx context.Context, req domain.RerunRequest) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := c.do(ctx, http.MethodPost, "/v1/pipeline/rerun", req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Analyze calls POST /v1/pipeline/analyze.
func (c *Client) Analyze(ctx context.Context, task string) (*domain.RoutingDecision, error) {
	var decision domain.RoutingDecision
	if err := c.do(ctx, http.MethodPost, "/v1/pipeline/analyze", domain.AnalyzeRequest{Task: task}, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// Status calls GET /v1/sessions/:session_id/status.
func (c *Client) Status(ctx context.Context, sessionID string) (*domain.StatusResponse, error) {
	var status domain.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// KillSession calls POST /v1/sessions/:session_id/kill.
func (c *Client) KillSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/kill", nil, nil)
}

// RunDuel calls POST /v1/duels.
func (c *Client) RunDuel(ctx context.Context, req domain.DuelRequest) (*domain.DuelRun, error) {
	var run domain.DuelRun
	if err := c.do(ctx, http.MethodPost, "/v1/duels", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// StartBackgroundDuel calls POST /v1/duels/background.
func (c *Client) StartBackgroundDuel(ctx context.Context, req domain.BackgroundDuelRequest) (*domain.BackgroundDuelResponse, error) {
	var resp domain.BackgroundDuelResponse
	if err := c.do(ctx, http.MethodPost, "/v1/duels/background", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDuel calls GET /v1/duels/:duel_id/results.
func (c *Client) GetDuel(ctx context.Context, duelID string) (*domain.DuelRun, error) {
	var run domain.DuelRun
	if err := c.do(ctx, http.MethodGet, "/v1/duels/"+url.PathEscape(duelID)+"/results", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListEyes calls GET /v1/eyes.
func (c *Client) ListEyes(ctx context.Context) ([]domain.EyeDescriptor, error) {
	var resp struct {
		Eyes []domain.EyeDescriptor `json:"eyes"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/eyes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Eyes, nil
}

// WebSocketURL returns the event subscription URL for a session.
func (c *Client) WebSocketURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	if sessionID != "" {
		u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()
	}
	return u.String(), nil
}
