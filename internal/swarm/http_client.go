package swarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second

	// maxErrorBodyBytes bounds how much of an error response is read
	// for diagnostics.
	maxErrorBodyBytes = 4096
)

// HTTPClientOption is a functional option for configuring the HTTP client.
type HTTPClientOption func(*HTTPClient)

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRetryPolicy sets the retry behavior for failed requests. The client
// retries up to maxRetries times with exponential backoff.
func WithRetryPolicy(maxRetries int, retryDelay time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if retryDelay > 0 {
			c.retryDelay = retryDelay
		}
	}
}

// WithHTTPLogger sets the logger for request diagnostics.
func WithHTTPLogger(logger *slog.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// HTTPClient implements Client against the orchestration service's JSON
// API. Requests carry a bearer API key and retry transient failures
// (connection errors, 429, 500, 503) with exponential backoff.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewHTTPClient creates a client for the service at baseURL. The API key
// may be empty for unauthenticated deployments.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type swarmCreateResponse struct {
	SwarmID types.ID `json:"swarm_id"`
}

type agentSpawnResponse struct {
	AgentID types.ID `json:"agent_id"`
}

type agentBatchRequest struct {
	Agents         []AgentSpec `json:"agents"`
	BatchSize      int         `json:"batch_size,omitempty"`
	MaxConcurrency int         `json:"max_concurrency,omitempty"`
}

type agentBatchResponse struct {
	AgentIDs []types.ID `json:"agent_ids"`
}

type taskSubmitResponse struct {
	TaskID types.ID `json:"task_id"`
}

type taskStatusResponse struct {
	Status TaskStatus `json:"status"`
}

type taskResultsResponse struct {
	Results map[string]any `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// InitSwarm implements Client.
func (c *HTTPClient) InitSwarm(ctx context.Context, req InitRequest) (types.ID, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var resp swarmCreateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/swarms", req, &resp); err != nil {
		return "", err
	}
	if resp.SwarmID.IsZero() {
		return "", fmt.Errorf("service returned no swarm id")
	}
	return resp.SwarmID, nil
}

// SpawnAgent implements Client.
func (c *HTTPClient) SpawnAgent(ctx context.Context, swarmID types.ID, spec AgentSpec) (types.ID, error) {
	var resp agentSpawnResponse
	path := fmt.Sprintf("/v1/swarms/%s/agents", swarmID)
	if err := c.do(ctx, http.MethodPost, path, spec, &resp); err != nil {
		return "", err
	}
	if resp.AgentID.IsZero() {
		return "", fmt.Errorf("service returned no agent id")
	}
	return resp.AgentID, nil
}

// SpawnAgents implements Client.
func (c *HTTPClient) SpawnAgents(ctx context.Context, swarmID types.ID, specs []AgentSpec, opts BatchOptions) ([]types.ID, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	req := agentBatchRequest{
		Agents:         specs,
		BatchSize:      opts.BatchSize,
		MaxConcurrency: opts.MaxConcurrency,
	}

	var resp agentBatchResponse
	path := fmt.Sprintf("/v1/swarms/%s/agents:batch", swarmID)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.AgentIDs) != len(specs) {
		return nil, fmt.Errorf("service returned %d agent ids for %d specs",
			len(resp.AgentIDs), len(specs))
	}
	return resp.AgentIDs, nil
}

// SubmitTask implements Client.
func (c *HTTPClient) SubmitTask(ctx context.Context, swarmID types.ID, req TaskRequest) (types.ID, error) {
	var resp taskSubmitResponse
	path := fmt.Sprintf("/v1/swarms/%s/tasks", swarmID)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	if resp.TaskID.IsZero() {
		return "", fmt.Errorf("service returned no task id")
	}
	return resp.TaskID, nil
}

// TaskStatus implements Client.
func (c *HTTPClient) TaskStatus(ctx context.Context, taskID types.ID) (TaskStatus, error) {
	var resp taskStatusResponse
	path := fmt.Sprintf("/v1/tasks/%s/status", taskID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// TaskResults implements Client.
func (c *HTTPClient) TaskResults(ctx context.Context, taskID types.ID) (map[string]any, error) {
	var resp taskResultsResponse
	path := fmt.Sprintf("/v1/tasks/%s/results", taskID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// CancelTask implements Client.
func (c *HTTPClient) CancelTask(ctx context.Context, taskID types.ID) error {
	path := fmt.Sprintf("/v1/tasks/%s:cancel", taskID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DestroySwarm implements Client.
func (c *HTTPClient) DestroySwarm(ctx context.Context, swarmID types.ID) error {
	path := fmt.Sprintf("/v1/swarms/%s", swarmID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do sends one JSON request with retry and decodes the response into out
// (which may be nil for operations with no response body of interest).
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryDelay
			c.logger.Debug("retrying request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("cancelled while retrying %s %s: %w", method, path, ctx.Err())
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
			}
			lastErr = err
			continue
		}

		retryable, err := c.handleResponse(resp, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, c.maxRetries+1, lastErr)
}

// handleResponse consumes one response. The bool reports whether the
// failure is worth retrying.
func (c *HTTPClient) handleResponse(resp *http.Response, out any) (bool, error) {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		return false, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	message := string(bytes.TrimSpace(raw))
	var svcErr errorResponse
	if json.Unmarshal(raw, &svcErr) == nil && svcErr.Error != "" {
		message = svcErr.Error
	}

	err := fmt.Errorf("service returned HTTP %d: %s", resp.StatusCode, message)

	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable:
		return true, err
	default:
		return false, err
	}
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)
