package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docforge/pkg/models"
)

// HTTPAgentClient is an HTTP implementation of AgentRuntimeClient.
type HTTPAgentClient struct {
	url        string
	timeout    time.Duration
	maxRetries int
	client     *http.Client
}

// NewHTTPAgentClient creates a new HTTPAgentClient. timeout bounds each
// attempt; maxRetries bounds how often an unreachable runtime is retried
// before models.ErrServiceUnavailable is surfaced.
func NewHTTPAgentClient(url string, timeout time.Duration, maxRetries int) *HTTPAgentClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPAgentClient{
		url:        url,
		timeout:    timeout,
		maxRetries: maxRetries,
		client:     &http.Client{},
	}
}

type resumeRequest struct {
	WorkflowID string `json:"workflow_id"`
	FromStep   int    `json:"from_step"`
	Snapshot   []byte `json:"snapshot,omitempty"`
}

// ResumeWorkflow instructs the agent runtime to resume a workflow from the
// given step.
func (c *HTTPAgentClient) ResumeWorkflow(ctx context.Context, workflowID string, fromStep int, snapshot []byte) error {
	body, err := json.Marshal(resumeRequest{WorkflowID: workflowID, FromStep: fromStep, Snapshot: snapshot})
	if err != nil {
		return fmt.Errorf("failed to marshal resume request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("agent runtime: %w: %v", models.ErrServiceUnavailable, err)
		}
		lastErr = c.resumeOnce(ctx, body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("agent runtime unreachable after %d attempts: %w: %v", c.maxRetries+1, models.ErrServiceUnavailable, lastErr)
}

func (c *HTTPAgentClient) resumeOnce(ctx context.Context, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url+"/resume", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("resume rejected: status code %d", resp.StatusCode)
	}
	return nil
}
