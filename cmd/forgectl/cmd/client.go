package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"docforge/pkg/models"
)

// CoordinatorClient handles API calls to the docforge coordinator.
type CoordinatorClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewCoordinatorClient creates a new client with the given base URL and token.
func NewCoordinatorClient(baseURL, token string) *CoordinatorClient {
	return &CoordinatorClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// WorkflowStatusResponse mirrors GET /workflows/sync/status/{id}.
type WorkflowStatusResponse struct {
	Status   models.WorkflowStatus `json:"status"`
	Controls struct {
		CanPause  bool `json:"canPause"`
		CanResume bool `json:"canResume"`
		CanCancel bool `json:"canCancel"`
	} `json:"controls"`
	Progress *models.WorkflowExecution `json:"progress,omitempty"`
}

// RecoveryResponse mirrors POST /workflows/{id}/recover.
type RecoveryResponse struct {
	ExecutionID          string               `json:"execution_id"`
	RecoveredFrom        int                  `json:"recovered_from"`
	AvailableCheckpoints []*models.Checkpoint `json:"available_checkpoints"`
}

// HealthResponse mirrors GET /monitoring/health.
type HealthResponse struct {
	Status  models.HealthState    `json:"status"`
	Metrics models.HealthSnapshot `json:"metrics"`
	Alerts  models.SystemHealth   `json:"alerts"`
}

// GetWorkflowStatus sends GET /workflows/sync/status/{id}.
func (c *CoordinatorClient) GetWorkflowStatus(workflowID string) (*WorkflowStatusResponse, error) {
	var result WorkflowStatusResponse
	endpoint := fmt.Sprintf("%s/api/v1/workflows/sync/status/%s", c.BaseURL, workflowID)
	if err := c.do(http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecoverWorkflow sends POST /workflows/{id}/recover. A nil fromCheckpoint
// recovers from the latest recoverable checkpoint.
func (c *CoordinatorClient) RecoverWorkflow(workflowID string, fromCheckpoint *int) (*RecoveryResponse, error) {
	body := map[string]any{}
	if fromCheckpoint != nil {
		body["from_checkpoint"] = *fromCheckpoint
	}

	var result RecoveryResponse
	endpoint := fmt.Sprintf("%s/api/v1/workflows/%s/recover", c.BaseURL, workflowID)
	if err := c.do(http.MethodPost, endpoint, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAlerts sends GET /monitoring/alerts with the given filters.
func (c *CoordinatorClient) ListAlerts(severity string, resolved *bool, limit int) ([]*models.Alert, error) {
	query := url.Values{}
	if severity != "" {
		query.Set("severity", severity)
	}
	if resolved != nil {
		query.Set("resolved", strconv.FormatBool(*resolved))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	endpoint := fmt.Sprintf("%s/api/v1/monitoring/alerts", c.BaseURL)
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var result []*models.Alert
	if err := c.do(http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveAlert sends PATCH /monitoring/alerts/{id} with the resolve action.
func (c *CoordinatorClient) ResolveAlert(alertID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/monitoring/alerts/%s", c.BaseURL, alertID)
	return c.do(http.MethodPatch, endpoint, map[string]string{"action": "resolve"}, nil)
}

// GetHealth sends GET /monitoring/health. A degraded service answers 503, so
// the status code is folded into the decoded response rather than treated as
// a transport error.
func (c *CoordinatorClient) GetHealth() (*HealthResponse, error) {
	req, err := c.newRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/monitoring/health", c.BaseURL), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result HealthResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

func (c *CoordinatorClient) newRequest(method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	req.Header.Add("Content-Type", "application/json")
	return req, nil
}

func (c *CoordinatorClient) do(method, endpoint string, body, out any) error {
	req, err := c.newRequest(method, endpoint, body)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
