package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"docforge/internal/alerting"
	"docforge/pkg/models"
)

type compositeHealth struct {
	Status  models.HealthState    `json:"status"`
	Metrics models.HealthSnapshot `json:"metrics"`
	Alerts  models.SystemHealth   `json:"alerts"`
}

// MonitoringHealth merges the metrics pipeline health with the alerting
// health into one composite status, answering 503 when unhealthy
// (GET /monitoring/health)
func (s *Server) MonitoringHealth(c echo.Context) error {
	snapshot := s.Metrics.HealthSnapshot()
	alertHealth := s.Alerts.SystemHealth()

	status := snapshot.Status
	switch alertHealth.Status {
	case "critical":
		status = models.HealthUnhealthy
	case "degraded":
		if status == models.HealthHealthy {
			status = models.HealthDegraded
		}
	}

	httpStatus := http.StatusOK
	if status == models.HealthUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, compositeHealth{Status: status, Metrics: snapshot, Alerts: alertHealth})
}

// ListAlerts returns alerts matching the query filters, most recent first
// (GET /monitoring/alerts)
func (s *Server) ListAlerts(c echo.Context) error {
	filter := alerting.ListFilter{
		TenantID: c.QueryParam("tenantId"),
		Severity: models.AlertSeverity(c.QueryParam("severity")),
		Limit:    50,
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return s.writeError(c, fmt.Errorf("%w: unknown severity %q", models.ErrValidation, filter.Severity))
	}
	if raw := c.QueryParam("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return s.writeError(c, fmt.Errorf("%w: resolved must be a boolean", models.ErrValidation))
		}
		filter.Resolved = &resolved
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return s.writeError(c, fmt.Errorf("%w: limit must be a positive integer", models.ErrValidation))
		}
		filter.Limit = limit
	}

	return c.JSON(http.StatusOK, s.Alerts.List(filter))
}

type createAlertRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Severity    models.AlertSeverity `json:"severity"`
	TenantID    string               `json:"tenantId,omitempty"`
	WorkflowID  string               `json:"workflowId,omitempty"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
}

type createAlertResponse struct {
	AlertID string `json:"alert_id"`
}

// CreateAlert records an alert via explicit API call
// (POST /monitoring/alerts)
func (s *Server) CreateAlert(c echo.Context) error {
	var req createAlertRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
	}
	if req.Title == "" || req.Description == "" || req.Severity == "" {
		return s.writeError(c, fmt.Errorf("%w: title, description and severity are required", models.ErrValidation))
	}

	alertID, err := s.Alerts.CreateAlert(req.Title, req.Description, req.Severity, req.TenantID, req.WorkflowID, req.Metadata)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, createAlertResponse{AlertID: alertID})
}

type alertActionRequest struct {
	Action string `json:"action"`
}

// ResolveAlert resolves an alert; resolving twice answers 404
// (PATCH /monitoring/alerts/:id)
func (s *Server) ResolveAlert(c echo.Context) error {
	var req alertActionRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
	}
	if req.Action != "resolve" {
		return s.writeError(c, fmt.Errorf("%w: unsupported action %q", models.ErrValidation, req.Action))
	}

	if !s.Alerts.Resolve(c.Param("id")) {
		return s.writeError(c, fmt.Errorf("alert %s absent or already resolved: %w", c.Param("id"), models.ErrNotFound))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "resolved"})
}
