package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"docforge/internal/auth"
	"docforge/internal/services"
	"docforge/pkg/models"
)

func (s *Server) tenantID(c echo.Context) (string, error) {
	tenantID, ok := auth.TenantFromContext(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "tenant not resolved")
	}
	return tenantID, nil
}

// CreateWorkflow registers a new workflow for the authenticated tenant
// (POST /workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	var req services.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
	}
	req.TenantID = tenantID

	exec, err := s.Orchestrator.CreateWorkflow(c.Request().Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, exec)
}

type recoverRequest struct {
	FromCheckpoint *int `json:"from_checkpoint,omitempty"`
}

// RecoverWorkflow triggers recovery from a checkpoint
// (POST /workflows/:id/recover)
func (s *Server) RecoverWorkflow(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	workflowID := c.Param("id")

	if _, err := s.Orchestrator.AssertTenant(c.Request().Context(), workflowID, tenantID); err != nil {
		return s.writeError(c, err)
	}

	var req recoverRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
	}

	result, err := s.Orchestrator.Recover(c.Request().Context(), workflowID, req.FromCheckpoint)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetRecoveryInfo returns whether and from where a workflow can be recovered
// (GET /workflows/:id/recover)
func (s *Server) GetRecoveryInfo(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	workflowID := c.Param("id")

	if _, err := s.Orchestrator.AssertTenant(c.Request().Context(), workflowID, tenantID); err != nil {
		return s.writeError(c, err)
	}

	info, err := s.Orchestrator.GetRecoveryInfo(c.Request().Context(), workflowID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

type progressResponse struct {
	*models.WorkflowExecution
	Superseded bool `json:"superseded"`
}

// ReportProgress is the agent-runtime progress callback
// (POST /workflows/sync/progress/:id)
func (s *Server) ReportProgress(c echo.Context) error {
	if !s.callbackLimiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "callback rate exceeded")
	}

	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	workflowID := c.Param("id")

	if _, err := s.Orchestrator.AssertTenant(c.Request().Context(), workflowID, tenantID); err != nil {
		return s.writeError(c, err)
	}

	var report services.ProgressReport
	if err := c.Bind(&report); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
	}

	exec, superseded, err := s.Orchestrator.ReportProgress(c.Request().Context(), workflowID, report)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, progressResponse{WorkflowExecution: exec, Superseded: superseded})
}

type statusControls struct {
	CanPause  bool `json:"canPause"`
	CanResume bool `json:"canResume"`
	CanCancel bool `json:"canCancel"`
}

type statusResponse struct {
	Status   models.WorkflowStatus     `json:"status"`
	Controls statusControls            `json:"controls"`
	Progress *models.WorkflowExecution `json:"progress,omitempty"`
}

// GetWorkflowStatus returns the current lifecycle status and controls
// (GET /workflows/sync/status/:id)
func (s *Server) GetWorkflowStatus(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	workflowID := c.Param("id")

	exec, err := s.Orchestrator.AssertTenant(c.Request().Context(), workflowID, tenantID)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, statusResponse{
		Status: exec.Status,
		Controls: statusControls{
			CanPause:  exec.Status == models.WorkflowStatusRunning,
			CanResume: exec.Status.Recoverable(),
			CanCancel: exec.Status == models.WorkflowStatusRunning,
		},
		Progress: exec,
	})
}

type statusUpdateRequest struct {
	Status models.WorkflowStatus `json:"status"`
	Reason string                `json:"reason,omitempty"`
}

// UpdateWorkflowStatus applies a lifecycle transition
// (POST /workflows/sync/status/:id)
func (s *Server) UpdateWorkflowStatus(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	workflowID := c.Param("id")

	if _, err := s.Orchestrator.AssertTenant(c.Request().Context(), workflowID, tenantID); err != nil {
		return s.writeError(c, err)
	}

	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
	}

	ctx := c.Request().Context()
	var exec *models.WorkflowExecution
	switch req.Status {
	case models.WorkflowStatusRunning:
		exec, err = s.Orchestrator.Start(ctx, workflowID)
	case models.WorkflowStatusCompleted:
		exec, err = s.Orchestrator.Complete(ctx, workflowID)
	case models.WorkflowStatusFailed:
		exec, err = s.Orchestrator.Fail(ctx, workflowID, req.Reason)
	case models.WorkflowStatusCancelled:
		exec, err = s.Orchestrator.Cancel(ctx, workflowID)
	default:
		return s.writeError(c, fmt.Errorf("%w: unknown target status %q", models.ErrValidation, req.Status))
	}
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

type accessResponse struct {
	Access string `json:"access"`
}

// CheckAccess is the standalone tenant access check
// (GET /workflows/:id/access?tenant_id=...)
func (s *Server) CheckAccess(c echo.Context) error {
	workflowID := c.Param("id")
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return s.writeError(c, fmt.Errorf("%w: tenant_id is required", models.ErrValidation))
	}

	if !s.Realtime.ValidateAccess(c.Request().Context(), workflowID, tenantID) {
		return c.JSON(http.StatusForbidden, accessResponse{Access: "denied"})
	}
	return c.JSON(http.StatusOK, accessResponse{Access: "granted"})
}

// TenantStats returns aggregated workflow counters for a tenant
// (GET /workflows/tenant/:tenantId/stats)
func (s *Server) TenantStats(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	if c.Param("tenantId") != tenantID {
		return s.writeError(c, fmt.Errorf("tenant mismatch: %w", models.ErrAccessDenied))
	}

	stats, err := s.Orchestrator.TenantStats(c.Request().Context(), tenantID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

type realtimeStats struct {
	Connections     int      `json:"connections"`
	ActiveWorkflows []string `json:"activeWorkflows"`
}

// TenantRealtimeStats returns the dashboard introspection counters
// (GET /workflows/tenant/:tenantId/realtime)
func (s *Server) TenantRealtimeStats(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	if c.Param("tenantId") != tenantID {
		return s.writeError(c, fmt.Errorf("tenant mismatch: %w", models.ErrAccessDenied))
	}

	active, err := s.Realtime.ActiveWorkflows(c.Request().Context(), tenantID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, realtimeStats{
		Connections:     s.Realtime.ConnectionsForTenant(tenantID),
		ActiveWorkflows: active,
	})
}

// ArchiveWorkflow removes a workflow's state and checkpoints
// (DELETE /workflows/:id)
func (s *Server) ArchiveWorkflow(c echo.Context) error {
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}
	if err := s.Orchestrator.ArchiveWorkflow(c.Request().Context(), c.Param("id"), tenantID); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
