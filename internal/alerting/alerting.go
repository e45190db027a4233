// Package alerting implements the alert lifecycle and the health-derived
// auto-alerting pipeline.
package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docforge/pkg/models"
)

// Logger defines the logging interface compatible with the application
// logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// System manages the alert lifecycle: creation by threshold evaluation or
// explicit API call, and one-shot resolution.
type System struct {
	mu     sync.RWMutex
	alerts map[string]*models.Alert
	logger Logger
	now    func() time.Time
}

// NewSystem creates an empty alerting System.
func NewSystem(logger Logger) *System {
	return &System{
		alerts: make(map[string]*models.Alert),
		logger: logger,
		now:    time.Now,
	}
}

// CreateAlert records a new alert and returns its id.
func (s *System) CreateAlert(title, description string, severity models.AlertSeverity, tenantID, workflowID string, metadata map[string]string) (string, error) {
	if title == "" || description == "" {
		return "", models.ErrValidation
	}
	if !severity.Valid() {
		return "", models.ErrValidation
	}

	alert := &models.Alert{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Severity:    severity,
		TenantID:    tenantID,
		WorkflowID:  workflowID,
		Metadata:    metadata,
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.alerts[alert.ID] = alert
	s.mu.Unlock()

	s.logger.Info("alert created", "alert_id", alert.ID, "severity", severity, "title", title)
	return alert.ID, nil
}

// Resolve marks an alert resolved. Returns false if the alert is absent or
// already resolved; ResolvedAt is set exactly once.
func (s *System) Resolve(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok || alert.ResolvedAt != nil {
		return false
	}
	t := s.now().UTC()
	alert.ResolvedAt = &t
	return true
}

// ListFilter narrows the alerts returned by List.
type ListFilter struct {
	TenantID   string
	Severity   models.AlertSeverity
	Resolved   *bool
	WorkflowID string
	Limit      int
}

// List returns matching alerts, most recent first, truncated to the limit.
func (s *System) List(filter ListFilter) []*models.Alert {
	s.mu.RLock()
	out := make([]*models.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		if filter.TenantID != "" && alert.TenantID != filter.TenantID {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.WorkflowID != "" && alert.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Resolved != nil && (alert.ResolvedAt != nil) != *filter.Resolved {
			continue
		}
		copied := *alert
		out = append(out, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// SystemHealth aggregates the currently unresolved alerts: critical if any
// unresolved critical alert exists, degraded on any unresolved warning,
// healthy otherwise.
func (s *System) SystemHealth() models.SystemHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := models.SystemHealth{Status: "healthy"}
	for _, alert := range s.alerts {
		if alert.ResolvedAt != nil {
			continue
		}
		health.ActiveAlerts++
		if alert.Severity == models.SeverityCritical {
			health.CriticalAlerts++
		}
		if health.LastAlertTime == nil || alert.CreatedAt.After(*health.LastAlertTime) {
			t := alert.CreatedAt
			health.LastAlertTime = &t
		}
		switch alert.Severity {
		case models.SeverityCritical:
			health.Status = "critical"
		case models.SeverityWarning:
			if health.Status != "critical" {
				health.Status = "degraded"
			}
		}
	}
	return health
}

// HandleStatusChange auto-creates an alert when a workflow fails. A failed
// persist is logged as an internal error and never aborts the triggering
// request path.
func (s *System) HandleStatusChange(exec *models.WorkflowExecution, previous models.WorkflowStatus) {
	if exec.Status != models.WorkflowStatusFailed {
		return
	}
	description := exec.FailureReason
	if description == "" {
		description = "workflow transitioned to failed"
	}
	if _, err := s.CreateAlert(
		"Workflow failed",
		description,
		models.SeverityWarning,
		exec.TenantID,
		exec.WorkflowID,
		map[string]string{"execution_id": exec.ExecutionID},
	); err != nil {
		s.logger.Error("failed to persist workflow failure alert", "workflow_id", exec.WorkflowID, "error", err)
	}
}

// hasUnresolved reports whether an unresolved alert with the given title
// exists, used by the evaluator to avoid duplicate health alerts.
func (s *System) hasUnresolved(title string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, alert := range s.alerts {
		if alert.ResolvedAt == nil && alert.Title == title {
			return true
		}
	}
	return false
}

// resolveByTitle resolves every unresolved alert with the given title.
func (s *System) resolveByTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alert := range s.alerts {
		if alert.ResolvedAt == nil && alert.Title == title {
			t := s.now().UTC()
			alert.ResolvedAt = &t
		}
	}
}
