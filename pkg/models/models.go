// Package models defines the domain models for the docforge service
package models

import (
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow execution
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// Recoverable reports whether a workflow in this status may be recovered.
// Completed workflows are terminal and never recoverable.
func (s WorkflowStatus) Recoverable() bool {
	return s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// WorkflowExecution is the authoritative record of a workflow's lifecycle.
// It is keyed by WorkflowID; ExecutionID changes on every recovery so that
// individual runs remain distinguishable.
type WorkflowExecution struct {
	WorkflowID         string         `json:"workflow_id"`
	ExecutionID        string         `json:"execution_id"`
	TenantID           string         `json:"tenant_id"`
	ProjectID          string         `json:"project_id"`
	Status             WorkflowStatus `json:"status"`
	TotalSteps         int            `json:"total_steps"`
	CompletedSteps     int            `json:"completed_steps"`
	CurrentStep        string         `json:"current_step"`
	ProgressPercentage float64        `json:"progress_percentage"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// ExecutionUpdate carries a partial update applied to a WorkflowExecution.
// Nil fields are left untouched by the merge.
type ExecutionUpdate struct {
	Status             *WorkflowStatus
	ExecutionID        *string
	TotalSteps         *int
	CompletedSteps     *int
	CurrentStep        *string
	ProgressPercentage *float64
	FailureReason      *string
	CompletedAt        *time.Time
	// ClearCompletedAt resets CompletedAt to unset; a nil CompletedAt alone
	// leaves the field untouched.
	ClearCompletedAt bool
}

// Checkpoint is a durable snapshot of workflow progress at a step boundary.
// Checkpoints for a workflow are totally ordered by StepID and read-only
// once written.
type Checkpoint struct {
	WorkflowID    string    `json:"workflow_id"`
	StepID        int       `json:"step_id"`
	StepLabel     string    `json:"step_label"`
	StateSnapshot []byte    `json:"state_snapshot"` // opaque payload, sufficient to resume
	IsRecoverable bool      `json:"is_recoverable"`
	CreatedAt     time.Time `json:"created_at"`
}

// MetricPoint is a single append-only time-series observation.
type MetricPoint struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AlertSeverity classifies alerts for filtering and health derivation
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Valid reports whether the severity is one of the known values.
func (s AlertSeverity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// Alert is a recorded condition of interest. ResolvedAt is set at most once;
// resolving twice is a no-op.
type Alert struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    AlertSeverity     `json:"severity"`
	TenantID    string            `json:"tenant_id,omitempty"`
	WorkflowID  string            `json:"workflow_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// HealthState is the derived health of a subsystem or of the whole service
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthCheck is the result of a single threshold evaluation.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  HealthState `json:"status"`
	Message string      `json:"message,omitempty"`
	Value   float64     `json:"value"`
}

// HealthSnapshot is the output of the metrics pipeline's health evaluation.
type HealthSnapshot struct {
	Status  HealthState        `json:"status"`
	Checks  []HealthCheck      `json:"checks"`
	Metrics map[string]float64 `json:"metrics"`
}

// SystemHealth aggregates the currently unresolved alerts.
type SystemHealth struct {
	Status         string     `json:"status"`
	ActiveAlerts   int        `json:"activeAlerts"`
	CriticalAlerts int        `json:"criticalAlerts"`
	LastAlertTime  *time.Time `json:"lastAlertTime,omitempty"`
}

// TenantStats holds the aggregated workflow counters for one tenant.
type TenantStats struct {
	Total       int     `json:"total"`
	Running     int     `json:"running"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	AvgDuration float64 `json:"avgDuration"` // seconds, completed workflows only
	SuccessRate float64 `json:"successRate"`
}

// ErrorResponse is the machine-readable error envelope returned by every
// endpoint on failure.
type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
