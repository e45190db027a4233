package services

import (
	"context"

	"docforge/pkg/models"
)

// AgentRuntimeClient is the interface for communicating with the external
// agent runtime that performs content generation and OCR.
type AgentRuntimeClient interface {
	// ResumeWorkflow instructs the runtime to resume a workflow from the
	// given step. Implementations must respect a bounded timeout and
	// surface models.ErrServiceUnavailable when the runtime is unreachable.
	ResumeWorkflow(ctx context.Context, workflowID string, fromStep int, snapshot []byte) error
}

// EventBroadcaster receives workflow events for fan-out to live connections.
type EventBroadcaster interface {
	BroadcastProgress(workflowID string, payload models.ProgressPayload)
	BroadcastStatus(workflowID string, payload models.StatusPayload)
}

// MetricsRecorder ingests workflow events as time-series points.
type MetricsRecorder interface {
	Record(name string, value float64, tags map[string]string, tenantID string)
}

// Logger defines the logging interface compatible with the application
// logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
