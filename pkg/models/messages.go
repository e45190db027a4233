package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType discriminates realtime messages pushed to clients
type MessageType string

const (
	MessageWorkflowProgress   MessageType = "workflow_progress"
	MessageWorkflowStatus     MessageType = "workflow_status"
	MessageSystemNotification MessageType = "system_notification"
)

// ServerMessage is the envelope for every server-initiated push. Payload is
// one of ProgressPayload, StatusPayload or NotificationPayload depending on
// Type.
type ServerMessage struct {
	Type       MessageType     `json:"type"`
	WorkflowID string          `json:"workflow_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ProgressPayload carries step-level progress for MessageWorkflowProgress.
type ProgressPayload struct {
	TotalSteps             int     `json:"total_steps"`
	CompletedSteps         int     `json:"completed_steps"`
	CurrentStep            string  `json:"current_step"`
	ProgressPercentage     float64 `json:"progress_percentage"`
	EstimatedTimeRemaining int     `json:"estimated_time_remaining,omitempty"`
}

// StatusPayload carries a lifecycle transition for MessageWorkflowStatus.
type StatusPayload struct {
	Status WorkflowStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// NotificationPayload carries a free-form system notice.
type NotificationPayload struct {
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	Severity AlertSeverity `json:"severity,omitempty"`
}

// NewServerMessage builds an envelope with a marshalled payload.
func NewServerMessage(t MessageType, workflowID string, payload any) (ServerMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ServerMessage{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return ServerMessage{
		Type:       t,
		WorkflowID: workflowID,
		Payload:    raw,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// ClientMessageAction enumerates the actions a connected client may request
type ClientMessageAction string

const (
	ActionSubscribe   ClientMessageAction = "subscribe"
	ActionUnsubscribe ClientMessageAction = "unsubscribe"
)

// ClientMessage is an inbound message on the realtime channel. Unknown
// actions are rejected at the boundary.
type ClientMessage struct {
	Action     ClientMessageAction `json:"action"`
	WorkflowID string              `json:"workflow_id"`
}

// Validate checks the message shape before it is acted on.
func (m ClientMessage) Validate() error {
	if m.Action != ActionSubscribe && m.Action != ActionUnsubscribe {
		return fmt.Errorf("%w: unknown action %q", ErrValidation, m.Action)
	}
	if m.WorkflowID == "" {
		return fmt.Errorf("%w: workflow_id is required", ErrValidation)
	}
	return nil
}
