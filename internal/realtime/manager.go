package realtime

import (
	"context"
	"fmt"

	"docforge/internal/repository"
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

// Manager routes workflow events to the connections of the owning tenant.
// It resolves workflow ownership through the state store so a connection
// never receives events for another tenant's workflow.
type Manager struct {
	registry *Registry
	state    repository.StateStore
	logger   Logger
}

// NewManager creates a Manager.
func NewManager(registry *Registry, state repository.StateStore, logger Logger) *Manager {
	return &Manager{registry: registry, state: state, logger: logger}
}

// ValidateAccess reports whether the workflow's recorded tenant matches.
// A missing workflow denies access.
func (m *Manager) ValidateAccess(ctx context.Context, workflowID, tenantID string) bool {
	exec, err := m.state.Get(ctx, workflowID)
	if err != nil {
		return false
	}
	return exec.TenantID == tenantID
}

// Register adds a connection to the registry.
func (m *Manager) Register(conn *Connection) {
	m.registry.Add(conn)
	m.logger.Debug("connection registered", "connection_id", conn.ID, "tenant_id", conn.TenantID)
}

// Unregister removes and closes a connection.
func (m *Manager) Unregister(conn *Connection) {
	m.registry.Remove(conn)
	m.logger.Debug("connection removed", "connection_id", conn.ID, "tenant_id", conn.TenantID)
}

// Subscribe attaches a connection to a workflow after verifying tenant
// ownership. Unauthorized attempts are rejected, not silently ignored.
func (m *Manager) Subscribe(ctx context.Context, conn *Connection, workflowID string) error {
	if !m.ValidateAccess(ctx, workflowID, conn.TenantID) {
		return fmt.Errorf("workflow %s: %w", workflowID, models.ErrAccessDenied)
	}
	conn.Subscribe(workflowID)
	return nil
}

// BroadcastProgress fans a progress event out to the owning tenant's
// subscribed connections.
func (m *Manager) BroadcastProgress(workflowID string, payload models.ProgressPayload) {
	m.broadcast(models.MessageWorkflowProgress, workflowID, payload)
}

// BroadcastStatus fans a status transition out to the owning tenant's
// subscribed connections.
func (m *Manager) BroadcastStatus(workflowID string, payload models.StatusPayload) {
	m.broadcast(models.MessageWorkflowStatus, workflowID, payload)
}

// BroadcastNotification fans a system notification out to the owning
// tenant's subscribed connections.
func (m *Manager) BroadcastNotification(workflowID string, payload models.NotificationPayload) {
	m.broadcast(models.MessageSystemNotification, workflowID, payload)
}

func (m *Manager) broadcast(t models.MessageType, workflowID string, payload any) {
	exec, err := m.state.Get(context.Background(), workflowID)
	if err != nil {
		m.logger.Warn("dropping broadcast for unknown workflow", "workflow_id", workflowID)
		return
	}

	msg, err := models.NewServerMessage(t, workflowID, payload)
	if err != nil {
		m.logger.Error("failed to build broadcast message", "workflow_id", workflowID, "error", err)
		return
	}

	for _, conn := range m.registry.Snapshot(exec.TenantID) {
		if !conn.SubscribedTo(workflowID) {
			continue
		}
		if !conn.TrySend(msg) {
			// Delivery failure never raises to the caller.
			m.logger.Warn("pruning unresponsive connection", "connection_id", conn.ID, "tenant_id", conn.TenantID)
			m.registry.Remove(conn)
		}
	}
}

// ConnectionsForTenant returns the tenant's live connection count.
func (m *Manager) ConnectionsForTenant(tenantID string) int {
	return m.registry.Count(tenantID)
}

// ActiveWorkflows returns the ids of the tenant's running workflows.
func (m *Manager) ActiveWorkflows(ctx context.Context, tenantID string) ([]string, error) {
	execs, err := m.state.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, exec := range execs {
		if exec.Status == models.WorkflowStatusRunning {
			out = append(out, exec.WorkflowID)
		}
	}
	return out, nil
}
