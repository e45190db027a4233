package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"docforge/internal/logging"
	"docforge/internal/repository"
	"docforge/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, *repository.MemoryStateStore) {
	t.Helper()
	state := repository.NewMemoryStateStore()
	return NewManager(NewRegistry(), state, logging.NewLogger()), state
}

func addWorkflow(t *testing.T, state *repository.MemoryStateStore, workflowID, tenantID string, status models.WorkflowStatus) {
	t.Helper()
	err := state.Create(context.Background(), &models.WorkflowExecution{
		WorkflowID:  workflowID,
		ExecutionID: "exec-" + workflowID,
		TenantID:    tenantID,
		Status:      status,
		TotalSteps:  10,
	})
	assert.NoError(t, err)
}

func drain(conn *Connection) []models.ServerMessage {
	var out []models.ServerMessage
	for {
		select {
		case msg := <-conn.Outbound():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestValidateAccess(t *testing.T) {
	ctx := context.Background()
	m, state := newTestManager(t)
	addWorkflow(t, state, "wf-1", "t1", models.WorkflowStatusRunning)

	assert.True(t, m.ValidateAccess(ctx, "wf-1", "t1"))
	assert.False(t, m.ValidateAccess(ctx, "wf-1", "t2"))
	// Unknown workflows deny rather than default-allow.
	assert.False(t, m.ValidateAccess(ctx, "missing", "t1"))
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	m, state := newTestManager(t)
	addWorkflow(t, state, "wf-1", "t1", models.WorkflowStatusRunning)

	own := NewConnection("c1", "t1")
	foreign := NewConnection("c2", "t2")
	m.Register(own)
	m.Register(foreign)

	assert.NoError(t, m.Subscribe(ctx, own, "wf-1"))
	assert.True(t, own.SubscribedTo("wf-1"))

	err := m.Subscribe(ctx, foreign, "wf-1")
	assert.ErrorIs(t, err, models.ErrAccessDenied)
	assert.False(t, foreign.SubscribedTo("wf-1"))
}

func TestBroadcastTenantIsolation(t *testing.T) {
	ctx := context.Background()
	m, state := newTestManager(t)
	addWorkflow(t, state, "wf-1", "t1", models.WorkflowStatusRunning)
	addWorkflow(t, state, "wf-2", "t2", models.WorkflowStatusRunning)

	t1a := NewConnection("t1-a", "t1")
	t1b := NewConnection("t1-b", "t1")
	t2a := NewConnection("t2-a", "t2")
	t2b := NewConnection("t2-b", "t2")
	for _, conn := range []*Connection{t1a, t1b, t2a, t2b} {
		m.Register(conn)
	}
	assert.NoError(t, m.Subscribe(ctx, t1a, "wf-1"))
	assert.NoError(t, m.Subscribe(ctx, t1b, "wf-1"))
	assert.NoError(t, m.Subscribe(ctx, t2a, "wf-2"))

	m.BroadcastProgress("wf-1", models.ProgressPayload{CompletedSteps: 3, TotalSteps: 10})

	assert.Len(t, drain(t1a), 1)
	assert.Len(t, drain(t1b), 1)
	assert.Empty(t, drain(t2a))
	assert.Empty(t, drain(t2b))

	// Unsubscribed connections of the owning tenant stay silent too.
	m.BroadcastProgress("wf-2", models.ProgressPayload{CompletedSteps: 1, TotalSteps: 10})
	assert.Len(t, drain(t2a), 1)
	assert.Empty(t, drain(t2b))
	assert.Empty(t, drain(t1a))
}

func TestBroadcastOrdering(t *testing.T) {
	ctx := context.Background()
	m, state := newTestManager(t)
	addWorkflow(t, state, "wf-1", "t1", models.WorkflowStatusRunning)

	conn := NewConnection("c1", "t1")
	m.Register(conn)
	assert.NoError(t, m.Subscribe(ctx, conn, "wf-1"))

	for step := 1; step <= 5; step++ {
		m.BroadcastProgress("wf-1", models.ProgressPayload{CompletedSteps: step, TotalSteps: 10})
	}

	msgs := drain(conn)
	assert.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(t, models.MessageWorkflowProgress, msg.Type)
		var payload models.ProgressPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, i+1, payload.CompletedSteps)
	}
}

func TestBroadcastPrunesUnresponsiveConnection(t *testing.T) {
	ctx := context.Background()
	m, state := newTestManager(t)
	addWorkflow(t, state, "wf-1", "t1", models.WorkflowStatusRunning)

	slow := NewConnection("slow", "t1")
	healthy := NewConnection("healthy", "t1")
	m.Register(slow)
	m.Register(healthy)
	assert.NoError(t, m.Subscribe(ctx, slow, "wf-1"))
	assert.NoError(t, m.Subscribe(ctx, healthy, "wf-1"))

	// Fill the slow connection's buffer; the next broadcast must prune it
	// without disturbing the healthy one.
	for i := 0; i < sendBuffer; i++ {
		assert.True(t, slow.TrySend(models.ServerMessage{}))
	}

	m.BroadcastStatus("wf-1", models.StatusPayload{Status: models.WorkflowStatusFailed, Reason: "crash"})

	assert.Equal(t, 1, m.ConnectionsForTenant("t1"))
	msgs := drain(healthy)
	assert.Len(t, msgs, 1)
	assert.Equal(t, models.MessageWorkflowStatus, msgs[0].Type)
}

func TestBroadcastUnknownWorkflowDropped(t *testing.T) {
	m, _ := newTestManager(t)

	conn := NewConnection("c1", "t1")
	m.Register(conn)

	m.BroadcastProgress("missing", models.ProgressPayload{})
	assert.Empty(t, drain(conn))
}

func TestActiveWorkflows(t *testing.T) {
	ctx := context.Background()
	m, state := newTestManager(t)
	addWorkflow(t, state, "wf-1", "t1", models.WorkflowStatusRunning)
	addWorkflow(t, state, "wf-2", "t1", models.WorkflowStatusCompleted)
	addWorkflow(t, state, "wf-3", "t2", models.WorkflowStatusRunning)

	active, err := m.ActiveWorkflows(ctx, "t1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"wf-1"}, active)
}

func TestConnectionClose(t *testing.T) {
	conn := NewConnection("c1", "t1")
	assert.True(t, conn.TrySend(models.ServerMessage{}))

	conn.Close()
	assert.False(t, conn.TrySend(models.ServerMessage{}))
	// Close is idempotent.
	conn.Close()
}

func TestTrySendDuringClose(t *testing.T) {
	// Senders racing a disconnect must get false, never a send on the
	// closed outbound channel.
	conn := NewConnection("c1", "t1")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					conn.TrySend(models.ServerMessage{})
				}
			}
		}()
	}

	conn.Close()
	close(stop)
	wg.Wait()

	assert.False(t, conn.TrySend(models.ServerMessage{}))
}
