package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docforge/pkg/models"
)

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()

	newExec := func(workflowID, tenantID string) *models.WorkflowExecution {
		return &models.WorkflowExecution{
			WorkflowID:  workflowID,
			ExecutionID: "exec-" + workflowID,
			TenantID:    tenantID,
			Status:      models.WorkflowStatusPending,
			TotalSteps:  10,
			StartedAt:   time.Now().UTC(),
		}
	}

	t.Run("create and get", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))

		exec, err := store.Get(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, "t1", exec.TenantID)

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("duplicate create rejected", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))
		assert.ErrorIs(t, store.Create(ctx, newExec("wf-1", "t1")), models.ErrValidation)
	})

	t.Run("upsert merges only non-nil fields", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))

		updated, err := store.Upsert(ctx, "wf-1", models.ExecutionUpdate{
			CompletedSteps: IntPtr(4),
			CurrentStep:    StringPtr("render"),
		})
		assert.NoError(t, err)
		assert.Equal(t, 4, updated.CompletedSteps)
		assert.Equal(t, "render", updated.CurrentStep)
		assert.Equal(t, models.WorkflowStatusPending, updated.Status)
		assert.Equal(t, 10, updated.TotalSteps)
	})

	t.Run("returned copy is detached", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))

		exec, err := store.Get(ctx, "wf-1")
		assert.NoError(t, err)
		exec.CompletedSteps = 99

		fresh, err := store.Get(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, 0, fresh.CompletedSteps)
	})

	t.Run("clear completed at", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))

		_, err := store.Upsert(ctx, "wf-1", models.ExecutionUpdate{CompletedAt: TimePtr(time.Now().UTC())})
		assert.NoError(t, err)

		updated, err := store.Upsert(ctx, "wf-1", models.ExecutionUpdate{ClearCompletedAt: true})
		assert.NoError(t, err)
		assert.Nil(t, updated.CompletedAt)
	})

	t.Run("observers fire on status change only", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))

		type change struct {
			from, to models.WorkflowStatus
		}
		var changes []change
		store.OnStatusChange(func(exec *models.WorkflowExecution, previous models.WorkflowStatus) {
			changes = append(changes, change{from: previous, to: exec.Status})
		})

		_, err := store.Upsert(ctx, "wf-1", models.ExecutionUpdate{CompletedSteps: IntPtr(1)})
		assert.NoError(t, err)
		assert.Empty(t, changes)

		_, err = store.Upsert(ctx, "wf-1", models.ExecutionUpdate{Status: StatusPtr(models.WorkflowStatusRunning)})
		assert.NoError(t, err)
		assert.Equal(t, []change{{from: models.WorkflowStatusPending, to: models.WorkflowStatusRunning}}, changes)

		// Same-status upsert must not notify.
		_, err = store.Upsert(ctx, "wf-1", models.ExecutionUpdate{Status: StatusPtr(models.WorkflowStatusRunning)})
		assert.NoError(t, err)
		assert.Len(t, changes, 1)
	})

	t.Run("list by tenant", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))
		assert.NoError(t, store.Create(ctx, newExec("wf-2", "t1")))
		assert.NoError(t, store.Create(ctx, newExec("wf-3", "t2")))

		execs, err := store.ListByTenant(ctx, "t1")
		assert.NoError(t, err)
		assert.Len(t, execs, 2)
	})

	t.Run("delete", func(t *testing.T) {
		store := NewMemoryStateStore()
		assert.NoError(t, store.Create(ctx, newExec("wf-1", "t1")))
		assert.NoError(t, store.Delete(ctx, "wf-1"))
		assert.ErrorIs(t, store.Delete(ctx, "wf-1"), models.ErrNotFound)
	})
}
