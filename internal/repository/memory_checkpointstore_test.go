package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"docforge/pkg/models"
)

func TestMemoryCheckpointStore(t *testing.T) {
	ctx := context.Background()

	cp := func(workflowID string, stepID int, recoverable bool) *models.Checkpoint {
		return &models.Checkpoint{
			WorkflowID:    workflowID,
			StepID:        stepID,
			StepLabel:     "step",
			StateSnapshot: []byte(`{}`),
			IsRecoverable: recoverable,
		}
	}

	t.Run("append and list ordered", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		assert.NoError(t, store.Append(ctx, cp("wf-1", 3, true)))
		assert.NoError(t, store.Append(ctx, cp("wf-1", 1, true)))
		assert.NoError(t, store.Append(ctx, cp("wf-1", 2, true)))

		list, err := store.List(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Len(t, list, 3)
		assert.Equal(t, 1, list[0].StepID)
		assert.Equal(t, 3, list[2].StepID)
	})

	t.Run("duplicate step rejected", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		assert.NoError(t, store.Append(ctx, cp("wf-1", 1, true)))
		assert.ErrorIs(t, store.Append(ctx, cp("wf-1", 1, true)), models.ErrDuplicateStep)
	})

	t.Run("latest skips non-recoverable", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		assert.NoError(t, store.Append(ctx, cp("wf-1", 1, true)))
		assert.NoError(t, store.Append(ctx, cp("wf-1", 2, true)))
		assert.NoError(t, store.Append(ctx, cp("wf-1", 3, false)))

		latest, err := store.Latest(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, 2, latest.StepID)
	})

	t.Run("latest with no recoverable entries", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		assert.NoError(t, store.Append(ctx, cp("wf-1", 1, false)))

		_, err := store.Latest(ctx, "wf-1")
		assert.ErrorIs(t, err, models.ErrNoRecoverableCheckpoint)
	})

	t.Run("get", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		assert.NoError(t, store.Append(ctx, cp("wf-1", 1, true)))

		got, err := store.Get(ctx, "wf-1", 1)
		assert.NoError(t, err)
		assert.Equal(t, 1, got.StepID)

		_, err = store.Get(ctx, "wf-1", 9)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("snapshot is copied on append", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		snapshot := []byte(`{"a":1}`)
		checkpoint := cp("wf-1", 1, true)
		checkpoint.StateSnapshot = snapshot
		assert.NoError(t, store.Append(ctx, checkpoint))

		snapshot[2] = 'x'
		got, err := store.Get(ctx, "wf-1", 1)
		assert.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), got.StateSnapshot)
	})

	t.Run("purge", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		assert.NoError(t, store.Append(ctx, cp("wf-1", 1, true)))
		assert.NoError(t, store.Purge(ctx, "wf-1"))

		list, err := store.List(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Empty(t, list)
	})
}
