package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docforge/pkg/models"
)

// MemoryCheckpointStore is the in-memory implementation of CheckpointStore,
// used in tests and when the database is disabled.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]map[int]*models.Checkpoint
}

// NewMemoryCheckpointStore creates an empty MemoryCheckpointStore.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: make(map[string]map[int]*models.Checkpoint)}
}

// Append writes a checkpoint, failing with models.ErrDuplicateStep if the
// step id already exists for the workflow.
func (s *MemoryCheckpointStore) Append(ctx context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStep, ok := s.checkpoints[cp.WorkflowID]
	if !ok {
		byStep = make(map[int]*models.Checkpoint)
		s.checkpoints[cp.WorkflowID] = byStep
	}
	if _, exists := byStep[cp.StepID]; exists {
		return fmt.Errorf("workflow %s step %d: %w", cp.WorkflowID, cp.StepID, models.ErrDuplicateStep)
	}

	copied := *cp
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	// Copy the snapshot so later caller mutations cannot leak in.
	copied.StateSnapshot = append([]byte(nil), cp.StateSnapshot...)
	byStep[cp.StepID] = &copied
	return nil
}

// List returns the workflow's checkpoints in ascending step id order.
func (s *MemoryCheckpointStore) List(ctx context.Context, workflowID string) ([]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStep := s.checkpoints[workflowID]
	out := make([]*models.Checkpoint, 0, len(byStep))
	for _, cp := range byStep {
		copied := *cp
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out, nil
}

// Get returns a single checkpoint or models.ErrNotFound.
func (s *MemoryCheckpointStore) Get(ctx context.Context, workflowID string, stepID int) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[workflowID][stepID]
	if !ok {
		return nil, fmt.Errorf("workflow %s step %d: %w", workflowID, stepID, models.ErrNotFound)
	}
	copied := *cp
	return &copied, nil
}

// Latest returns the checkpoint with the greatest step id among recoverable
// entries. Non-recoverable checkpoints never affect the result.
func (s *MemoryCheckpointStore) Latest(ctx context.Context, workflowID string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Checkpoint
	for _, cp := range s.checkpoints[workflowID] {
		if !cp.IsRecoverable {
			continue
		}
		if latest == nil || cp.StepID > latest.StepID {
			latest = cp
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrNoRecoverableCheckpoint)
	}
	copied := *latest
	return &copied, nil
}

// Purge removes all checkpoints for a workflow.
func (s *MemoryCheckpointStore) Purge(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, workflowID)
	return nil
}
