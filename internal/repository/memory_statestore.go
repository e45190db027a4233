package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docforge/pkg/models"
)

// MemoryStateStore is the in-memory implementation of StateStore. Each
// workflow id gets its own lock so concurrent writes to different workflows
// never contend.
type MemoryStateStore struct {
	mu        sync.RWMutex
	entries   map[string]*stateEntry
	observers []StatusObserver
	obsMu     sync.RWMutex
}

type stateEntry struct {
	mu   sync.Mutex
	exec models.WorkflowExecution
}

// NewMemoryStateStore creates an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]*stateEntry)}
}

// OnStatusChange registers an observer invoked synchronously whenever an
// upsert changes a workflow's status. Registration is expected at wiring
// time, before traffic.
func (s *MemoryStateStore) OnStatusChange(obs StatusObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, obs)
}

// Get retrieves an execution by workflow id.
func (s *MemoryStateStore) Get(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	s.mu.RLock()
	entry, ok := s.entries[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrNotFound)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	copied := entry.exec
	return &copied, nil
}

// Create registers a new execution record.
func (s *MemoryStateStore) Create(ctx context.Context, exec *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[exec.WorkflowID]; ok {
		return fmt.Errorf("workflow %s already exists: %w", exec.WorkflowID, models.ErrValidation)
	}
	s.entries[exec.WorkflowID] = &stateEntry{exec: *exec}
	return nil
}

// Upsert merges the non-nil fields of update into the record and returns the
// updated copy. A status change is reported to every registered observer
// before Upsert returns.
func (s *MemoryStateStore) Upsert(ctx context.Context, workflowID string, update models.ExecutionUpdate) (*models.WorkflowExecution, error) {
	s.mu.RLock()
	entry, ok := s.entries[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrNotFound)
	}

	entry.mu.Lock()
	previous := entry.exec.Status
	applyUpdate(&entry.exec, update)
	copied := entry.exec
	entry.mu.Unlock()

	if update.Status != nil && *update.Status != previous {
		s.notify(&copied, previous)
	}
	return &copied, nil
}

// ListByTenant returns all executions owned by a tenant.
func (s *MemoryStateStore) ListByTenant(ctx context.Context, tenantID string) ([]*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowExecution
	for _, entry := range s.entries {
		entry.mu.Lock()
		if entry.exec.TenantID == tenantID {
			copied := entry.exec
			out = append(out, &copied)
		}
		entry.mu.Unlock()
	}
	return out, nil
}

// Delete removes an execution record.
func (s *MemoryStateStore) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[workflowID]; !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, models.ErrNotFound)
	}
	delete(s.entries, workflowID)
	return nil
}

func (s *MemoryStateStore) notify(exec *models.WorkflowExecution, previous models.WorkflowStatus) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, obs := range observers {
		obs(exec, previous)
	}
}

func applyUpdate(exec *models.WorkflowExecution, update models.ExecutionUpdate) {
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.ExecutionID != nil {
		exec.ExecutionID = *update.ExecutionID
	}
	if update.TotalSteps != nil {
		exec.TotalSteps = *update.TotalSteps
	}
	if update.CompletedSteps != nil {
		exec.CompletedSteps = *update.CompletedSteps
	}
	if update.CurrentStep != nil {
		exec.CurrentStep = *update.CurrentStep
	}
	if update.ProgressPercentage != nil {
		exec.ProgressPercentage = *update.ProgressPercentage
	}
	if update.FailureReason != nil {
		exec.FailureReason = *update.FailureReason
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		exec.CompletedAt = &t
	}
	if update.ClearCompletedAt {
		exec.CompletedAt = nil
	}
}

// Ptr helpers for building ExecutionUpdate values.

// StatusPtr returns a pointer to the given status.
func StatusPtr(s models.WorkflowStatus) *models.WorkflowStatus { return &s }

// IntPtr returns a pointer to the given int.
func IntPtr(i int) *int { return &i }

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string { return &s }

// Float64Ptr returns a pointer to the given float64.
func Float64Ptr(f float64) *float64 { return &f }

// TimePtr returns a pointer to the given time.
func TimePtr(t time.Time) *time.Time { return &t }
