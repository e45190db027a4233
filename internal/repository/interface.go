package repository

import (
	"context"

	"docforge/pkg/models"
)

// StateStore is the authoritative in-memory record of every workflow's
// lifecycle state. The store is tenant-agnostic; callers assert tenant
// ownership by comparing the TenantID field on the returned record.
type StateStore interface {
	// Get retrieves an execution by workflow id. Returns models.ErrNotFound
	// if absent.
	Get(ctx context.Context, workflowID string) (*models.WorkflowExecution, error)
	// Create registers a new execution record.
	Create(ctx context.Context, exec *models.WorkflowExecution) error
	// Upsert merges the non-nil fields of update into the record and returns
	// the updated copy. Writes for the same workflow id are serialized.
	Upsert(ctx context.Context, workflowID string, update models.ExecutionUpdate) (*models.WorkflowExecution, error)
	// ListByTenant returns all executions owned by a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*models.WorkflowExecution, error)
	// Delete removes an execution. Used only by explicit tenant-scoped
	// cleanup, never implicitly.
	Delete(ctx context.Context, workflowID string) error
}

// StatusObserver is notified synchronously whenever an upsert changes a
// workflow's status.
type StatusObserver func(exec *models.WorkflowExecution, previous models.WorkflowStatus)

// CheckpointStore persists ordered per-step snapshots enabling resumable
// execution.
type CheckpointStore interface {
	// Append writes a checkpoint. Returns models.ErrDuplicateStep if the
	// step id already exists for the workflow. The write is all-or-nothing.
	Append(ctx context.Context, cp *models.Checkpoint) error
	// List returns the workflow's checkpoints in ascending step id order.
	List(ctx context.Context, workflowID string) ([]*models.Checkpoint, error)
	// Get returns a single checkpoint or models.ErrNotFound.
	Get(ctx context.Context, workflowID string, stepID int) (*models.Checkpoint, error)
	// Latest returns the checkpoint with the greatest step id among
	// recoverable entries, or models.ErrNoRecoverableCheckpoint.
	Latest(ctx context.Context, workflowID string) (*models.Checkpoint, error)
	// Purge removes all checkpoints for a workflow. Used when the workflow
	// is archived.
	Purge(ctx context.Context, workflowID string) error
}

// TenantStore resolves and provisions tenants for the auth middleware.
type TenantStore interface {
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}
