package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/pkg/models"
)

// PostgresStore is the PostgreSQL-backed implementation of CheckpointStore
// and TenantStore.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables the store needs if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			workflow_id    TEXT NOT NULL,
			step_id        INT NOT NULL,
			step_label     TEXT NOT NULL DEFAULT '',
			state_snapshot BYTEA NOT NULL,
			is_recoverable BOOLEAN NOT NULL DEFAULT TRUE,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (workflow_id, step_id)
		);
		CREATE TABLE IF NOT EXISTS tenants (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL,
			domain     TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	return err
}

// Append writes a checkpoint. The single-row insert is atomic; a partially
// written checkpoint is never visible to readers.
func (s *PostgresStore) Append(ctx context.Context, cp *models.Checkpoint) error {
	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO checkpoints (workflow_id, step_id, step_label, state_snapshot, is_recoverable, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		cp.WorkflowID, cp.StepID, cp.StepLabel, cp.StateSnapshot, cp.IsRecoverable, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("workflow %s step %d: %w", cp.WorkflowID, cp.StepID, models.ErrDuplicateStep)
		}
		return fmt.Errorf("append checkpoint: %w", err)
	}
	return nil
}

// List returns the workflow's checkpoints in ascending step id order.
func (s *PostgresStore) List(ctx context.Context, workflowID string) ([]*models.Checkpoint, error) {
	rows, err := s.db.Query(ctx,
		`SELECT workflow_id, step_id, step_label, state_snapshot, is_recoverable, created_at
		 FROM checkpoints WHERE workflow_id = $1 ORDER BY step_id ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.WorkflowID, &cp.StepID, &cp.StepLabel, &cp.StateSnapshot, &cp.IsRecoverable, &cp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// Get returns a single checkpoint or models.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, workflowID string, stepID int) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id, step_id, step_label, state_snapshot, is_recoverable, created_at
		 FROM checkpoints WHERE workflow_id = $1 AND step_id = $2`, workflowID, stepID).
		Scan(&cp.WorkflowID, &cp.StepID, &cp.StepLabel, &cp.StateSnapshot, &cp.IsRecoverable, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s step %d: %w", workflowID, stepID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// Latest returns the checkpoint with the greatest step id among recoverable
// entries.
func (s *PostgresStore) Latest(ctx context.Context, workflowID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id, step_id, step_label, state_snapshot, is_recoverable, created_at
		 FROM checkpoints WHERE workflow_id = $1 AND is_recoverable
		 ORDER BY step_id DESC LIMIT 1`, workflowID).
		Scan(&cp.WorkflowID, &cp.StepID, &cp.StepLabel, &cp.StateSnapshot, &cp.IsRecoverable, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrNoRecoverableCheckpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return &cp, nil
}

// Purge removes all checkpoints for a workflow.
func (s *PostgresStore) Purge(ctx context.Context, workflowID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM checkpoints WHERE workflow_id = $1`, workflowID)
	return err
}

// GetTenantByDomain retrieves a tenant by its email domain.
func (s *PostgresStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM tenants WHERE domain = $1`, domain).
		Scan(&tenant.ID, &tenant.Name, &tenant.Domain, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", domain, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// CreateTenant inserts a new tenant, generating its id.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (id, name, domain, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, tenant.Domain, tenant.CreatedAt, tenant.UpdatedAt)
	return err
}
