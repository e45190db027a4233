package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docforge/pkg/models"
)

// MemoryTenantStore is the in-memory TenantStore used in tests and when the
// database is disabled.
type MemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant // keyed by domain
}

// NewMemoryTenantStore creates an empty MemoryTenantStore.
func NewMemoryTenantStore() *MemoryTenantStore {
	return &MemoryTenantStore{tenants: make(map[string]*models.Tenant)}
}

// GetTenantByDomain retrieves a tenant by its email domain.
func (s *MemoryTenantStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[domain]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", domain, models.ErrNotFound)
	}
	copied := *tenant
	return &copied, nil
}

// CreateTenant inserts a new tenant, generating its id.
func (s *MemoryTenantStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenant.Domain]; ok {
		return fmt.Errorf("tenant %s already exists: %w", tenant.Domain, models.ErrValidation)
	}
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	copied := *tenant
	s.tenants[tenant.Domain] = &copied
	return nil
}
