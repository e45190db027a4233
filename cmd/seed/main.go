package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/internal/config"
	"docforge/internal/logging"
	"docforge/internal/repository"
	"docforge/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// 1. Ensure the dev tenant exists
	domain := "localhost"
	tenant, err := store.GetTenantByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default tenant", "domain", domain)
		tenant = &models.Tenant{
			Name:   "Local Dev Tenant",
			Domain: domain,
		}
		if err := store.CreateTenant(ctx, tenant); err != nil {
			log.Fatalf("Failed to create tenant: %v", err)
		}
	} else {
		logger.Info("Found existing tenant", "id", tenant.ID)
	}

	// 2. Seed a demo checkpoint trail so recovery can be exercised against a
	// workflow registered with the same id.
	workflowID := uuid.New().String()
	steps := []struct {
		StepID      int
		Label       string
		Recoverable bool
	}{
		{1, "collect-sources", true},
		{2, "outline", true},
		{3, "draft-sections", true},
		{4, "render-preview", false},
		{5, "assemble-document", true},
	}

	for _, step := range steps {
		cp := &models.Checkpoint{
			WorkflowID:    workflowID,
			StepID:        step.StepID,
			StepLabel:     step.Label,
			StateSnapshot: []byte(fmt.Sprintf(`{"step":%d,"label":%q}`, step.StepID, step.Label)),
			IsRecoverable: step.Recoverable,
			CreatedAt:     time.Now().UTC(),
		}
		if err := store.Append(ctx, cp); err != nil {
			if errors.Is(err, models.ErrDuplicateStep) {
				logger.Info("Skipping existing checkpoint", "workflow", workflowID, "step", step.StepID)
				continue
			}
			log.Printf("Failed to seed checkpoint %d: %v", step.StepID, err)
			continue
		}
		logger.Info("Seeded checkpoint", "workflow", workflowID, "step", step.StepID, "label", step.Label)
	}

	logger.Info("Seeding complete!", "tenant", tenant.ID, "workflow", workflowID)
}
