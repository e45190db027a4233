package alerting

import (
	"context"
	"fmt"
	"time"

	"docforge/pkg/models"
)

// HealthSource supplies the metric pipeline's derived health.
type HealthSource interface {
	HealthSnapshot() models.HealthSnapshot
	Evict()
}

const degradedHealthTitle = "Metrics health degraded"

// Evaluator is the single background timer task: it periodically evaluates
// aggregated metrics health, opens alerts when health degrades and resolves
// them when it recovers, and evicts expired metric points.
type Evaluator struct {
	system   *System
	health   HealthSource
	interval time.Duration
	logger   Logger
}

// NewEvaluator creates an Evaluator ticking at the given interval.
func NewEvaluator(system *System, health HealthSource, interval time.Duration, logger Logger) *Evaluator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Evaluator{system: system, health: health, interval: interval, logger: logger}
}

// Run evaluates until the context is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.evaluate()
		}
	}
}

func (e *Evaluator) evaluate() {
	e.health.Evict()

	snapshot := e.health.HealthSnapshot()
	switch snapshot.Status {
	case models.HealthHealthy:
		e.system.resolveByTitle(degradedHealthTitle)
		return
	case models.HealthDegraded, models.HealthUnhealthy:
		if e.system.hasUnresolved(degradedHealthTitle) {
			return
		}
		severity := models.SeverityWarning
		if snapshot.Status == models.HealthUnhealthy {
			severity = models.SeverityCritical
		}
		metadata := make(map[string]string, len(snapshot.Checks))
		for _, check := range snapshot.Checks {
			metadata[check.Name] = fmt.Sprintf("%s (%.2f)", check.Status, check.Value)
		}
		if _, err := e.system.CreateAlert(
			degradedHealthTitle,
			fmt.Sprintf("metrics pipeline reports %s", snapshot.Status),
			severity,
			"", "",
			metadata,
		); err != nil {
			e.logger.Error("failed to persist health alert", "error", err)
		}
	}
}
