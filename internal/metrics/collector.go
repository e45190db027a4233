// Package metrics implements the time-series ingestion, aggregation and
// health derivation pipeline.
package metrics

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"docforge/pkg/models"
)

const shardCount = 16

// AggregateOp enumerates the supported aggregation operators
type AggregateOp string

const (
	OpCount AggregateOp = "count"
	OpSum   AggregateOp = "sum"
	OpAvg   AggregateOp = "avg"
)

// Collector ingests MetricPoints and serves queries, aggregations and health
// snapshots. Points are sharded by metric name so concurrent writers for
// unrelated metrics never serialize on one lock.
type Collector struct {
	shards    [shardCount]*shard
	retention time.Duration
	now       func() time.Time

	ingested metric.Int64Counter
}

type shard struct {
	mu     sync.RWMutex
	points []models.MetricPoint
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the collector's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a Collector that keeps points for the given retention
// window.
func NewCollector(retention time.Duration, opts ...Option) *Collector {
	if retention <= 0 {
		retention = time.Hour
	}
	c := &Collector{retention: retention, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &shard{}
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("docforge/metrics")
	counter, err := meter.Int64Counter("docforge.metric_points_ingested")
	if err == nil {
		c.ingested = counter
	}
	return c
}

// Record appends a MetricPoint. Points are immutable once recorded.
func (c *Collector) Record(name string, value float64, tags map[string]string, tenantID string) {
	point := models.MetricPoint{
		Name:      name,
		Value:     value,
		Tags:      tags,
		TenantID:  tenantID,
		Timestamp: c.now().UTC(),
	}

	sh := c.shardFor(name)
	sh.mu.Lock()
	sh.points = append(sh.points, point)
	sh.mu.Unlock()

	if c.ingested != nil {
		c.ingested.Add(context.Background(), 1)
	}
}

// Query returns points matching the optional name and tenant filters,
// recorded at or after since.
func (c *Collector) Query(name, tenantID string, since time.Time) []models.MetricPoint {
	var out []models.MetricPoint
	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, p := range sh.points {
			if name != "" && p.Name != name {
				continue
			}
			if tenantID != "" && p.TenantID != tenantID {
				continue
			}
			if p.Timestamp.Before(since) {
				continue
			}
			out = append(out, p)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Aggregate computes count, sum or avg over the points for name since the
// given time, optionally grouped by a tag. Without a group-by tag the result
// holds a single "total" key. An avg over zero points is 0, not an error.
func (c *Collector) Aggregate(name string, op AggregateOp, groupByTag string, since time.Time) (map[string]float64, error) {
	if op != OpCount && op != OpSum && op != OpAvg {
		return nil, fmt.Errorf("%w: unknown aggregate op %q", models.ErrValidation, op)
	}

	counts := make(map[string]float64)
	sums := make(map[string]float64)

	sh := c.shardFor(name)
	sh.mu.RLock()
	for _, p := range sh.points {
		if p.Name != name || p.Timestamp.Before(since) {
			continue
		}
		key := "total"
		if groupByTag != "" {
			key = p.Tags[groupByTag]
			if key == "" {
				continue
			}
		}
		counts[key]++
		sums[key] += p.Value
	}
	sh.mu.RUnlock()

	out := make(map[string]float64)
	switch op {
	case OpCount:
		for k, v := range counts {
			out[k] = v
		}
	case OpSum:
		for k, v := range sums {
			out[k] = v
		}
	case OpAvg:
		for k, n := range counts {
			out[k] = sums[k] / n
		}
	}
	if len(out) == 0 && groupByTag == "" {
		out["total"] = 0
	}
	return out, nil
}

// Evict drops points older than the retention window. Called periodically by
// the background evaluator.
func (c *Collector) Evict() {
	cutoff := c.now().Add(-c.retention)
	for _, sh := range c.shards {
		sh.mu.Lock()
		kept := sh.points[:0]
		for _, p := range sh.points {
			if !p.Timestamp.Before(cutoff) {
				kept = append(kept, p)
			}
		}
		sh.points = kept
		sh.mu.Unlock()
	}
}

// Health thresholds. Error rate is failed / finished over the evaluation
// window; queue depth is the most recent callback_queue_depth gauge value.
const (
	errorRateDegraded   = 0.10
	errorRateUnhealthy  = 0.25
	queueDepthDegraded  = 100
	queueDepthUnhealthy = 500
	healthWindow        = 5 * time.Minute
)

// HealthSnapshot evaluates fixed thresholds over recent points and derives
// overall pipeline health.
func (c *Collector) HealthSnapshot() models.HealthSnapshot {
	since := c.now().Add(-healthWindow)

	failed := c.total("workflow_failed", since)
	completed := c.total("workflow_completed", since)
	finished := failed + completed

	var errorRate float64
	if finished > 0 {
		errorRate = failed / finished
	}

	queueDepth := c.lastValue("callback_queue_depth", since)

	checks := []models.HealthCheck{
		thresholdCheck("error_rate", errorRate, errorRateDegraded, errorRateUnhealthy),
		thresholdCheck("callback_queue_depth", queueDepth, queueDepthDegraded, queueDepthUnhealthy),
	}

	status := models.HealthHealthy
	for _, check := range checks {
		if check.Status == models.HealthUnhealthy {
			status = models.HealthUnhealthy
			break
		}
		if check.Status == models.HealthDegraded {
			status = models.HealthDegraded
		}
	}

	return models.HealthSnapshot{
		Status: status,
		Checks: checks,
		Metrics: map[string]float64{
			"error_rate":           errorRate,
			"workflows_failed":     failed,
			"workflows_completed":  completed,
			"callback_queue_depth": queueDepth,
		},
	}
}

func thresholdCheck(name string, value, degraded, unhealthy float64) models.HealthCheck {
	check := models.HealthCheck{Name: name, Status: models.HealthHealthy, Value: value}
	switch {
	case value >= unhealthy:
		check.Status = models.HealthUnhealthy
		check.Message = fmt.Sprintf("%s %.2f at or above unhealthy threshold %.2f", name, value, unhealthy)
	case value >= degraded:
		check.Status = models.HealthDegraded
		check.Message = fmt.Sprintf("%s %.2f at or above degraded threshold %.2f", name, value, degraded)
	}
	return check
}

func (c *Collector) total(name string, since time.Time) float64 {
	agg, err := c.Aggregate(name, OpCount, "", since)
	if err != nil {
		return 0
	}
	return agg["total"]
}

func (c *Collector) lastValue(name string, since time.Time) float64 {
	sh := c.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	var value float64
	var latest time.Time
	for _, p := range sh.points {
		if p.Name != name || p.Timestamp.Before(since) {
			continue
		}
		if p.Timestamp.After(latest) || latest.IsZero() {
			latest = p.Timestamp
			value = p.Value
		}
	}
	return value
}

func (c *Collector) shardFor(name string) *shard {
	h := fnv.New32a()
	h.Write([]byte(name))
	return c.shards[h.Sum32()%shardCount]
}
