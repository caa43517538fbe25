// Package health probes the retrieval dependencies and derives a composite
// verdict.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/sakusei/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Component names in the health snapshot.
const (
	ComponentVectorStore      = "vectorStore"
	ComponentEmbeddingService = "embeddingService"
	ComponentPrimaryReranker  = "primaryReranker"
	ComponentFallbackReranker = "fallbackReranker"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Monitor runs the four dependency probes concurrently and combines them.
type Monitor struct {
	vectorStore      Probe
	embeddingService Probe
	primaryReranker  Probe
	fallbackReranker Probe
	timeout          time.Duration
	logger           *zap.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithProbeTimeout sets the per-probe timeout. Probes run concurrently, so
// the composite check is bounded by the slowest single probe, not the sum.
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewMonitor creates a monitor over the four dependency probes.
func NewMonitor(vectorStore, embeddingService, primaryReranker, fallbackReranker Probe, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		vectorStore:      vectorStore,
		embeddingService: embeddingService,
		primaryReranker:  primaryReranker,
		fallbackReranker: fallbackReranker,
		timeout:          5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckHealth runs all probes concurrently and returns the composite snapshot.
func (m *Monitor) CheckHealth(ctx context.Context) *models.HealthSnapshot {
	components := make(map[string]models.ComponentHealth, 4)
	results := make([]models.ComponentHealth, 4)
	probes := []struct {
		name  string
		probe Probe
	}{
		{ComponentVectorStore, m.vectorStore},
		{ComponentEmbeddingService, m.embeddingService},
		{ComponentPrimaryReranker, m.primaryReranker},
		{ComponentFallbackReranker, m.fallbackReranker},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			results[i] = m.runProbe(gctx, p.probe)
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range probes {
		components[p.name] = results[i]
	}

	snapshot := &models.HealthSnapshot{
		Status:     composite(components),
		Components: components,
	}
	if m.logger != nil && snapshot.Status != models.HealthHealthy {
		m.logger.Warn("retrieval dependencies degraded", zap.String("status", string(snapshot.Status)))
	}
	return snapshot
}

// runProbe executes one probe with the per-probe timeout. Probe errors and
// panics are converted into an unhealthy result; runProbe never fails.
func (m *Monitor) runProbe(ctx context.Context, probe Probe) (result models.ComponentHealth) {
	start := time.Now()
	result = models.ComponentHealth{Status: models.HealthHealthy, LastChecked: start}

	defer func() {
		if r := recover(); r != nil {
			result.Status = models.HealthUnhealthy
			result.Error = fmt.Sprintf("probe panicked: %v", r)
		}
		result.LatencyMs = time.Since(start).Milliseconds()
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if probe == nil {
		result.Status = models.HealthUnhealthy
		result.Error = "probe not configured"
		return result
	}
	if err := probe(probeCtx); err != nil {
		result.Status = models.HealthUnhealthy
		result.Error = err.Error()
	}
	return result
}

// composite applies the priority rules: the vector store and embedding
// service are hard dependencies; rerankers only degrade quality, and one
// healthy reranker is a sufficient fallback.
func composite(components map[string]models.ComponentHealth) models.HealthStatus {
	if components[ComponentVectorStore].Status == models.HealthUnhealthy {
		return models.HealthUnhealthy
	}
	if components[ComponentEmbeddingService].Status == models.HealthUnhealthy {
		return models.HealthUnhealthy
	}
	primaryDown := components[ComponentPrimaryReranker].Status == models.HealthUnhealthy
	fallbackDown := components[ComponentFallbackReranker].Status == models.HealthUnhealthy
	if primaryDown && fallbackDown {
		return models.HealthDegraded
	}
	return models.HealthHealthy
}
