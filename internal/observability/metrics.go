// Package observability provides metrics for the fetch pipeline and the
// meter provider wiring that exposes them through Prometheus.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds custom metrics for fetch execution: how often the
// stored-function cache hits, how often functions are created, and how often
// the in-transaction fallback runs the raw query.
type Metrics struct {
	batches           metric.Int64Counter
	probeHits         metric.Int64Counter
	probeMisses       metric.Int64Counter
	functionCreations metric.Int64Counter
	fallbackQueries   metric.Int64Counter
}

// InitMetrics initializes the fetch-pipeline metrics on the global meter.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("entity-builder")

	batches, err := meter.Int64Counter(
		"entity_builder.batches.total",
		metric.WithDescription("Batches executed across all fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch counter: %w", err)
	}

	probeHits, err := meter.Int64Counter(
		"entity_builder.probe.hits.total",
		metric.WithDescription("Existence probes answered by an already-created stored function"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe hit counter: %w", err)
	}

	probeMisses, err := meter.Int64Counter(
		"entity_builder.probe.misses.total",
		metric.WithDescription("Existence probes that found no stored function"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe miss counter: %w", err)
	}

	functionCreations, err := meter.Int64Counter(
		"entity_builder.function.creations.total",
		metric.WithDescription("Stored functions created"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create function creation counter: %w", err)
	}

	fallbackQueries, err := meter.Int64Counter(
		"entity_builder.fallback.queries.total",
		metric.WithDescription("Raw queries run because creation is suppressed inside transactions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback query counter: %w", err)
	}

	return &Metrics{
		batches:           batches,
		probeHits:         probeHits,
		probeMisses:       probeMisses,
		functionCreations: functionCreations,
		fallbackQueries:   fallbackQueries,
	}, nil
}

// RecordBatch counts one executed batch.
func (m *Metrics) RecordBatch(ctx context.Context) {
	m.batches.Add(ctx, 1)
}

// RecordProbeHit counts a probe answered by an existing stored function.
func (m *Metrics) RecordProbeHit(ctx context.Context) {
	m.probeHits.Add(ctx, 1)
}

// RecordProbeMiss counts a probe that found no stored function.
func (m *Metrics) RecordProbeMiss(ctx context.Context) {
	m.probeMisses.Add(ctx, 1)
}

// RecordFunctionCreation counts a stored function creation.
func (m *Metrics) RecordFunctionCreation(ctx context.Context) {
	m.functionCreations.Add(ctx, 1)
}

// RecordFallbackQuery counts a raw query run in place of a stored function.
func (m *Metrics) RecordFallbackQuery(ctx context.Context) {
	m.fallbackQueries.Add(ctx, 1)
}
