package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/evroute/evroute/internal/telemetry"

// ProviderMetrics records outbound provider calls and cache effectiveness.
// A nil *ProviderMetrics is valid and records nothing.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewProviderMetrics registers the provider instruments on the global meter.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Provider requests by operation and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Provider responses served from cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Provider lookups that missed the cache"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}, nil
}

func providerAttrs(provider, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
}

// RecordRequest records one provider round trip.
func (m *ProviderMetrics) RecordRequest(ctx context.Context, provider, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := append(providerAttrs(provider, operation), attribute.Bool("error", err != nil))
	// Detached so cancelled requests are still counted.
	ctx = context.WithoutCancel(ctx)
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit counts a cache hit.
func (m *ProviderMetrics) RecordCacheHit(ctx context.Context, provider, operation string) {
	if m == nil {
		return
	}
	m.cacheHits.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// RecordCacheMiss counts a cache miss.
func (m *ProviderMetrics) RecordCacheMiss(ctx context.Context, provider, operation string) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// PlannerMetrics records planning pipeline outcomes.
// A nil *PlannerMetrics is valid and records nothing.
type PlannerMetrics struct {
	stageDuration metric.Float64Histogram
	candidates    metric.Int64Histogram
	outcomes      metric.Int64Counter
	superseded    metric.Int64Counter
}

// NewPlannerMetrics registers the planner instruments on the global meter.
func NewPlannerMetrics() (*PlannerMetrics, error) {
	meter := Meter(meterName)

	stageDuration, err := meter.Float64Histogram(
		"planner.stage.duration",
		metric.WithDescription("Duration of planning stages in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	candidates, err := meter.Int64Histogram(
		"planner.discovery.candidates",
		metric.WithDescription("Charging candidates found per route"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}
	outcomes, err := meter.Int64Counter(
		"planner.optimize.outcome",
		metric.WithDescription("Optimizer runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}
	superseded, err := meter.Int64Counter(
		"planner.run.superseded",
		metric.WithDescription("Pipeline runs discarded because a newer run started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &PlannerMetrics{
		stageDuration: stageDuration,
		candidates:    candidates,
		outcomes:      outcomes,
		superseded:    superseded,
	}, nil
}

// RecordStage records how long a pipeline stage took.
func (m *PlannerMetrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage), attribute.Bool("error", err != nil))
	m.stageDuration.Record(context.WithoutCancel(ctx), d.Seconds(), attrs)
}

// RecordCandidates records the size of a discovered candidate set.
func (m *PlannerMetrics) RecordCandidates(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.candidates.Record(context.WithoutCancel(ctx), int64(n))
}

// RecordOutcome counts an optimizer result.
func (m *PlannerMetrics) RecordOutcome(ctx context.Context, outcome string, stops int) {
	if m == nil {
		return
	}
	m.outcomes.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("stops", stops),
	))
}

// RecordSuperseded counts a discarded run for the given stage.
func (m *PlannerMetrics) RecordSuperseded(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.superseded.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("stage", stage)))
}
