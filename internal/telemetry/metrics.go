package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application counters and histograms.
type Metrics struct {
	RequestCounter   metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	IngestCounter    metric.Int64Counter
	IngestDuration   metric.Float64Histogram
	AskCounter       metric.Int64Counter
	AskDuration      metric.Float64Histogram
	ChunksIndexed    metric.Int64Counter
	ProviderFailures metric.Int64Counter
}

// InitMetrics initializes the application metrics.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("webchat-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestCounter, err := meter.Int64Counter(
		"rag.ingest.total",
		metric.WithDescription("Total ingest operations"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"rag.ingest.duration",
		metric.WithDescription("Ingest duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	askCounter, err := meter.Int64Counter(
		"rag.ask.total",
		metric.WithDescription("Total answered questions"),
	)
	if err != nil {
		return nil, err
	}

	askDuration, err := meter.Float64Histogram(
		"rag.ask.duration",
		metric.WithDescription("Question answering duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"rag.chunks.indexed",
		metric.WithDescription("Total chunks added to vector indexes"),
	)
	if err != nil {
		return nil, err
	}

	providerFailures, err := meter.Int64Counter(
		"rag.provider.failures",
		metric.WithDescription("Provider call failures by kind"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:   requestCounter,
		RequestDuration:  requestDuration,
		IngestCounter:    ingestCounter,
		IngestDuration:   ingestDuration,
		AskCounter:       askCounter,
		AskDuration:      askDuration,
		ChunksIndexed:    chunksIndexed,
		ProviderFailures: providerFailures,
	}, nil
}

// RecordRequest records one HTTP request with method, path and outcome
// labels.
func (m *Metrics) RecordRequest(ctx context.Context, method, path, status string, seconds float64) {
	if m == nil || m.RequestCounter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, seconds, attrs)
}

// RecordIngest records one completed ingest operation.
func (m *Metrics) RecordIngest(ctx context.Context, provider string, chunks int, seconds float64) {
	if m == nil || m.IngestCounter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.IngestCounter.Add(ctx, 1, attrs)
	m.IngestDuration.Record(ctx, seconds, attrs)
	m.ChunksIndexed.Add(ctx, int64(chunks), attrs)
}

// RecordAsk records one answered question.
func (m *Metrics) RecordAsk(ctx context.Context, provider string, seconds float64) {
	if m == nil || m.AskCounter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.AskCounter.Add(ctx, 1, attrs)
	m.AskDuration.Record(ctx, seconds, attrs)
}

// RecordProviderFailure increments the failure counter with a kind label.
func (m *Metrics) RecordProviderFailure(ctx context.Context, provider, kind string) {
	if m == nil || m.ProviderFailures == nil {
		return
	}
	m.ProviderFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
}
