// Package monitoring holds the harness's Prometheus metrics and OpenTelemetry
// tracing setup.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/oicur0t/forwardog/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// ServiceName identifies the harness in traces
const ServiceName = "forwardog"

var (
	// Submissions counts attempts by kind and outcome (success, warning, error, busy)
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwardog_submissions_total",
			Help: "Total number of submission attempts",
		},
		[]string{"kind", "outcome"},
	)

	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forwardog_submission_duration_seconds",
			Help:    "Duration of submission attempts including the backend call",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	TimestampWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwardog_timestamp_warnings_total",
			Help: "Total number of timestamp plausibility warnings raised",
		},
		[]string{"kind"},
	)

	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forwardog_history_entries",
			Help: "Current number of entries in the submission history",
		},
	)

	FollowBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forwardog_follow_batch_lines",
			Help:    "Number of lines per follow-mode batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// ObserveSubmission records one finished submission
func ObserveSubmission(kind, outcome string, elapsed time.Duration) {
	Submissions.WithLabelValues(kind, outcome).Inc()
	SubmissionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// InitTracing installs an OTLP/gRPC tracer provider when tracing is enabled.
// The returned shutdown func is always safe to call.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceVersion string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	traceExporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
