// Package dispatch runs the submission pipeline: build the payload from the
// editable state, screen timestamps, call the backend once, record the
// attempt in history and notify the presentation surface.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oicur0t/forwardog/internal/checker"
	"github.com/oicur0t/forwardog/internal/monitoring"
	"github.com/oicur0t/forwardog/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrBusy is reported when a submission of the same kind is still in flight
var ErrBusy = errors.New("submission already in flight")

const outcomeBusy = "busy"

// Backend performs one submission call
type Backend interface {
	Submit(ctx context.Context, path string, body any) (models.SubmissionResult, error)
}

// History records submission attempts
type History interface {
	Append(ctx context.Context, kind models.Kind, request json.RawMessage, result models.SubmissionResult) models.HistoryEntry
	Entries() []models.HistoryEntry
}

// Surface is the presentation side of the pipeline
type Surface interface {
	AddResult(kind models.Kind, result models.SubmissionResult)
	AddWarningResult(kind models.Kind, result models.SubmissionResult)
	UpdateHistoryView(entries []models.HistoryEntry)
	SetBusy(kind models.Kind, busy bool)
}

// NopSurface discards all notifications
type NopSurface struct{}

func (NopSurface) AddResult(models.Kind, models.SubmissionResult)        {}
func (NopSurface) AddWarningResult(models.Kind, models.SubmissionResult) {}
func (NopSurface) UpdateHistoryView([]models.HistoryEntry)               {}
func (NopSurface) SetBusy(models.Kind, bool)                             {}

// Dispatcher runs submissions. Each kind has at most one submission in flight.
type Dispatcher struct {
	backend Backend
	history History
	surface Surface
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[models.Kind]bool
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithSurface sets the presentation surface
func WithSurface(s Surface) Option {
	return func(d *Dispatcher) { d.surface = s }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock overrides time.Now for payload defaults and timestamp checks
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher
func New(backend Backend, history History, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:  backend,
		history:  history,
		surface:  NopSurface{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/oicur0t/forwardog/internal/dispatch"),
		now:      time.Now,
		inFlight: make(map[models.Kind]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit runs one submission of kind from state. It never returns an error:
// every failure is reported as a failed SubmissionResult.
func (d *Dispatcher) Submit(ctx context.Context, kind models.Kind, state models.EditableState) models.SubmissionResult {
	if state == nil || state.Kind() != kind {
		return models.Failed(fmt.Sprintf("Submission state does not match kind %s", kind), "")
	}

	if !d.acquire(kind) {
		d.logger.Debug("Submission rejected, already in flight", zap.String("kind", kind.String()))
		monitoring.Submissions.WithLabelValues(kind.String(), outcomeBusy).Inc()
		return models.Failed(ErrBusy.Error(), "Wait for the current submission to finish.")
	}
	defer d.release(kind)

	ctx, span := d.tracer.Start(ctx, "forwardog.submit",
		trace.WithAttributes(attribute.String("forwardog.kind", kind.String())))
	defer span.End()

	start := time.Now()
	result := d.run(ctx, kind, state)
	monitoring.ObserveSubmission(kind.String(), result.Status(), time.Since(start))

	span.SetAttributes(
		attribute.String("forwardog.outcome", result.Status()),
		attribute.Int("http.status_code", result.StatusCode),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}

	return result
}

// InFlight reports whether a submission of kind is running
func (d *Dispatcher) InFlight(kind models.Kind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight[kind]
}

func (d *Dispatcher) run(ctx context.Context, kind models.Kind, state models.EditableState) models.SubmissionResult {
	now := d.now()

	req, err := build(state, now)
	if err != nil {
		var be *buildError
		if !errors.As(err, &be) {
			be = &buildError{message: err.Error()}
		}
		d.logger.Info("Submission rejected locally",
			zap.String("kind", kind.String()),
			zap.String("reason", be.message))
		result := models.Failed(be.message, be.hint)
		d.finish(ctx, kind, be.snapshot, result)
		return result
	}

	warnings := screen(kind, req, now)
	if len(warnings) > 0 {
		monitoring.TimestampWarnings.WithLabelValues(kind.String()).Add(float64(len(warnings)))
	}

	result, err := d.backend.Submit(ctx, req.path, req.body)
	if err != nil {
		d.logger.Warn("Submission request failed",
			zap.String("kind", kind.String()),
			zap.String("path", req.path),
			zap.Error(err))
		result = models.Failed(fmt.Sprintf("Request failed: %v", err),
			"Check that the backend is running and reachable.")
	} else {
		result = result.WithWarnings(warnings)
	}

	d.logger.Debug("Submission completed",
		zap.String("kind", kind.String()),
		zap.String("outcome", result.Status()),
		zap.Int("status_code", result.StatusCode),
		zap.Int("warnings", len(warnings)))

	d.finish(ctx, kind, req.snapshot, result)
	return result
}

// finish records the attempt and notifies the surface
func (d *Dispatcher) finish(ctx context.Context, kind models.Kind, snapshot json.RawMessage, result models.SubmissionResult) {
	d.history.Append(ctx, kind, snapshot, result.Trimmed())
	entries := d.history.Entries()
	monitoring.HistoryEntries.Set(float64(len(entries)))

	if result.Warning {
		d.surface.AddWarningResult(kind, result)
	} else {
		d.surface.AddResult(kind, result)
	}
	d.surface.UpdateHistoryView(entries)
}

func (d *Dispatcher) acquire(kind models.Kind) bool {
	d.mu.Lock()
	if d.inFlight[kind] {
		d.mu.Unlock()
		return false
	}
	d.inFlight[kind] = true
	d.mu.Unlock()

	d.surface.SetBusy(kind, true)
	return true
}

func (d *Dispatcher) release(kind models.Kind) {
	d.mu.Lock()
	delete(d.inFlight, kind)
	d.mu.Unlock()

	d.surface.SetBusy(kind, false)
}

// screen runs the timestamp checker that applies to kind
func screen(kind models.Kind, req *request, now time.Time) []string {
	switch {
	case kind.IsMetrics():
		return checker.CheckMetrics(req.tree, now)
	case kind.IsLogs():
		return checker.CheckLogs(req.tree, now)
	case kind == models.KindAgentFile:
		return checker.CheckAgentFile(req.lines, now)
	}
	return nil
}
