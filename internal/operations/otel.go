package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"zipenrich/internal/infrastructure"
)

const (
	TracerName = "zipenrich.operation"
)

// OperationTracer provides OpenTelemetry instrumentation for pipeline runs
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewOperationTracer creates a tracer from the initialized providers. With
// nil providers spans and instruments are no-ops.
func NewOperationTracer(providers *infrastructure.OTelProviders, metrics *infrastructure.PipelineMetrics) (*OperationTracer, error) {
	tracer := noop.NewTracerProvider().Tracer(TracerName)
	if providers != nil && providers.Tracer != nil {
		tracer = providers.Tracer
	}

	if metrics == nil {
		var meter metric.Meter
		if providers != nil {
			meter = providers.Meter
		}
		m, err := infrastructure.NewPipelineMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
		}
		metrics = m
	}

	return &OperationTracer{tracer: tracer, metrics: metrics}, nil
}

// Metrics returns the pipeline instruments
func (pt *OperationTracer) Metrics() *infrastructure.PipelineMetrics {
	return pt.metrics
}

// TraceOperationExecution creates a span for the entire run
func (pt *OperationTracer) TraceOperationExecution(ctx context.Context, operationID string, req OperationRequest) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.Bool("operation.from_checkpoint", req.FromCheckpoint),
		),
	)
}

// TraceStageExecution creates a span for one step
func (pt *OperationTracer) TraceStageExecution(ctx context.Context, operationID, stageID string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, fmt.Sprintf("operation.step.%s", stageID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stageID),
		),
	)
}

// RecordStageCompletion records step metrics and closes out the span status
func (pt *OperationTracer) RecordStageCompletion(ctx context.Context, span trace.Span, stageID string, status StepStatus, duration time.Duration, records int, err error) {
	span.SetAttributes(
		attribute.String("step.status", string(status)),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
		attribute.Int("step.records", records),
	)

	attrs := metric.WithAttributes(
		attribute.String("step", stageID),
		attribute.String("status", string(status)),
	)
	pt.metrics.StepsTotal.Add(ctx, 1, attrs)
	pt.metrics.StepDuration.Record(ctx, duration.Seconds(), attrs)
	if status == StepStatusCompleted && records > 0 {
		pt.metrics.RecordsProcessed.Add(ctx, int64(records),
			metric.WithAttributes(attribute.String("step", stageID)))
	}

	if err != nil {
		span.RecordError(err, trace.WithAttributes(
			attribute.String("error.type", string(GetErrorType(err))),
		))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RecordOperationCompletion records the run outcome
func (pt *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, status OperationStatusValue, err error) {
	span.SetAttributes(attribute.String("operation.status", string(status)))
	pt.metrics.OperationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", string(status))))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
