package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("clawflow.pipeline")

// StartStageSpan opens a span around one stage run, tagged with the task
// and stage identifying it in the trace backend.
func StartStageSpan(ctx context.Context, taskID int64, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.runStage",
		trace.WithAttributes(
			attribute.Int64("clawflow.task_id", taskID),
			attribute.String("clawflow.stage", stage),
		),
	)
}

// EndSpanOK marks span as successful and ends it.
func EndSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
	span.End()
}

// EndSpanErr records err on span, marks it failed, and ends it.
func EndSpanErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// StartVCSSpan opens a span around one git subprocess invocation.
func StartVCSSpan(ctx context.Context, op string, taskID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vcs."+op,
		trace.WithAttributes(attribute.Int64("clawflow.task_id", taskID)),
	)
}
