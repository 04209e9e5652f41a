// Package xtrace wraps the OpenTelemetry trace API the way the teacher's
// agent/llmagent package wraps it: a single package-level Tracer and a
// thin StartXxx helper per operation, with no exporter wiring of its own.
// Whatever TracerProvider the host process registers (or none, in which
// case spans are no-ops) is what backs these spans.
package xtrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentName = "trpc.agent.go/engine"

// Tracer is the package-level tracer every span in this module starts from,
// mirroring the teacher's telemetry/trace.Tracer package variable.
var Tracer = otel.Tracer(instrumentName)

// Operation names, grounded on the teacher's internal/telemetry operation
// constants (OperationInvokeAgent, OperationGenerateContent).
const (
	OperationExecuteRun = "execute_run"
	OperationModelCall  = "generate_content"
)

// StartRun opens the one span per execute(runId) call that SPEC_FULL.md's
// domain stack commits to.
func StartRun(ctx context.Context, runID, agentSlug string) (context.Context, trace.Span) {
	ctx, span := Tracer.Start(ctx, OperationExecuteRun,
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("agent.slug", agentSlug),
		),
	)
	return ctx, span
}

// StartModelCall opens the one span per model call that SPEC_FULL.md's
// domain stack commits to.
func StartModelCall(ctx context.Context, model string) (context.Context, trace.Span) {
	ctx, span := Tracer.Start(ctx, OperationModelCall,
		trace.WithAttributes(attribute.String("model", model)),
	)
	return ctx, span
}

// End records err (if any) onto span and closes it, mirroring the
// teacher's span.SetStatus(codes.Error, ...) + span.End() pairing.
func End(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}
