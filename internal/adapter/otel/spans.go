package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "missioncontrol"

// StartScanSpan starts a span for one watchdog scan.
func StartScanSpan(ctx context.Context, dryRun, force bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "watchdog.scan",
		trace.WithAttributes(
			attribute.Bool("watchdog.dry_run", dryRun),
			attribute.Bool("watchdog.force", force),
		),
	)
}

// StartRequeueSpan starts a span for requeueing one run.
func StartRequeueSpan(ctx context.Context, runID, sessionKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "watchdog.requeue",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("session.key", sessionKey),
		),
	)
}

// StartSendSpan starts a span for a message sent to a session.
func StartSendSpan(ctx context.Context, sessionID, purpose string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.send",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("send.purpose", purpose),
		),
	)
}

// StartSnapshotSpan starts a span for building the agents snapshot.
func StartSnapshotSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "snapshot.build")
}
