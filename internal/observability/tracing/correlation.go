package tracing

import (
	"context"

	"github.com/smallbiznis/beacon/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// correlationProcessor stamps a correlation ID attribute onto every span.
// The HTTP middleware seeds the ID once per request, so spans from the
// handler down to gorm share one value; spans started outside a request
// get a fresh ID.
type correlationProcessor struct{}

func (correlationProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	_, cid := correlation.EnsureCorrelationID(ctx)
	s.SetAttributes(attribute.String("correlation_id", cid))
}

func (correlationProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (correlationProcessor) Shutdown(context.Context) error { return nil }

func (correlationProcessor) ForceFlush(context.Context) error { return nil }
