// Package correlation threads a per-request correlation ID through contexts.
// The tracing middleware seeds one ID per request and the span processor
// stamps it on every span, so logs and traces join on a single value.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type ctxKey struct{}

// FromContext returns the correlation ID on ctx, or "" when none was seeded.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID pins id onto ctx. An empty id leaves ctx untouched.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// EnsureCorrelationID returns ctx carrying a correlation ID plus the ID
// itself. A fresh ULID is minted only when ctx has none, so repeated calls
// along one request agree on the value.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}
