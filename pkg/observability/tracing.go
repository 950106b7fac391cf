package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mcp-mesh/gateway-registry"

// StartSpan starts a trace span using the globally registered tracer
// provider. With no provider installed this is a no-op span, so call sites
// do not need to guard on tracing being enabled.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

// SetSpanAttribute sets a string attribute on the given span
func SetSpanAttribute(span trace.Span, key, value string) {
	span.SetAttributes(attribute.String(key, value))
}
