package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on queue request spans.
const (
	AttrEndpoint    = attribute.Key("queuefire.endpoint")
	AttrClientIndex = attribute.Key("queuefire.client.index")
	AttrUserID      = attribute.Key("queuefire.user.id")
	AttrIteration   = attribute.Key("queuefire.iteration")
	AttrStatusCode  = attribute.Key("http.response.status_code")
	AttrErrorKind   = attribute.Key("queuefire.error.kind")
)

// StartRequestSpan starts a client span for one queue API request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, endpoint string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	spanName := method + " queue"
	if endpoint != "" {
		spanName = method + " queue " + endpoint
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("http.request.method", method))
	if endpoint != "" {
		span.SetAttributes(AttrEndpoint.String(endpoint))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
