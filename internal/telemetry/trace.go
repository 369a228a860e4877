package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cadre-oss/hearth"

type traceKey struct{}

// TraceContext carries correlation IDs through a turn.
type TraceContext struct {
	SessionID string `json:"session_id"`
	TraceID   string `json:"trace_id"`
	SpanID    string `json:"span_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Turn      int64  `json:"turn,omitempty"`
}

// NewTraceContext creates a root trace context for a session.
func NewTraceContext(sessionID string) *TraceContext {
	return &TraceContext{
		SessionID: sessionID,
		TraceID:   randomID(),
		SpanID:    randomID(),
	}
}

// ChildSpan creates a child trace context inheriting the TraceID and SessionID.
func (tc *TraceContext) ChildSpan() *TraceContext {
	return &TraceContext{
		SessionID: tc.SessionID,
		TraceID:   tc.TraceID,
		SpanID:    randomID(),
		ParentID:  tc.SpanID,
		Speaker:   tc.Speaker,
		Turn:      tc.Turn,
	}
}

// WithSpeaker returns a copy with the Speaker set.
func (tc *TraceContext) WithSpeaker(name string) *TraceContext {
	child := *tc
	child.Speaker = name
	return &child
}

// WithTurn returns a copy with the turn number set.
func (tc *TraceContext) WithTurn(n int64) *TraceContext {
	child := *tc
	child.Turn = n
	return &child
}

// Fields returns key-value pairs suitable for structured logging.
func (tc *TraceContext) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"session_id": tc.SessionID,
		"trace_id":   tc.TraceID,
		"span_id":    tc.SpanID,
	}
	if tc.ParentID != "" {
		fields["parent_id"] = tc.ParentID
	}
	if tc.Speaker != "" {
		fields["speaker"] = tc.Speaker
	}
	if tc.Turn > 0 {
		fields["turn"] = tc.Turn
	}
	return fields
}

// Labels returns the trace fields as string labels for metric snapshots.
func (tc *TraceContext) Labels() map[string]string {
	labels := map[string]string{"session_id": tc.SessionID}
	if tc.Speaker != "" {
		labels["speaker"] = tc.Speaker
	}
	if tc.Turn > 0 {
		labels["turn"] = strconv.FormatInt(tc.Turn, 10)
	}
	return labels
}

// ContextWithTrace stores a TraceContext in the context.
func ContextWithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, tc)
}

// TraceFromContext extracts a TraceContext from the context, or nil.
func TraceFromContext(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceKey{}).(*TraceContext)
	return tc
}

// WithTrace returns a logger enriched with trace fields from the context.
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	tc := TraceFromContext(ctx)
	if tc == nil {
		return l
	}
	return l.WithFields(tc.Fields())
}

// StartSpan opens an OpenTelemetry span named after a turn stage. Session
// correlation fields are copied onto the span when present. Without a
// configured provider the global no-op tracer is used.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tc := TraceFromContext(ctx); tc != nil {
		attrs = append(attrs, attribute.String("hearth.session_id", tc.SessionID))
		if tc.Turn > 0 {
			attrs = append(attrs, attribute.Int64("hearth.turn", tc.Turn))
		}
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetupTracing installs an OTLP/HTTP tracer provider exporting to endpoint
// (host:port). The returned function flushes and shuts the provider down.
func SetupTracing(ctx context.Context, endpoint, serviceName string) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
