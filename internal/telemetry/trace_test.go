package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestTraceContext_NewAndChild(t *testing.T) {
	root := NewTraceContext("sess-123")

	if root.SessionID != "sess-123" {
		t.Errorf("expected SessionID 'sess-123', got %q", root.SessionID)
	}
	if root.TraceID == "" || root.SpanID == "" {
		t.Error("expected non-empty TraceID and SpanID")
	}
	if root.ParentID != "" {
		t.Error("expected empty ParentID for root")
	}

	child := root.WithTurn(3).ChildSpan()
	if child.TraceID != root.TraceID {
		t.Error("child should inherit TraceID")
	}
	if child.ParentID != root.SpanID {
		t.Error("child ParentID should be parent's SpanID")
	}
	if child.Turn != 3 {
		t.Errorf("expected turn 3 carried to child, got %d", child.Turn)
	}
}

func TestTraceContext_WithSpeakerCopies(t *testing.T) {
	tc := NewTraceContext("s")
	withSpeaker := tc.WithSpeaker("妈妈")

	if withSpeaker.Speaker != "妈妈" {
		t.Errorf("expected speaker, got %q", withSpeaker.Speaker)
	}
	if tc.Speaker != "" {
		t.Error("original should not be modified")
	}
}

func TestTraceContext_ContextPropagation(t *testing.T) {
	tc := NewTraceContext("sess-2")
	ctx := ContextWithTrace(context.Background(), tc)

	extracted := TraceFromContext(ctx)
	if extracted == nil {
		t.Fatal("expected trace in context")
	}
	if extracted.SessionID != "sess-2" {
		t.Errorf("expected SessionID 'sess-2', got %q", extracted.SessionID)
	}

	if TraceFromContext(context.Background()) != nil {
		t.Error("expected nil trace from empty context")
	}
}

func TestTraceContext_FieldsAndLabels(t *testing.T) {
	tc := NewTraceContext("sess-3").WithSpeaker("dad").WithTurn(7)

	fields := tc.Fields()
	if fields["session_id"] != "sess-3" || fields["speaker"] != "dad" || fields["turn"] != int64(7) {
		t.Errorf("unexpected fields: %v", fields)
	}

	labels := tc.Labels()
	if labels["turn"] != "7" {
		t.Errorf("expected turn label 7, got %q", labels["turn"])
	}
}

func TestLogger_WithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, slog.LevelDebug)
	ctx := ContextWithTrace(context.Background(), NewTraceContext("sess-4"))

	logger.WithTrace(ctx).Info("turn done")
	if !strings.Contains(buf.String(), "session_id=sess-4") {
		t.Errorf("expected session_id in output, got %q", buf.String())
	}

	if logger.WithTrace(context.Background()) != logger {
		t.Error("expected the same logger without a trace")
	}
}

func TestStartSpan_NoProvider(t *testing.T) {
	ctx := ContextWithTrace(context.Background(), NewTraceContext("sess-5").WithTurn(1))
	spanCtx, span := StartSpan(ctx, "assemble")
	defer span.End()

	if spanCtx == nil {
		t.Fatal("expected context")
	}
	if TraceFromContext(spanCtx) == nil {
		t.Error("span context should keep the trace context")
	}
}
