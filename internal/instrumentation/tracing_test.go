package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a recording tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, attr := range attrs {
		m[string(attr.Key)] = attr.Value.AsInterface()
	}
	return m
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("gmail_delete").
		WithAccount("work").
		WithOperation(OperationBatchDelete).
		WithItemCount(42).
		WithDeletion(false, 100).
		WithOutcome("rejected", "limit_exceeded").
		Build()

	if len(attrs) != 8 {
		t.Errorf("expected 8 attributes, got %d", len(attrs))
	}

	m := attrMap(attrs)
	if m[SpanAttrTool] != "gmail_delete" {
		t.Errorf("expected tool 'gmail_delete', got %v", m[SpanAttrTool])
	}
	if m[SpanAttrAccount] != "work" {
		t.Errorf("expected account 'work', got %v", m[SpanAttrAccount])
	}
	if m[SpanAttrItemCount] != int64(42) {
		t.Errorf("expected item count 42, got %v", m[SpanAttrItemCount])
	}
	if m[SpanAttrDryRun] != false {
		t.Errorf("expected dry_run false, got %v", m[SpanAttrDryRun])
	}
	if m[SpanAttrMaxDeletions] != int64(100) {
		t.Errorf("expected max_deletions 100, got %v", m[SpanAttrMaxDeletions])
	}
	if m[SpanAttrPolicyCode] != "limit_exceeded" {
		t.Errorf("expected policy code 'limit_exceeded', got %v", m[SpanAttrPolicyCode])
	}
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("gmail_count").
		WithAccount("").
		WithOutcome("completed", "").
		Build()

	if len(attrs) != 2 {
		t.Errorf("expected 2 attributes (tool and outcome), got %d", len(attrs))
	}
}

func TestStartToolSpan(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartToolSpan(context.Background(), "gmail_search", attribute.String(SpanAttrAccount, "default"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "tool.gmail_search" {
		t.Errorf("expected span name 'tool.gmail_search', got %q", spans[0].Name())
	}
	if spans[0].SpanKind() != trace.SpanKindServer {
		t.Errorf("expected server span, got %v", spans[0].SpanKind())
	}
	m := attrMap(spans[0].Attributes())
	if m[SpanAttrTool] != "gmail_search" || m[SpanAttrAccount] != "default" {
		t.Errorf("unexpected attributes %v", m)
	}
}

func TestStartGatewaySpan(t *testing.T) {
	recorder := recordSpans(t)

	ctx, parent := StartToolSpan(context.Background(), "gmail_delete")
	_, span := StartGatewaySpan(ctx, OperationBatchDelete)
	span.End()
	parent.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child := spans[0]
	if child.Name() != "gmail.batch_delete" {
		t.Errorf("expected span name 'gmail.batch_delete', got %q", child.Name())
	}
	if child.SpanKind() != trace.SpanKindClient {
		t.Errorf("expected client span, got %v", child.SpanKind())
	}
	if child.Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected gateway span to be a child of the tool span")
	}
}

func TestSetSpanError(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartSpan(context.Background(), "test-span")
	SetSpanError(span, nil)
	SetSpanError(span, errors.New("quota exceeded"))
	span.End()

	got := recorder.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status().Code)
	}
	if got.Status().Description != "quota exceeded" {
		t.Errorf("expected description 'quota exceeded', got %q", got.Status().Description)
	}
	if len(got.Events()) != 1 {
		t.Errorf("expected 1 recorded error event, got %d", len(got.Events()))
	}
}

func TestSetSpanSuccess(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartSpan(context.Background(), "test-span")
	SetSpanSuccess(span)
	span.End()

	if code := recorder.Ended()[0].Status().Code; code != codes.Ok {
		t.Errorf("expected ok status, got %v", code)
	}
}

func TestAddSpanEvent(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartSpan(context.Background(), "test-span")
	AddSpanEvent(span, "ticket_issued", attribute.Int(SpanAttrItemCount, 3))
	span.End()

	events := recorder.Ended()[0].Events()
	if len(events) != 1 || events[0].Name != "ticket_issued" {
		t.Errorf("expected one ticket_issued event, got %v", events)
	}
}

func TestTraceAndSpanIDs(t *testing.T) {
	if got := GetTraceID(context.Background()); got != "" {
		t.Errorf("expected empty trace ID for context without span, got %q", got)
	}
	if got := GetSpanID(context.Background()); got != "" {
		t.Errorf("expected empty span ID for context without span, got %q", got)
	}

	recordSpans(t)
	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()

	if got := GetTraceID(ctx); got != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace ID %s, got %q", span.SpanContext().TraceID(), got)
	}
	if got := GetSpanID(ctx); got != span.SpanContext().SpanID().String() {
		t.Errorf("expected span ID %s, got %q", span.SpanContext().SpanID(), got)
	}
}
