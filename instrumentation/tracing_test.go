package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingTracer returns a tracer whose finished spans land in the
// returned recorder.
func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, func(name string) (context.Context, sdktrace.ReadWriteSpan)) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	start := func(name string) (context.Context, sdktrace.ReadWriteSpan) {
		ctx, span := tp.Tracer("test").Start(context.Background(), name)
		return ctx, span.(sdktrace.ReadWriteSpan)
	}
	return rec, start
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestRecordError(t *testing.T) {
	rec, start := recordingTracer(t)
	_, span := start("op")

	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended[0].Status().Code)
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("events = %d, want 1", len(ended[0].Events()))
	}
}

func TestSetSpanSuccess(t *testing.T) {
	rec, start := recordingTracer(t)
	_, span := start("op")
	SetSpanSuccess(span)
	span.End()

	if got := rec.Ended()[0].Status().Code; got != codes.Ok {
		t.Errorf("status = %v, want Ok", got)
	}
}

func TestAddGrantAttributes(t *testing.T) {
	rec, start := recordingTracer(t)
	_, span := start("oauth.grant")
	AddGrantAttributes(span, "authorization_code", "", "client-1", "user+admin")
	span.End()

	attrs := attrMap(rec.Ended()[0].Attributes())
	if got := attrs[AttrGrantType].AsString(); got != "authorization_code" {
		t.Errorf("%s = %q", AttrGrantType, got)
	}
	if got := attrs[AttrClientID].AsString(); got != "client-1" {
		t.Errorf("%s = %q", AttrClientID, got)
	}
	if got := attrs[AttrScope].AsString(); got != "user+admin" {
		t.Errorf("%s = %q", AttrScope, got)
	}
	if _, ok := attrs[AttrResponseType]; ok {
		t.Errorf("empty %s must be skipped", AttrResponseType)
	}
}

func TestAddOAuthErrorAttributes(t *testing.T) {
	rec, start := recordingTracer(t)

	_, span := start("denied")
	AddOAuthErrorAttributes(span, "access_denied", "wrong password")
	span.End()

	_, ok := start("ok")
	AddOAuthErrorAttributes(ok, "", "")
	ok.End()

	ended := rec.Ended()
	attrs := attrMap(ended[0].Attributes())
	if got := attrs[AttrError].AsString(); got != "access_denied" {
		t.Errorf("%s = %q, want access_denied", AttrError, got)
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended[0].Status().Code)
	}
	if len(ended[1].Attributes()) != 0 {
		t.Errorf("empty error code must not add attributes, got %v", ended[1].Attributes())
	}
}

func TestAddStorageAttributes(t *testing.T) {
	rec, start := recordingTracer(t)
	_, span := start("storage.read")
	AddStorageAttributes(span, "read", "valkey")
	span.End()

	attrs := attrMap(rec.Ended()[0].Attributes())
	if got := attrs[AttrStorageOperation].AsString(); got != "read" {
		t.Errorf("%s = %q, want read", AttrStorageOperation, got)
	}
	if got := attrs[AttrStorageType].AsString(); got != "valkey" {
		t.Errorf("%s = %q, want valkey", AttrStorageType, got)
	}
}

func TestAddHTTPAttributes(t *testing.T) {
	rec, start := recordingTracer(t)
	_, span := start("http")
	AddHTTPAttributes(span, "POST", "/authorize", 302)
	span.End()

	attrs := attrMap(rec.Ended()[0].Attributes())
	if got := attrs[AttrHTTPStatusCode].AsInt64(); got != 302 {
		t.Errorf("%s = %d, want 302", AttrHTTPStatusCode, got)
	}
}

func TestAddSecurityAttributes(t *testing.T) {
	rec, start := recordingTracer(t)
	_, span := start("sec")
	AddSecurityAttributes(span, "")
	AddSecurityAttributes(span, "192.0.2.1")
	span.End()

	attrs := attrMap(rec.Ended()[0].Attributes())
	if got := attrs[AttrClientIP].AsString(); got != "192.0.2.1" {
		t.Errorf("%s = %q", AttrClientIP, got)
	}
}

func TestShouldLogClientIPs(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{"enabled", Config{Enabled: true, LogClientIPs: true, MetricExporter: ExporterNone}, true},
		{"disabled", Config{Enabled: true, MetricExporter: ExporterNone}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if got := inst.ShouldLogClientIPs(); got != tt.want {
				t.Errorf("ShouldLogClientIPs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNilSafeHelpers_WithNilSpans(t *testing.T) {
	RecordError(nil, errors.New("x"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "x")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddGrantAttributes(nil, "a", "b", "c", "d")
	AddOAuthErrorAttributes(nil, "server_error", "panic")
	AddStorageAttributes(nil, "read", "map")
	AddHTTPAttributes(nil, "GET", "/", 200)
	AddSecurityAttributes(nil, "127.0.0.1")
}
