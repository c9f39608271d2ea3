package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/webkit/instrumentation"
)

// InstrumentedStore decorates a Store with OpenTelemetry spans and
// operation metrics. Absence (ErrNotFound) is recorded as "miss", not as an
// error.
type InstrumentedStore struct {
	next            Store
	backend         string
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ Store = (*InstrumentedStore)(nil)

// NewInstrumented wraps next. backend names the store in span attributes
// (e.g. "shared_map", "valkey"). A nil inst returns next unchanged.
func NewInstrumented(next Store, backend string, inst *instrumentation.Instrumentation) Store {
	if inst == nil {
		return next
	}
	return &InstrumentedStore{
		next:            next,
		backend:         backend,
		instrumentation: inst,
		tracer:          inst.Tracer("storage"),
	}
}

// Unwrap returns the decorated store.
func (s *InstrumentedStore) Unwrap() Store {
	return s.next
}

func (s *InstrumentedStore) Exists(ctx context.Context, key string) (ok bool, err error) {
	ctx, span := s.startStorageSpan(ctx, "exists")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "exists", &err, time.Now())
	return s.next.Exists(ctx, key)
}

func (s *InstrumentedStore) HExists(ctx context.Context, hash, field string) (ok bool, err error) {
	ctx, span := s.startStorageSpan(ctx, "hexists")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "hexists", &err, time.Now())
	return s.next.HExists(ctx, hash, field)
}

func (s *InstrumentedStore) Read(ctx context.Context, key string) (value string, err error) {
	ctx, span := s.startStorageSpan(ctx, "read")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "read", &err, time.Now())
	return s.next.Read(ctx, key)
}

func (s *InstrumentedStore) HRead(ctx context.Context, hash, field string) (value string, err error) {
	ctx, span := s.startStorageSpan(ctx, "hread")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "hread", &err, time.Now())
	return s.next.HRead(ctx, hash, field)
}

func (s *InstrumentedStore) Write(ctx context.Context, key, value string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "write")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "write", &err, time.Now())
	return s.next.Write(ctx, key, value)
}

func (s *InstrumentedStore) HWrite(ctx context.Context, hash, field, value string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "hwrite")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "hwrite", &err, time.Now())
	return s.next.HWrite(ctx, hash, field, value)
}

func (s *InstrumentedStore) Destroy(ctx context.Context, key string) (err error) {
	op := "destroy"
	if IsPattern(key) {
		op = "destroy_pattern"
	}
	ctx, span := s.startStorageSpan(ctx, op)
	defer span.End()
	defer s.recordStorageOperation(ctx, span, op, &err, time.Now())
	return s.next.Destroy(ctx, key)
}

func (s *InstrumentedStore) HDestroy(ctx context.Context, hash, field string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "hdestroy")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "hdestroy", &err, time.Now())
	return s.next.HDestroy(ctx, hash, field)
}

func (s *InstrumentedStore) Iterator(ctx context.Context, pattern string) (it Iterator, err error) {
	ctx, span := s.startStorageSpan(ctx, "iterator")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "iterator", &err, time.Now())
	return s.next.Iterator(ctx, pattern)
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}

// startStorageSpan starts a tracing span for a storage operation
func (s *InstrumentedStore) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, s.backend),
		))
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *InstrumentedStore) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, startTime time.Time) {
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
	result := "success"
	switch err := *errp; {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ErrNotFound):
		result = "miss"
		span.SetStatus(codes.Ok, "")
	default:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, s.backend, operation, result, durationMs)
}
