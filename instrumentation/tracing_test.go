package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestRecordError(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	_, span := inst.Tracer("validator").Start(context.Background(), "test-operation")
	defer span.End()

	// Neither call may panic
	RecordError(span, errors.New("storage unavailable"))
	RecordError(span, nil)
	RecordError(nil, errors.New("no span"))
}

func TestSetSpanAttributes(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	_, span := inst.Tracer("validator").Start(context.Background(), "test-operation")
	defer span.End()

	SetSpanAttributes(span,
		attribute.String(AttrClientID, "client-1"),
		attribute.String(AttrGrantType, "authorization_code"),
		attribute.Bool(AttrValid, true),
	)
	SetSpanAttributes(nil, attribute.String(AttrClientID, "client-1"))
}
