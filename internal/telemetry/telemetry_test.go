package telemetry

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStepRecordsSpanPerPhase(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p := NewProvider(sdktrace.WithSyncer(exporter))
	defer p.Shutdown(context.Background())

	tracer := p.Tracer("test")
	err := Step(context.Background(), tracer, "open chain db", func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "open chain db" {
		t.Fatalf("spans = %+v, want one named span", spans)
	}
}

func TestStepReturnsFailureUnchanged(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p := NewProvider(sdktrace.WithSyncer(exporter))
	defer p.Shutdown(context.Background())

	boom := errors.New("no disk")
	err := Step(context.Background(), p.Tracer("test"), "open chain db", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Step error = %v, want %v", err, boom)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || len(spans[0].Events) == 0 {
		t.Fatal("failure not recorded on the span")
	}
}

func TestStepWithoutTracerRunsBare(t *testing.T) {
	ran := false
	err := Step(context.Background(), nil, "anything", func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("bare step = (%v, ran=%v)", err, ran)
	}
}
