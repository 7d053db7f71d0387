// Package telemetry owns the process tracer provider and the span helper
// used to trace bootstrap phases and RPC handling.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps an OpenTelemetry tracer provider whose lifetime matches
// the process. Spans are collected in-process; exporters can be attached
// with options when an external collector is configured.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// NewProvider builds the process tracer provider and installs it as the
// OTel global so instrumented dependencies pick it up.
func NewProvider(opts ...sdktrace.TracerProviderOption) *Provider {
	p := &Provider{provider: sdktrace.NewTracerProvider(opts...)}
	otel.SetTracerProvider(p.provider)
	return p
}

// Tracer returns a named tracer from the provider. Works on a nil
// receiver so callers without telemetry wired fall back to the global.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.provider == nil {
		return otel.Tracer(name)
	}
	return p.provider.Tracer(name)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Step runs fn under a child span named name. Failures are recorded on
// the span and returned unchanged. A nil tracer means telemetry is off
// and fn runs bare.
func Step(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	if tracer == nil {
		return fn(ctx)
	}

	stepCtx, span := tracer.Start(ctx, name)
	defer span.End()

	err := fn(stepCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}
