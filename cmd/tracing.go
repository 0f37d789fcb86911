package cmd

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing installs a process-wide TracerProvider so C6's Verify path
// (and anything else that calls otel.Tracer(name).Start) produces spans.
// No exporter is registered here, so spans are created and ended but not
// shipped anywhere -- an operator who wants spans shipped somewhere
// registers a span processor with an OTLP exporter on top of the
// TracerProvider this installs, without any caller of otel.Tracer needing
// to change. serviceName is not used.
//
// The returned func flushes and shuts the provider down; call it from a
// deferred statement in main.
func InitTracing(serviceName string) func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
