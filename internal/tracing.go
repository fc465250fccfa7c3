package internal

import (
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Trace exporters accepted in TRACE_EXPORTER.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// NewTracerProvider builds the SDK tracer provider for the process.
//
// With TraceExporterStdout, finished spans are batched and written to w as
// JSON. With TraceExporterNone, spans are still created and sampled but not
// exported. Callers must Shutdown the provider to flush pending spans.
func NewTracerProvider(w io.Writer, exporter, env string) (*sdktrace.TracerProvider, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("deployment.environment", env),
	)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch exporter {
	case TraceExporterNone:
	case TraceExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}
