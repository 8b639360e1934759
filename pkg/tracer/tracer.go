package tracer

import (
	"context"
	"sync"

	"github.com/nimbusoft/datagate/pkg/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	defaultTracer trace.Tracer
	initOnce      sync.Once
	errInit       error
)

// InitTracer configures the shared tracer used by Start. Only the first call
// takes effect.
func InitTracer(serviceName string, cfg otel.Config) error {
	initOnce.Do(func() {
		cfg.ServiceName = serviceName
		t, err := otel.InitTracer(cfg)
		if err != nil {
			errInit = err
			return
		}
		defaultTracer = t
	})

	return errInit
}

// Start opens a span on the shared tracer. Before InitTracer has run it falls
// back to a noop span so library code can trace unconditionally.
func Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if defaultTracer == nil {
		return noop.NewTracerProvider().Tracer("noop").Start(ctx, spanName, opts...)
	}
	return defaultTracer.Start(ctx, spanName, opts...)
}
