package stagepipe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/davidroman0O/stagepipe"

func elementAttributes(e *Element, index int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("stagepipe.element.index", index),
		attribute.String("stagepipe.element.name", e.Name()),
		attribute.String("stagepipe.element.category", e.Category().String()),
		attribute.String("stagepipe.stage.type", e.TypeID().String()),
	}
}

// TracingMiddleware creates a middleware that wraps every element in a span.
// A nil provider uses the global one.
func TracingMiddleware(tp trace.TracerProvider) ElementMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)

	return func(next ElementRunnerFunc) ElementRunnerFunc {
		return func(ctx context.Context, e *Element, input any, nextElement *Element, index int) (any, error) {
			ctx, span := tracer.Start(ctx, "stagepipe.element "+e.Name(),
				trace.WithAttributes(elementAttributes(e, index)...))
			defer span.End()

			out, err := next(ctx, e, input, nextElement, index)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "element failed")
				span.SetAttributes(attribute.String("stagepipe.failure.reason", string(runFailureReason(err))))
				return out, err
			}
			span.SetStatus(codes.Ok, "element completed")
			return out, nil
		}
	}
}

// MeterMiddleware creates a middleware that records element executions and
// durations with OpenTelemetry instruments. A nil provider uses the global one.
func MeterMiddleware(mp metric.MeterProvider) (ElementMiddleware, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	executions, err := meter.Int64Counter("stagepipe.element.executions",
		metric.WithDescription("Number of element executions"))
	if err != nil {
		return nil, fmt.Errorf("creating execution counter: %w", err)
	}
	duration, err := meter.Float64Histogram("stagepipe.element.duration",
		metric.WithDescription("Duration of element executions"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return func(next ElementRunnerFunc) ElementRunnerFunc {
		return func(ctx context.Context, e *Element, input any, nextElement *Element, index int) (any, error) {
			start := time.Now()
			out, err := next(ctx, e, input, nextElement, index)

			status := "ok"
			if err != nil {
				status = "error"
			}
			attrs := metric.WithAttributes(
				attribute.String("category", e.Category().String()),
				attribute.String("stage", e.TypeID().String()),
				attribute.String("status", status),
			)
			executions.Add(ctx, 1, attrs)
			duration.Record(ctx, time.Since(start).Seconds(), attrs)
			return out, err
		}
	}, nil
}
