package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/unclebandit/waitlist-backend/internal/metrics"
)

// ErrorReporter is the sink for unexpected errors.
type ErrorReporter interface {
	Capture(ctx context.Context, err error, tags map[string]string)
}

// Reporter records errors on the active span, logs them and counts them per
// operation. Both Logger and Metrics may be nil.
type Reporter struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (r *Reporter) Capture(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(tags))
	fields := make([]zap.Field, 0, len(tags)+1)
	fields = append(fields, zap.Error(err))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
		fields = append(fields, zap.String(k, v))
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		_, span = Tracer().Start(ctx, "error.capture")
		defer span.End()
	}
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())

	if r.Logger != nil {
		r.Logger.Error("error captured", fields...)
	}

	if r.Metrics != nil {
		op := tags["operation"]
		if op == "" {
			op = "unknown"
		}
		r.Metrics.ErrorsReported.WithLabelValues(op).Inc()
	}
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Capture(context.Context, error, map[string]string) {}
