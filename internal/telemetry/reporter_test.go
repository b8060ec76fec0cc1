package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unclebandit/waitlist-backend/internal/metrics"
)

func TestCaptureLogsAndCounts(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m := metrics.New()
	r := &Reporter{Logger: zap.New(core), Metrics: m}

	r.Capture(context.Background(), errors.New("boom"), map[string]string{"operation": "render"})

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.ContextMap()["operation"] != "render" {
		t.Errorf("expected operation tag in log, got %v", entry.ContextMap())
	}
	if got := testutil.ToFloat64(m.ErrorsReported.WithLabelValues("render")); got != 1 {
		t.Errorf("expected errors_reported_total{operation=render} = 1, got %v", got)
	}
}

func TestCaptureIgnoresNil(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := &Reporter{Logger: zap.New(core)}
	r.Capture(context.Background(), nil, nil)
	if logs.Len() != 0 {
		t.Fatalf("nil error should not be logged")
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "waitlist-backend", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
