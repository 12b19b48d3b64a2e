package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TailSampleConfig controls which finished spans are forwarded to the real
// exporter. Unlike head sampling, the decision happens after the span's
// full duration and status are known.
type TailSampleConfig struct {
	LatencyThreshold time.Duration
	Endpoint         string
}

func (c TailSampleConfig) normalized() TailSampleConfig {
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = 500 * time.Millisecond
	}
	return c
}

// tailSamplingExporter wraps the real OTLP/HTTP trace exporter and only
// forwards spans that ran longer than the configured threshold or that
// recorded an error, dropping the rest before they ever leave the process.
type tailSamplingExporter struct {
	cfg    TailSampleConfig
	next   sdktrace.SpanExporter
	logger *logrus.Entry
}

// NewTraceProvider builds an sdktrace.TracerProvider whose batch span
// processor feeds a tail-sampling exporter backed by otlptracehttp.
func NewTraceProvider(ctx context.Context, cfg TailSampleConfig, logger *logrus.Logger) (*sdktrace.TracerProvider, error) {
	cfg = cfg.normalized()
	if logger == nil {
		logger = logrus.New()
	}

	client := otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint))
	real, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build otlptrace exporter: %w", err)
	}

	sampler := &tailSamplingExporter{
		cfg:    cfg,
		next:   real,
		logger: logger.WithField("component", "telemetry.trace"),
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(sampler),
	)
	return tp, nil
}

func (e *tailSamplingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	var kept []sdktrace.ReadOnlySpan
	for _, s := range spans {
		if e.shouldKeep(s) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if err := e.next.ExportSpans(ctx, kept); err != nil {
		return fmt.Errorf("telemetry: export sampled spans: %w", err)
	}
	e.logger.WithField("kept", len(kept)).WithField("dropped", len(spans)-len(kept)).Debug("tail sampling pass")
	return nil
}

func (e *tailSamplingExporter) shouldKeep(s sdktrace.ReadOnlySpan) bool {
	if s.Status().Code.String() == "Error" {
		return true
	}
	duration := s.EndTime().Sub(s.StartTime())
	return duration >= e.cfg.LatencyThreshold
}

func (e *tailSamplingExporter) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}
