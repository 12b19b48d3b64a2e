package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Exporter flushes a batch of samples somewhere. The diperiodic
// collect/export split has no equivalent in the standard OTEL SDK's
// push/pull metric reader contract, so this is a small bespoke interface
// rather than an otel/sdk/metric.Exporter implementation.
type Exporter interface {
	Export(ctx context.Context, batch []Sample) error
}

// ConsoleExporter writes each sample as a structured log line, grounded on
// the same logrus conventions used across the provider packages.
type ConsoleExporter struct {
	logger *logrus.Entry
}

func NewConsoleExporter(logger *logrus.Logger) *ConsoleExporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConsoleExporter{logger: logger.WithField("component", "telemetry.exporter.console")}
}

func (e *ConsoleExporter) Export(ctx context.Context, batch []Sample) error {
	for _, s := range batch {
		fields := logrus.Fields{"instrument": s.Instrument, "value": s.Value}
		for _, kv := range s.Attributes {
			fields[string(kv.Key)] = kv.Value.AsInterface()
		}
		e.logger.WithFields(fields).Info("metric sample")
	}
	return nil
}

// otlpPayload is the plain JSON body posted by OTLPHTTPExporter. There is no
// raw OTLP/HTTP metrics client in the dependency set independent of the full
// SDK push exporter this repo does not otherwise need, so this POSTs a
// flattened JSON array instead of protobuf-encoded OTLP.
type otlpPayload struct {
	Samples []otlpSample `json:"samples"`
}

type otlpSample struct {
	Instrument string            `json:"instrument"`
	Value      float64           `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// OTLPHTTPExporter posts sample batches as JSON to a configured collector
// endpoint.
type OTLPHTTPExporter struct {
	endpoint string
	client   *http.Client
	logger   *logrus.Entry
}

func NewOTLPHTTPExporter(endpoint string, logger *logrus.Logger) *OTLPHTTPExporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &OTLPHTTPExporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.WithField("component", "telemetry.exporter.otlphttp"),
	}
}

func (e *OTLPHTTPExporter) Export(ctx context.Context, batch []Sample) error {
	payload := otlpPayload{Samples: make([]otlpSample, 0, len(batch))}
	for _, s := range batch {
		attrs := make(map[string]string, len(s.Attributes))
		for _, kv := range s.Attributes {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		payload.Samples = append(payload.Samples, otlpSample{Instrument: s.Instrument, Value: s.Value, Attributes: attrs})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telemetry: marshal otlphttp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("telemetry: build otlphttp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: post otlphttp batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry: otlphttp collector returned status %d", resp.StatusCode)
	}
	return nil
}
