package registry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
	"github.com/NVIDIA/multi-storage-client/internal/telemetry"
)

// telemetryReaderConfig decodes the "opentelemetry.metrics.reader" section.
type telemetryReaderConfig struct {
	CollectIntervalSeconds int `mapstructure:"collect_interval_seconds"`
	ExportIntervalSeconds  int `mapstructure:"export_interval_seconds"`
	RingCapacity           int `mapstructure:"ring_capacity"`
}

// telemetryExporterConfig decodes either "opentelemetry.metrics.exporter" or
// "opentelemetry.traces.exporter": a "type" selector plus the fields that
// type needs.
type telemetryExporterConfig struct {
	Type     string `mapstructure:"type"` // "console", "otlphttp"
	Endpoint string `mapstructure:"endpoint"`
}

// buildTelemetryReader constructs the process-wide metric reader described
// by the "opentelemetry.metrics" config section, or nil when no exporter is
// configured there (telemetry bypassed entirely, the same "absent section
// means off" convention buildCache uses for the local cache).
func buildTelemetryReader(cfg msccfg.OpenTelemetryConfig, logger *logrus.Logger) (*telemetry.Reader, error) {
	exporterRaw := cfg.Metrics.Exporter
	if exporterRaw == nil {
		exporterRaw = map[string]any{}
	}
	var ec telemetryExporterConfig
	if err := decodeConfig(exporterRaw, &ec); err != nil {
		return nil, err
	}
	if ec.Type == "" {
		return nil, nil
	}

	var exporter telemetry.Exporter
	switch ec.Type {
	case "console":
		exporter = telemetry.NewConsoleExporter(logger)
	case "otlphttp":
		exporter = telemetry.NewOTLPHTTPExporter(ec.Endpoint, logger)
	default:
		return nil, nil
	}

	readerRaw := cfg.Metrics.Reader
	if readerRaw == nil {
		readerRaw = map[string]any{}
	}
	var rc telemetryReaderConfig
	if err := decodeConfig(readerRaw, &rc); err != nil {
		return nil, err
	}
	readerCfg := telemetry.ReaderConfig{
		CollectInterval: time.Duration(rc.CollectIntervalSeconds) * time.Second,
		ExportInterval:  time.Duration(rc.ExportIntervalSeconds) * time.Second,
		RingCapacity:    rc.RingCapacity,
	}

	// Per-operation instruments (latency/data_size/request.sum/response.sum)
	// are pushed via Reader.Record the instant an operation finishes; none
	// of them are polled instruments, so the instrument list is empty.
	reader := telemetry.NewReader(readerCfg, nil, exporter, logger)
	reader.Start(context.Background())
	return reader, nil
}

// telemetryAttrs builds the per-operation attribute set: the shared process
// chain plus the fixed operation tags and the active profile.
func telemetryAttrs(chain []telemetry.AttributesProvider, profile, provider, operation string, status telemetry.Status) []telemetry.AttributesProvider {
	return append(append([]telemetry.AttributesProvider{}, chain...),
		telemetry.RawAttributes(telemetry.OperationTags(provider, operation, status)),
		telemetry.ConfigAttributes{Profile: profile},
	)
}
