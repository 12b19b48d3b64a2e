package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
	"github.com/NVIDIA/multi-storage-client/internal/telemetry"
)

func TestBuildTelemetryReaderNilWithoutExporterConfigured(t *testing.T) {
	reader, err := buildTelemetryReader(msccfg.OpenTelemetryConfig{}, nil)
	if err != nil {
		t.Fatalf("buildTelemetryReader: %v", err)
	}
	if reader != nil {
		t.Fatal("expected a nil reader when opentelemetry.metrics.exporter is unset")
	}
}

func TestBuildTelemetryReaderConsoleExporter(t *testing.T) {
	cfg := msccfg.OpenTelemetryConfig{}
	cfg.Metrics.Exporter = map[string]any{"type": "console"}
	cfg.Metrics.Reader = map[string]any{
		"collect_interval_seconds": 1,
		"export_interval_seconds":  1,
	}

	reader, err := buildTelemetryReader(cfg, nil)
	if err != nil {
		t.Fatalf("buildTelemetryReader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected a non-nil reader when a console exporter is configured")
	}
	defer reader.Stop()
}

// captureExporter is a minimal telemetry.Exporter capturing every sample it
// is handed, independent of the telemetry package's own exporters.
type captureExporter struct {
	mu      sync.Mutex
	samples []telemetry.Sample
}

func (c *captureExporter) Export(ctx context.Context, batch []telemetry.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, batch...)
	return nil
}

func (c *captureExporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func TestStorageClientRecordsTelemetryOnOperations(t *testing.T) {
	exp := &captureExporter{}
	reader := telemetry.NewReader(telemetry.ReaderConfig{
		CollectInterval: time.Hour,
		ExportInterval:  time.Hour,
		RingCapacity:    100,
	}, nil, exp, nil)
	reader.Start(context.Background())

	storage := &fakeFlakyStorage{body: []byte("hi")}
	client := NewStorageClient("test", storage, ClientOptions{
		TelemetryReader: reader,
	}, nil)
	ctx := context.Background()

	if err := client.WriteBytes(ctx, "k1", []byte("hi")); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if _, err := client.ReadBytes(ctx, "k1", nil); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if err := client.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	reader.Stop() // force a final export flush before inspecting samples

	if exp.count() == 0 {
		t.Fatal("expected write/read/delete to record telemetry samples")
	}
}
