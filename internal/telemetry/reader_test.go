package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeInstrument struct {
	name  string
	value float64
	calls int64
}

func (f *fakeInstrument) Name() string { return f.name }

func (f *fakeInstrument) Collect() (float64, []AttributesProvider) {
	atomic.AddInt64(&f.calls, 1)
	return f.value, nil
}

type captureExporter struct {
	mu     sync.Mutex
	calls  int
	total  int
	closed bool
}

func (c *captureExporter) Export(ctx context.Context, batch []Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.total += len(batch)
	return nil
}

func TestReaderCollectAndExportCadenceAreIndependent(t *testing.T) {
	inst := &fakeInstrument{name: "latency", value: 1.5}
	exp := &captureExporter{}

	r := NewReader(ReaderConfig{
		CollectInterval: 5 * time.Millisecond,
		ExportInterval:  40 * time.Millisecond,
		RingCapacity:    1000,
	}, []Instrument{inst}, exp, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(45 * time.Millisecond)
	r.Stop()
	cancel()

	if atomic.LoadInt64(&inst.calls) < 5 {
		t.Fatalf("expected collector to poll many times faster than export, got %d calls", inst.calls)
	}
	exp.mu.Lock()
	defer exp.mu.Unlock()
	if exp.calls < 1 {
		t.Fatal("expected at least one export pass (including final flush on stop)")
	}
	if exp.total < 1 {
		t.Fatal("expected exported samples to be non-empty")
	}
}

func TestReaderRecordBypassesPolling(t *testing.T) {
	exp := &captureExporter{}
	r := NewReader(ReaderConfig{CollectInterval: time.Hour, ExportInterval: time.Hour, RingCapacity: 10}, nil, exp, nil)

	r.Record(InstrumentLatency, 12.3, nil)
	r.Record(InstrumentLatency, 45.6, nil)

	r.mu.Lock()
	n := len(r.ring)
	r.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected 2 buffered samples, got %d", n)
	}
}

func TestReaderRingCapacityBound(t *testing.T) {
	exp := &captureExporter{}
	r := NewReader(ReaderConfig{CollectInterval: time.Hour, ExportInterval: time.Hour, RingCapacity: 3}, nil, exp, nil)

	for i := 0; i < 10; i++ {
		r.Record(InstrumentLatency, float64(i), nil)
	}

	r.mu.Lock()
	n := len(r.ring)
	last := r.ring[n-1].Value
	r.mu.Unlock()
	if n != 3 {
		t.Fatalf("expected ring capped at 3, got %d", n)
	}
	if last != 9 {
		t.Fatalf("expected ring to retain most recent samples, last value = %v", last)
	}
}
