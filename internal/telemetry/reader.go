package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReaderConfig sizes the two independently-tunable periodic tasks.
type ReaderConfig struct {
	CollectInterval        time.Duration
	CollectIntervalTimeout time.Duration
	ExportInterval         time.Duration
	ExportTimeout          time.Duration
	RingCapacity           int
}

func (c ReaderConfig) normalized() ReaderConfig {
	if c.CollectInterval <= 0 {
		c.CollectInterval = time.Second
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = 10 * time.Second
	}
	if c.CollectIntervalTimeout <= 0 {
		c.CollectIntervalTimeout = c.CollectInterval
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = c.ExportInterval
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = 10_000
	}
	return c
}

// Instrument polls the live value of one metric on demand.
type Instrument interface {
	Name() string
	Collect() (value float64, attrs []AttributesProvider)
}

// Reader runs the collector (polls instruments every CollectInterval,
// appending to an internal ring) and exporter (flushes the ring every
// ExportInterval) as two independent periodic tasks, so a high-frequency
// collector need not overwhelm a slower exporter.
type Reader struct {
	cfg         ReaderConfig
	instruments []Instrument
	exporter    Exporter
	logger      *logrus.Entry

	mu   sync.Mutex
	ring []Sample

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewReader constructs a diperiodic Reader.
func NewReader(cfg ReaderConfig, instruments []Instrument, exporter Exporter, logger *logrus.Logger) *Reader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reader{
		cfg:         cfg.normalized(),
		instruments: instruments,
		exporter:    exporter,
		logger:      logger.WithField("component", "telemetry.reader"),
		stop:        make(chan struct{}),
	}
}

// Start launches the collector and exporter loops. Stop ends both.
func (r *Reader) Start(ctx context.Context) {
	r.wg.Add(2)
	go r.collectLoop(ctx)
	go r.exportLoop(ctx)
}

func (r *Reader) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Reader) collectLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.collectOnce(ctx)
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reader) collectOnce(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CollectIntervalTimeout)
	defer cancel()

	for _, inst := range r.instruments {
		select {
		case <-cctx.Done():
			r.logger.Warn("collect pass timed out")
			return
		default:
		}
		value, providers := inst.Collect()
		sample := Sample{Instrument: inst.Name(), Value: value, Attributes: MergeAttributes(providers...)}

		r.mu.Lock()
		r.ring = append(r.ring, sample)
		if len(r.ring) > r.cfg.RingCapacity {
			r.ring = r.ring[len(r.ring)-r.cfg.RingCapacity:]
		}
		r.mu.Unlock()
	}
}

func (r *Reader) exportLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.exportOnce(ctx)
		case <-r.stop:
			r.exportOnce(ctx) // final flush
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reader) exportOnce(ctx context.Context) {
	r.mu.Lock()
	batch := r.ring
	r.ring = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ectx, cancel := context.WithTimeout(ctx, r.cfg.ExportTimeout)
	defer cancel()

	if err := r.exporter.Export(ectx, batch); err != nil {
		r.logger.WithError(err).Warn("metric export failed")
	}
}

// Record appends a sample directly, bypassing instrument polling — used by
// per-operation instrumentation (latency/data_size/request.sum) that has a
// value the instant an operation completes rather than on a fixed poll tick.
func (r *Reader) Record(instrument string, value float64, attrs []AttributesProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = append(r.ring, Sample{Instrument: instrument, Value: value, Attributes: MergeAttributes(attrs...)})
	if len(r.ring) > r.cfg.RingCapacity {
		r.ring = r.ring[len(r.ring)-r.cfg.RingCapacity:]
	}
}
