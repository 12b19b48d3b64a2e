// Package telemetry implements the MSC telemetry pipeline: a diperiodic
// metric reader (independent collect/export cadence) feeding per-operation
// instruments, an attributes-provider chain, a tail-sampling trace pipeline
// built on the standard OpenTelemetry SDK, and a cross-process manager so
// sync-engine workers can forward metric events to one collector.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Status is the outcome tag attached to response/data-size instruments.
// "success" or "error.{kind}" per the instrument contract.
type Status string

const StatusSuccess Status = "success"

func ErrorStatus(kind string) Status { return Status("error." + kind) }

// Sample is one raw instrument reading appended to the collector's ring
// between export flushes.
type Sample struct {
	Instrument string
	Value      float64
	Attributes []attribute.KeyValue
}

// OperationTags are the fixed attribute keys every storage-operation
// instrument carries.
func OperationTags(provider, operation string, status Status) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("status", string(status)),
	}
}

// instrumentName is the closed set of instruments a storage operation
// reports against.
const (
	InstrumentLatency     = "latency"
	InstrumentDataSize    = "data_size"
	InstrumentDataRate    = "data_rate"
	InstrumentRequestSum  = "request.sum"
	InstrumentResponseSum = "response.sum"
	InstrumentDataSizeSum = "data_size.sum"
)
