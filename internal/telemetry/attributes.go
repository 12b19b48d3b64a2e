package telemetry

import (
	"os"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
)

// AttributesProvider contributes a tag set merged into every sample. On
// collision between providers, the later one in the configured chain wins.
type AttributesProvider interface {
	Attributes() []attribute.KeyValue
}

// MergeAttributes applies providers in order, later providers overriding
// earlier ones on key collision.
func MergeAttributes(providers ...AttributesProvider) []attribute.KeyValue {
	merged := make(map[attribute.Key]attribute.Value)
	var order []attribute.Key
	for _, p := range providers {
		for _, kv := range p.Attributes() {
			if _, exists := merged[kv.Key]; !exists {
				order = append(order, kv.Key)
			}
			merged[kv.Key] = kv.Value
		}
	}
	out := make([]attribute.KeyValue, 0, len(order))
	for _, k := range order {
		out = append(out, attribute.KeyValue{Key: k, Value: merged[k]})
	}
	return out
}

// StaticAttributes contributes a fixed, configured tag set.
type StaticAttributes map[string]string

func (s StaticAttributes) Attributes() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(s))
	for k, v := range s {
		out = append(out, attribute.String(k, v))
	}
	return out
}

// EnvAttributes reads a configured list of environment variables into tags
// named after the variable (lower-cased by the caller if desired).
type EnvAttributes []string

func (e EnvAttributes) Attributes() []attribute.KeyValue {
	var out []attribute.KeyValue
	for _, name := range e {
		if v, ok := os.LookupEnv(name); ok {
			out = append(out, attribute.String(name, v))
		}
	}
	return out
}

// HostAttributes contributes the process's hostname.
type HostAttributes struct{}

func (HostAttributes) Attributes() []attribute.KeyValue {
	host, err := os.Hostname()
	if err != nil {
		return nil
	}
	return []attribute.KeyValue{attribute.String("host.name", host)}
}

// ProcessAttributes contributes the current process id.
type ProcessAttributes struct{}

func (ProcessAttributes) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{attribute.Int("process.pid", os.Getpid())}
}

// ThreadAttributes contributes the goroutine-scheduler thread count
// (GOMAXPROCS), the closest Go analog to a worker-thread identity tag.
type ThreadAttributes struct{}

func (ThreadAttributes) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{attribute.Int("process.gomaxprocs", runtime.GOMAXPROCS(0))}
}

// ConfigAttributes contributes tags derived from profile configuration,
// e.g. the active profile name.
type ConfigAttributes struct {
	Profile string
}

func (c ConfigAttributes) Attributes() []attribute.KeyValue {
	if c.Profile == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String("msc.profile", c.Profile)}
}

// RawAttributes adapts an already-built attribute.KeyValue slice (e.g. from
// OperationTags) into an AttributesProvider, for call sites that construct
// per-operation tags directly instead of deriving them from process state.
type RawAttributes []attribute.KeyValue

func (r RawAttributes) Attributes() []attribute.KeyValue { return r }

// DefaultChain builds the standard provider chain in the order
// host/process/thread/env/static/config, so on a key collision configured
// static tags override env-derived ones and the profile tag overrides both.
func DefaultChain(profile string, static map[string]string, envVars []string) []AttributesProvider {
	return []AttributesProvider{
		HostAttributes{},
		ProcessAttributes{},
		ThreadAttributes{},
		EnvAttributes(envVars),
		StaticAttributes(static),
		ConfigAttributes{Profile: profile},
	}
}
