// Package msc is the public entry point for the Multi-Storage Client: a
// unified read/write/list/glob/delete/copy surface over S3, Azure Blob,
// GCS, OCI Object Storage, AIStore, and the local filesystem, addressed
// uniformly through msc:// URLs, mapped foreign URLs, or bare POSIX paths.
// Everything here delegates to internal/registry's process-wide client
// registry; application code that needs more control (custom provider
// bundles, a non-default config document) should construct its own
// *registry.ClientRegistry directly instead.
package msc

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
	"github.com/NVIDIA/multi-storage-client/internal/models"
	"github.com/NVIDIA/multi-storage-client/internal/registry"
	syncengine "github.com/NVIDIA/multi-storage-client/internal/sync"
)

// ObjectMetadata describes one object or directory entry.
type ObjectMetadata = models.ObjectMetadata

// ByteRange requests a partial read.
type ByteRange = models.ByteRange

// OpenMode selects a FileHandle's direction.
type OpenMode = registry.OpenMode

// FileHandle gives seek/read/write access to one object.
type FileHandle = registry.FileHandle

// SyncConfig controls the bulk sync engine's worker fan-out.
type SyncConfig = syncengine.Config

const (
	OpenRead  = registry.OpenRead
	OpenWrite = registry.OpenWrite
)

var (
	defaultLogger = logrus.New()

	configOnce sync.Once
	defaultCfg *msccfg.Config
)

func loadDefaultConfig() *msccfg.Config {
	configOnce.Do(func() {
		cfg, err := msccfg.Load(msccfg.DiscoverConfigPath(), defaultLogger)
		if err != nil {
			defaultLogger.WithError(err).Warn("msc: failed to load config, falling back to implicit profiles only")
			cfg = &msccfg.Config{}
		}
		defaultCfg = cfg
	})
	return defaultCfg
}

func defaultRegistry() *registry.ClientRegistry {
	return registry.Default(loadDefaultConfig(), defaultLogger)
}

func resolve(ctx context.Context, url string) (*registry.StorageClient, string, error) {
	return defaultRegistry().ResolveClient(ctx, url)
}

// Read returns the full body addressed by url.
func Read(ctx context.Context, url string) ([]byte, error) {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	return client.ReadBytes(ctx, key, nil)
}

// ReadRange returns the rng slice of the body addressed by url.
func ReadRange(ctx context.Context, url string, rng ByteRange) ([]byte, error) {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	return client.ReadBytes(ctx, key, &rng)
}

// Write stores data at url.
func Write(ctx context.Context, url string, data []byte) error {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return err
	}
	return client.WriteBytes(ctx, key, data)
}

// Open returns a buffered handle for streamed reads or writes.
func Open(ctx context.Context, url string, mode OpenMode) (*FileHandle, error) {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	return client.Open(ctx, key, mode)
}

// Info returns metadata for url. In non-strict mode a missing key yields a
// zeroed sentinel instead of an error.
func Info(ctx context.Context, url string, strict bool) (ObjectMetadata, error) {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return ObjectMetadata{}, err
	}
	return client.Info(ctx, key, strict)
}

// Delete removes the object addressed by url.
func Delete(ctx context.Context, url string) error {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return err
	}
	return client.Delete(ctx, key)
}

// List streams every object under url's prefix.
func List(ctx context.Context, url string, recursive bool) (<-chan ObjectMetadata, <-chan error) {
	client, key, err := resolve(ctx, url)
	if err != nil {
		errc := make(chan error, 1)
		errc <- err
		close(errc)
		out := make(chan ObjectMetadata)
		close(out)
		return out, errc
	}
	return client.List(ctx, key, recursive)
}

// Glob returns every key under url's literal prefix matching its shell-style
// wildcards.
func Glob(ctx context.Context, url string) ([]string, error) {
	client, key, err := resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	return client.Glob(ctx, key)
}

// Copy duplicates the object at srcURL to dstURL, streaming through the
// process when the two resolve to different profiles rather than requiring
// both sides to share one storage backend.
func Copy(ctx context.Context, srcURL, dstURL string) error {
	srcClient, srcKey, err := resolve(ctx, srcURL)
	if err != nil {
		return err
	}
	dstClient, dstKey, err := resolve(ctx, dstURL)
	if err != nil {
		return err
	}
	if srcClient == dstClient {
		return srcClient.Copy(ctx, srcKey, dstKey)
	}

	body, size, err := srcClient.Read(ctx, srcKey)
	if err != nil {
		return err
	}
	defer body.Close()
	return dstClient.Write(ctx, dstKey, body, size)
}

// SyncFrom copies everything reachable under srcURL's prefix to dstURL's
// prefix via the bulk sync engine, optionally deleting destination entries
// with no corresponding source.
func SyncFrom(ctx context.Context, srcURL, dstURL string, deleteUnmatched bool, cfg SyncConfig) error {
	srcClient, srcPrefix, err := resolve(ctx, srcURL)
	if err != nil {
		return err
	}
	dstClient, dstPrefix, err := resolve(ctx, dstURL)
	if err != nil {
		return err
	}
	return dstClient.SyncFrom(ctx, srcClient, srcPrefix, dstPrefix, deleteUnmatched, cfg)
}
