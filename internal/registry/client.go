package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/cache"
	"github.com/NVIDIA/multi-storage-client/internal/errmsc"
	"github.com/NVIDIA/multi-storage-client/internal/models"
	syncengine "github.com/NVIDIA/multi-storage-client/internal/sync"
	"github.com/NVIDIA/multi-storage-client/internal/telemetry"
)

// defaultCacheBypassThreshold is the object size at or above which
// whole-object reads are routed through the cache; smaller objects are read
// straight from the provider every time, whether or not the key was read
// before.
const defaultCacheBypassThreshold = 16 << 20

// StorageClient composes one profile's storage provider, optional metadata
// provider, and optional cache behind the unified read/write/list/glob
// operation surface. It satisfies syncengine.Client so any two
// StorageClients can sync_from one another directly.
type StorageClient struct {
	profile  string
	storage  models.StorageProvider
	metadata models.MetadataProvider // nil: list/info fall back to storage directly
	objCache *cache.Cache            // nil: cache bypassed entirely
	logger   *logrus.Entry

	cacheBypassThreshold int64

	telemetryReader *telemetry.Reader // nil: operations run uninstrumented
	telemetryChain  []telemetry.AttributesProvider
}

// ClientOptions configures a StorageClient beyond its mandatory storage
// provider.
type ClientOptions struct {
	Metadata             models.MetadataProvider
	Cache                *cache.Cache
	CacheBypassThreshold int64
	TelemetryReader      *telemetry.Reader
	TelemetryChain       []telemetry.AttributesProvider
}

// NewStorageClient constructs the unified client for one profile.
func NewStorageClient(profile string, storage models.StorageProvider, opts ClientOptions, logger *logrus.Logger) *StorageClient {
	if logger == nil {
		logger = logrus.New()
	}
	threshold := opts.CacheBypassThreshold
	if threshold <= 0 {
		threshold = defaultCacheBypassThreshold
	}
	return &StorageClient{
		profile:              profile,
		storage:              storage,
		metadata:             opts.Metadata,
		objCache:             opts.Cache,
		logger:               logger.WithFields(logrus.Fields{"component": "registry.client", "profile": profile}),
		cacheBypassThreshold: threshold,
		telemetryReader:      opts.TelemetryReader,
		telemetryChain:       opts.TelemetryChain,
	}
}

// recordOperation reports request/response/data_size/latency instruments for
// one storage operation, a no-op when no telemetry reader is configured.
func (c *StorageClient) recordOperation(operation string, start time.Time, dataSize int64, err error) {
	if c.telemetryReader == nil {
		return
	}
	status := telemetry.StatusSuccess
	if err != nil {
		status = telemetry.ErrorStatus(errmsc.KindOf(err).String())
	}
	attrs := telemetryAttrs(c.telemetryChain, c.profile, c.storage.Name(), operation, status)

	c.telemetryReader.Record(telemetry.InstrumentRequestSum, 1, attrs)
	c.telemetryReader.Record(telemetry.InstrumentLatency, float64(time.Since(start).Milliseconds()), attrs)
	c.telemetryReader.Record(telemetry.InstrumentResponseSum, 1, attrs)
	if err == nil {
		if dataSize > 0 {
			c.telemetryReader.Record(telemetry.InstrumentDataSize, float64(dataSize), attrs)
			c.telemetryReader.Record(telemetry.InstrumentDataSizeSum, float64(dataSize), attrs)
		}
	}
}

// Storage exposes the underlying StorageProvider so the registry can wire
// it as another profile's storage-provider-backed cache.
func (c *StorageClient) Storage() models.StorageProvider { return c.storage }

// List satisfies syncengine.Client and serves the unified "list" operation
// without directory entries; consults the metadata provider when present.
func (c *StorageClient) List(ctx context.Context, prefix string, recursive bool) (<-chan models.ObjectMetadata, <-chan error) {
	start := time.Now()
	var (
		in    <-chan models.ObjectMetadata
		inErr <-chan error
	)
	if c.metadata != nil {
		in, inErr = c.metadata.List(ctx, prefix, recursive)
	} else {
		in, inErr = c.storage.List(ctx, prefix, recursive, "")
	}
	if c.telemetryReader == nil {
		return in, inErr
	}

	out := make(chan models.ObjectMetadata)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)
		for m := range in {
			out <- m
		}
		err := <-inErr
		c.recordOperation("list", start, 0, err)
		if err != nil {
			outErr <- err
		}
	}()
	return out, outErr
}

// ListOptions extends List with the include_directories toggle the public
// operation surface exposes.
type ListOptions struct {
	Recursive          bool
	IncludeDirectories bool
}

// ListFull is the full "list" operation: consults the metadata provider if
// present, else the storage provider, optionally filtering out directory
// markers.
func (c *StorageClient) ListFull(ctx context.Context, prefix string, opts ListOptions) (<-chan models.ObjectMetadata, <-chan error) {
	in, inErr := c.List(ctx, prefix, opts.Recursive)
	if opts.IncludeDirectories {
		return in, inErr
	}
	out := make(chan models.ObjectMetadata)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)
		for m := range in {
			if m.IsDirectory() {
				continue
			}
			out <- m
		}
		if err := <-inErr; err != nil {
			outErr <- err
		}
	}()
	return out, outErr
}

// Glob returns every key under the pattern's literal prefix that matches
// its shell-style wildcards ("*", "?", character classes, "**" for
// recursive descent).
func (c *StorageClient) Glob(ctx context.Context, pattern string) ([]string, error) {
	prefix := globPrefix(pattern)
	out, errc := c.ListFull(ctx, prefix, ListOptions{Recursive: true, IncludeDirectories: false})

	var matches []string
	for m := range out {
		if globMatch(pattern, m.Key) {
			matches = append(matches, m.Key)
		}
	}
	if err := <-errc; err != nil {
		return nil, fmt.Errorf("registry: glob %q: %w", pattern, err)
	}
	return matches, nil
}

// Info serves the unified "info" operation: metadata provider if present,
// else storage provider. In non-strict mode a missing key yields a zeroed
// file-typed sentinel instead of an error.
func (c *StorageClient) Info(ctx context.Context, key string, strict bool) (models.ObjectMetadata, error) {
	var (
		meta models.ObjectMetadata
		err  error
	)
	if c.metadata != nil {
		meta, err = c.metadata.Info(ctx, key)
	} else {
		meta, err = c.storage.Head(ctx, key)
	}
	if err != nil {
		if !strict && errmsc.Is(err, errmsc.KindNotFound) {
			return models.ObjectMetadata{Key: key, Type: models.ObjectTypeFile, ContentLength: 0}, nil
		}
		return models.ObjectMetadata{}, err
	}
	return meta, nil
}

// Read is the streaming primitive satisfying syncengine.Client: the whole
// object body, uncached.
func (c *StorageClient) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	start := time.Now()
	meta, err := c.storage.Head(ctx, key)
	if err != nil {
		c.recordOperation("read", start, 0, err)
		return nil, 0, err
	}
	body, err := c.storage.Get(ctx, key, nil)
	c.recordOperation("read", start, meta.ContentLength, err)
	if err != nil {
		return nil, 0, err
	}
	return body, meta.ContentLength, nil
}

// ReadBytes serves the unified "read" operation. Whole-object reads of
// objects at least the configured bypass threshold in size go through the
// cache; ranged reads and smaller objects are served by the storage provider
// directly, repeat reads of the same key included.
func (c *StorageClient) ReadBytes(ctx context.Context, key string, rng *models.ByteRange) ([]byte, error) {
	start := time.Now()
	data, err := c.readBytes(ctx, key, rng)
	c.recordOperation("read", start, int64(len(data)), err)
	return data, err
}

func (c *StorageClient) readBytes(ctx context.Context, key string, rng *models.ByteRange) ([]byte, error) {
	if rng != nil || c.objCache == nil {
		body, err := c.storage.Get(ctx, key, rng)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return io.ReadAll(body)
	}

	meta, err := c.storage.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	if meta.ContentLength < c.cacheBypassThreshold {
		body, err := c.storage.Get(ctx, key, nil)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return io.ReadAll(body)
	}

	fetch := func(fctx context.Context) (io.ReadCloser, int64, string, error) {
		b, ferr := c.storage.Get(fctx, key, nil)
		if ferr != nil {
			return nil, 0, "", ferr
		}
		return b, meta.ContentLength, meta.ETag, nil
	}
	bodyPath, err := c.objCache.Get(ctx, c.profile, key, meta.ETag, fetch)
	if err != nil {
		return nil, err
	}
	return readCachedFile(bodyPath)
}

// Write serves both the streaming syncengine.Client contract and the
// unified "write" operation.
func (c *StorageClient) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	start := time.Now()
	err := c.storage.Put(ctx, key, r, size, nil)
	c.recordOperation("write", start, size, err)
	return err
}

// WriteBytes is the unified "write(key, bytes)" convenience.
func (c *StorageClient) WriteBytes(ctx context.Context, key string, data []byte) error {
	return c.Write(ctx, key, bytes.NewReader(data), int64(len(data)))
}

// Open returns a buffered handle for streamed reads or writes, per the
// unified "open" operation.
func (c *StorageClient) Open(ctx context.Context, key string, mode OpenMode) (*FileHandle, error) {
	return newFileHandle(ctx, c, key, mode)
}

// Delete removes both the remote object and any cached copy; a missing
// cache entry is not an error.
func (c *StorageClient) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.delete(ctx, key)
	c.recordOperation("delete", start, 0, err)
	return err
}

func (c *StorageClient) delete(ctx context.Context, key string) error {
	if err := c.storage.Delete(ctx, key); err != nil {
		return err
	}
	if c.metadata != nil {
		c.metadata.RemovePending(key)
	}
	if c.objCache != nil {
		if err := c.objCache.Remove(ctx, c.profile, key); err != nil {
			return err
		}
	}
	return nil
}

// Copy duplicates an object within the same profile.
func (c *StorageClient) Copy(ctx context.Context, srcKey, dstKey string) error {
	return c.storage.Copy(ctx, srcKey, dstKey)
}

// SyncFrom copies everything reachable under srcPrefix on source to
// dstPrefix on c, via the bulk sync engine.
func (c *StorageClient) SyncFrom(ctx context.Context, source *StorageClient, srcPrefix, dstPrefix string, deleteUnmatched bool, engineCfg syncengine.Config) error {
	engine := syncengine.New(engineCfg, c.logger.Logger)
	return engine.SyncFrom(ctx, source, c, srcPrefix, dstPrefix, deleteUnmatched)
}

func readCachedFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("registry: open cached body: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
