// Package cache implements the MSC local object cache: a size-bounded,
// ETag-validating, policy-driven cache of object bodies with inter-process
// coordination via flock and atomic publication via temp-file-then-rename.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/errmsc"
	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped cache configuration.
type Config struct {
	CacheDir        string            `mapstructure:"cache_path"`
	MaxSize         int64             `mapstructure:"max_size"`
	UseETag         bool              `mapstructure:"use_etag"`
	EvictionPolicy  Policy            `mapstructure:"eviction_policy"`
	RefreshInterval time.Duration     `mapstructure:"refresh_interval"`
	Redis           RedisMirrorConfig `mapstructure:"redis"`

	// BackendProfile, when set, names a second MSC profile the cache
	// delegates body storage to instead of local disk (the early-access
	// storage-provider-backed mode). Eviction is a no-op in this mode.
	BackendProfile string `mapstructure:"storage_provider_profile"`
}

// Fetcher performs the underlying backend read that populates a cache miss.
type Fetcher func(ctx context.Context) (io.ReadCloser, int64, string, error)

// Cache implements the read-through local object cache described above.
type Cache struct {
	cfg     Config
	backend models.StorageProvider // non-nil only in storage-provider-backed mode
	logger  *logrus.Entry
	mirror  *redisMirror

	mu    sync.Mutex
	index map[string]models.CacheEntry

	stopRefresh chan struct{}
}

// New constructs a Cache rooted at cfg.CacheDir, creating it if necessary.
// backend is non-nil only when cfg.BackendProfile selects storage-provider-
// backed mode.
func New(cfg Config, backend models.StorageProvider, logger *logrus.Logger) (*Cache, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("cache: cache_path is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create cache_path: %w", err)
	}
	if cfg.EvictionPolicy == "" {
		cfg.EvictionPolicy = PolicyFIFO
	}

	c := &Cache{
		cfg:     cfg,
		backend: backend,
		logger:  logger.WithField("component", "cache"),
		mirror:  newRedisMirror(cfg.Redis, cfg.CacheDir, logger),
		index:   make(map[string]models.CacheEntry),
	}

	if entries, ok := c.mirror.fetch(context.Background()); ok {
		c.index = entries
	} else if entries, ok := readIndexFile(cfg.CacheDir); ok {
		c.index = entries
	} else if entries, err := scanEntries(cfg.CacheDir); err == nil {
		c.index = entries
	}

	if cfg.RefreshInterval > 0 {
		c.stopRefresh = make(chan struct{})
		go c.refreshLoop()
	}

	return c, nil
}

func (c *Cache) paths(profile, key string) (body, meta, lock string, fp string) {
	fp = fingerprint(profile, key)
	return filepath.Join(c.cfg.CacheDir, fp),
		filepath.Join(c.cfg.CacheDir, fp+".meta"),
		filepath.Join(c.cfg.CacheDir, fp+".lock"),
		fp
}

// Get returns the local path to key's cached body, populating it via fetch
// on a miss or ETag mismatch. Concurrent callers for the same fingerprint
// serialize on an inter-process lock; callers outside the lock observe the
// prior entry, if any, until the new one is published.
func (c *Cache) Get(ctx context.Context, profile, key, remoteETag string, fetch Fetcher) (string, error) {
	bodyPath, metaPath, lockPath, fp := c.paths(profile, key)

	if path, ok := c.hit(bodyPath, metaPath, remoteETag); ok {
		return path, nil
	}

	lock, err := acquireEntryLock(lockPath)
	if err != nil {
		return "", errmsc.New(errmsc.KindCacheError, "cache.Get", profile, key, err)
	}
	defer lock.release()

	// Re-check: another process may have populated this entry while we
	// waited for the lock.
	if path, ok := c.hit(bodyPath, metaPath, remoteETag); ok {
		return path, nil
	}

	r, size, etag, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	defer r.Close()
	if etag == "" {
		etag = remoteETag
	}

	if err := c.populate(ctx, profile, key, fp, bodyPath, metaPath, r, size, etag); err != nil {
		return "", errmsc.New(errmsc.KindCacheError, "cache.Get", profile, key, err)
	}

	return bodyPath, nil
}

// GetRemote is the storage-provider-backed mode equivalent of Get: local
// disk holds only the ".meta" file, and the body itself is stored under the
// backend StorageProvider keyed by fingerprint. Eviction is a no-op in this
// mode — the backing profile manages its own lifecycle.
func (c *Cache) GetRemote(ctx context.Context, profile, key, remoteETag string, fetch Fetcher) (io.ReadCloser, error) {
	if c.backend == nil {
		return nil, fmt.Errorf("cache: GetRemote called without a storage_provider_profile backend configured")
	}
	_, metaPath, lockPath, fp := c.paths(profile, key)

	if r, ok := c.remoteHit(ctx, fp, metaPath, remoteETag); ok {
		return r, nil
	}

	lock, err := acquireEntryLock(lockPath)
	if err != nil {
		return nil, errmsc.New(errmsc.KindCacheError, "cache.GetRemote", profile, key, err)
	}
	defer lock.release()

	if r, ok := c.remoteHit(ctx, fp, metaPath, remoteETag); ok {
		return r, nil
	}

	r, size, etag, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if etag == "" {
		etag = remoteETag
	}

	if err := c.backend.Put(ctx, fp, r, size, nil); err != nil {
		return nil, errmsc.New(errmsc.KindCacheError, "cache.GetRemote", profile, key, err)
	}

	now := time.Now().UTC()
	entry := models.CacheEntry{Fingerprint: fp, Profile: profile, Key: key, Size: size, ETag: etag, InsertedAt: now, LastAccessed: now}
	if err := writeMeta(metaPath, entry); err != nil {
		return nil, errmsc.New(errmsc.KindCacheError, "cache.GetRemote", profile, key, err)
	}
	c.mu.Lock()
	c.index[fp] = entry
	c.mu.Unlock()

	return c.backend.Get(ctx, fp, nil)
}

func (c *Cache) remoteHit(ctx context.Context, fp, metaPath, remoteETag string) (io.ReadCloser, bool) {
	entry, ok := readMeta(metaPath)
	if !ok {
		return nil, false
	}
	if c.cfg.UseETag && remoteETag != "" && entry.ETag != remoteETag {
		return nil, false
	}
	r, err := c.backend.Get(ctx, fp, nil)
	if err != nil {
		return nil, false
	}
	touchLastAccessed(metaPath)
	return r, true
}

func (c *Cache) hit(bodyPath, metaPath, remoteETag string) (string, bool) {
	if _, err := os.Stat(bodyPath); err != nil {
		return "", false
	}
	entry, ok := readMeta(metaPath)
	if !ok {
		return "", false
	}
	if c.cfg.UseETag && remoteETag != "" && entry.ETag != remoteETag {
		return "", false
	}
	touchLastAccessed(metaPath)
	return bodyPath, true
}

func (c *Cache) populate(ctx context.Context, profile, key, fp, bodyPath, metaPath string, r io.Reader, size int64, etag string) error {
	tmp, err := os.CreateTemp(c.cfg.CacheDir, fp+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, bodyPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	now := time.Now().UTC()
	entry := models.CacheEntry{
		Fingerprint:  fp,
		Profile:      profile,
		Key:          key,
		Size:         size,
		ETag:         etag,
		InsertedAt:   now,
		LastAccessed: now,
	}
	if err := writeMeta(metaPath, entry); err != nil {
		return err
	}

	c.mu.Lock()
	c.index[fp] = entry
	c.mu.Unlock()

	if c.cfg.BackendProfile == "" {
		c.enforceBound(ctx)
	}
	return nil
}

// enforceBound evicts entries until total size is within max_size. A no-op
// in storage-provider-backed mode and when MaxSize is unset (unbounded).
func (c *Cache) enforceBound(ctx context.Context) {
	if c.cfg.MaxSize <= 0 {
		return
	}

	c.mu.Lock()
	var total int64
	snapshot := make(map[string]models.CacheEntry, len(c.index))
	for fp, e := range c.index {
		total += e.Size
		snapshot[fp] = e
	}
	c.mu.Unlock()

	if total <= c.cfg.MaxSize {
		return
	}

	victims := selectVictims(c.cfg.CacheDir, snapshot, total, c.cfg.MaxSize, c.cfg.EvictionPolicy)
	if len(victims) == 0 {
		return
	}

	c.mu.Lock()
	for _, fp := range victims {
		removeEntry(c.cfg.CacheDir, fp)
		delete(c.index, fp)
	}
	c.mu.Unlock()

	c.logger.WithField("evicted", len(victims)).Debug("evicted cache entries")
}

// Remove evicts key's cache entry, if any, so a deleted object is never
// served stale from disk (or, in storage-provider-backed mode, from the
// backend profile) after the remote copy is gone. A missing entry is not an
// error.
func (c *Cache) Remove(ctx context.Context, profile, key string) error {
	_, _, _, fp := c.paths(profile, key)

	c.mu.Lock()
	delete(c.index, fp)
	c.mu.Unlock()

	if c.cfg.BackendProfile != "" {
		if err := c.backend.Delete(ctx, fp); err != nil {
			return errmsc.New(errmsc.KindCacheError, "cache.Remove", profile, key, err)
		}
		removeEntry(c.cfg.CacheDir, fp) // meta/lock files only; body lives on the backend
		return nil
	}

	removeEntry(c.cfg.CacheDir, fp)
	return nil
}

// Refresh rescans the cache directory, reconciling the in-memory index with
// on-disk truth, applying any evictions deferred during high-churn windows,
// and republishing the ".index" hint (and its optional Redis mirror).
func (c *Cache) Refresh(ctx context.Context) error {
	entries, err := scanEntries(c.cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("cache: refresh scan: %w", err)
	}

	c.mu.Lock()
	c.index = entries
	c.mu.Unlock()

	if c.cfg.BackendProfile == "" {
		c.enforceBound(ctx)
	}

	if err := writeIndexFile(c.cfg.CacheDir, entries); err != nil {
		c.logger.WithError(err).Warn("failed to write index hint file")
	}
	c.mirror.publish(ctx, entries)
	return nil
}

func (c *Cache) refreshLoop() {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(context.Background()); err != nil {
				c.logger.WithError(err).Warn("refresh failed")
			}
		case <-c.stopRefresh:
			return
		}
	}
}

// Close stops the refresh loop and releases the Redis mirror connection, if
// any.
func (c *Cache) Close() error {
	if c.stopRefresh != nil {
		close(c.stopRefresh)
	}
	return c.mirror.close()
}
