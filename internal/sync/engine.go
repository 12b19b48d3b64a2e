// Package sync implements the MSC bulk sync engine: a concurrent copier
// between two MSC clients with optional target cleanup. The source
// lineage's MSC_NUM_PROCESSES x MSC_NUM_THREADS_PER_PROCESS fan-out, a
// workaround for a single-process concurrency ceiling that Go's scheduler
// does not have, is represented here as a two-level goroutine worker pool:
// an outer errgroup sized NumShards, each running an inner bounded pool
// sized NumWorkersPerShard.
package sync

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/multi-storage-client/internal/models"
	"github.com/sirupsen/logrus"
)

// Client is the narrow surface the sync engine needs from a StorageClient:
// list, read, write, delete relative to the client's own profile.
type Client interface {
	List(ctx context.Context, prefix string, recursive bool) (<-chan models.ObjectMetadata, <-chan error)
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Write(ctx context.Context, key string, r io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
}

// Config sizes the two-level worker pool. Zero values default to one shard
// of one worker (fully sequential), so a misconfigured engine degrades to
// correct-but-slow rather than failing.
type Config struct {
	NumShards          int
	NumWorkersPerShard int
}

func (c Config) normalized() Config {
	if c.NumShards <= 0 {
		c.NumShards = 1
	}
	if c.NumWorkersPerShard <= 0 {
		c.NumWorkersPerShard = 1
	}
	return c
}

// Engine runs sync_from operations between two MSC clients.
type Engine struct {
	cfg    Config
	logger *logrus.Entry
}

// New constructs a sync Engine.
func New(cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{cfg: cfg.normalized(), logger: logger.WithField("component", "sync")}
}

// job is one object's relative-path copy unit.
type job struct {
	relPath string
}

// SyncFrom copies every object reachable under srcPrefix on src to the
// corresponding key under dstPrefix on dst. When deleteUnmatched is true,
// every object under dstPrefix whose relative path is absent from the
// source is deleted after the copy phase completes successfully; deletions
// never precede copies.
func (e *Engine) SyncFrom(ctx context.Context, src, dst Client, srcPrefix, dstPrefix string, deleteUnmatched bool) error {
	srcKeys, err := e.listRelative(ctx, src, srcPrefix)
	if err != nil {
		return fmt.Errorf("sync: list source: %w", err)
	}

	var toDelete []string
	if deleteUnmatched {
		dstKeys, err := e.listRelative(ctx, dst, dstPrefix)
		if err != nil {
			return fmt.Errorf("sync: list destination: %w", err)
		}
		for rel := range dstKeys {
			if _, ok := srcKeys[rel]; !ok {
				toDelete = append(toDelete, rel)
			}
		}
	}

	jobs := make([]job, 0, len(srcKeys))
	for rel := range srcKeys {
		jobs = append(jobs, job{relPath: rel})
	}
	shards := partition(jobs, e.cfg.NumShards)

	if err := e.copyShards(ctx, src, dst, srcPrefix, dstPrefix, shards); err != nil {
		return fmt.Errorf("sync: copy phase: %w", err)
	}

	if len(toDelete) > 0 {
		if err := e.deleteKeys(ctx, dst, dstPrefix, toDelete); err != nil {
			return fmt.Errorf("sync: delete phase: %w", err)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"copied":  len(jobs),
		"deleted": len(toDelete),
	}).Info("sync_from completed")
	return nil
}

func (e *Engine) listRelative(ctx context.Context, c Client, prefix string) (map[string]struct{}, error) {
	out, errc := c.List(ctx, prefix, true)
	keys := make(map[string]struct{})
	for meta := range out {
		if meta.IsDirectory() {
			continue
		}
		keys[strings.TrimPrefix(meta.Key, prefix)] = struct{}{}
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return keys, nil
}

// partition splits jobs into n shards of roughly equal count.
func partition(jobs []job, n int) [][]job {
	if n > len(jobs) && len(jobs) > 0 {
		n = len(jobs)
	}
	if n <= 0 {
		n = 1
	}
	shards := make([][]job, n)
	for i, j := range jobs {
		shards[i%n] = append(shards[i%n], j)
	}
	return shards
}

func (e *Engine) copyShards(ctx context.Context, src, dst Client, srcPrefix, dstPrefix string, shards [][]job) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		shard := shard
		g.Go(func() error {
			return e.runShard(gctx, src, dst, srcPrefix, dstPrefix, shard)
		})
	}
	return g.Wait()
}

// runShard drains one shard's jobs through an inner bounded worker pool,
// aggregating per-object failures instead of aborting the shard on the
// first one.
func (e *Engine) runShard(ctx context.Context, src, dst Client, srcPrefix, dstPrefix string, shard []job) error {
	sem := make(chan struct{}, e.cfg.NumWorkersPerShard)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	for _, j := range shard {
		j := j
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := e.copyOne(ctx, src, dst, srcPrefix, dstPrefix, j.relPath); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

func (e *Engine) copyOne(ctx context.Context, src, dst Client, srcPrefix, dstPrefix, relPath string) error {
	srcKey := path.Join(srcPrefix, relPath)
	dstKey := path.Join(dstPrefix, relPath)

	r, size, err := src.Read(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("read %s: %w", srcKey, err)
	}
	defer r.Close()

	if err := dst.Write(ctx, dstKey, r, size); err != nil {
		return fmt.Errorf("write %s: %w", dstKey, err)
	}
	return nil
}

func (e *Engine) deleteKeys(ctx context.Context, dst Client, dstPrefix string, relPaths []string) error {
	sem := make(chan struct{}, e.cfg.NumWorkersPerShard)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	for _, rel := range relPaths {
		rel := rel
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := dst.Delete(ctx, path.Join(dstPrefix, rel)); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
