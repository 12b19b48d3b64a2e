package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/errmsc"
	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped manifest configuration.
type Config struct {
	ManifestPath string `mapstructure:"manifest_path"`
}

// Provider implements models.MetadataProvider over generations written to a
// StorageProvider. The caller resolves which backend that is before calling
// New: its own profile's, or a sibling profile's when metadata_config's
// storage_provider_profile names one (internal/registry resolves this
// indirection, mirroring the cache's own storage_provider_profile).
type Provider struct {
	storage models.StorageProvider
	cfg     Config
	logger  *logrus.Entry

	mu         sync.RWMutex
	generation string // "" until first load, set by Load
	base       map[string]models.ObjectMetadata
	pendingAdd map[string]models.ObjectMetadata
	pendingDel map[string]struct{}
}

// New constructs a manifest Provider bound to storage. Call Load before
// using it; an unloaded provider behaves as empty.
func New(storage models.StorageProvider, cfg Config, logger *logrus.Logger) *Provider {
	if logger == nil {
		logger = logrus.New()
	}
	return &Provider{
		storage:    storage,
		cfg:        cfg,
		logger:     logger.WithField("component", "manifest"),
		base:       make(map[string]models.ObjectMetadata),
		pendingAdd: make(map[string]models.ObjectMetadata),
		pendingDel: make(map[string]struct{}),
	}
}

// Load resolves the current generation and populates the in-memory catalog.
// An absent generation directory leaves the provider empty, per contract.
func (p *Provider) Load(ctx context.Context) error {
	generation, err := resolveGeneration(ctx, p.storage, p.cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("manifest: resolve generation: %w", err)
	}
	if generation == "" {
		p.mu.Lock()
		p.generation = ""
		p.base = make(map[string]models.ObjectMetadata)
		p.mu.Unlock()
		return nil
	}

	generationDir := strings.TrimSuffix(p.cfg.ManifestPath, "/") + "/" + generation
	indexKey := generationDir + "/" + indexFileName

	r, err := p.storage.Get(ctx, indexKey, nil)
	if err != nil {
		return errmsc.New(errmsc.KindManifestCorrupt, "manifest.Load", "", indexKey, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		r.Close()
		return errmsc.New(errmsc.KindManifestCorrupt, "manifest.Load", "", indexKey, err)
	}
	r.Close()

	idx, err := parseIndex(buf.Bytes())
	if err != nil {
		return errmsc.New(errmsc.KindManifestCorrupt, "manifest.Load", "", indexKey, err)
	}

	entries, err := readParts(ctx, p.storage, generationDir, idx)
	if err != nil {
		return errmsc.New(errmsc.KindManifestCorrupt, "manifest.Load", "", generationDir, err)
	}

	p.mu.Lock()
	p.generation = generation
	p.base = entries
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{"generation": generation, "entries": len(entries)}).Debug("loaded manifest generation")
	return nil
}

func (p *Provider) effective() map[string]models.ObjectMetadata {
	merged := make(map[string]models.ObjectMetadata, len(p.base)+len(p.pendingAdd))
	for k, v := range p.base {
		merged[k] = v
	}
	for k := range p.pendingDel {
		delete(merged, k)
	}
	for k, v := range p.pendingAdd {
		merged[k] = v
	}
	return merged
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		p.mu.RLock()
		merged := p.effective()
		p.mu.RUnlock()

		for key, meta := range merged {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if !recursive {
				rest := strings.TrimPrefix(key, prefix)
				if strings.Contains(rest, "/") {
					continue
				}
			}
			select {
			case out <- meta:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

func (p *Provider) Info(ctx context.Context, key string) (models.ObjectMetadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, deleted := p.pendingDel[key]; deleted {
		return models.ObjectMetadata{}, errmsc.New(errmsc.KindNotFound, "manifest.Info", "", key, nil)
	}
	if meta, ok := p.pendingAdd[key]; ok {
		return meta, nil
	}
	if meta, ok := p.base[key]; ok {
		return meta, nil
	}
	return models.ObjectMetadata{}, errmsc.New(errmsc.KindNotFound, "manifest.Info", "", key, nil)
}

// AddPending stages key for inclusion in the next commit, replacing any
// metadata already staged for the same key.
func (p *Provider) AddPending(key string, meta models.ObjectMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pendingDel, key)
	p.pendingAdd[key] = meta
}

// RemovePending stages key for removal on the next commit. Removing a key
// absent from the base catalog is a no-op at commit time, not here.
func (p *Provider) RemovePending(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pendingAdd, key)
	p.pendingDel[key] = struct{}{}
}

// Commit writes a new generation whose timestamp strictly exceeds the
// current one and clears the pending buffers on success.
func (p *Provider) Commit(ctx context.Context) (string, error) {
	p.mu.Lock()
	merged := p.effective()
	prevGeneration := p.generation
	p.mu.Unlock()

	newGeneration := newGenerationID(prevGeneration)
	generationDir := strings.TrimSuffix(p.cfg.ManifestPath, "/") + "/" + newGeneration

	idx, err := writeParts(ctx, p.storage, generationDir, merged)
	if err != nil {
		return "", fmt.Errorf("manifest: commit %s: write parts: %w", newGeneration, err)
	}

	data, err := marshalIndex(idx)
	if err != nil {
		return "", fmt.Errorf("manifest: commit %s: marshal index: %w", newGeneration, err)
	}

	indexKey := generationDir + "/" + indexFileName
	if err := p.storage.Put(ctx, indexKey, bytes.NewReader(data), int64(len(data)), nil); err != nil {
		return "", fmt.Errorf("manifest: commit %s: write index: %w", newGeneration, err)
	}

	commitID := uuid.NewString()
	p.logger.WithFields(logrus.Fields{
		"generation": newGeneration,
		"entries":    len(merged),
		"commit_id":  commitID,
	}).Info("committed manifest generation")

	p.mu.Lock()
	p.generation = newGeneration
	p.base = merged
	p.pendingAdd = make(map[string]models.ObjectMetadata)
	p.pendingDel = make(map[string]struct{})
	p.mu.Unlock()

	return newGeneration, nil
}

// Realpath resolves key to its path within the current generation's backing
// storage. Manifests do not remap keys, so this is the identity function
// reserved for future path-mapping integration.
func (p *Provider) Realpath(key string) (string, error) {
	return key, nil
}
