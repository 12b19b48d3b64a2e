package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/cache"
	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
	"github.com/NVIDIA/multi-storage-client/internal/models"
	"github.com/NVIDIA/multi-storage-client/internal/telemetry"
)

// defaultProfile is the process-wide POSIX profile predefined at "/",
// available even with no configuration loaded at all.
const defaultProfile = "default"

// ClientRegistry lazily constructs a StorageClient per profile on first
// use and retains it for the process lifetime; the cache directory and any
// telemetry singleton are shared across every client it builds.
type ClientRegistry struct {
	cfg    *msccfg.Config
	logger *logrus.Logger

	mu      sync.Mutex
	clients map[string]*StorageClient
	mapping *PathMapping

	telemetryReader *telemetry.Reader                 // nil when opentelemetry.metrics has no exporter configured
	telemetryChain  []telemetry.AttributesProvider
}

var (
	registryOnce sync.Once
	registryMu   sync.Mutex
	registry     *ClientRegistry
)

// Default returns the process-wide ClientRegistry, constructing it on
// first call from cfg (which may be nil, in which case only the implicit
// "default" POSIX profile and foreign-URL-derived implicit profiles are
// available). Subsequent calls ignore cfg and return the same instance,
// matching the lazily-constructed, lock-guarded singleton the rest of this
// lineage uses for shared process-wide resources.
func Default(cfg *msccfg.Config, logger *logrus.Logger) *ClientRegistry {
	registryMu.Lock()
	defer registryMu.Unlock()
	registryOnce.Do(func() {
		if logger == nil {
			logger = logrus.New()
		}
		registry = newClientRegistry(cfg, logger)
	})
	return registry
}

// resetForTest tears down the process-wide singleton so tests can construct
// a fresh one. Only ever called from _test.go files in this package.
func resetForTest() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registryOnce = sync.Once{}
	registry = nil
}

func newClientRegistry(cfg *msccfg.Config, logger *logrus.Logger) *ClientRegistry {
	if cfg == nil {
		cfg = &msccfg.Config{}
	}
	var mapping *PathMapping
	if len(cfg.PathMapping) > 0 {
		mapping = NewPathMapping(cfg.PathMapping)
	}

	reader, err := buildTelemetryReader(cfg.OpenTelemetry, logger)
	if err != nil {
		logger.WithError(err).Warn("registry: failed to build telemetry reader, operations will run uninstrumented")
		reader = nil
	}

	return &ClientRegistry{
		cfg:             cfg,
		logger:          logger,
		clients:         make(map[string]*StorageClient),
		mapping:         mapping,
		telemetryReader: reader,
		telemetryChain:  telemetry.DefaultChain("", nil, cfg.OpenTelemetry.Metrics.Attributes),
	}
}

// Get returns the StorageClient for profile, constructing and caching it on
// first use. Get never synthesizes an implicit profile: a profile beginning
// with "_" is found only once ResolveClient has already built it.
func (r *ClientRegistry) Get(ctx context.Context, profile string) (*StorageClient, error) {
	return r.getOrBuild(ctx, profile, nil)
}

// ResolveClient turns any caller-supplied address (an msc:// URL, a mapped
// foreign URL, or a foreign URL/POSIX path needing implicit-profile
// synthesis) into its StorageClient and resolved key in one call.
func (r *ClientRegistry) ResolveClient(ctx context.Context, raw string) (*StorageClient, string, error) {
	parsed, synth, err := Resolve(raw, r.mapping)
	if err != nil {
		return nil, "", err
	}
	client, err := r.getOrBuild(ctx, parsed.Profile, synth)
	if err != nil {
		return nil, "", err
	}
	return client, parsed.Key, nil
}

func (r *ClientRegistry) getOrBuild(ctx context.Context, profile string, synth *ImplicitProfile) (*StorageClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[profile]; ok {
		return c, nil
	}

	client, err := r.buildClient(ctx, profile, synth)
	if err != nil {
		return nil, fmt.Errorf("registry: build client for profile %q: %w", profile, err)
	}
	r.clients[profile] = client
	return client, nil
}

func (r *ClientRegistry) buildClient(ctx context.Context, profile string, synth *ImplicitProfile) (*StorageClient, error) {
	if synth != nil {
		return r.buildImplicitClient(ctx, *synth)
	}
	if profile == defaultProfile {
		if _, ok := r.cfg.Profiles[defaultProfile]; !ok {
			return r.buildImplicitClient(ctx, ImplicitProfile{Name: defaultProfile, Storage: "file", BasePath: "/"})
		}
	}

	pc, ok := r.cfg.Profiles[profile]
	if !ok {
		return nil, fmt.Errorf("registry: unknown profile %q", profile)
	}

	var (
		storage          models.StorageProvider
		metadataProvider models.MetadataProvider
		err              error
	)
	if pc.ProviderBundle != "" {
		// A provider_bundle supersedes individually configured provider
		// fields for this profile.
		bundle, bErr := buildProviderBundle(ctx, pc.ProviderBundle, pc.ProviderBundleConfig, r.logger)
		if bErr != nil {
			return nil, bErr
		}
		storage = bundle.Storage()
		metadataProvider = bundle.Metadata()
	} else {
		storageRaw := pc.StorageConfig
		if storageRaw == nil {
			storageRaw = map[string]any{}
		}
		if err := resolveCredentialsInto(ctx, pc.CredentialsProvider, pc.CredentialsConfig, storageRaw); err != nil {
			return nil, err
		}

		storage, err = buildStorageProvider(ctx, pc.StorageProvider, storageRaw, r.logger)
		if err != nil {
			return nil, err
		}

		metadataStorage, err := r.resolveMetadataStorage(ctx, profile, pc.MetadataConfig, storage)
		if err != nil {
			return nil, err
		}

		metadataProvider, err = buildMetadataProvider(pc.MetadataProvider, pc.MetadataConfig, metadataStorage, r.logger)
		if err != nil {
			return nil, err
		}
	}
	if metadataProvider != nil {
		if loader, ok := metadataProvider.(interface{ Load(context.Context) error }); ok {
			if err := loader.Load(ctx); err != nil {
				return nil, fmt.Errorf("registry: load manifest for profile %q: %w", profile, err)
			}
		}
	}

	objCache, err := r.buildCache(ctx, profile)
	if err != nil {
		return nil, err
	}

	return NewStorageClient(profile, storage, ClientOptions{
		Metadata:        metadataProvider,
		Cache:           objCache,
		TelemetryReader: r.telemetryReader,
		TelemetryChain:  r.telemetryChain,
	}, r.logger), nil
}

// resolveMetadataStorage returns the StorageProvider a profile's manifest
// should bind to: own when metadataConfig.storage_provider_profile is unset
// or names the profile itself, or a sibling profile's StorageProvider
// otherwise, so a manifest can live in a different bucket/backend than the
// objects it describes. Mirrors buildCache's storage_provider_profile
// indirection; called while r.mu is already held by getOrBuild.
func (r *ClientRegistry) resolveMetadataStorage(ctx context.Context, profile string, metadataConfig map[string]any, own models.StorageProvider) (models.StorageProvider, error) {
	siblingName, _ := metadataConfig["storage_provider_profile"].(string)
	if siblingName == "" || siblingName == profile {
		return own, nil
	}

	siblingClient, ok := r.clients[siblingName]
	if !ok {
		var err error
		siblingClient, err = r.buildClient(ctx, siblingName, nil)
		if err != nil {
			return nil, fmt.Errorf("registry: resolve metadata storage profile %q: %w", siblingName, err)
		}
		r.clients[siblingName] = siblingClient
	}
	return siblingClient.Storage(), nil
}

func (r *ClientRegistry) buildImplicitClient(ctx context.Context, implicit ImplicitProfile) (*StorageClient, error) {
	storage, err := buildStorageProvider(ctx, implicit.Storage, map[string]any{"base_path": implicit.BasePath}, r.logger)
	if err != nil {
		return nil, err
	}
	objCache, err := r.buildCache(ctx, implicit.Name)
	if err != nil {
		return nil, err
	}
	return NewStorageClient(implicit.Name, storage, ClientOptions{
		Cache:           objCache,
		TelemetryReader: r.telemetryReader,
		TelemetryChain:  r.telemetryChain,
	}, r.logger), nil
}

// buildCache constructs the shared-policy cache for profile when global
// cache configuration is present; profiles configured with no cache
// section at all run with the cache bypassed (ReadBytes falls through to
// direct provider reads). When cache.cache_backend.storage_provider_profile
// names a sibling profile, the cache delegates body storage to that
// profile's StorageProvider instead of local disk (the early-access
// storage-provider-backed mode).
func (r *ClientRegistry) buildCache(ctx context.Context, profile string) (*cache.Cache, error) {
	cc := r.cfg.Cache
	if cc.CacheBackend.CachePath == "" {
		return nil, nil
	}

	maxSize, err := parseCacheSize(cc.Size)
	if err != nil {
		return nil, fmt.Errorf("registry: cache.size: %w", err)
	}

	cfg := cache.Config{
		CacheDir:        cc.CacheBackend.CachePath,
		MaxSize:         maxSize,
		UseETag:         cc.UseETag,
		EvictionPolicy:  cache.Policy(cc.EvictionPolicy.Policy),
		RefreshInterval: time.Duration(cc.EvictionPolicy.RefreshInterval) * time.Second,
	}
	if cc.CacheBackend.IndexBackend == "redis" {
		cfg.Redis = cache.RedisMirrorConfig{Addr: cc.CacheBackend.RedisAddr}
	}

	var backend models.StorageProvider
	if backendProfile := cc.CacheBackend.StorageProviderProfile; backendProfile != "" && backendProfile != profile {
		// Called while r.mu is already held by the outer getOrBuild call
		// that triggered this profile's construction; reuse that lock
		// rather than re-entering it (sync.Mutex is not reentrant).
		backendClient, ok := r.clients[backendProfile]
		if !ok {
			var err error
			backendClient, err = r.buildClient(ctx, backendProfile, nil)
			if err != nil {
				return nil, fmt.Errorf("registry: resolve cache backend profile %q: %w", backendProfile, err)
			}
			r.clients[backendProfile] = backendClient
		}
		backend = backendClient.Storage()
		cfg.BackendProfile = backendProfile
	}

	return cache.New(cfg, backend, r.logger)
}

func parseCacheSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return humanize.ParseBytes(s)
}
