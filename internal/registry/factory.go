package registry

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/manifest"
	"github.com/NVIDIA/multi-storage-client/internal/models"
	"github.com/NVIDIA/multi-storage-client/internal/providers/aistore"
	"github.com/NVIDIA/multi-storage-client/internal/providers/azure"
	"github.com/NVIDIA/multi-storage-client/internal/providers/credentials"
	"github.com/NVIDIA/multi-storage-client/internal/providers/file"
	"github.com/NVIDIA/multi-storage-client/internal/providers/gcs"
	"github.com/NVIDIA/multi-storage-client/internal/providers/oci"
	"github.com/NVIDIA/multi-storage-client/internal/providers/s3"
)

// decodeConfig decodes a raw profile config map into a provider-specific
// config struct, tolerating keys the target struct does not declare (e.g.
// resolved credential fields irrelevant to that backend).
func decodeConfig(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("registry: build config decoder: %w", err)
	}
	return decoder.Decode(raw)
}

// storageFactories maps a profile's configured storage_provider type string
// to its constructor, mirroring the provider bundle registry pattern.
var storageFactories = map[string]models.ProviderFactory{
	"s3": func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
		var cfg s3.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return s3.New(cfg, logger)
	},
	"azure": func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
		var cfg azure.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return azure.New(cfg, logger)
	},
	"gcs": func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
		var cfg gcs.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return gcs.New(ctx, cfg, logger)
	},
	"oci": func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
		var cfg oci.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return oci.New(cfg, logger)
	},
	"aistore": func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
		var cfg aistore.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return aistore.New(cfg, logger)
	},
	"file": func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
		var cfg file.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return file.New(cfg, logger)
	},
}

// RegisterStorageFactory allows callers (or tests) to register additional
// backend kinds beyond the built-in set above.
func RegisterStorageFactory(kind string, f models.ProviderFactory) {
	storageFactories[kind] = f
}

func buildStorageProvider(ctx context.Context, kind string, raw map[string]any, logger *logrus.Logger) (models.StorageProvider, error) {
	f, ok := storageFactories[kind]
	if !ok {
		return nil, fmt.Errorf("registry: unknown storage provider type %q", kind)
	}
	return f(ctx, raw, logger)
}

// credentialsFactories maps credentials_provider type strings to
// constructors.
var credentialsFactories = map[string]models.CredentialsProviderFactory{
	"static": func(raw map[string]any) (models.CredentialsProvider, error) {
		var cfg credentials.StaticConfig
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return credentials.NewStatic(cfg), nil
	},
	"env": func(raw map[string]any) (models.CredentialsProvider, error) {
		var cfg credentials.EnvConfig
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return credentials.NewEnv(cfg), nil
	},
	"chain": func(raw map[string]any) (models.CredentialsProvider, error) {
		var cfg credentials.ChainConfig
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return credentials.NewChain(cfg), nil
	},
	"jwt": func(raw map[string]any) (models.CredentialsProvider, error) {
		var cfg credentials.JWTConfig
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return credentials.NewJWT(cfg), nil
	},
}

func buildCredentialsProvider(kind string, raw map[string]any) (models.CredentialsProvider, error) {
	f, ok := credentialsFactories[kind]
	if !ok {
		return nil, fmt.Errorf("registry: unknown credentials provider type %q", kind)
	}
	return f(raw)
}

// resolveCredentialsInto resolves kind's credentials and merges the result
// into raw's access_key_id/secret_access_key/session_token keys, so any
// storage provider whose Config declares those mapstructure tags (s3,
// today) picks them up without each backend needing its own credentials
// wiring.
func resolveCredentialsInto(ctx context.Context, kind string, credRaw map[string]any, storageRaw map[string]any) error {
	if kind == "" {
		return nil
	}
	provider, err := buildCredentialsProvider(kind, credRaw)
	if err != nil {
		return err
	}
	creds, err := provider.Get(ctx)
	if err != nil {
		return fmt.Errorf("registry: resolve credentials: %w", err)
	}
	if storageRaw == nil {
		return nil
	}
	storageRaw["access_key_id"] = creds.AccessKeyID
	storageRaw["secret_access_key"] = creds.SecretAccessKey
	if creds.SessionToken != "" {
		storageRaw["session_token"] = creds.SessionToken
	}
	return nil
}

// BundleConfig is the generic shape a "composite" provider_bundle_config
// decodes into: one sub-section per role, reusing the same storage/
// metadata/credentials factories a profile configured directly would.
type BundleConfig struct {
	StorageProvider     string         `mapstructure:"storage_provider"`
	StorageConfig       map[string]any `mapstructure:"storage_config"`
	MetadataProvider    string         `mapstructure:"metadata_provider"`
	MetadataConfig      map[string]any `mapstructure:"metadata_config"`
	CredentialsProvider string         `mapstructure:"credentials_provider"`
	CredentialsConfig   map[string]any `mapstructure:"credentials_config"`
}

// compositeBundle is the default models.ProviderBundle implementation: it
// builds all three provider roles together from one config document, so a
// host application can register a named preset once and reference it from
// many profiles via provider_bundle instead of repeating storage_config/
// metadata_config/credentials_config in each one.
type compositeBundle struct {
	storage     models.StorageProvider
	metadata    models.MetadataProvider
	credentials models.CredentialsProvider
}

func (b *compositeBundle) Storage() models.StorageProvider         { return b.storage }
func (b *compositeBundle) Metadata() models.MetadataProvider       { return b.metadata }
func (b *compositeBundle) Credentials() models.CredentialsProvider { return b.credentials }

func newCompositeBundle(ctx context.Context, raw map[string]any, logger *logrus.Logger) (models.ProviderBundle, error) {
	var cfg BundleConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	storageRaw := cfg.StorageConfig
	if storageRaw == nil {
		storageRaw = map[string]any{}
	}
	if err := resolveCredentialsInto(ctx, cfg.CredentialsProvider, cfg.CredentialsConfig, storageRaw); err != nil {
		return nil, err
	}

	storage, err := buildStorageProvider(ctx, cfg.StorageProvider, storageRaw, logger)
	if err != nil {
		return nil, err
	}

	metadataProvider, err := buildMetadataProvider(cfg.MetadataProvider, cfg.MetadataConfig, storage, logger)
	if err != nil {
		return nil, err
	}

	var credentialsProvider models.CredentialsProvider
	if cfg.CredentialsProvider != "" {
		credentialsProvider, err = buildCredentialsProvider(cfg.CredentialsProvider, cfg.CredentialsConfig)
		if err != nil {
			return nil, err
		}
	}

	return &compositeBundle{storage: storage, metadata: metadataProvider, credentials: credentialsProvider}, nil
}

// bundleFactories maps provider_bundle name strings to constructors. Unlike
// storageFactories/credentialsFactories, which are keyed by backend kind,
// this is keyed by an arbitrary caller-chosen bundle name: "composite" is
// the only built-in entry, letting any profile reference a shared preset;
// host applications register additional named bundles (e.g. one bundle per
// tenant) via RegisterProviderBundleFactory.
var bundleFactories = map[string]models.ProviderBundleFactory{
	"composite": newCompositeBundle,
}

// RegisterProviderBundleFactory registers a named provider_bundle factory,
// the host-extensible indirection point for bundles beyond the built-in
// "composite" preset.
func RegisterProviderBundleFactory(name string, f models.ProviderBundleFactory) {
	bundleFactories[name] = f
}

func buildProviderBundle(ctx context.Context, name string, raw map[string]any, logger *logrus.Logger) (models.ProviderBundle, error) {
	f, ok := bundleFactories[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown provider bundle %q", name)
	}
	return f(ctx, raw, logger)
}

// buildMetadataProvider constructs the metadata provider named by a
// metadata_provider type string.
// "manifest" is the only built-in kind; an empty string means no metadata
// provider is configured for the profile.
func buildMetadataProvider(kind string, raw map[string]any, storage models.StorageProvider, logger *logrus.Logger) (models.MetadataProvider, error) {
	switch kind {
	case "":
		return nil, nil
	case "manifest":
		var cfg manifest.Config
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return manifest.New(storage, cfg, logger), nil
	default:
		return nil, fmt.Errorf("registry: unknown metadata provider type %q", kind)
	}
}

