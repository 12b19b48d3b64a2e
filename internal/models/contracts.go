package models

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// StorageProvider is the backend-facing contract every vendor adapter
// (S3, Azure Blob, GCS, OCI, AIStore, POSIX file) implements. Authentication,
// retry, and HTTP specifics are each provider's own concern; StorageProvider
// only fixes the operation surface and which errors are transient.
type StorageProvider interface {
	// Name identifies the backend kind, e.g. "s3", "azure", "gcs", "oci",
	// "aistore", "file".
	Name() string

	// BasePath is the root all keys are resolved relative to.
	BasePath() string

	Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan ObjectMetadata, <-chan error)
	Head(ctx context.Context, key string) (ObjectMetadata, error)
	Copy(ctx context.Context, srcKey, dstKey string) error

	// IsTransient classifies err as a retryable backend fault (timeout,
	// throttling, 5xx). Non-transient errors are returned to callers
	// unchanged and are never retried internally.
	IsTransient(err error) bool
}

// MetadataProvider accelerates listings and metadata lookups via a
// pre-generated catalog (the manifest), with a buffer for uncommitted local
// mutations.
type MetadataProvider interface {
	List(ctx context.Context, prefix string, recursive bool) (<-chan ObjectMetadata, <-chan error)
	Info(ctx context.Context, key string) (ObjectMetadata, error)
	AddPending(key string, meta ObjectMetadata)
	RemovePending(key string)
	Commit(ctx context.Context) (string, error)
	Realpath(key string) (string, error)
}

// CredentialsProvider resolves the access credentials for a profile.
// Implementations are responsible for caching; MSC calls Get() once, when it
// builds the profile's storage provider, and merges the result into that
// provider's configuration. Get is not called again for later requests.
type CredentialsProvider interface {
	Get(ctx context.Context) (Credentials, error)
}

// ProviderFactory constructs a StorageProvider from provider-specific
// configuration. Registered in the provider registry under a type string
// ("s3", "azure", ...).
type ProviderFactory func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (StorageProvider, error)

// MetadataProviderFactory constructs a MetadataProvider the same way.
type MetadataProviderFactory func(kind string, raw map[string]any, storage StorageProvider, logger *logrus.Logger) (MetadataProvider, error)

// CredentialsProviderFactory constructs a CredentialsProvider the same way.
type CredentialsProviderFactory func(raw map[string]any) (CredentialsProvider, error)

// ProviderBundle supplies all three provider roles at once. When a profile
// configures a bundle it supersedes individually configured provider
// fields.
type ProviderBundle interface {
	Storage() StorageProvider
	Metadata() MetadataProvider
	Credentials() CredentialsProvider
}

// ProviderBundleFactory constructs a ProviderBundle from its
// provider_bundle_config document. Registered in the bundle registry under
// a caller-chosen bundle name, not a backend kind.
type ProviderBundleFactory func(ctx context.Context, raw map[string]any, logger *logrus.Logger) (ProviderBundle, error)
