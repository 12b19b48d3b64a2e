// Package gcs implements the MSC StorageProvider contract for Google Cloud
// Storage, adapted from the teacher's GCS provider.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped configuration for the GCS provider.
type Config struct {
	BasePath    string `mapstructure:"base_path"` // bucket name
	ProjectID   string `mapstructure:"project_id"`
	KeyFilename string `mapstructure:"key_filename"`
	Endpoint    string `mapstructure:"endpoint"`
	StorageClass string `mapstructure:"storage_class"`
}

// Provider implements models.StorageProvider over a GCS bucket.
type Provider struct {
	client *storage.Client
	cfg    Config
	logger *logrus.Entry
}

// New constructs a GCS Provider.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("gcs: project_id is required")
	}

	var opts []option.ClientOption
	if cfg.KeyFilename != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.KeyFilename))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}

	return &Provider{client: client, cfg: cfg, logger: logger.WithField("component", "providers.gcs")}, nil
}

func (p *Provider) Name() string     { return "gcs" }
func (p *Provider) BasePath() string { return p.cfg.BasePath }

func (p *Provider) bucket() *storage.BucketHandle { return p.client.Bucket(p.cfg.BasePath) }

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	w := p.bucket().Object(key).NewWriter(ctx)
	w.Metadata = metadata
	if p.cfg.StorageClass != "" {
		w.StorageClass = p.cfg.StorageClass
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		p.logger.WithError(err).WithField("key", key).Error("put failed")
		return fmt.Errorf("gcs: put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finalize put %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	obj := p.bucket().Object(key)
	if rng != nil {
		r, err := obj.NewRangeReader(ctx, rng.Start, rng.End-rng.Start)
		if err != nil {
			return nil, fmt.Errorf("gcs: get %s: %w", key, err)
		}
		return r, nil
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: get %s: %w", key, err)
	}
	return r, nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := p.bucket().Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("gcs: delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	attrs, err := p.bucket().Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return models.ObjectMetadata{}, fmt.Errorf("gcs: head %s: %w", key, errNotFound)
		}
		return models.ObjectMetadata{}, fmt.Errorf("gcs: head %s: %w", key, err)
	}
	return models.ObjectMetadata{
		Key:           key,
		Type:          models.ObjectTypeFile,
		ContentLength: attrs.Size,
		LastModified:  attrs.Updated,
		ETag:          attrs.Etag,
		StorageClass:  attrs.StorageClass,
		Metadata:      attrs.Metadata,
	}, nil
}

func (p *Provider) Copy(ctx context.Context, srcKey, dstKey string) error {
	src := p.bucket().Object(srcKey)
	dst := p.bucket().Object(dstKey)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("gcs: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		query := &storage.Query{Prefix: prefix, StartOffset: startAfter}
		if !recursive {
			query.Delimiter = "/"
		}

		it := p.bucket().Objects(ctx, query)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				errc <- fmt.Errorf("gcs: list %s: %w", prefix, err)
				return
			}
			var om models.ObjectMetadata
			if attrs.Prefix != "" {
				om = models.ObjectMetadata{Key: attrs.Prefix, Type: models.ObjectTypeDirectory}
			} else {
				om = models.ObjectMetadata{
					Key:           attrs.Name,
					Type:          models.ObjectTypeFile,
					ContentLength: attrs.Size,
					LastModified:  attrs.Updated,
					ETag:          attrs.Etag,
					StorageClass:  attrs.StorageClass,
					Metadata:      attrs.Metadata,
				}
			}
			select {
			case out <- om:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

// IsTransient classifies GCS API errors carrying a 429/5xx status as
// retryable.
func (p *Provider) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr interface{ Code() int }
	if errors.As(err, &apiErr) {
		code := apiErr.Code()
		return code == 429 || code >= 500
	}
	return false
}

// Close releases the underlying GCS client.
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

var errNotFound = notFoundSentinel("gcs: object not found")

type notFoundSentinel string

func (e notFoundSentinel) Error() string { return string(e) }
