// Package oci implements the MSC StorageProvider contract for Oracle Cloud
// Infrastructure Object Storage. No repo in this codebase's lineage has an
// OCI backend; this package is shaped after the s3 package's method layout
// (the closest analog in the lineage) and the OCI Object Storage Go SDK's
// own request/response conventions.
package oci

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped configuration for the OCI provider.
type Config struct {
	BasePath    string `mapstructure:"base_path"` // bucket name
	Namespace   string `mapstructure:"namespace"`
	Region      string `mapstructure:"region"`
	TenancyID   string `mapstructure:"tenancy_ocid"`
	UserID      string `mapstructure:"user_ocid"`
	Fingerprint string `mapstructure:"fingerprint"`
	PrivateKey  string `mapstructure:"private_key"`
	Passphrase  string `mapstructure:"passphrase"`
	StorageTier string `mapstructure:"storage_tier"`
}

// Provider implements models.StorageProvider over an OCI Object Storage
// bucket.
type Provider struct {
	client objectstorage.ObjectStorageClient
	cfg    Config
	logger *logrus.Entry
}

// New constructs an OCI Provider.
func New(cfg Config, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("oci: namespace is required")
	}

	configProvider := common.NewRawConfigurationProvider(
		cfg.TenancyID, cfg.UserID, cfg.Region, cfg.Fingerprint, cfg.PrivateKey, &cfg.Passphrase,
	)
	client, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(configProvider)
	if err != nil {
		return nil, fmt.Errorf("oci: new client: %w", err)
	}

	return &Provider{client: client, cfg: cfg, logger: logger.WithField("component", "providers.oci")}, nil
}

func (p *Provider) Name() string     { return "oci" }
func (p *Provider) BasePath() string { return p.cfg.BasePath }

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	req := objectstorage.PutObjectRequest{
		NamespaceName: common.String(p.cfg.Namespace),
		BucketName:    common.String(p.cfg.BasePath),
		ObjectName:    common.String(key),
		PutObjectBody: io.NopCloser(r),
		ContentLength: common.Int64(size),
		OpcMeta:       metadata,
	}
	if p.cfg.StorageTier != "" {
		tier := objectstorage.PutObjectStorageTierEnum(p.cfg.StorageTier)
		req.StorageTier = tier
	}

	if _, err := p.client.PutObject(ctx, req); err != nil {
		p.logger.WithError(err).WithField("key", key).Error("put failed")
		return fmt.Errorf("oci: put %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	req := objectstorage.GetObjectRequest{
		NamespaceName: common.String(p.cfg.Namespace),
		BucketName:    common.String(p.cfg.BasePath),
		ObjectName:    common.String(key),
	}
	if rng != nil {
		req.Range = common.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End-1))
	}

	resp, err := p.client.GetObject(ctx, req)
	if err != nil {
		if isNotFoundServiceError(err) {
			return nil, fmt.Errorf("oci: get %s: %w", key, errNotFound)
		}
		return nil, fmt.Errorf("oci: get %s: %w", key, err)
	}
	return resp.Content, nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	req := objectstorage.DeleteObjectRequest{
		NamespaceName: common.String(p.cfg.Namespace),
		BucketName:    common.String(p.cfg.BasePath),
		ObjectName:    common.String(key),
	}
	if _, err := p.client.DeleteObject(ctx, req); err != nil && !isNotFoundServiceError(err) {
		return fmt.Errorf("oci: delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	req := objectstorage.HeadObjectRequest{
		NamespaceName: common.String(p.cfg.Namespace),
		BucketName:    common.String(p.cfg.BasePath),
		ObjectName:    common.String(key),
	}
	resp, err := p.client.HeadObject(ctx, req)
	if err != nil {
		if isNotFoundServiceError(err) {
			return models.ObjectMetadata{}, fmt.Errorf("oci: head %s: %w", key, errNotFound)
		}
		return models.ObjectMetadata{}, fmt.Errorf("oci: head %s: %w", key, err)
	}

	return models.ObjectMetadata{
		Key:           key,
		Type:          models.ObjectTypeFile,
		ContentLength: common.Int64(*resp.ContentLength).Value(),
		LastModified:  resp.LastModified.Time,
		ETag:          strings.Trim(common.String(*resp.ETag).Value(), `"`),
		StorageClass:  string(resp.StorageTier),
		Metadata:      resp.OpcMeta,
	}, nil
}

func (p *Provider) Copy(ctx context.Context, srcKey, dstKey string) error {
	req := objectstorage.CopyObjectRequest{
		NamespaceName: common.String(p.cfg.Namespace),
		BucketName:    common.String(p.cfg.BasePath),
		CopyObjectDetails: objectstorage.CopyObjectDetails{
			SourceObjectName:      common.String(srcKey),
			DestinationBucket:     common.String(p.cfg.BasePath),
			DestinationNamespace:  common.String(p.cfg.Namespace),
			DestinationObjectName: common.String(dstKey),
			DestinationRegion:     common.String(p.cfg.Region),
		},
	}
	if _, err := p.client.CopyObject(ctx, req); err != nil {
		return fmt.Errorf("oci: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		start := startAfter
		var delimiter *string
		if !recursive {
			delimiter = common.String("/")
		}

		for {
			req := objectstorage.ListObjectsRequest{
				NamespaceName: common.String(p.cfg.Namespace),
				BucketName:    common.String(p.cfg.BasePath),
				Prefix:        common.String(prefix),
				Delimiter:     delimiter,
				Fields:        common.String("name,size,etag,timeModified,storageTier"),
			}
			if start != "" {
				req.Start = common.String(start)
			}

			resp, err := p.client.ListObjects(ctx, req)
			if err != nil {
				errc <- fmt.Errorf("oci: list %s: %w", prefix, err)
				return
			}

			for _, pfx := range resp.Prefixes {
				select {
				case out <- models.ObjectMetadata{Key: pfx, Type: models.ObjectTypeDirectory}:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			for _, obj := range resp.Objects {
				om := models.ObjectMetadata{
					Key:  common.String(*obj.Name).Value(),
					Type: models.ObjectTypeFile,
				}
				if obj.Size != nil {
					om.ContentLength = *obj.Size
				}
				if obj.TimeModified != nil {
					om.LastModified = obj.TimeModified.Time
				}
				if obj.Etag != nil {
					om.ETag = *obj.Etag
				}
				om.StorageClass = string(obj.StorageTier)
				select {
				case out <- om:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			if resp.NextStartWith == nil {
				return
			}
			start = *resp.NextStartWith
		}
	}()

	return out, errc
}

// IsTransient classifies OCI service errors carrying a 429/5xx HTTP status
// as retryable.
func (p *Provider) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if svcErr, ok := common.IsServiceError(err); ok {
		code := svcErr.GetHTTPStatusCode()
		return code == 429 || code >= 500
	}
	return false
}

func isNotFoundServiceError(err error) bool {
	svcErr, ok := common.IsServiceError(err)
	return ok && svcErr.GetHTTPStatusCode() == 404
}

var errNotFound = notFoundSentinel("oci: object not found")

type notFoundSentinel string

func (e notFoundSentinel) Error() string { return string(e) }
