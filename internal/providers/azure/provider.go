// Package azure implements the MSC StorageProvider contract for Azure Blob
// Storage, adapted from the teacher's Azure Blob provider.
package azure

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped configuration for the Azure provider.
type Config struct {
	BasePath         string `mapstructure:"base_path"` // container name
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	SASToken         string `mapstructure:"sas_token"`
	Endpoint         string `mapstructure:"endpoint"`
	AccessTier       string `mapstructure:"access_tier"`
}

// Provider implements models.StorageProvider over an Azure Blob container.
type Provider struct {
	serviceURL    azblob.ServiceURL
	sharedKeyCred *azblob.SharedKeyCredential
	cfg           Config
	logger        *logrus.Entry
}

// New constructs an Azure Blob Provider.
func New(cfg Config, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}

	credential, sharedKeyCred, err := buildCredential(cfg)
	if err != nil {
		return nil, fmt.Errorf("azure: build credential: %w", err)
	}
	serviceURL, err := buildServiceURL(cfg, credential)
	if err != nil {
		return nil, fmt.Errorf("azure: build service url: %w", err)
	}

	return &Provider{
		serviceURL:    serviceURL,
		sharedKeyCred: sharedKeyCred,
		cfg:           cfg,
		logger:        logger.WithField("component", "providers.azure"),
	}, nil
}

func buildCredential(cfg Config) (azblob.Credential, *azblob.SharedKeyCredential, error) {
	if cfg.ConnectionString != "" {
		accountName, accountKey, err := parseConnectionString(cfg.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, nil, err
		}
		return cred, cred, nil
	}
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, nil, err
		}
		return cred, cred, nil
	}
	if cfg.SASToken != "" {
		return azblob.NewAnonymousCredential(), nil, nil
	}
	return nil, nil, fmt.Errorf("azure: no usable credential in profile config")
}

func parseConnectionString(connStr string) (string, string, error) {
	var accountName, accountKey string
	for _, part := range strings.Split(connStr, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "AccountName":
			accountName = kv[1]
		case "AccountKey":
			accountKey = kv[1]
		}
	}
	if accountName == "" || accountKey == "" {
		return "", "", fmt.Errorf("azure: connection string missing AccountName or AccountKey")
	}
	return accountName, accountKey, nil
}

func buildServiceURL(cfg Config, credential azblob.Credential) (azblob.ServiceURL, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}
	if cfg.SASToken != "" {
		endpoint += "?" + cfg.SASToken
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return azblob.ServiceURL{}, fmt.Errorf("azure: invalid endpoint: %w", err)
	}
	return azblob.NewServiceURL(*u, azblob.NewPipeline(credential, azblob.PipelineOptions{})), nil
}

func (p *Provider) Name() string     { return "azure" }
func (p *Provider) BasePath() string { return p.cfg.BasePath }

func (p *Provider) blobURL(key string) azblob.BlockBlobURL {
	return p.serviceURL.NewContainerURL(p.cfg.BasePath).NewBlockBlobURL(key)
}

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	azMeta := azblob.Metadata{}
	for k, v := range metadata {
		azMeta[k] = v
	}

	accessTier := azblob.AccessTierNone
	switch p.cfg.AccessTier {
	case "Hot":
		accessTier = azblob.AccessTierHot
	case "Cool":
		accessTier = azblob.AccessTierCool
	case "Archive":
		accessTier = azblob.AccessTierArchive
	}

	_, err := azblob.UploadStreamToBlockBlob(ctx, r, p.blobURL(key), azblob.UploadStreamToBlockBlobOptions{
		BufferSize:     4 * 1024 * 1024,
		MaxBuffers:     3,
		Metadata:       azMeta,
		BlobAccessTier: accessTier,
	})
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Error("put failed")
		return fmt.Errorf("azure: put %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	var offset, count int64 = 0, azblob.CountToEnd
	if rng != nil {
		offset = rng.Start
		count = rng.End - rng.Start
	}
	resp, err := p.blobURL(key).Download(ctx, offset, count, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, fmt.Errorf("azure: get %s: %w", key, err)
	}
	return resp.Body(azblob.RetryReaderOptions{}), nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	_, err := p.blobURL(key).Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return fmt.Errorf("azure: delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	resp, err := p.blobURL(key).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if stgErr, ok := err.(azblob.StorageError); ok && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return models.ObjectMetadata{}, fmt.Errorf("azure: head %s: %w", key, errNotFound)
		}
		return models.ObjectMetadata{}, fmt.Errorf("azure: head %s: %w", key, err)
	}

	meta := make(map[string]string)
	for k, v := range resp.NewMetadata() {
		meta[k] = v
	}

	return models.ObjectMetadata{
		Key:           key,
		Type:          models.ObjectTypeFile,
		ContentLength: resp.ContentLength(),
		LastModified:  resp.LastModified(),
		ETag:          string(resp.ETag()),
		StorageClass:  string(resp.AccessTier()),
		Metadata:      meta,
	}, nil
}

func (p *Provider) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := p.blobURL(dstKey).StartCopyFromURL(ctx, p.blobURL(srcKey).URL(), nil,
		azblob.ModifiedAccessConditions{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil)
	if err != nil {
		return fmt.Errorf("azure: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		containerURL := p.serviceURL.NewContainerURL(p.cfg.BasePath)
		options := azblob.ListBlobsSegmentOptions{
			Prefix:  prefix,
			Details: azblob.BlobListingDetails{Metadata: true},
		}
		if !recursive {
			marker := azblob.Marker{}
			for {
				resp, err := containerURL.ListBlobsHierarchySegment(ctx, marker, "/", options)
				if err != nil {
					errc <- fmt.Errorf("azure: list %s: %w", prefix, err)
					return
				}
				if !emitHierarchy(ctx, out, errc, resp) {
					return
				}
				marker = resp.NextMarker
				if !marker.NotDone() {
					return
				}
			}
		}

		marker := azblob.Marker{}
		for {
			resp, err := containerURL.ListBlobsFlatSegment(ctx, marker, options)
			if err != nil {
				errc <- fmt.Errorf("azure: list %s: %w", prefix, err)
				return
			}
			for _, item := range resp.Segment.BlobItems {
				meta := make(map[string]string, len(item.Metadata))
				for k, v := range item.Metadata {
					meta[k] = v
				}
				om := models.ObjectMetadata{
					Key:          item.Name,
					Type:         models.ObjectTypeFile,
					StorageClass: string(item.Properties.AccessTier),
					Metadata:     meta,
				}
				if item.Properties.ContentLength != nil {
					om.ContentLength = *item.Properties.ContentLength
				}
				om.LastModified = item.Properties.LastModified
				om.ETag = string(item.Properties.Etag)
				select {
				case out <- om:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			marker = resp.NextMarker
			if !marker.NotDone() {
				return
			}
		}
	}()

	return out, errc
}

func emitHierarchy(ctx context.Context, out chan<- models.ObjectMetadata, errc chan<- error, resp *azblob.ListBlobsHierarchySegmentResponse) bool {
	for _, p := range resp.Segment.BlobPrefixes {
		select {
		case out <- models.ObjectMetadata{Key: p.Name, Type: models.ObjectTypeDirectory}:
		case <-ctx.Done():
			errc <- ctx.Err()
			return false
		}
	}
	for _, item := range resp.Segment.BlobItems {
		om := models.ObjectMetadata{Key: item.Name, Type: models.ObjectTypeFile}
		if item.Properties.ContentLength != nil {
			om.ContentLength = *item.Properties.ContentLength
		}
		om.LastModified = item.Properties.LastModified
		om.ETag = string(item.Properties.Etag)
		select {
		case out <- om:
		case <-ctx.Done():
			errc <- ctx.Err()
			return false
		}
	}
	return true
}

// IsTransient classifies Azure storage errors with 5xx/timeout service
// codes as retryable.
func (p *Provider) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stgErr, ok := err.(azblob.StorageError); ok {
		code := stgErr.Response().StatusCode
		return code == 429 || code >= 500
	}
	return strings.Contains(err.Error(), "timeout")
}

var errNotFound = notFoundSentinel("azure: blob not found")

type notFoundSentinel string

func (e notFoundSentinel) Error() string { return string(e) }
