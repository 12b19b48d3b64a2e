// Package s3 implements the MSC StorageProvider contract for S3-compatible
// object storage, adapted from the teacher's AWS cloud-storage provider.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped configuration for the S3 provider, with
// mapstructure tags matching the teacher's per-backend config structs.
type Config struct {
	BasePath             string `mapstructure:"base_path"`
	Region               string `mapstructure:"region"`
	Endpoint             string `mapstructure:"endpoint"`
	AccessKeyID          string `mapstructure:"access_key_id"`
	SecretAccessKey      string `mapstructure:"secret_access_key"`
	SessionToken         string `mapstructure:"session_token"`
	ForcePathStyle       bool   `mapstructure:"force_path_style"`
	StorageClass         string `mapstructure:"storage_class"`
	ServerSideEncryption string `mapstructure:"server_side_encryption"`
	KMSKeyID             string `mapstructure:"kms_key_id"`
}

// Provider implements models.StorageProvider over an S3 bucket, identified
// by Config.BasePath.
type Provider struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	cfg        Config
	logger     *logrus.Entry
}

// New constructs an S3 Provider.
func New(cfg Config, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}

	awsCfg, err := buildAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("s3: build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Provider{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		cfg:        cfg,
		logger:     logger.WithField("component", "providers.s3"),
	}, nil
}

func buildAWSConfig(cfg Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	}
	return awsCfg, nil
}

func (p *Provider) Name() string     { return "s3" }
func (p *Provider) BasePath() string { return p.cfg.BasePath }

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(p.cfg.BasePath),
		Key:      aws.String(key),
		Body:     r,
		Metadata: metadata,
	}
	if p.cfg.StorageClass != "" {
		input.StorageClass = types.StorageClass(p.cfg.StorageClass)
	}
	if p.cfg.ServerSideEncryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(p.cfg.ServerSideEncryption)
		if p.cfg.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(p.cfg.KMSKeyID)
		}
	}

	if _, err := p.uploader.Upload(ctx, input); err != nil {
		p.logger.WithError(err).WithField("key", key).Error("put failed")
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.BasePath),
		Key:    aws.String(key),
	}
	if rng != nil {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End-1))
	}

	result, err := p.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3: get %s: %w", key, err)
	}
	return result.Body, nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.BasePath),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.BasePath),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return models.ObjectMetadata{}, fmt.Errorf("s3: head %s: %w", key, errNotFound)
		}
		return models.ObjectMetadata{}, fmt.Errorf("s3: head %s: %w", key, err)
	}

	meta := models.ObjectMetadata{
		Key:           key,
		Type:          models.ObjectTypeFile,
		ContentLength: aws.ToInt64(out.ContentLength),
		LastModified:  aws.ToTime(out.LastModified),
		ETag:          strings.Trim(aws.ToString(out.ETag), `"`),
		StorageClass:  string(out.StorageClass),
		Metadata:      out.Metadata,
	}
	return meta, nil
}

func (p *Provider) Copy(ctx context.Context, srcKey, dstKey string) error {
	copySource := fmt.Sprintf("%s/%s", p.cfg.BasePath, srcKey)
	_, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(p.cfg.BasePath),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		return fmt.Errorf("s3: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(p.cfg.BasePath),
			Prefix: aws.String(prefix),
		}
		if startAfter != "" {
			input.StartAfter = aws.String(startAfter)
		}
		if !recursive {
			input.Delimiter = aws.String("/")
		}

		paginator := s3.NewListObjectsV2Paginator(p.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				errc <- fmt.Errorf("s3: list %s: %w", prefix, err)
				return
			}
			for _, cp := range page.CommonPrefixes {
				select {
				case out <- models.ObjectMetadata{Key: aws.ToString(cp.Prefix), Type: models.ObjectTypeDirectory}:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			for _, obj := range page.Contents {
				meta := models.ObjectMetadata{
					Key:           aws.ToString(obj.Key),
					Type:          models.ObjectTypeFile,
					ContentLength: aws.ToInt64(obj.Size),
					LastModified:  aws.ToTime(obj.LastModified),
					ETag:          strings.Trim(aws.ToString(obj.ETag), `"`),
					StorageClass:  string(obj.StorageClass),
				}
				select {
				case out <- meta:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errc
}

// IsTransient classifies throttling/5xx/timeout errors as retryable,
// mirroring the subset of S3 fault codes the teacher's uploader/downloader
// already retry internally, extended to the provider's own direct calls.
func (p *Provider) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestTimeout", "SlowDown", "ServiceUnavailable", "InternalError", "ThrottlingException":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset")
}

// errNotFound is a sentinel wrapped into the errmsc taxonomy by the
// registry layer, which is the only place that knows the operation/profile
// context needed to build a full *errmsc.Error.
var errNotFound = notFoundSentinel("s3: object not found")

type notFoundSentinel string

func (e notFoundSentinel) Error() string { return string(e) }
