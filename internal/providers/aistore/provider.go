// Package aistore implements the MSC StorageProvider contract for NVIDIA
// AIStore, using the AIStore API client directly rather than its WebDAV
// gateway. The request shapes (BaseParams, Bck, Put/Get/Head/List args)
// follow the proxy helper conventions in the AIStore WebDAV adapter this
// package is grounded on.
package aistore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/NVIDIA/aistore/api"
	"github.com/NVIDIA/aistore/api/apc"
	"github.com/NVIDIA/aistore/cmn"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped configuration for the AIStore provider.
type Config struct {
	BasePath string `mapstructure:"base_path"` // bucket name
	Endpoint string `mapstructure:"endpoint"`  // proxy URL, e.g. http://localhost:8080
	Provider string `mapstructure:"provider"`  // ais, aws, gcp, azure (remote-bucket passthrough)
}

// Provider implements models.StorageProvider over an AIStore bucket.
type Provider struct {
	baseParams api.BaseParams
	bck        cmn.Bck
	cfg        Config
	logger     *logrus.Entry
}

// New constructs an AIStore Provider.
func New(cfg Config, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("aistore: endpoint is required")
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("aistore: base_path (bucket) is required")
	}

	providerName := cfg.Provider
	if providerName == "" {
		providerName = apc.AIS
	}

	return &Provider{
		baseParams: api.BaseParams{URL: cfg.Endpoint, Client: http.DefaultClient},
		bck:        cmn.Bck{Name: cfg.BasePath, Provider: providerName},
		cfg:        cfg,
		logger:     logger.WithField("component", "providers.aistore"),
	}, nil
}

func (p *Provider) Name() string     { return "aistore" }
func (p *Provider) BasePath() string { return p.cfg.BasePath }

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	args := api.PutArgs{
		BaseParams: p.baseParams,
		Bck:        p.bck,
		ObjName:    key,
		Reader:     api.NopOpener(r),
		Size:       uint64(size),
	}
	if _, err := api.PutObject(args); err != nil {
		p.logger.WithError(err).WithField("key", key).Error("put failed")
		return fmt.Errorf("aistore: put %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	args := api.GetArgs{Writer: pw}
	if rng != nil {
		args.Header = http.Header{
			"Range": []string{fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End-1)},
		}
	}

	go func() {
		_, err := api.GetObject(p.baseParams, p.bck, key, args)
		pw.CloseWithError(err)
	}()

	return pr, nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := api.DeleteObject(p.baseParams, p.bck, key); err != nil && !isNotFoundErr(err) {
		return fmt.Errorf("aistore: delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	props, err := api.HeadObject(p.baseParams, p.bck, key, api.HeadArgs{})
	if err != nil {
		if isNotFoundErr(err) {
			return models.ObjectMetadata{}, fmt.Errorf("aistore: head %s: %w", key, errNotFound)
		}
		return models.ObjectMetadata{}, fmt.Errorf("aistore: head %s: %w", key, err)
	}
	return models.ObjectMetadata{
		Key:           key,
		Type:          models.ObjectTypeFile,
		ContentLength: props.Size,
		ETag:          props.Checksum().Value(),
	}, nil
}

// Copy has no single-call analog in the AIStore API client; it streams the
// source object through Get/Put.
func (p *Provider) Copy(ctx context.Context, srcKey, dstKey string) error {
	r, err := p.Get(ctx, srcKey, nil)
	if err != nil {
		return fmt.Errorf("aistore: copy source %s: %w", srcKey, err)
	}
	defer r.Close()

	props, err := api.HeadObject(p.baseParams, p.bck, srcKey, api.HeadArgs{})
	if err != nil {
		return fmt.Errorf("aistore: copy head source %s: %w", srcKey, err)
	}
	if err := p.Put(ctx, dstKey, r, props.Size, nil); err != nil {
		return fmt.Errorf("aistore: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		msg := &apc.LsoMsg{Prefix: prefix, ContinuationToken: startAfter}
		if !recursive {
			msg.SetFlag(apc.LsNoRecursion)
		}

		for {
			lst, err := api.ListObjects(p.baseParams, p.bck, msg, api.ListArgs{})
			if err != nil {
				errc <- fmt.Errorf("aistore: list %s: %w", prefix, err)
				return
			}

			for _, entry := range lst.Entries {
				if !recursive {
					rel := strings.TrimPrefix(entry.Name, prefix)
					if strings.Contains(strings.TrimPrefix(rel, "/"), "/") {
						continue
					}
				}
				om := models.ObjectMetadata{
					Key:           entry.Name,
					Type:          models.ObjectTypeFile,
					ContentLength: entry.Size,
				}
				select {
				case out <- om:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			if lst.ContinuationToken == "" {
				return
			}
			msg.ContinuationToken = lst.ContinuationToken
		}
	}()

	return out, errc
}

// IsTransient classifies AIStore HTTP errors carrying a 429/5xx status as
// retryable.
func (p *Provider) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *cmn.ErrHTTP
	if ok := asErrHTTP(err, &httpErr); ok {
		return httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500
	}
	return strings.Contains(err.Error(), "connection reset") || strings.Contains(err.Error(), "timeout")
}

func asErrHTTP(err error, target **cmn.ErrHTTP) bool {
	for err != nil {
		if httpErr, ok := err.(*cmn.ErrHTTP); ok {
			*target = httpErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func isNotFoundErr(err error) bool {
	var httpErr *cmn.ErrHTTP
	return asErrHTTP(err, &httpErr) && httpErr.Status == http.StatusNotFound
}

var errNotFound = notFoundSentinel("aistore: object not found")

type notFoundSentinel string

func (e notFoundSentinel) Error() string { return string(e) }
