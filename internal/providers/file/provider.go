// Package file implements the MSC StorageProvider contract over the POSIX
// filesystem, adapted from the teacher's local filesystem provider. This is
// the provider backing the process-wide "default" profile rooted at "/".
package file

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/errmsc"
	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Config is the profile-scoped configuration for the file provider.
type Config struct {
	BasePath string `mapstructure:"base_path"`
}

// Provider implements models.StorageProvider rooted at Config.BasePath.
type Provider struct {
	basePath string
	logger   *logrus.Entry
}

// New constructs a file Provider, creating BasePath if it does not exist.
func New(cfg Config, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("file: base_path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("file: create base_path: %w", err)
	}
	return &Provider{basePath: cfg.BasePath, logger: logger.WithField("component", "providers.file")}, nil
}

func (p *Provider) Name() string     { return "file" }
func (p *Provider) BasePath() string { return p.basePath }

func (p *Provider) fullPath(key string) string {
	return filepath.Join(p.basePath, filepath.FromSlash(key))
}

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	full := p.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("file: mkdir for %s: %w", key, err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("file: create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("file: write %s: %w", key, err)
	}

	if metadata != nil {
		if _, ok := metadata["content-type"]; !ok {
			if mt, err := mimetype.DetectFile(full); err == nil {
				metadata["content-type"] = mt.String()
			}
		}
	}

	p.logger.WithField("key", key).Debug("put")
	return nil
}

func (p *Provider) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	f, err := os.Open(p.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file: get %s: %w", key, errNotFound)
		}
		return nil, fmt.Errorf("file: get %s: %w", key, err)
	}
	if rng == nil {
		return f, nil
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("file: seek %s: %w", key, err)
	}
	return &limitedReadCloser{f: f, remaining: rng.End - rng.Start}, nil
}

type limitedReadCloser struct {
	f         *os.File
	remaining int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.f.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedReadCloser) Close() error { return l.f.Close() }

func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := os.Remove(p.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file: delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	full := p.fullPath(key)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ObjectMetadata{}, fmt.Errorf("file: head %s: %w", key, errmsc.New(errmsc.KindNotFound, "file.Head", "", key, errNotFound))
		}
		return models.ObjectMetadata{}, fmt.Errorf("file: head %s: %w", key, err)
	}
	if info.IsDir() {
		return models.ObjectMetadata{Key: strings.TrimSuffix(key, "/") + "/", Type: models.ObjectTypeDirectory}, nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return models.ObjectMetadata{}, fmt.Errorf("file: head %s: %w", key, err)
	}
	sum := md5.Sum(content)

	return models.ObjectMetadata{
		Key:           key,
		Type:          models.ObjectTypeFile,
		ContentLength: info.Size(),
		LastModified:  info.ModTime(),
		ETag:          hex.EncodeToString(sum[:]),
	}, nil
}

func (p *Provider) Copy(ctx context.Context, srcKey, dstKey string) error {
	dstFull := p.fullPath(dstKey)
	if err := os.MkdirAll(filepath.Dir(dstFull), 0o755); err != nil {
		return fmt.Errorf("file: mkdir for copy destination %s: %w", dstKey, err)
	}

	src, err := os.Open(p.fullPath(srcKey))
	if err != nil {
		return fmt.Errorf("file: copy source %s: %w", srcKey, err)
	}
	defer src.Close()

	dst, err := os.Create(dstFull)
	if err != nil {
		return fmt.Errorf("file: copy destination %s: %w", dstKey, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("file: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		root := p.basePath
		seenStartAfter := startAfter == ""

		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if info.IsDir() {
				if !recursive && rel != "" && !strings.HasPrefix(rel+"/", prefix) && !strings.HasPrefix(prefix, rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasPrefix(rel, prefix) {
				return nil
			}
			if !recursive {
				relTail := strings.TrimPrefix(rel, prefix)
				if strings.Contains(relTail, "/") {
					return nil
				}
			}
			if !seenStartAfter {
				if rel == startAfter {
					seenStartAfter = true
				}
				return nil
			}

			om := models.ObjectMetadata{
				Key:           rel,
				Type:          models.ObjectTypeFile,
				ContentLength: info.Size(),
				LastModified:  info.ModTime(),
			}
			select {
			case out <- om:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			errc <- fmt.Errorf("file: list %s: %w", prefix, err)
		}
	}()

	return out, errc
}

// IsTransient is always false: local filesystem faults are not retried by
// the provider — disk errors surface immediately so the cache layer can
// degrade to bypass-and-log rather than spin on a permanent failure.
func (p *Provider) IsTransient(err error) bool { return false }

var errNotFound = notFoundSentinel("file: not found")

type notFoundSentinel string

func (e notFoundSentinel) Error() string { return string(e) }
