package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/NVIDIA/multi-storage-client/internal/cache"
	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// fakeFlakyStorage is a models.StorageProvider whose Head call can be
// switched to fail after an object has already been cached, so tests can
// exercise what ReadBytes does when a backend lookup errors on a previously
// cached key.
type fakeFlakyStorage struct {
	mu      sync.Mutex
	body    []byte
	etag    string
	headErr error
}

func (f *fakeFlakyStorage) Name() string     { return "fake" }
func (f *fakeFlakyStorage) BasePath() string { return "" }

func (f *fakeFlakyStorage) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return models.ObjectMetadata{}, f.headErr
	}
	return models.ObjectMetadata{Key: key, ContentLength: int64(len(f.body)), ETag: f.etag}, nil
}

func (f *fakeFlakyStorage) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	return io.NopCloser(bytes.NewReader(f.body)), nil
}

func (f *fakeFlakyStorage) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = data
	return nil
}

func (f *fakeFlakyStorage) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeFlakyStorage) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

func (f *fakeFlakyStorage) Copy(ctx context.Context, srcKey, dstKey string) error { return nil }

func (f *fakeFlakyStorage) IsTransient(err error) bool { return false }

func TestReadBytesPropagatesHeadErrorInsteadOfStaleCache(t *testing.T) {
	storage := &fakeFlakyStorage{body: []byte("hello"), etag: "etag-1"}
	objCache, err := cache.New(cache.Config{CacheDir: t.TempDir(), UseETag: true}, nil, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer objCache.Close()

	client := NewStorageClient("test", storage, ClientOptions{
		Cache:                objCache,
		CacheBypassThreshold: 1, // force every read through the cache path
	}, nil)
	ctx := context.Background()

	got, err := client.ReadBytes(ctx, "k1", nil)
	if err != nil {
		t.Fatalf("first ReadBytes: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}

	// Simulate the object vanishing upstream: Head now errors.
	storage.mu.Lock()
	storage.headErr = errors.New("simulated not found")
	storage.mu.Unlock()

	if _, err := client.ReadBytes(ctx, "k1", nil); err == nil {
		t.Fatal("expected ReadBytes to propagate the Head error instead of serving the stale cached body")
	}
}

func TestDeleteEvictsCacheEntry(t *testing.T) {
	storage := &fakeFlakyStorage{body: []byte("hello"), etag: "etag-1"}
	objCache, err := cache.New(cache.Config{CacheDir: t.TempDir(), UseETag: true}, nil, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer objCache.Close()

	client := NewStorageClient("test", storage, ClientOptions{
		Cache:                objCache,
		CacheBypassThreshold: 1,
	}, nil)
	ctx := context.Background()

	if _, err := client.ReadBytes(ctx, "k1", nil); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}

	if err := client.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The backend now holds a different body under the same ETag, so only a
	// cache miss returns it: a surviving cache entry would still serve "hello".
	storage.mu.Lock()
	storage.body = []byte("world")
	storage.mu.Unlock()

	got, err := client.ReadBytes(ctx, "k1", nil)
	if err != nil {
		t.Fatalf("ReadBytes after Delete: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("expected ReadBytes after Delete to miss the evicted cache entry and return %q, got %q", "world", got)
	}
}
