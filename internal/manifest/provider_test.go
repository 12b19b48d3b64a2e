package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// fakeStorage is a minimal in-memory models.StorageProvider sufficient to
// exercise the manifest provider without a real backend.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Name() string     { return "fake" }
func (f *fakeStorage) BasePath() string { return "" }

func (f *fakeStorage) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Get(ctx context.Context, key string, rng *models.ByteRange) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fake: not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) Head(ctx context.Context, key string) (models.ObjectMetadata, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return models.ObjectMetadata{}, fmt.Errorf("fake: not found: %s", key)
	}
	return models.ObjectMetadata{Key: key, ContentLength: int64(len(data))}, nil
}

func (f *fakeStorage) Copy(ctx context.Context, srcKey, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[srcKey]
	if !ok {
		return fmt.Errorf("fake: not found: %s", srcKey)
	}
	f.objects[dstKey] = data
	return nil
}

func (f *fakeStorage) List(ctx context.Context, prefix string, recursive bool, startAfter string) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		f.mu.Lock()
		var keys []string
		dirs := make(map[string]bool)
		for k := range f.objects {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			rest := strings.TrimPrefix(k, prefix)
			if !recursive && strings.Contains(rest, "/") {
				dirs[rest[:strings.Index(rest, "/")+1]] = true
				continue
			}
			keys = append(keys, k)
		}
		f.mu.Unlock()

		sort.Strings(keys)
		for _, k := range keys {
			out <- models.ObjectMetadata{Key: k, Type: models.ObjectTypeFile}
		}
		for d := range dirs {
			out <- models.ObjectMetadata{Key: prefix + d, Type: models.ObjectTypeDirectory}
		}
	}()

	return out, errc
}

func (f *fakeStorage) IsTransient(err error) bool { return false }

func TestProviderLoadEmptyWhenNoGeneration(t *testing.T) {
	storage := newFakeStorage()
	p := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)

	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, errc := p.List(context.Background(), "", true)
	count := 0
	for range out {
		count++
	}
	if err := <-errc; err != nil {
		t.Fatalf("List: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty manifest, got %d entries", count)
	}
}

func TestProviderCommitThenLoadRoundTrip(t *testing.T) {
	storage := newFakeStorage()
	p := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)

	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	p.AddPending("x/1", models.ObjectMetadata{Key: "x/1", ContentLength: 3, LastModified: time.Now().UTC()})
	p.AddPending("x/2", models.ObjectMetadata{Key: "x/2", ContentLength: 5, LastModified: time.Now().UTC()})

	generation, err := p.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if generation == "" {
		t.Fatal("expected non-empty generation id")
	}

	reloaded := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("reload Load: %v", err)
	}

	meta, err := reloaded.Info(context.Background(), "x/1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if meta.ContentLength != 3 {
		t.Fatalf("expected size 3, got %d", meta.ContentLength)
	}
}

func TestProviderCommitThenLoadPreservesMetadata(t *testing.T) {
	storage := newFakeStorage()
	p := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	p.AddPending("x/1", models.ObjectMetadata{
		Key:           "x/1",
		ContentLength: 3,
		LastModified:  time.Now().UTC(),
		Metadata:      map[string]string{"checksum": "abc123", "owner": "team-a"},
	})
	if _, err := p.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reloaded := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("reload Load: %v", err)
	}

	meta, err := reloaded.Info(context.Background(), "x/1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if meta.Metadata["checksum"] != "abc123" || meta.Metadata["owner"] != "team-a" {
		t.Fatalf("expected metadata to survive commit/load round trip, got %#v", meta.Metadata)
	}
}

func TestProviderCommitMonotonicGenerations(t *testing.T) {
	storage := newFakeStorage()
	p := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)
	_ = p.Load(context.Background())

	p.AddPending("a", models.ObjectMetadata{Key: "a", LastModified: time.Now().UTC()})
	gen1, err := p.Commit(context.Background())
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	p.AddPending("b", models.ObjectMetadata{Key: "b", LastModified: time.Now().UTC()})
	gen2, err := p.Commit(context.Background())
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	if gen2 <= gen1 {
		t.Fatalf("expected strictly increasing generations, got %q then %q", gen1, gen2)
	}
}

func TestProviderPendingRemoveHidesBaseEntry(t *testing.T) {
	storage := newFakeStorage()
	p := New(storage, Config{ManifestPath: ".msc_manifests"}, nil)
	_ = p.Load(context.Background())

	p.AddPending("a", models.ObjectMetadata{Key: "a", LastModified: time.Now().UTC()})
	if _, err := p.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	p.RemovePending("a")
	if _, err := p.Info(context.Background(), "a"); err == nil {
		t.Fatal("expected NotFound after pending remove, got nil error")
	}
}
