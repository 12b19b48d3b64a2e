package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// fakeClient is a minimal in-memory Client for exercising the sync engine
// without real backends.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeClient(initial map[string]string) *fakeClient {
	objects := make(map[string][]byte, len(initial))
	for k, v := range initial {
		objects[k] = []byte(v)
	}
	return &fakeClient{objects: objects}
}

func (c *fakeClient) List(ctx context.Context, prefix string, recursive bool) (<-chan models.ObjectMetadata, <-chan error) {
	out := make(chan models.ObjectMetadata)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		c.mu.Lock()
		var keys []string
		for k := range c.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		c.mu.Unlock()
		sort.Strings(keys)
		for _, k := range keys {
			out <- models.ObjectMetadata{Key: k, Type: models.ObjectTypeFile}
		}
	}()
	return out, errc
}

func (c *fakeClient) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	c.mu.Lock()
	data, ok := c.objects[key]
	c.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("fake: not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (c *fakeClient) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.objects[key] = data
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *fakeClient) snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.objects))
	for k, v := range c.objects {
		out[k] = string(v)
	}
	return out
}

func TestSyncFromCopiesAllSourceKeys(t *testing.T) {
	src := newFakeClient(map[string]string{"p/x": "1", "p/y": "22"})
	dst := newFakeClient(nil)

	e := New(Config{NumShards: 2, NumWorkersPerShard: 2}, nil)
	if err := e.SyncFrom(context.Background(), src, dst, "p/", "p/", false); err != nil {
		t.Fatalf("SyncFrom: %v", err)
	}

	got := dst.snapshot()
	want := map[string]string{"p/x": "1", "p/y": "22"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %s: expected %q, got %q", k, v, got[k])
		}
	}
}

func TestSyncFromDeleteUnmatched(t *testing.T) {
	src := newFakeClient(map[string]string{"p/x": "1", "p/y": "22"})
	dst := newFakeClient(map[string]string{"p/x_old": "stale", "p/y": "22", "p/z": "stale"})

	e := New(Config{NumShards: 3, NumWorkersPerShard: 3}, nil)
	if err := e.SyncFrom(context.Background(), src, dst, "p/", "p/", true); err != nil {
		t.Fatalf("SyncFrom: %v", err)
	}

	got := dst.snapshot()
	want := map[string]string{"p/x": "1", "p/y": "22"}
	if len(got) != len(want) {
		t.Fatalf("expected destination to equal source, got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %s: expected %q, got %q", k, v, got[k])
		}
	}
}

func TestSyncFromNeverDeletesBeforeCopyFails(t *testing.T) {
	src := newFakeClient(map[string]string{"p/x": "1"})
	dst := newFakeClient(map[string]string{"p/stale": "old"})

	e := New(Config{}, nil)
	if err := e.SyncFrom(context.Background(), src, dst, "p/", "p/", true); err != nil {
		t.Fatalf("SyncFrom: %v", err)
	}

	got := dst.snapshot()
	if _, ok := got["p/stale"]; ok {
		t.Fatal("expected unmatched destination key to be deleted after a successful copy phase")
	}
	if got["p/x"] != "1" {
		t.Fatalf("expected copied key present, got %v", got)
	}

	// A failed copy phase leaves unmatched destination keys in place.
	failing := failingReadClient{newFakeClient(map[string]string{"p/x": "1"})}
	dst2 := newFakeClient(map[string]string{"p/stale": "old"})
	if err := e.SyncFrom(context.Background(), failing, dst2, "p/", "p/", true); err == nil {
		t.Fatal("expected SyncFrom to fail when a source read fails")
	}
	if _, ok := dst2.snapshot()["p/stale"]; !ok {
		t.Fatal("expected unmatched destination key to survive a failed copy phase")
	}
}

// failingReadClient lists like its embedded fakeClient but fails every Read.
type failingReadClient struct{ *fakeClient }

func (c failingReadClient) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return nil, 0, fmt.Errorf("fake: read failed: %s", key)
}
