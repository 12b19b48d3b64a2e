package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxSize int64, policy Policy) *Cache {
	t.Helper()
	c, err := New(Config{
		CacheDir:       t.TempDir(),
		MaxSize:        maxSize,
		UseETag:        true,
		EvictionPolicy: policy,
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func fetcherFor(body string, etag string, calls *int64) Fetcher {
	return func(ctx context.Context) (io.ReadCloser, int64, string, error) {
		atomic.AddInt64(calls, 1)
		return io.NopCloser(bytes.NewReader([]byte(body))), int64(len(body)), etag, nil
	}
}

func TestCacheConcurrentColdReadsFetchOnce(t *testing.T) {
	c := newTestCache(t, 0, PolicyFIFO)

	var calls int64
	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := c.Get(context.Background(), "p1", "k1", "etag-a", fetcherFor("hello", "etag-a", &calls))
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = path
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one underlying fetch, got %d", calls)
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatalf("expected identical cache paths across readers, got %v", results)
		}
	}
}

func TestCacheETagChangeTriggersRefetch(t *testing.T) {
	c := newTestCache(t, 0, PolicyFIFO)

	var calls int64
	path1, err := c.Get(context.Background(), "p1", "k1", "etag-a", fetcherFor("A", "etag-a", &calls))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	path2, err := c.Get(context.Background(), "p1", "k1", "etag-b", fetcherFor("BB", "etag-b", &calls))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if path1 != path2 {
		t.Fatalf("expected same fingerprint path, got %s and %s", path1, path2)
	}
	if calls != 2 {
		t.Fatalf("expected a refetch on ETag change, got %d calls", calls)
	}
}

func TestCacheRemoveDeletesEntryAndFiles(t *testing.T) {
	c := newTestCache(t, 0, PolicyFIFO)

	var calls int64
	path, err := c.Get(context.Background(), "p1", "k1", "etag-a", fetcherFor("hello", "etag-a", &calls))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cached body on disk before Remove: %v", err)
	}

	if err := c.Remove(context.Background(), "p1", "k1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	c.mu.Lock()
	_, present := c.index[fingerprint("p1", "k1")]
	c.mu.Unlock()
	if present {
		t.Fatal("expected index entry to be gone after Remove")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected cached body removed from disk, stat err = %v", err)
	}

	// A second read must be a full miss, not a stale hit.
	path2, err := c.Get(context.Background(), "p1", "k1", "etag-a", fetcherFor("hello", "etag-a", &calls))
	if err != nil {
		t.Fatalf("Get after Remove: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a refetch after Remove, got %d calls", calls)
	}
	if path2 != path {
		t.Fatalf("expected same fingerprint path, got %s and %s", path, path2)
	}
}

func TestCacheRemoveMissingKeyIsNotError(t *testing.T) {
	c := newTestCache(t, 0, PolicyFIFO)
	if err := c.Remove(context.Background(), "p1", "never-written"); err != nil {
		t.Fatalf("Remove of unknown key: %v", err)
	}
}

func TestCacheFIFOEviction(t *testing.T) {
	c := newTestCache(t, 8, PolicyFIFO)

	var calls int64
	for i, k := range []string{"k1", "k2", "k3"} {
		body := fmt.Sprintf("%04d", i)
		if _, err := c.Get(context.Background(), "p1", k, "etag-"+k, fetcherFor(body, "etag-"+k, &calls)); err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
		time.Sleep(time.Millisecond)
	}

	c.mu.Lock()
	_, k1Present := c.index[fingerprint("p1", "k1")]
	_, k3Present := c.index[fingerprint("p1", "k3")]
	var total int64
	for _, e := range c.index {
		total += e.Size
	}
	c.mu.Unlock()

	if k1Present {
		t.Fatal("expected k1 (first inserted) to be evicted under fifo policy")
	}
	if !k3Present {
		t.Fatal("expected k3 (last inserted) to remain")
	}
	if total > 8 {
		t.Fatalf("expected total size <= 8 after eviction, got %d", total)
	}
}
