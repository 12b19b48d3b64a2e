package cache

import (
	"testing"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

func TestIndexFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	entries := map[string]models.CacheEntry{
		"fp1": {Fingerprint: "fp1", Profile: "p1", Key: "k1", Size: 5},
	}

	if err := writeIndexFile(dir, entries); err != nil {
		t.Fatalf("writeIndexFile: %v", err)
	}

	got, ok := readIndexFile(dir)
	if !ok {
		t.Fatal("expected readIndexFile to find the hint just written")
	}
	if got["fp1"].Key != "k1" {
		t.Fatalf("expected entry to round trip, got %#v", got)
	}
}

func TestIndexFileMissingIsNotOK(t *testing.T) {
	if _, ok := readIndexFile(t.TempDir()); ok {
		t.Fatal("expected no hint file in an empty directory")
	}
}

// TestNewCacheColdStartsFromIndexHint confirms New prefers a previously
// published ".index" hint over a full directory scan when no Redis mirror is
// configured, so a process restart skips re-stat'ing every cached entry.
func TestNewCacheColdStartsFromIndexHint(t *testing.T) {
	dir := t.TempDir()
	entries := map[string]models.CacheEntry{
		"ghost": {Fingerprint: "ghost", Profile: "p1", Key: "k1", Size: 42},
	}
	if err := writeIndexFile(dir, entries); err != nil {
		t.Fatalf("writeIndexFile: %v", err)
	}

	c, err := New(Config{CacheDir: dir}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.mu.Lock()
	entry, ok := c.index["ghost"]
	c.mu.Unlock()
	if !ok || entry.Size != 42 {
		t.Fatalf("expected New to seed its index from the hint file, got %#v (ok=%v)", entry, ok)
	}
}
