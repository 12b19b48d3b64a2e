package cache

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// Policy is the eviction victim-selection rule.
type Policy string

const (
	PolicyFIFO   Policy = "fifo"
	PolicyLRU    Policy = "lru"
	PolicyRandom Policy = "random"
)

// scanEntries rescans cacheDir and returns every entry whose ".meta" file
// parses, keyed by fingerprint. It is the authoritative source the
// in-memory index is reconciled against during refresh.
func scanEntries(cacheDir string) (map[string]models.CacheEntry, error) {
	names, err := os.ReadDir(cacheDir)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]models.CacheEntry)
	for _, n := range names {
		if n.IsDir() || !strings.HasSuffix(n.Name(), ".meta") {
			continue
		}
		fp := strings.TrimSuffix(n.Name(), ".meta")
		entry, ok := readMeta(filepath.Join(cacheDir, n.Name()))
		if !ok {
			continue
		}
		entries[fp] = entry
	}
	return entries, nil
}

// selectVictims picks entries to remove, in eviction order, until removing
// them would bring totalSize back within maxSize. Entries whose lock is held
// are never selected.
func selectVictims(cacheDir string, entries map[string]models.CacheEntry, totalSize, maxSize int64, policy Policy) []string {
	type candidate struct {
		fingerprint string
		entry       models.CacheEntry
	}
	var candidates []candidate
	for fp, entry := range entries {
		lockPath := filepath.Join(cacheDir, fp+".lock")
		if tryLocked(lockPath) {
			continue
		}
		candidates = append(candidates, candidate{fp, entry})
	}

	switch policy {
	case PolicyLRU:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].entry.LastAccessed.Before(candidates[j].entry.LastAccessed)
		})
	case PolicyRandom:
		rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	case PolicyFIFO:
		fallthrough
	default:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].entry.InsertedAt.Before(candidates[j].entry.InsertedAt)
		})
	}

	var victims []string
	remaining := totalSize
	for _, c := range candidates {
		if remaining <= maxSize {
			break
		}
		victims = append(victims, c.fingerprint)
		remaining -= c.entry.Size
	}
	return victims
}

func removeEntry(cacheDir, fp string) {
	_ = os.Remove(filepath.Join(cacheDir, fp))
	_ = os.Remove(filepath.Join(cacheDir, fp+".meta"))
	_ = os.Remove(filepath.Join(cacheDir, fp+".lock"))
}
