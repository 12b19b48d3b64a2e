package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

func readMeta(path string) (models.CacheEntry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.CacheEntry{}, false
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.CacheEntry{}, false
	}
	return entry, true
}

func writeMeta(path string, entry models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cache: write meta %s: %w", path, err)
	}
	return nil
}

func touchLastAccessed(path string) {
	entry, ok := readMeta(path)
	if !ok {
		return
	}
	entry.LastAccessed = time.Now().UTC()
	_ = writeMeta(path, entry)
}
