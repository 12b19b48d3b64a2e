package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

const indexFileName = ".index"

// hintIndex is the on-disk ".index" summary: advisory, rebuilt from a full
// scan on refresh, never treated as authoritative over the filesystem.
type hintIndex struct {
	Entries map[string]models.CacheEntry `json:"entries"`
}

func writeIndexFile(cacheDir string, entries map[string]models.CacheEntry) error {
	data, err := json.Marshal(hintIndex{Entries: entries})
	if err != nil {
		return fmt.Errorf("cache: marshal index: %w", err)
	}
	return os.WriteFile(filepath.Join(cacheDir, indexFileName), data, 0o644)
}

func readIndexFile(cacheDir string) (map[string]models.CacheEntry, bool) {
	data, err := os.ReadFile(filepath.Join(cacheDir, indexFileName))
	if err != nil {
		return nil, false
	}
	var idx hintIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, false
	}
	return idx.Entries, true
}

// RedisMirrorConfig optionally accelerates cold-start index loads across a
// fleet of processes sharing one cache directory by mirroring the ".index"
// hint into Redis, so a process can skip the local directory scan when the
// mirror is fresh. The filesystem scan remains authoritative; Redis is
// consulted only to shortcut it.
type RedisMirrorConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// redisMirror mirrors the hint index into Redis, grounded on the teacher's
// RedisCache GetJSON/SetJSON shape.
type redisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *logrus.Entry
}

func newRedisMirror(cfg RedisMirrorConfig, cacheDir string, logger *logrus.Logger) *redisMirror {
	if cfg.Addr == "" {
		return nil
	}
	if logger == nil {
		logger = logrus.New()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "msc:cache:index"
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &redisMirror{
		client: client,
		key:    fmt.Sprintf("%s:%s", prefix, cacheDir),
		ttl:    ttl,
		logger: logger.WithField("component", "cache.redis_mirror"),
	}
}

func (m *redisMirror) publish(ctx context.Context, entries map[string]models.CacheEntry) {
	if m == nil {
		return
	}
	data, err := json.Marshal(hintIndex{Entries: entries})
	if err != nil {
		return
	}
	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		m.logger.WithError(err).Debug("failed to publish index mirror")
	}
}

func (m *redisMirror) fetch(ctx context.Context) (map[string]models.CacheEntry, bool) {
	if m == nil {
		return nil, false
	}
	val, err := m.client.Get(ctx, m.key).Result()
	if err != nil {
		return nil, false
	}
	var idx hintIndex
	if err := json.Unmarshal([]byte(val), &idx); err != nil {
		return nil, false
	}
	return idx.Entries, true
}

func (m *redisMirror) close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
