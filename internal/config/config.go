// Package config loads MSC's declarative configuration: profiles, cache
// policy, telemetry, and path mapping, from the discovery-ordered config
// file locations, from Rclone's INI config, and from environment variable
// expansion, following the same viper-driven layering the teacher's own
// service config uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ProfileConfig is one entry under the top-level "profiles" key.
type ProfileConfig struct {
	StorageProvider      string         `mapstructure:"storage_provider"`
	StorageConfig        map[string]any `mapstructure:"storage_config"`
	MetadataProvider     string         `mapstructure:"metadata_provider"`
	MetadataConfig       map[string]any `mapstructure:"metadata_config"`
	CredentialsProvider  string         `mapstructure:"credentials_provider"`
	CredentialsConfig    map[string]any `mapstructure:"credentials_config"`
	ProviderBundle       string         `mapstructure:"provider_bundle"`
	ProviderBundleConfig map[string]any `mapstructure:"provider_bundle_config"`
}

// EvictionPolicyConfig controls cache eviction.
type EvictionPolicyConfig struct {
	Policy          string `mapstructure:"policy" default:"fifo"`
	RefreshInterval int    `mapstructure:"refresh_interval" default:"300"`
}

// CacheBackendConfig configures where cache bodies and hints live.
type CacheBackendConfig struct {
	CachePath              string `mapstructure:"cache_path"`
	StorageProviderProfile string `mapstructure:"storage_provider_profile"`
	IndexBackend           string `mapstructure:"index_backend"` // "", "redis"
	RedisAddr              string `mapstructure:"redis_addr"`
}

// CacheConfig is the top-level "cache" key.
type CacheConfig struct {
	Size           string               `mapstructure:"size" default:"1G"`
	UseETag        bool                 `mapstructure:"use_etag" default:"true"`
	EvictionPolicy EvictionPolicyConfig `mapstructure:"eviction_policy"`
	CacheBackend   CacheBackendConfig   `mapstructure:"cache_backend"`
}

// OpenTelemetryConfig is the top-level "opentelemetry" key.
type OpenTelemetryConfig struct {
	Metrics struct {
		Attributes []string       `mapstructure:"attributes"`
		Reader     map[string]any `mapstructure:"reader"`
		Exporter   map[string]any `mapstructure:"exporter"`
	} `mapstructure:"metrics"`
	Traces struct {
		Exporter map[string]any `mapstructure:"exporter"`
	} `mapstructure:"traces"`
}

// Config is the fully parsed MSC configuration document.
type Config struct {
	Profiles      map[string]ProfileConfig `mapstructure:"profiles"`
	Cache         CacheConfig              `mapstructure:"cache"`
	OpenTelemetry OpenTelemetryConfig      `mapstructure:"opentelemetry"`
	PathMapping   map[string]string        `mapstructure:"path_mapping"`
}

// DiscoverConfigPath returns the first existing config file per the
// discovery order: $MSC_CONFIG, /etc/msc_config.yaml,
// ~/.config/msc/config.yaml, ~/.msc_config.yaml, then the .json equivalents.
// An empty string means no file was found and the default file-profile
// should be used.
func DiscoverConfigPath() string {
	if p := os.Getenv("MSC_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	bases := []string{"/etc/msc_config"}
	if home != "" {
		bases = append(bases,
			filepath.Join(home, ".config", "msc", "config"),
			filepath.Join(home, ".msc_config"),
		)
	}
	var candidates []string
	for _, ext := range []string{".yaml", ".json"} {
		for _, b := range bases {
			candidates = append(candidates, b+ext)
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load reads, expands, and unmarshals the MSC configuration. path may be
// empty, in which case the caller receives a Config with just the implicit
// "default" file profile expectations left to the profile registry.
func Load(path string, logger *logrus.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			logger.WithField("path", path).Warn("msc config file not found, using defaults")
		}
	}

	raw := v.AllSettings()
	expandEnvInPlace(raw)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.size", "1G")
	v.SetDefault("cache.use_etag", true)
	v.SetDefault("cache.eviction_policy.policy", "fifo")
	v.SetDefault("cache.eviction_policy.refresh_interval", 300)
}

func validate(cfg *Config) error {
	for name, p := range cfg.Profiles {
		if strings.HasPrefix(name, "_") {
			return fmt.Errorf("config: profile %q: names beginning with '_' are reserved for implicit profiles", name)
		}
		if p.ProviderBundle == "" && p.StorageProvider == "" {
			return fmt.Errorf("config: profile %q: storage_provider or provider_bundle is required", name)
		}
	}
	switch cfg.Cache.EvictionPolicy.Policy {
	case "", "fifo", "lru", "random":
	default:
		return fmt.Errorf("config: cache.eviction_policy.policy %q is not one of fifo|lru|random", cfg.Cache.EvictionPolicy.Policy)
	}
	return nil
}

// expandEnvInPlace walks a decoded settings tree and expands ${VAR}/$VAR in
// every string value, leaving unresolved references literal, per MSC's
// environment-expansion contract.
func expandEnvInPlace(v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if s, ok := child.(string); ok {
				val[k] = expandVar(s)
			} else {
				expandEnvInPlace(child)
			}
		}
	case []any:
		for i, child := range val {
			if s, ok := child.(string); ok {
				val[i] = expandVar(s)
			} else {
				expandEnvInPlace(child)
			}
		}
	}
}

// envRef matches one ${VAR} or $VAR reference.
var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*`)

func expandVar(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(strings.Trim(ref, "${}")); ok {
			return val
		}
		// Unresolved references are left literal, in the form they were
		// written ($VAR or ${VAR}).
		return ref
	})
}
