package config

import (
	"os"
	"os/exec"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// DiscoverRcloneConfigPath mirrors rclone's own config discovery order: the
// directory containing the rclone binary on PATH, then
// $XDG_CONFIG_HOME/rclone/rclone.conf, /etc/rclone.conf,
// ~/.config/rclone/rclone.conf, ~/.rclone.conf.
func DiscoverRcloneConfigPath() string {
	if bin, err := exec.LookPath("rclone"); err == nil {
		candidate := filepath.Join(filepath.Dir(bin), "rclone.conf")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidate := filepath.Join(xdg, "rclone", "rclone.conf")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("/etc/rclone.conf"); err == nil {
		return "/etc/rclone.conf"
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, c := range []string{
			filepath.Join(home, ".config", "rclone", "rclone.conf"),
			filepath.Join(home, ".rclone.conf"),
		} {
			if _, err := os.Stat(c); err == nil {
				return c
			}
		}
	}
	return ""
}

// LoadRcloneProfiles parses a rclone.conf INI file into MSC ProfileConfig
// entries. Each INI section becomes a profile named after the section;
// rclone's key names (endpoint, access_key_id, secret_key_id, ...) are kept
// verbatim in StorageConfig so provider constructors can read them directly.
func LoadRcloneProfiles(path string) (map[string]ProfileConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]ProfileConfig)
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		storageType := rcloneTypeToProviderName(section.Key("type").String())
		cfg := make(map[string]any, len(section.Keys()))
		for _, key := range section.Keys() {
			cfg[key.Name()] = key.Value()
		}
		profiles[section.Name()] = ProfileConfig{
			StorageProvider: storageType,
			StorageConfig:   cfg,
		}
	}
	return profiles, nil
}

func rcloneTypeToProviderName(rcloneType string) string {
	switch rcloneType {
	case "s3":
		return "s3"
	case "azureblob":
		return "azure"
	case "google cloud storage", "gcs":
		return "gcs"
	case "local":
		return "file"
	default:
		return rcloneType
	}
}
