package registry

import (
	"context"
	"testing"

	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
)

// TestResolveMetadataStorageUsesSiblingProfile confirms a profile's manifest
// can be bound to a different profile's storage than the objects it
// describes, via metadata_config.storage_provider_profile — mirroring the
// cache's own storage_provider_profile indirection.
func TestResolveMetadataStorageUsesSiblingProfile(t *testing.T) {
	objectsDir := t.TempDir()
	catalogDir := t.TempDir()

	cfg := &msccfg.Config{
		Profiles: map[string]msccfg.ProfileConfig{
			"objects": {
				StorageProvider: "file",
				StorageConfig:   map[string]any{"base_path": objectsDir},
			},
			"catalog": {
				StorageProvider: "file",
				StorageConfig:   map[string]any{"base_path": catalogDir},
			},
		},
	}

	r := newClientRegistry(cfg, nil)
	ctx := context.Background()

	objectsClient, err := r.Get(ctx, "objects")
	if err != nil {
		t.Fatalf("Get objects: %v", err)
	}

	resolved, err := r.resolveMetadataStorage(ctx, "objects", map[string]any{"storage_provider_profile": "catalog"}, objectsClient.Storage())
	if err != nil {
		t.Fatalf("resolveMetadataStorage: %v", err)
	}

	catalogClient, err := r.Get(ctx, "catalog")
	if err != nil {
		t.Fatalf("Get catalog: %v", err)
	}
	if resolved != catalogClient.Storage() {
		t.Fatal("expected resolveMetadataStorage to return the sibling catalog profile's storage")
	}
	if resolved == objectsClient.Storage() {
		t.Fatal("expected resolveMetadataStorage not to fall back to the profile's own storage when a sibling is named")
	}
}

// TestResolveMetadataStorageDefaultsToOwnStorage confirms the indirection is
// opt-in: an unset (or self-referencing) storage_provider_profile leaves the
// manifest bound to the profile's own storage.
func TestResolveMetadataStorageDefaultsToOwnStorage(t *testing.T) {
	dir := t.TempDir()
	cfg := &msccfg.Config{
		Profiles: map[string]msccfg.ProfileConfig{
			"objects": {
				StorageProvider: "file",
				StorageConfig:   map[string]any{"base_path": dir},
			},
		},
	}
	r := newClientRegistry(cfg, nil)
	ctx := context.Background()

	client, err := r.Get(ctx, "objects")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	resolved, err := r.resolveMetadataStorage(ctx, "objects", nil, client.Storage())
	if err != nil {
		t.Fatalf("resolveMetadataStorage: %v", err)
	}
	if resolved != client.Storage() {
		t.Fatal("expected no storage_provider_profile to leave the manifest on the profile's own storage")
	}
}
