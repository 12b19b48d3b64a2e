package registry

import (
	"context"
	"testing"

	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
)

func TestBuildClientUsesProviderBundleOverIndividualFields(t *testing.T) {
	dir := t.TempDir()
	cfg := &msccfg.Config{
		Profiles: map[string]msccfg.ProfileConfig{
			"bundled": {
				ProviderBundle: "composite",
				ProviderBundleConfig: map[string]any{
					"storage_provider": "file",
					"storage_config": map[string]any{
						"base_path": dir,
					},
				},
			},
		},
	}
	r := newClientRegistry(cfg, nil)
	ctx := context.Background()

	client, err := r.Get(ctx, "bundled")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := client.WriteBytes(ctx, "a.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	got, err := client.ReadBytes(ctx, "a.txt", nil)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("expected %q, got %q", "hi", got)
	}
}

func TestBuildProviderBundleUnknownNameErrors(t *testing.T) {
	_, err := buildProviderBundle(context.Background(), "nonexistent", nil, nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered provider_bundle name")
	}
}
