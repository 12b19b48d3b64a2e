package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	msccfg "github.com/NVIDIA/multi-storage-client/internal/config"
	"github.com/NVIDIA/multi-storage-client/internal/providers/file"
)

func TestResolveClientPOSIXRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := newClientRegistry(&msccfg.Config{}, nil)

	ctx := context.Background()
	client, key, err := r.ResolveClient(ctx, filepath.Join(dir, "a/b.txt"))
	if err != nil {
		t.Fatalf("ResolveClient: %v", err)
	}

	if err := client.WriteBytes(ctx, key, []byte("hello")); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	got, err := client.ReadBytes(ctx, key, nil)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}

	info, err := client.Info(ctx, key, true)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.ContentLength != 5 {
		t.Fatalf("expected content_length 5, got %d", info.ContentLength)
	}
}

func TestResolveClientImplicitProfileIsStable(t *testing.T) {
	r := newClientRegistry(&msccfg.Config{}, nil)
	ctx := context.Background()

	c1, _, err := r.ResolveClient(ctx, filepath.Join(t.TempDir(), "x"))
	if err != nil {
		t.Fatalf("ResolveClient: %v", err)
	}
	c2, _, err := r.ResolveClient(ctx, "/tmp/y")
	if err != nil {
		t.Fatalf("ResolveClient: %v", err)
	}
	if c1 != c2 {
		t.Fatal("expected repeated resolution of POSIX paths to reuse the same implicit '_file' client")
	}
}

func TestResolveClientInfoNonStrictMissingKey(t *testing.T) {
	dir := t.TempDir()
	r := newClientRegistry(&msccfg.Config{}, nil)
	ctx := context.Background()

	client, key, err := r.ResolveClient(ctx, filepath.Join(dir, "missing.txt"))
	if err != nil {
		t.Fatalf("ResolveClient: %v", err)
	}
	info, err := client.Info(ctx, key, false)
	if err != nil {
		t.Fatalf("expected non-strict Info to succeed on a missing key, got %v", err)
	}
	if info.ContentLength != 0 {
		t.Fatalf("expected zeroed sentinel content_length, got %d", info.ContentLength)
	}
}

func TestDefaultReturnsSameInstanceUntilReset(t *testing.T) {
	defer resetForTest()
	resetForTest()

	r1 := Default(&msccfg.Config{}, nil)
	r2 := Default(&msccfg.Config{}, nil)
	if r1 != r2 {
		t.Fatal("expected repeated Default calls to return the same registry")
	}

	resetForTest()
	r3 := Default(&msccfg.Config{}, nil)
	if r3 == r1 {
		t.Fatal("expected resetForTest to force a new registry on the next Default call")
	}
}

func TestGlobRecursiveAndNonRecursive(t *testing.T) {
	dir := t.TempDir()
	provider, err := file.New(file.Config{BasePath: dir}, nil)
	if err != nil {
		t.Fatalf("file.New: %v", err)
	}
	client := NewStorageClient("test", provider, ClientOptions{}, nil)
	ctx := context.Background()

	for _, rel := range []string{"a/b/c.tar", "a/d.tar", "a/b/e.txt"} {
		if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(rel)), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := client.WriteBytes(ctx, rel, []byte("x")); err != nil {
			t.Fatalf("WriteBytes(%s): %v", rel, err)
		}
	}

	matches, err := client.Glob(ctx, "**/*.tar")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	want := map[string]bool{"a/b/c.tar": true, "a/d.tar": true}
	if len(matches) != len(want) {
		t.Fatalf("expected %v, got %v", want, matches)
	}
	for _, m := range matches {
		if !want[m] {
			t.Fatalf("unexpected match %q", m)
		}
	}

	// A single "*" does not cross "/", so a/b/c.tar is not matched.
	matches, err = client.Glob(ctx, "a/*.tar")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 || matches[0] != "a/d.tar" {
		t.Fatalf("expected [a/d.tar], got %v", matches)
	}
}
