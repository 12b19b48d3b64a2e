package msc

import (
	"context"
	"path/filepath"
	"testing"
)

func TestWriteReadInfoDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "greeting.txt")

	if err := Write(ctx, path, []byte("hello msc")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(ctx, path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello msc" {
		t.Fatalf("expected %q, got %q", "hello msc", got)
	}

	info, err := Info(ctx, path, true)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.ContentLength != int64(len("hello msc")) {
		t.Fatalf("expected content_length %d, got %d", len("hello msc"), info.ContentLength)
	}

	if err := Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	info, err = Info(ctx, path, false)
	if err != nil {
		t.Fatalf("non-strict Info after delete: %v", err)
	}
	if info.ContentLength != 0 {
		t.Fatalf("expected zeroed sentinel after delete, got %+v", info)
	}
}

func TestCopyBetweenPOSIXPaths(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "src.bin")
	dst := filepath.Join(t.TempDir(), "dst.bin")

	if err := Write(ctx, src, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Copy(ctx, src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got, err := Read(ctx, dst)
	if err != nil {
		t.Fatalf("Read dst: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected %q, got %q", "payload", got)
	}
}

func TestGlobFindsWrittenKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, rel := range []string{"logs/a.log", "logs/b.log", "logs/c.txt"} {
		if err := Write(ctx, filepath.Join(dir, rel), []byte("x")); err != nil {
			t.Fatalf("Write(%s): %v", rel, err)
		}
	}

	matches, err := Glob(ctx, filepath.Join(dir, "logs/*.log"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %v", matches)
	}
}
