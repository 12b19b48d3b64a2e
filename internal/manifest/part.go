package manifest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// maxEntriesPerPart bounds how many entries commit writes into a single part
// file before rolling to the next one.
const maxEntriesPerPart = 100_000

// partEntry is one JSONL line in a part file.
type partEntry struct {
	Key          string            `json:"key"`
	SizeBytes    int64             `json:"size_bytes"`
	LastModified string            `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	StorageClass string            `json:"storage_class,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (e partEntry) toObjectMetadata() (models.ObjectMetadata, error) {
	t, err := time.Parse(time.RFC3339, e.LastModified)
	if err != nil {
		return models.ObjectMetadata{}, fmt.Errorf("part entry %q: parse last_modified: %w", e.Key, err)
	}
	return models.ObjectMetadata{
		Key:           e.Key,
		Type:          models.ObjectTypeFile,
		ContentLength: e.SizeBytes,
		LastModified:  t,
		ETag:          e.ETag,
		StorageClass:  e.StorageClass,
		Metadata:      e.Metadata,
	}, nil
}

func fromObjectMetadata(meta models.ObjectMetadata) partEntry {
	return partEntry{
		Key:          meta.Key,
		SizeBytes:    meta.ContentLength,
		LastModified: meta.LastModified.UTC().Format(time.RFC3339),
		ETag:         meta.ETag,
		StorageClass: meta.StorageClass,
		Metadata:     meta.Metadata,
	}
}

// readParts fetches and parses every part referenced by idx, relative to
// generationDir, in parallel, streaming each part line-by-line to bound
// memory. A missing or unparseable part fails the whole read with
// ManifestCorrupt semantics left to the caller to wrap.
func readParts(ctx context.Context, storage models.StorageProvider, generationDir string, idx Index) (map[string]models.ObjectMetadata, error) {
	results := make([]map[string]models.ObjectMetadata, len(idx.Parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range idx.Parts {
		i, part := i, part
		g.Go(func() error {
			entries, err := readPart(gctx, storage, path.Join(generationDir, part.Path))
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]models.ObjectMetadata)
	for _, entries := range results {
		for k, v := range entries {
			merged[k] = v
		}
	}
	return merged, nil
}

func readPart(ctx context.Context, storage models.StorageProvider, partKey string) (map[string]models.ObjectMetadata, error) {
	r, err := storage.Get(ctx, partKey, nil)
	if err != nil {
		return nil, fmt.Errorf("read part %s: %w", partKey, err)
	}
	defer r.Close()

	entries := make(map[string]models.ObjectMetadata)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e partEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("part %s: parse line: %w", partKey, err)
		}
		meta, err := e.toObjectMetadata()
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", partKey, err)
		}
		entries[meta.Key] = meta
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("part %s: scan: %w", partKey, err)
	}
	return entries, nil
}

// writeParts splits entries into parts of at most maxEntriesPerPart lines and
// writes them under generationDir, returning the index referencing them.
// Parts are written before the index so a crash mid-commit never leaves a
// readable index pointing at a missing part.
func writeParts(ctx context.Context, storage models.StorageProvider, generationDir string, entries map[string]models.ObjectMetadata) (Index, error) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}

	idx := Index{Version: "1.0"}
	seq := 0
	for start := 0; start < len(keys) || (start == 0 && len(keys) == 0); {
		end := start + maxEntriesPerPart
		if end > len(keys) {
			end = len(keys)
		}

		var buf bytes.Buffer
		for _, k := range keys[start:end] {
			line, err := json.Marshal(fromObjectMetadata(entries[k]))
			if err != nil {
				return Index{}, fmt.Errorf("marshal part entry %s: %w", k, err)
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}

		partPath := fmt.Sprintf("parts/msc_manifest_part%06d.jsonl", seq)
		if err := storage.Put(ctx, path.Join(generationDir, partPath), io.NopCloser(&buf), int64(buf.Len()), nil); err != nil {
			return Index{}, fmt.Errorf("write part %s: %w", partPath, err)
		}
		idx.Parts = append(idx.Parts, IndexPart{Path: partPath})

		seq++
		if len(keys) == 0 {
			break
		}
		start = end
	}

	return idx, nil
}
