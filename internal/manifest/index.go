// Package manifest implements the MSC manifest metadata provider: a
// pre-generated catalog of object metadata that accelerates listings without
// querying the backend directly, with a staged add/remove buffer flushed by
// committing a new generation.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

const indexFileName = "msc_manifest_index.json"

// Index is the top-level manifest document, `{manifest_path}/{generation}/msc_manifest_index.json`.
type Index struct {
	Version string      `json:"version"`
	Parts   []IndexPart `json:"parts"`
}

// IndexPart names one part file, relative to its generation directory.
type IndexPart struct {
	Path string `json:"path"`
}

func newGenerationID(after string) string {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if now > after {
		return now
	}
	// Clock did not advance past the prior generation (rapid successive
	// commits); force strict monotonicity by nudging the nanosecond field.
	t, err := time.Parse(time.RFC3339Nano, after)
	if err != nil {
		return now
	}
	return t.Add(time.Nanosecond).UTC().Format(time.RFC3339Nano)
}

// resolveGeneration lists the immediate subdirectories of manifestPath on
// storage and returns the lexicographically greatest, which is the current
// generation. Returns "" if no generation directory exists.
func resolveGeneration(ctx context.Context, storage models.StorageProvider, manifestPath string) (string, error) {
	prefix := strings.TrimSuffix(manifestPath, "/") + "/"

	out, errc := storage.List(ctx, prefix, false, "")
	var generations []string
	for meta := range out {
		if !meta.IsDirectory() {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(meta.Key, prefix), "/")
		if name == "" {
			continue
		}
		generations = append(generations, name)
	}
	if err := <-errc; err != nil {
		return "", fmt.Errorf("manifest: list generations under %s: %w", manifestPath, err)
	}
	if len(generations) == 0 {
		return "", nil
	}

	sort.Strings(generations)
	return generations[len(generations)-1], nil
}

func parseIndex(data []byte) (Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("unmarshal index: %w", err)
	}
	return idx, nil
}

func marshalIndex(idx Index) ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	return data, nil
}
