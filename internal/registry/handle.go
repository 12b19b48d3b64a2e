package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// OpenMode selects whether a FileHandle reads or writes.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenWrite
)

// FileHandle gives seek/read/write access to one object through a
// StorageClient. Writes are buffered in memory and committed on Close; a
// failed commit surfaces from Close, never from an intermediate Write
// call, so a caller that writes-then-closes sees exactly one place a
// backend error can appear.
type FileHandle struct {
	ctx    context.Context
	client *StorageClient
	key    string
	mode   OpenMode

	// read mode
	reader *bytes.Reader

	// write mode
	buf    bytes.Buffer
	closed bool
}

func newFileHandle(ctx context.Context, client *StorageClient, key string, mode OpenMode) (*FileHandle, error) {
	h := &FileHandle{ctx: ctx, client: client, key: key, mode: mode}
	if mode == OpenRead {
		data, err := client.ReadBytes(ctx, key, nil)
		if err != nil {
			return nil, fmt.Errorf("registry: open %q for read: %w", key, err)
		}
		h.reader = bytes.NewReader(data)
	}
	return h, nil
}

// Read implements io.Reader in OpenRead mode.
func (h *FileHandle) Read(p []byte) (int, error) {
	if h.mode != OpenRead {
		return 0, fmt.Errorf("registry: handle for %q is not open for reading", h.key)
	}
	return h.reader.Read(p)
}

// Seek implements io.Seeker in OpenRead mode.
func (h *FileHandle) Seek(offset int64, whence int) (int64, error) {
	if h.mode != OpenRead {
		return 0, fmt.Errorf("registry: handle for %q is not open for reading", h.key)
	}
	return h.reader.Seek(offset, whence)
}

// Write implements io.Writer in OpenWrite mode. Writes only buffer; they
// never themselves fail due to a backend fault.
func (h *FileHandle) Write(p []byte) (int, error) {
	if h.mode != OpenWrite {
		return 0, fmt.Errorf("registry: handle for %q is not open for writing", h.key)
	}
	return h.buf.Write(p)
}

// Close flushes a buffered write to the backend. A commit failure surfaces
// here; the handle is marked closed regardless so a caller cannot retry a
// half-finished commit silently.
func (h *FileHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.mode != OpenWrite {
		return nil
	}
	if err := h.client.Write(h.ctx, h.key, io.NopCloser(bytes.NewReader(h.buf.Bytes())), int64(h.buf.Len())); err != nil {
		return fmt.Errorf("registry: commit write for %q: %w", h.key, err)
	}
	return nil
}
