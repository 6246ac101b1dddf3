// Package storage provides blob storage for chat attachments: a local
// filesystem store and an S3/R2/MinIO-compatible store behind one
// interface. Refs are opaque per-upload names; content behind a ref is
// immutable once written.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a ref does not resolve to stored content.
var ErrNotFound = errors.New("blob not found")

// Blob stores attachment bytes addressable by an opaque ref.
type Blob interface {
	// Put streams r into storage and returns the ref and byte count.
	// The ref is only returned once the content is fully written; a failed
	// or cancelled upload leaves nothing addressable behind.
	Put(ctx context.Context, r io.Reader, originalName, contentType string) (ref string, size int64, err error)

	// Open returns a reader over [offset, offset+length) of the blob.
	// length < 0 reads to the end.
	Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error)

	// Stat returns the total size of the blob in bytes.
	Stat(ctx context.Context, ref string) (int64, error)

	// Delete removes the blob.
	Delete(ctx context.Context, ref string) error
}

// ContentTypeForRef guesses a MIME type from the ref's file extension.
func ContentTypeForRef(ref string) string {
	if ct := mime.TypeByExtension(filepath.Ext(ref)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// sanitizeExt returns a safe lowercase file extension (including the dot)
// or "" when the name has none worth keeping.
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == "." || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
