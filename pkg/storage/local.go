package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore is a blob store on the local filesystem. Bytes are spooled to
// a temp file and renamed into place, so a ref only ever resolves to fully
// written content. Every upload gets its own uuid ref; blobs are never
// shared between attachments, so deleting one message's bytes cannot make
// another message's attachment unretrievable.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the storage directory if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put implements Blob
func (s *LocalStore) Put(ctx context.Context, r io.Reader, originalName, _ string) (string, int64, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp blob: %w", err)
	}

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Partial content is never addressable
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("write blob: %w", err)
	}

	ref := uuid.New().String() + sanitizeExt(originalName)
	dst := filepath.Join(s.dir, ref)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("commit blob: %w", err)
	}
	return ref, n, nil
}

// Open implements Blob
func (s *LocalStore) Open(_ context.Context, ref string, offset, length int64) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	if length < 0 {
		return f, nil
	}
	return &limitedReadCloser{Reader: io.LimitReader(f, length), closer: f}, nil
}

// Stat implements Blob
func (s *LocalStore) Stat(_ context.Context, ref string) (int64, error) {
	path, err := s.path(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Delete implements Blob
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// path validates a ref and resolves it inside the storage dir.
// Refs never contain separators; anything else is treated as unknown.
func (s *LocalStore) path(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, ref), nil
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}

// ctxReader aborts an upload when the caller's deadline expires.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
