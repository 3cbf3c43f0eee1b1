package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

// FSBlobStore keeps documents on the local filesystem. It is used when no
// Supabase project is configured.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore creates the root directory if needed.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.IOError(err, "failed to create storage directory")
	}
	return &FSBlobStore{root: root}, nil
}

// Upload writes data at path. Existing files are never overwritten.
func (s *FSBlobStore) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", errors.IOError(err, "failed to create storage directory")
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", errors.IOError(err, "failed to create document file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(full)
		return "", errors.IOError(err, "failed to write document file")
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", errors.IOError(err, "failed to write document file")
	}
	return path, nil
}

// Download reads the file stored at ref.
func (s *FSBlobStore) Download(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errors.NotFound("document content", ref)
	}
	if err != nil {
		return nil, errors.IOError(err, "failed to read document file")
	}
	return data, nil
}

// resolve maps a storage path under root, refusing paths that escape it.
func (s *FSBlobStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if clean == string(filepath.Separator) {
		return "", errors.InvalidInput("path", "is empty")
	}
	full := filepath.Join(s.root, clean)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.InvalidInput("path", "escapes storage root")
	}
	return full, nil
}
