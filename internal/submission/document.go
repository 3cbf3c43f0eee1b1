package submission

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// MaxFileSize is the per-file upload ceiling.
const MaxFileSize int64 = 5 << 20

// DocumentStatus tracks one file through staging and upload.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentUploading DocumentStatus = "uploading"
	DocumentSuccess   DocumentStatus = "success"
	DocumentError     DocumentStatus = "error"
)

// File is a file chosen by the applicant.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// Document is one upload attempt for a file. A retry of a failed attempt is a
// new Document whose RetryOf names the attempt it replaces.
type Document struct {
	TrackingID    string         `json:"tracking_id"`
	ID            string         `json:"id,omitempty"`
	ApplicationID string         `json:"application_id,omitempty"`
	FileName      string         `json:"file_name"`
	ContentType   string         `json:"content_type"`
	Size          int64          `json:"size"`
	StorageRef    string         `json:"storage_ref,omitempty"`
	Status        DocumentStatus `json:"status"`
	RetryOf       string         `json:"retry_of,omitempty"`
	SupersededBy  string         `json:"superseded_by,omitempty"`
	Err           error          `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
}

// BlobStore is the external file storage.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
	Download(ctx context.Context, storageRef string) ([]byte, error)
}

// MetadataStore records persisted document metadata. InsertDocuments must be
// all-or-nothing and assign each document's ID.
type MetadataStore interface {
	InsertDocuments(ctx context.Context, docs []*Document) error
}

var allowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// resolveContentType returns the canonical allowed content type for the file,
// or false. Browsers that send no type (or octet-stream) fall back to the
// file extension.
func resolveContentType(name, contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	}
	if ct == "" || ct == "application/octet-stream" {
		ct, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
		return ct, ok
	}
	return ct, allowedContentTypes[ct]
}

// storageName makes a file name safe for use as the last path segment.
func storageName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
