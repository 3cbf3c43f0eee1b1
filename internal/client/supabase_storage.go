package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

// SupabaseStorage is a BlobStore backed by a Supabase Storage bucket. Storage
// refs are object paths inside the bucket.
type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseStorage creates a storage client for bucket at the project URL.
func NewSupabaseStorage(projectURL, serviceKey, bucket string) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    strings.TrimRight(projectURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the default HTTP client.
func (s *SupabaseStorage) WithHTTPClient(c *http.Client) *SupabaseStorage {
	s.httpClient = c
	return s
}

// Upload creates the object at path. Existing objects are never overwritten.
func (s *SupabaseStorage) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", errors.IOError(err, "storage upload failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.IOError(storageError(resp), "storage upload failed")
	}
	return path, nil
}

// Download returns the object stored at ref.
func (s *SupabaseStorage) Download(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.IOError(err, "storage download failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		// Storage reports a missing object as 400 with "not_found" on some versions.
		return nil, errors.NotFound("document content", ref)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.IOError(storageError(resp), "storage download failed")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.IOError(err, "failed to read document content")
	}
	return data, nil
}

func (s *SupabaseStorage) objectURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(segments, "/"))
}

func (s *SupabaseStorage) authorize(req *http.Request) {
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

type storageErrorBody struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func storageError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var e storageErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return fmt.Errorf("storage returned %d: %s", resp.StatusCode, e.Message)
	}
	return fmt.Errorf("storage returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
