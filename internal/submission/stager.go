package submission

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

// Stager holds the documents of one submission form until they are persisted.
// Each staged file is spooled to a temporary file (its preview handle), which
// the stager owns until Remove or Close.
type Stager struct {
	mu      sync.Mutex
	blobs   BlobStore
	meta    MetadataStore
	dir     string
	now     func() time.Time
	docs    []*Document
	handles map[string]*os.File
	closed  bool
}

// StagerOption configures a Stager.
type StagerOption func(*Stager)

// WithSpoolDir sets where preview handles are created. Defaults to os.TempDir.
func WithSpoolDir(dir string) StagerOption {
	return func(s *Stager) { s.dir = dir }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StagerOption {
	return func(s *Stager) { s.now = now }
}

// NewStager creates an empty stager that persists through blobs and meta.
func NewStager(blobs BlobStore, meta MetadataStore, opts ...StagerOption) *Stager {
	s := &Stager{
		blobs:   blobs,
		meta:    meta,
		now:     time.Now,
		handles: make(map[string]*os.File),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Stage ────────────────────────────────────────────────────────────────────

// Stage validates f and adds it as a pending document. Nothing is staged when
// validation fails.
func (s *Stager) Stage(f File) (*Document, error) {
	contentType, ok := resolveContentType(f.Name, f.ContentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, f.Name)
	}
	if f.Size > MaxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, f.Name)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStagerClosed
	}

	spool, size, err := s.spool(f)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		TrackingID:  uuid.NewString(),
		FileName:    f.Name,
		ContentType: contentType,
		Size:        size,
		Status:      DocumentPending,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		release(spool)
		return nil, ErrStagerClosed
	}
	s.docs = append(s.docs, doc)
	s.handles[doc.TrackingID] = spool
	return clone(doc), nil
}

// spool copies the file content into a temp file, enforcing the size ceiling
// on the actual bytes as well as the declared size.
func (s *Stager) spool(f File) (*os.File, int64, error) {
	tmp, err := os.CreateTemp(s.dir, "staged-*")
	if err != nil {
		return nil, 0, errors.IOError(err, "failed to allocate preview handle")
	}
	var src io.Reader = strings.NewReader("")
	if f.Content != nil {
		src = f.Content
	}
	n, err := io.Copy(tmp, io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		release(tmp)
		return nil, 0, errors.IOError(err, "failed to read file")
	}
	if n > MaxFileSize {
		release(tmp)
		return nil, 0, fmt.Errorf("%w: %s", ErrFileTooLarge, f.Name)
	}
	return tmp, n, nil
}

// ── Remove ───────────────────────────────────────────────────────────────────

// Remove drops a pending or failed document and releases its preview handle.
// Unknown ids are ignored.
func (s *Stager) Remove(trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(trackingID)
	if i < 0 {
		return nil
	}
	switch s.docs[i].Status {
	case DocumentSuccess:
		return ErrCannotRemovePersisted
	case DocumentUploading:
		return ErrUploadInProgress
	}

	s.docs = slices.Delete(s.docs, i, i+1)
	if h, ok := s.handles[trackingID]; ok {
		release(h)
		delete(s.handles, trackingID)
	}
	return nil
}

// ── Persist ──────────────────────────────────────────────────────────────────

// Persist uploads the selected documents, or every pending and failed one
// when no ids are given, in staging order with one attempt each. Upload
// failures mark only the affected document as failed. Metadata for the
// uploaded files is inserted as one batch, and documents turn successful only
// once that batch has committed. A failed document is retried as a new
// Document that supersedes it.
//
// The returned slice holds the documents persisted by this call. The error is
// non-nil only when the metadata batch could not be written.
func (s *Stager) Persist(ctx context.Context, applicationID, ownerID string, trackingIDs ...string) ([]*Document, error) {
	targets, err := s.selectTargets(trackingIDs)
	if err != nil {
		return nil, err
	}

	var uploaded []*Document
	for _, doc := range targets {
		if s.upload(ctx, doc, applicationID, ownerID) {
			uploaded = append(uploaded, doc)
		}
	}
	if len(uploaded) == 0 {
		return nil, nil
	}

	batch := make([]*Document, len(uploaded))
	s.mu.Lock()
	for i, doc := range uploaded {
		batch[i] = clone(doc)
	}
	s.mu.Unlock()

	insertErr := s.meta.InsertDocuments(ctx, batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if insertErr != nil {
		ioErr := errors.IOError(insertErr, "failed to record document metadata")
		for _, doc := range uploaded {
			doc.Status = DocumentError
			doc.Err = ioErr
		}
		return nil, ioErr
	}

	persisted := make([]*Document, len(uploaded))
	for i, doc := range uploaded {
		doc.ID = batch[i].ID
		doc.Status = DocumentSuccess
		doc.Err = nil
		persisted[i] = clone(doc)
	}
	return persisted, nil
}

// selectTargets resolves which documents this Persist call attempts and
// replaces failed ones with fresh retry attempts.
func (s *Stager) selectTargets(trackingIDs []string) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStagerClosed
	}

	var selected []*Document
	if len(trackingIDs) == 0 {
		for _, doc := range s.docs {
			if doc.Status == DocumentPending || (doc.Status == DocumentError && doc.SupersededBy == "") {
				selected = append(selected, doc)
			}
		}
	} else {
		for _, id := range trackingIDs {
			i := s.indexOf(id)
			if i < 0 {
				return nil, fmt.Errorf("%w: %s", ErrDocumentNotStaged, id)
			}
			doc := s.docs[i]
			switch {
			case doc.Status == DocumentUploading:
				return nil, ErrUploadInProgress
			case doc.Status == DocumentSuccess, doc.SupersededBy != "":
				continue
			}
			if !slices.Contains(selected, doc) {
				selected = append(selected, doc)
			}
		}
		slices.SortStableFunc(selected, func(a, b *Document) int {
			return s.indexOf(a.TrackingID) - s.indexOf(b.TrackingID)
		})
	}

	for i, doc := range selected {
		if doc.Status == DocumentError {
			selected[i] = s.retry(doc)
		}
		selected[i].Status = DocumentUploading
	}
	return selected, nil
}

// retry appends a new attempt for a failed document and hands it the spool.
func (s *Stager) retry(failed *Document) *Document {
	attempt := &Document{
		TrackingID:  uuid.NewString(),
		FileName:    failed.FileName,
		ContentType: failed.ContentType,
		Size:        failed.Size,
		Status:      DocumentPending,
		RetryOf:     failed.TrackingID,
		CreatedAt:   s.now(),
	}
	failed.SupersededBy = attempt.TrackingID
	if h, ok := s.handles[failed.TrackingID]; ok {
		s.handles[attempt.TrackingID] = h
		delete(s.handles, failed.TrackingID)
	}
	s.docs = append(s.docs, attempt)
	return attempt
}

// upload performs the single attempt for doc. It reports whether the blob
// write succeeded.
func (s *Stager) upload(ctx context.Context, doc *Document, applicationID, ownerID string) bool {
	s.mu.Lock()
	h := s.handles[doc.TrackingID]
	path := fmt.Sprintf("%s/%s/%d_%s", ownerID, applicationID, s.now().UnixMilli(), storageName(doc.FileName))
	s.mu.Unlock()

	ref, err := s.write(ctx, h, path, doc.ContentType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		doc.Status = DocumentError
		doc.Err = err
		return false
	}
	doc.ApplicationID = applicationID
	doc.StorageRef = ref
	return true
}

func (s *Stager) write(ctx context.Context, h *os.File, path, contentType string) (string, error) {
	if h == nil {
		return "", errors.New(errors.ErrCodeInternal, "preview handle already released")
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return "", errors.IOError(err, "failed to rewind staged file")
	}
	data, err := io.ReadAll(h)
	if err != nil {
		return "", errors.IOError(err, "failed to read staged file")
	}
	ref, err := s.blobs.Upload(ctx, path, contentType, data)
	if err != nil {
		return "", errors.IOError(err, "failed to upload document")
	}
	return ref, nil
}

// ── Inspection & release ─────────────────────────────────────────────────────

// Documents returns a snapshot of every attempt in staging order.
func (s *Stager) Documents() []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Document, len(s.docs))
	for i, doc := range s.docs {
		out[i] = clone(doc)
	}
	return out
}

// Failed returns the failed attempts that have not been retried yet.
func (s *Stager) Failed() []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Document
	for _, doc := range s.docs {
		if doc.Status == DocumentError && doc.SupersededBy == "" {
			out = append(out, clone(doc))
		}
	}
	return out
}

// Len reports how many documents are staged, counting every attempt.
func (s *Stager) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Close releases every preview handle. It is safe to call more than once.
func (s *Stager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for id, h := range s.handles {
		if err := release(h); err != nil {
			errs = append(errs, err)
		}
		delete(s.handles, id)
	}
	return errors.Join(errs...)
}

func (s *Stager) indexOf(trackingID string) int {
	return slices.IndexFunc(s.docs, func(d *Document) bool { return d.TrackingID == trackingID })
}

func release(f *os.File) error {
	cerr := f.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return cerr
}

func clone(d *Document) *Document {
	c := *d
	return &c
}
