package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pesio-ai/be-permits-portal/internal/catalog"
	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/platform/logger"
	"github.com/pesio-ai/be-permits-portal/internal/repository"
	"github.com/pesio-ai/be-permits-portal/internal/service"
	"github.com/pesio-ai/be-permits-portal/internal/submission"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

type store struct {
	mu      sync.Mutex
	apps    map[string]*workflow.Application
	docs    []*submission.Document
	objects map[string][]byte
}

func newStore() *store {
	return &store{apps: map[string]*workflow.Application{}, objects: map[string][]byte{}}
}

// applications

type appStore struct{ *store }

func (s appStore) Create(_ context.Context, app *workflow.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s appStore) Get(_ context.Context, id string) (*workflow.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, errors.NotFound("application", id)
	}
	return app.Clone(), nil
}

func (s appStore) List(_ context.Context, f repository.ApplicationFilter) ([]*workflow.Application, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*workflow.Application
	for _, app := range s.apps {
		if (f.UserID == "" || app.UserID == f.UserID) && (f.Status == "" || app.Status == f.Status) {
			out = append(out, app.Clone())
		}
	}
	return out, len(out), nil
}

func (s appStore) RecordTransition(_ context.Context, app *workflow.Application, _ *workflow.HistoryRecord, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apps[app.ID].Version != expectedVersion {
		return workflow.ErrConcurrentModification
	}
	app.Version++
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s appStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.apps, id)
	return nil
}

// documents

type docStore struct{ *store }

func (s docStore) InsertDocuments(_ context.Context, docs []*submission.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		d.ID = fmt.Sprintf("doc-%d", len(s.docs)+1)
		c := *d
		c.Status = submission.DocumentSuccess
		s.docs = append(s.docs, &c)
	}
	return nil
}

func (s docStore) ListByApplication(_ context.Context, applicationID string) ([]*submission.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*submission.Document
	for _, d := range s.docs {
		if d.ApplicationID == applicationID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s docStore) Get(_ context.Context, id string) (*submission.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, errors.NotFound("document", id)
}

// blobs

type blobStore struct{ *store }

func (s blobStore) Upload(_ context.Context, path, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return path, nil
}

func (s blobStore) Download(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, errors.NotFound("document content", ref)
	}
	return data, nil
}

// catalog

type catalogStore map[string]*catalog.Entry

func (c catalogStore) Get(_ context.Context, id string) (*catalog.Entry, error) {
	if e, ok := c[id]; ok {
		return e, nil
	}
	return nil, errors.NotFound("catalog entry", id)
}

func (c catalogStore) List(context.Context) ([]*catalog.Entry, error) {
	var out []*catalog.Entry
	for _, e := range c {
		out = append(out, e)
	}
	return out, nil
}

// auth

type staticVerifier map[string]*auth.UserContext

func (v staticVerifier) Verify(_ context.Context, token string) (*auth.UserContext, error) {
	if uc, ok := v[token]; ok {
		return uc, nil
	}
	return nil, errors.New(errors.ErrCodeUnauthorized, "invalid token")
}

var verifier = staticVerifier{
	"citizen-token": {UserID: "user-1", Email: "juan@example.ph", Role: "authenticated"},
	"other-token":   {UserID: "user-2", Role: "authenticated"},
	"admin-token":   {UserID: "admin-1", Role: "admin"},
}

func newTestService() (*service.ApplicationService, *store) {
	st := newStore()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := service.NewApplicationService(appStore{st}, docStore{st},
		catalogStore{"building-permit": {
			ID: "building-permit", Title: "Building Permit", Category: catalog.CategoryPermit,
			ApplicationFee: 15000, ProcessingFee: 2550,
		}},
		blobStore{st}, nil,
		service.Options{AdminRole: "admin", Now: func() time.Time { clock = clock.Add(time.Minute); return clock }},
		logger.Nop())
	return svc, st
}
