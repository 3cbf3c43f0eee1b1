package handler

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pesio-ai/be-permits-portal/internal/catalog"
	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/platform/logger"
	"github.com/pesio-ai/be-permits-portal/internal/repository"
	"github.com/pesio-ai/be-permits-portal/internal/service"
	"github.com/pesio-ai/be-permits-portal/internal/submission"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

const (
	// Room for a full form of ceiling-sized files plus the text fields.
	maxUploadBody = 10*submission.MaxFileSize + 1<<20
	// Parts above this are spooled to disk by the multipart reader.
	multipartMemory = 8 << 20
	documentsField  = "documents"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service  *service.ApplicationService
	spoolDir string
	health   func(context.Context) error
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. health may be nil.
func NewHTTPHandler(svc *service.ApplicationService, spoolDir string, health func(context.Context) error, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:  svc,
		spoolDir: spoolDir,
		health:   health,
		log:      log,
	}
}

// Health reports liveness and, when configured, database reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Catalog ──────────────────────────────────────────────────────────────────

type catalogEntryResponse struct {
	*catalog.Entry
	TotalFee string `json:"total_fee"`
}

func newCatalogEntryResponse(e *catalog.Entry) catalogEntryResponse {
	return catalogEntryResponse{Entry: e, TotalFee: catalog.FormatFee(e.TotalFee())}
}

// ListCatalog handles GET /api/v1/catalog
func (h *HTTPHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListCatalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]catalogEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = newCatalogEntryResponse(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// GetCatalogEntry handles GET /api/v1/catalog/{id}
func (h *HTTPHandler) GetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetCatalogEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogEntryResponse(entry))
}

// ── Applications ─────────────────────────────────────────────────────────────

type applicationResponse struct {
	*workflow.Application
	ReferenceNumber string `json:"reference_number"`
	ActionRequired  bool   `json:"action_required"`
}

func newApplicationResponse(app *workflow.Application) applicationResponse {
	return applicationResponse{
		Application:     app,
		ReferenceNumber: app.ReferenceNumber(),
		ActionRequired:  app.IsActionableByApplicant(),
	}
}

type documentResponse struct {
	*submission.Document
	Error string `json:"error,omitempty"`
}

func newDocumentResponses(docs []*submission.Document) []documentResponse {
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp := documentResponse{Document: d}
		if d.Err != nil {
			resp.Error = d.Err.Error()
		}
		out = append(out, resp)
	}
	return out
}

type rejectedFile struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// CreateApplication handles POST /api/v1/applications. The multipart form is
// driven through the submission wizard so the same step rules apply as in
// the portal UI.
func (h *HTTPHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	form, err := h.parseMultipart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.RemoveAll()

	wiz := submission.NewWizard(h.service.NewStager(submission.WithSpoolDir(h.spoolDir)))
	defer wiz.Close()

	// Requirements are acknowledged by posting the form.
	if err := wiz.Next(); err != nil {
		h.writeError(w, r, err)
		return
	}
	wiz.SetApplicant(submission.Applicant{
		FullName:      formValue(form, "full_name"),
		ContactNumber: formValue(form, "contact_number"),
		Address:       formValue(form, "address"),
		Purpose:       formValue(form, "purpose"),
	})
	if err := wiz.Next(); err != nil {
		h.writeError(w, r, err)
		return
	}

	rejected := h.stageFiles(wiz.Stage, form.File[documentsField])
	if err := wiz.Next(); err != nil {
		h.writeError(w, r, err)
		return
	}

	catalogEntryID := formValue(form, "catalog_entry_id")
	if catalogEntryID == "" {
		h.writeError(w, r, errors.InvalidInput("catalog_entry_id", "is required"))
		return
	}

	var result *service.CreateResult
	err = wiz.Submit(r.Context(), func(ctx context.Context, applicant submission.Applicant, stager *submission.Stager) error {
		var err error
		result, err = h.service.CreateApplication(ctx, actor, catalogEntryID, applicant, stager)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"application":    newApplicationResponse(result.Application),
		"documents":      newDocumentResponses(result.Documents),
		"rejected_files": rejected,
	})
}

// ListApplications handles GET /api/v1/applications
func (h *HTTPHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	apps, total, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]applicationResponse, len(apps))
	for i, app := range apps {
		out[i] = newApplicationResponse(app)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applications": out,
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

// GetApplication handles GET /api/v1/applications/{id}
func (h *HTTPHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	app, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// GetTimeline handles GET /api/v1/applications/{id}/timeline
func (h *HTTPHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	steps, err := h.service.Timeline(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

type transitionRequest struct {
	Status               string `json:"status"`
	Comment              string `json:"comment"`
	RevisionInstructions string `json:"revision_instructions"`
}

// TransitionApplication handles POST /api/v1/applications/{id}/transitions
func (h *HTTPHandler) TransitionApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	target, err := workflow.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, errors.InvalidInput("status", err.Error()))
		return
	}

	app, err := h.service.Transition(r.Context(), actor, chi.URLParam(r, "id"), target, req.Comment, req.RevisionInstructions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// ResubmitApplication handles POST /api/v1/applications/{id}/resubmit
func (h *HTTPHandler) ResubmitApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	form, err := h.parseMultipart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.RemoveAll()

	stager := h.service.NewStager(submission.WithSpoolDir(h.spoolDir))
	defer stager.Close()
	rejected := h.stageFiles(stager.Stage, form.File[documentsField])

	app, docs, err := h.service.Resubmit(r.Context(), actor, chi.URLParam(r, "id"), stager)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"application":    newApplicationResponse(app),
		"documents":      newDocumentResponses(docs),
		"rejected_files": rejected,
	})
}

// ListDocuments handles GET /api/v1/applications/{id}/documents
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	docs, err := h.service.Documents(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": newDocumentResponses(docs)})
}

// UploadDocuments handles POST /api/v1/applications/{id}/documents
func (h *HTTPHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	form, err := h.parseMultipart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.RemoveAll()

	stager := h.service.NewStager(submission.WithSpoolDir(h.spoolDir))
	defer stager.Close()
	rejected := h.stageFiles(stager.Stage, form.File[documentsField])
	if stager.Len() == 0 {
		h.writeError(w, r, errors.InvalidInput(documentsField, "no acceptable files"))
		return
	}

	if _, err := h.service.UploadDocuments(r.Context(), actor, chi.URLParam(r, "id"), stager); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":      newDocumentResponses(stager.Documents()),
		"rejected_files": rejected,
	})
}

type commentRequest struct {
	Message string `json:"message"`
}

// AddComment handles POST /api/v1/applications/{id}/comments
func (h *HTTPHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.service.AddClientComment(r.Context(), actor, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// DeleteApplication handles DELETE /api/v1/applications/{id}
func (h *HTTPHandler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadDocument handles GET /api/v1/documents/{id}/content
func (h *HTTPHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	doc, data, err := h.service.DownloadDocument(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return service.Actor{}, false
	}
	return service.Actor{UserID: uc.UserID, Email: uc.Email, Role: uc.Role}, true
}

func (h *HTTPHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid multipart form")
	}
	return r.MultipartForm, nil
}

// stageFiles stages every uploaded file. Files the stager refuses are
// reported back and do not fail the request.
func (h *HTTPHandler) stageFiles(stage func(submission.File) (*submission.Document, error), files []*multipart.FileHeader) []rejectedFile {
	rejected := []rejectedFile{}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			rejected = append(rejected, rejectedFile{FileName: fh.Filename, Error: "could not read file"})
			continue
		}
		_, err = stage(submission.File{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
		f.Close()
		if err != nil {
			rejected = append(rejected, rejectedFile{FileName: fh.Filename, Error: err.Error()})
		}
	}
	return rejected
}

func parseListFilter(r *http.Request) (repository.ApplicationFilter, error) {
	q := r.URL.Query()
	var f repository.ApplicationFilter

	if v := q.Get("status"); v != "" {
		s, err := workflow.ParseStatus(v)
		if err != nil {
			return f, errors.InvalidInput("status", err.Error())
		}
		f.Status = s
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return f, errors.InvalidInput(p.name, "expected RFC 3339 timestamp or YYYY-MM-DD")
		}
		*p.dst = &t
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput(name, "must be a non-negative integer")
	}
	return n, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError maps an error code to an HTTP status. Internal details of 5xx
// errors are logged, not returned.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	resp := errorResponse{
		Error:     err.Error(),
		Code:      string(code),
		RequestID: chimw.GetReqID(r.Context()),
	}

	var verr *submission.ValidationError
	var cerr *errors.Error
	switch {
	case errors.As(err, &verr):
		resp.Field = verr.Field
	case errors.As(err, &cerr):
		resp.Field = cerr.Field
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", resp.RequestID).
			Str("path", r.URL.Path).
			Msg("Request failed")
		if code != errors.ErrCodeIO {
			resp.Error = "internal server error"
		}
	}
	writeJSON(w, status, resp)
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
