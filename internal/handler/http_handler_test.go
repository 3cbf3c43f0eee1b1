package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-permits-portal/internal/platform/logger"
)

type upload struct {
	name, contentType, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="documents"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

var applicantFields = map[string]string{
	"catalog_entry_id": "building-permit",
	"full_name":        "Juan Dela Cruz",
	"contact_number":   "+63 912 345 6789",
	"address":          "12 Rizal St, Quezon City",
	"purpose":          "Residential extension",
}

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *store
}

func newTestServer(t *testing.T) *testServer {
	svc, st := newTestService()
	h := NewHTTPHandler(svc, t.TempDir(), nil, logger.Nop())
	return &testServer{t: t, router: NewRouter(h, verifier, RouterConfig{AllowedOrigins: []string{"*"}}), store: st}
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, path, token string, v any) *httptest.ResponseRecorder {
	data, err := json.Marshal(v)
	require.NoError(s.t, err)
	return s.do(method, path, token, bytes.NewReader(data), "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) create(files ...upload) string {
	body, ct := multipartBody(s.t, applicantFields, files...)
	rec := s.do(http.MethodPost, "/api/v1/applications", "citizen-token", body, ct)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(s.t, rec)["application"].(map[string]any)["id"].(string)
}

func TestHealthAndCatalog(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/catalog/building-permit", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode(t, rec)
	assert.Equal(t, "Building Permit", entry["title"])
	assert.Equal(t, "175.50", entry["total_fee"])

	rec = s.do(http.MethodGet, "/api/v1/catalog/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["code"])
}

func TestCreateApplicationHTTP(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, applicantFields,
		upload{"plan.pdf", "application/pdf", "%PDF-1.7"},
		upload{"notes.txt", "text/plain", "hello"},
		upload{"photo.png", "application/octet-stream", "png"},
	)
	rec := s.do(http.MethodPost, "/api/v1/applications", "citizen-token", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	out := decode(t, rec)
	app := out["application"].(map[string]any)
	assert.Equal(t, "submitted", app["status"])
	assert.Equal(t, "user-1", app["user_id"])
	assert.True(t, strings.HasPrefix(app["reference_number"].(string), "APP-"))
	assert.Equal(t, false, app["action_required"])

	docs := out["documents"].([]any)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "success", d.(map[string]any)["status"])
	}
	rejected := out["rejected_files"].([]any)
	require.Len(t, rejected, 1)
	assert.Equal(t, "notes.txt", rejected[0].(map[string]any)["file_name"])
}

func TestCreateApplicationValidation(t *testing.T) {
	s := newTestServer(t)

	fields := map[string]string{}
	for k, v := range applicantFields {
		fields[k] = v
	}
	fields["contact_number"] = " "
	body, ct := multipartBody(t, fields)
	rec := s.do(http.MethodPost, "/api/v1/applications", "citizen-token", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "contact_number", decode(t, rec)["field"])

	body, ct = multipartBody(t, applicantFields)
	rec = s.do(http.MethodPost, "/api/v1/applications", "", body, ct)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/applications", "citizen-token", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.create(upload{"id.pdf", "application/pdf", "%PDF"})
	base := "/api/v1/applications/" + id

	rec := s.json(http.MethodPost, base+"/transitions", "citizen-token", map[string]string{"status": "approved", "comment": "self-approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.json(http.MethodPost, base+"/transitions", "admin-token", map[string]string{"status": "bogus", "comment": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodPost, base+"/transitions", "admin-token", map[string]string{"status": "needs_revision", "comment": "ID is blurry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodPost, base+"/transitions", "admin-token", map[string]string{
		"status":                "Needs Revision",
		"comment":               "ID is blurry",
		"revision_instructions": "Upload a clearer copy of your ID",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["action_required"])

	rec = s.json(http.MethodPost, base+"/comments", "citizen-token", map[string]string{"message": "Uploading now"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.json(http.MethodPost, base+"/comments", "citizen-token", map[string]string{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, nil, upload{"id-v2.jpg", "image/jpeg", "jpeg"})
	rec = s.do(http.MethodPost, base+"/resubmit", "citizen-token", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "under_review", decode(t, rec)["application"].(map[string]any)["status"])

	body, ct = multipartBody(t, nil, upload{"id-v3.jpg", "image/jpeg", "jpeg"})
	rec = s.do(http.MethodPost, base+"/resubmit", "citizen-token", body, ct)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, base+"/timeline", "citizen-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	steps := decode(t, rec)["steps"].([]any)
	require.Len(t, steps, 5)
	assert.Equal(t, "under_review", steps[2].(map[string]any)["key"])
	assert.Equal(t, true, steps[2].(map[string]any)["current"])

	rec = s.do(http.MethodGet, base, "other-token", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, base, "admin-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode(t, rec)["history"].([]any)
	assert.Len(t, history, 4)

	rec = s.json(http.MethodPost, base+"/transitions", "admin-token", map[string]string{"status": "approved", "comment": "All good"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode(t, rec)["approved_at"])

	rec = s.do(http.MethodDelete, base, "citizen-token", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListAndDocumentsHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.create(upload{"plan.pdf", "application/pdf", "%PDF-plan"})

	rec := s.do(http.MethodGet, "/api/v1/applications?status=submitted&limit=10", "citizen-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, float64(1), out["total"])

	rec = s.do(http.MethodGet, "/api/v1/applications", "other-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total"])

	rec = s.do(http.MethodGet, "/api/v1/applications?from=yesterday", "citizen-token", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/applications/"+id+"/documents", "citizen-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode(t, rec)["documents"].([]any)
	require.Len(t, docs, 1)
	docID := docs[0].(map[string]any)["id"].(string)

	rec = s.do(http.MethodGet, "/api/v1/documents/"+docID+"/content", "admin-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "plan.pdf")
	assert.Equal(t, "%PDF-plan", rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/documents/"+docID+"/content", "other-token", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, ct := multipartBody(t, nil, upload{"extra.png", "image/png", "png"})
	rec = s.do(http.MethodPost, "/api/v1/applications/"+id+"/documents", "citizen-token", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodDelete, "/api/v1/applications/"+id, "citizen-token", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/applications/"+id, "citizen-token", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/health", "", nil, "")

	rec := s.do(http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `permits_portal_http_requests_total{method="GET",route="/health",status="200"}`)
}
