package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/v1/applications/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/applications/{id}", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/applications/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/applications/def", nil))

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/applications/{id}", "404"))
	assert.Equal(t, before+2, after)
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(transitions.WithLabelValues("approved"))
	RecordTransition("approved")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("approved")))
}

func TestRecordDocumentUpload(t *testing.T) {
	ok := testutil.ToFloat64(documentUploads.WithLabelValues("success"))
	failed := testutil.ToFloat64(documentUploads.WithLabelValues("error"))

	RecordDocumentUpload(true, 2048)
	RecordDocumentUpload(false, 0)

	assert.Equal(t, ok+1, testutil.ToFloat64(documentUploads.WithLabelValues("success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(documentUploads.WithLabelValues("error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordApplicationCreated()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "permits_portal_workflow_applications_created_total")
}
