package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pesio-ai/be-permits-portal/internal/metrics"
	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the public and authenticated routes.
func NewRouter(h *HTTPHandler, verifier auth.Verifier, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(&h.log.Logger))
	r.Use(middleware.Logger(&h.log.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(metrics.InstrumentHandler)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", h.ListCatalog)
		r.Get("/catalog/{id}", h.GetCatalogEntry)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, h.writeError))

			r.Post("/applications", h.CreateApplication)
			r.Get("/applications", h.ListApplications)
			r.Route("/applications/{id}", func(r chi.Router) {
				r.Get("/", h.GetApplication)
				r.Delete("/", h.DeleteApplication)
				r.Get("/timeline", h.GetTimeline)
				r.Get("/documents", h.ListDocuments)
				r.Post("/documents", h.UploadDocuments)
				r.Post("/transitions", h.TransitionApplication)
				r.Post("/resubmit", h.ResubmitApplication)
				r.Post("/comments", h.AddComment)
			})
			r.Get("/documents/{id}/content", h.DownloadDocument)
		})
	})

	return r
}
