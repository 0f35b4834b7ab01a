// Package server exposes a router.Session over HTTP using chi.
//
// Middleware stack, in order: RequestID, RealIP, a logrus request logger,
// Recoverer (500 instead of crash) and CORS.
//
// Routes:
//
//	POST /api/dataset          upload CSV/XLSX (raw body or multipart "file")
//	GET  /api/dataset          loaded dataset summary
//	POST /api/ask              resolve a question
//	GET  /api/ask/export?id=   result table of a history entry as CSV or XLSX
//	GET  /api/history          session history, oldest first
//	GET  /api/rules            rules for the loaded dataset
//	GET  /api/health
//	GET  /metrics              Prometheus
//
// There is no authentication. The API serves a single analyst session.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/dataset", func(r chi.Router) {
			r.Get("/", h.GetDataset)
			r.Post("/", h.UploadDataset)
		})

		r.Route("/ask", func(r chi.Router) {
			r.Post("/", h.Ask)
			r.Get("/export", h.Export)
		})

		r.Get("/history", h.ListHistory)
		r.Get("/rules", h.ListRules)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start),
				"request":  middleware.GetReqID(r.Context()),
			}).Info("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
