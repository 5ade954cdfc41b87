// Package serve exposes ingestion, status, assets and job history over HTTP.
package serve

import (
	"log/slog"
	"net/http"

	"github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/db"
	"github.com/dtnitsch/persona-ingest/pkg/ingest"
)

// defaultMaxUploadBytes applies when Options.MaxUploadBytes is unset.
const defaultMaxUploadBytes = 50 << 20

type Options struct {
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	router    *http.ServeMux
	ingest    *ingest.Service
	assets    *assets.Service
	history   *db.DB
	maxUpload int64
	logger    *slog.Logger
}

func NewServer(svc *ingest.Service, assetSvc *assets.Service, history *db.DB, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	server := &Server{
		router:    http.NewServeMux(),
		ingest:    svc,
		assets:    assetSvc,
		history:   history,
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger,
	}
	server.router.HandleFunc("POST /api/ingest", server.handleIngest)
	server.router.HandleFunc("GET /api/ingest/status", server.handleStatus)
	server.router.HandleFunc("GET /api/assets", server.handleListAssets)
	server.router.HandleFunc("POST /api/assets", server.handleUpload)
	server.router.HandleFunc("GET /api/assets/{id}", server.handleGetAsset)
	server.router.HandleFunc("DELETE /api/assets/{id}", server.handleDeleteAsset)
	server.router.HandleFunc("GET /api/jobs", server.handleListJobs)
	server.router.HandleFunc("GET /api/jobs/{id}", server.handleGetJob)
	server.router.HandleFunc("GET /health", server.handleHealth)
	return server
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
