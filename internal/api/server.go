// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/pushrelay/internal/api/handler/api"
	"github.com/newthinker/pushrelay/internal/api/middleware"
	"github.com/newthinker/pushrelay/internal/api/response"
	"github.com/newthinker/pushrelay/internal/app"
	"github.com/newthinker/pushrelay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server of the relay
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
}

// Dependencies holds the components the routes are served from.
type Dependencies struct {
	App     *app.App
	Metrics *metrics.Registry // nil disables metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.App == nil {
		return nil, fmt.Errorf("app is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
		deps:   deps,
	}
	s.setupRoutes(cfg)

	var h http.Handler = mux
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}
	h = metrics.LoggingMiddleware(logger)(h)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	ingest := handler.NewIngestHandler(s.deps.App)
	s.mux.Handle("POST /api/v1/projects/{project}/events", protect(ingest.Event))
	s.mux.Handle("POST /api/v1/projects/{project}/alerts", protect(ingest.Alert))

	deliveries := handler.NewDeliveriesHandler(s.deps.App.History())
	s.mux.Handle("GET /api/v1/deliveries", protect(deliveries.List))
	s.mux.Handle("GET /api/v1/deliveries/{id}", protect(deliveries.GetByID))

	if storage := s.deps.App.Archive(); storage != nil {
		archived := handler.NewArchiveHandler(storage)
		s.mux.Handle("GET /api/v1/archive/{date}", protect(archived.ListDay))
		s.mux.Handle("GET /api/v1/archive/{date}/{id}", protect(archived.Get))
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.App.GetStats(r.Context())
	stats["status"] = "ok"
	response.JSON(w, http.StatusOK, stats)
}
