package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vjranagit/tsengine/pkg/service"
)

// Config holds HTTP listener settings
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server implements the HTTP API server
type Server struct {
	cfg      Config
	svc      *service.TimeSeriesService
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server. A nil gatherer serves the default registry.
func NewServer(cfg Config, svc *service.TimeSeriesService, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		gatherer: gatherer,
		logger:   logger,
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	const series = "/api/v1/datasets/{dataset}/time_series"
	mux.HandleFunc("POST "+series, s.handleCreate)
	mux.HandleFunc("GET "+series, s.handleList)
	mux.HandleFunc("POST "+series+"/transformation", s.handleTransform)
	mux.HandleFunc("GET "+series+"/multidimensional/{ids}", s.handleMultidimensional)
	mux.HandleFunc("GET "+series+"/{id}", s.handleGet)
	mux.HandleFunc("DELETE "+series+"/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/provenance/{id}", s.handleProvenance)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
