// Package server provides the HTTP API for Sakusei.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/sakusei/internal/config"
	"github.com/hyperjump/sakusei/internal/health"
	"github.com/hyperjump/sakusei/internal/ingest"
	"github.com/hyperjump/sakusei/internal/memory"
	"github.com/hyperjump/sakusei/internal/pipeline"
	"github.com/hyperjump/sakusei/internal/queue"
	"github.com/hyperjump/sakusei/internal/retrieval"
	"github.com/hyperjump/sakusei/internal/storage"
)

// Server is the HTTP server for the Sakusei API.
type Server struct {
	storage  storage.Storage
	ingest   *ingest.Service
	pipeline *pipeline.Pipeline
	memory   *memory.Store
	monitor  *health.Monitor
	runtime  *queue.Runtime
	vector   retrieval.VectorIndex
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	st storage.Storage,
	ingestSvc *ingest.Service,
	pipe *pipeline.Pipeline,
	mem *memory.Store,
	monitor *health.Monitor,
	runtime *queue.Runtime,
	vector retrieval.VectorIndex,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		storage:  st,
		ingest:   ingestSvc,
		pipeline: pipe,
		memory:   mem,
		monitor:  monitor,
		runtime:  runtime,
		vector:   vector,
		config:   cfg,
		logger:   logger,
	}
}

// Handler builds the router. Exposed separately from Start for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleIngestDocument)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Get("/api/v1/documents/{id}/chunks", s.handleGetDocumentChunks)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)

	r.Post("/api/v1/projects", s.handleCreateProject)
	r.Get("/api/v1/projects/{id}", s.handleGetProject)

	r.Post("/api/v1/reports", s.handleCreateReport)
	r.Get("/api/v1/reports/{id}", s.handleGetReport)
	r.Post("/api/v1/reports/{id}/retry", s.handleRetryReport)
	r.Post("/api/v1/reports/{id}/approve", s.handleApproveReport)

	r.Get("/api/v1/memory/toc", s.handleMemoryToc)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
