// Package server exposes the seqflow REST API: pipeline discovery and
// validation, invocation submission, and invocation/task inspection.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/seqflow/internal/config"
	"github.com/me/seqflow/internal/engine"
	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/pipeline"
)

// Server is the seqflow REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	engine    *engine.Engine

	// pipelines holds the pipeline documents registered at startup,
	// keyed by name.
	pipelines map[string]*pipeline.Pipeline
}

// New creates a Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, eng *engine.Engine,
	pipelines map[string]*pipeline.Pipeline, logger *slog.Logger) *Server {

	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		engine:    eng,
		pipelines: pipelines,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", s.handleListPipelines)
			r.Get("/{name}", s.handleGetPipeline)
		})

		r.Route("/invocations", func(r chi.Router) {
			r.Get("/", s.handleListInvocations)
			r.Post("/", s.handleCreateInvocation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetInvocation)
				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", s.handleListTasks)
					r.Get("/{tid}", s.handleGetTask)
				})
			})
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}
