package httpapi

import (
	"net/http"
	"sync"

	"agentloop/internal/application/port/input"
	"agentloop/internal/application/port/output"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
)

// RunnerFactory returns a fresh runner for every request.
type RunnerFactory func() input.AgentRunner

// Server exposes agent runs over HTTP. Every run is stored as a snapshot
// under its id so it can be inspected and resumed later.
type Server struct {
	newRunner RunnerFactory
	tools     output.ToolRegistry
	store     output.SnapshotStore
	metrics   http.Handler
	logger    output.LoggerPort

	mu     sync.Mutex
	active map[string]struct{}
}

func NewServer(newRunner RunnerFactory, tools output.ToolRegistry, store output.SnapshotStore, metrics http.Handler, logger output.LoggerPort) *Server {
	return &Server{
		newRunner: newRunner,
		tools:     tools,
		store:     store,
		metrics:   metrics,
		logger:    logger,
		active:    map[string]struct{}{},
	}
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(srv *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(httplog.NewLogger("agentloop", httplog.Options{
		JSON:    true,
		Concise: true,
	})))

	r.Get("/healthz", srv.handleHealth)
	r.Get("/tools", srv.handleListTools)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", srv.handleListRuns)
		r.Post("/", srv.handleCreateRun)
		r.Get("/{id}", srv.handleGetRun)
		r.Post("/{id}/resume", srv.handleResumeRun)
	})

	if srv.metrics != nil {
		r.Method(http.MethodGet, "/metrics", srv.metrics)
	}

	return r
}

// claim marks id as running. It reports false when the run is already active.
func (s *Server) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[id]; busy {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
