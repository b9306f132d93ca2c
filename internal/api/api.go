// Package api exposes the daemon's HTTP control surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"agentq/internal/history"
	"agentq/internal/queue"
	"agentq/internal/runlock"
	"agentq/internal/scheduler"
	"agentq/internal/stream"
)

// Server is the API server over the queue, history, and stream manager.
type Server struct {
	manager   *queue.Manager
	lock      *runlock.Lock
	history   *history.Log
	streamMgr *stream.Manager
	scheduler *scheduler.Scheduler
	router    chi.Router
}

// NewServer creates an API server. scheduler and streamMgr may be nil.
func NewServer(manager *queue.Manager, lock *runlock.Lock, hist *history.Log, streamMgr *stream.Manager, sched *scheduler.Scheduler) *Server {
	if streamMgr == nil {
		streamMgr = stream.NewManager()
	}
	s := &Server{
		manager:   manager,
		lock:      lock,
		history:   hist,
		streamMgr: streamMgr,
		scheduler: sched,
		router:    chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/api/v1/health", s.HealthCheck)
	r.Get("/api/v1/status", s.GetStatus)

	// Queue
	r.Post("/api/v1/runs", s.EnqueueRun)
	r.Get("/api/v1/queue", s.ListQueue)
	r.Get("/api/v1/queue/{id}", s.GetQueueEntry)
	r.Delete("/api/v1/queue/{id}", s.RemoveQueueEntry)

	// Run history
	r.Get("/api/v1/runs", s.ListRuns)
	r.Get("/api/v1/runs/{runId}", s.GetRun)
	r.Get("/api/v1/runs/{runId}/stream", s.StreamRun)
}

// Router returns the chi router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}
