// Package api wires the HTTP and WebSocket surface onto the core engine.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowtask/taskqueue-go/internal/api/handlers"
	apiMiddleware "github.com/flowtask/taskqueue-go/internal/api/middleware"
	"github.com/flowtask/taskqueue-go/internal/api/websocket"
	"github.com/flowtask/taskqueue-go/internal/config"
	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/scheduler"
	"github.com/flowtask/taskqueue-go/internal/workerpool"
)

// Server is the HTTP server exposing the task queue's external interfaces.
type Server struct {
	router *chi.Mux
	config *config.Config

	taskHandler     *handlers.TaskHandler
	periodicHandler *handlers.PeriodicHandler
	systemHandler   *handlers.SystemHandler

	wsHub     *websocket.Hub
	wsHandler *websocket.Handler
}

// NewServer builds a Server wired to the core engine's shared components.
func NewServer(cfg *config.Config, q *queue.Queue, reg *registry.Registry, pool *workerpool.Pool, sched *scheduler.Scheduler, bus *eventbus.Bus) *Server {
	wsHub := websocket.NewHub(bus)

	s := &Server{
		router:          chi.NewRouter(),
		config:          cfg,
		taskHandler:     handlers.NewTaskHandler(q, reg),
		periodicHandler: handlers.NewPeriodicHandler(sched),
		systemHandler:   handlers.NewSystemHandler(q, reg, pool),
		wsHub:           wsHub,
		wsHandler:       websocket.NewHandler(wsHub),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		if s.config.Auth.Enabled {
			authCfg := &apiMiddleware.AuthConfig{
				Enabled:   s.config.Auth.Enabled,
				JWTSecret: s.config.Auth.JWTSecret,
				APIKeys:   make(map[string]bool, len(s.config.Auth.APIKeys)),
			}
			for _, key := range s.config.Auth.APIKeys {
				authCfg.APIKeys[key] = true
			}
			r.Use(apiMiddleware.Auth(authCfg))
		}

		if s.config.Queue.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Queue.RateLimitRPS))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/", s.taskHandler.List)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Delete("/{taskID}", s.taskHandler.Cancel)

			r.Route("/status", func(r chi.Router) {
				r.Get("/pending", s.taskHandler.ListByStatus("pending"))
				r.Get("/completed", s.taskHandler.ListByStatus("completed"))
				r.Get("/failed", s.taskHandler.ListByStatus("failed"))
			})
		})

		r.Route("/periodic-tasks", func(r chi.Router) {
			r.Post("/", s.periodicHandler.Create)
			r.Get("/", s.periodicHandler.List)
			r.Get("/{name}", s.periodicHandler.Get)
			r.Delete("/{name}", s.periodicHandler.Delete)
			r.Post("/{name}/trigger", s.periodicHandler.Trigger)
		})

		r.Get("/health", s.systemHandler.Health)
		r.Get("/queue/stats", s.systemHandler.QueueStats)
		r.Post("/system/clear-queue", s.systemHandler.ClearQueue)
		r.Get("/registered-tasks", s.systemHandler.RegisteredTasks)
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/health", s.systemHandler.Health)
		r.Get("/workers", s.systemHandler.WorkerStats)
		r.Post("/workers/pause", s.systemHandler.PauseWorkers)
		r.Post("/workers/resume", s.systemHandler.ResumeWorkers)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Stop disconnects all WebSocket clients.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the underlying chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
