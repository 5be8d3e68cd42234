// Package http wires the Pipeline Orchestrator behind a chi router: a
// turn-submission endpoint, a WebSocket progress stream, health checks, and
// Prometheus metrics.
package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/longregen/cogexec/internal/adapters/http/handlers"
	"github.com/longregen/cogexec/internal/adapters/http/middleware"
	"github.com/longregen/cogexec/internal/application/orchestrator"
	"github.com/longregen/cogexec/internal/config"
)

type Server struct {
	config   *config.Config
	router   *chi.Mux
	httpServer *http.Server

	orch     *orchestrator.Orchestrator
	db       *pgxpool.Pool
	notifier *handlers.WebSocketNotifier
}

func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, db *pgxpool.Pool, notifier *handlers.WebSocketNotifier) *Server {
	s := &Server{config: cfg, orch: orch, db: db, notifier: notifier}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandlerWithDB(s.db)
	r.Get("/health", healthHandler.Handle)
	r.Get("/health/detailed", healthHandler.HandleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth)

		turnHandler := handlers.NewTurnHandler(s.orch)
		r.Post("/turns", turnHandler.Handle)

		if s.notifier != nil {
			wsHandler := handlers.NewWebSocketHandler(s.notifier, s.config.Server.CORSOrigins)
			r.Get("/ws", wsHandler.Handle)
		}
	})

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout; the WebSocket stream is long-lived
		IdleTimeout:  120 * time.Second,
	}
	log.Printf("starting HTTP server on %s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Println("shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
