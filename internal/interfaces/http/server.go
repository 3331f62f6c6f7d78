// Package http serves the monitor surface: health, status, Prometheus
// metrics, the websocket event stream, and an operational validation API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/integration"
	"github.com/propsignal/crosscheck/internal/interfaces/ws"
	"github.com/propsignal/crosscheck/internal/metrics"
	"github.com/propsignal/crosscheck/internal/orchestrator"
	"github.com/propsignal/crosscheck/internal/store"
)

// Server is the monitor HTTP server. history may be nil.
type Server struct {
	orch    *orchestrator.Orchestrator
	service *integration.Service
	metrics *metrics.Registry
	hub     *ws.Hub
	history *store.HistoryRepo

	srv *http.Server
}

// NewServer wires the routes. hub and history may be nil; their endpoints
// degrade accordingly.
func NewServer(addr string, orch *orchestrator.Orchestrator, service *integration.Service, reg *metrics.Registry, hub *ws.Hub, history *store.HistoryRepo) *Server {
	s := &Server{
		orch:    orch,
		service: service,
		metrics: reg,
		hub:     hub,
		history: history,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if reg != nil {
		r.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	}
	if hub != nil {
		r.Handle("/ws", hub)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/validate/{kind}/{id:[0-9]+}", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/history/{kind}/{id:[0-9]+}", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/trends", s.handleTrends).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start serves until the listener fails. Blocks; run it in a goroutine.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.srv.Addr).
		Str("health", "/health").
		Str("metrics", "/metrics").
		Str("validate", "/api/v1/validate/{kind}/{id}").
		Msg("monitor server listening")

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
