// Package http exposes the thin HTTP surface of the gateway: the telemetry
// websocket, session and alert queries, export, health and metrics.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"st-telemetry/gateway/internal/alert"
	"st-telemetry/gateway/internal/auth"
	"st-telemetry/gateway/internal/broadcast"
	"st-telemetry/gateway/internal/metrics"
	"st-telemetry/gateway/internal/store"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	store       store.Store
	engine      *alert.Engine
	broadcaster *broadcast.Broadcaster
	redis       *store.RedisStore // nil when the cache is not configured
	sessionID   string
	logger      *slog.Logger

	httpServer *http.Server
}

func NewServer(
	addr string,
	st store.Store,
	engine *alert.Engine,
	broadcaster *broadcast.Broadcaster,
	authn *auth.Authenticator,
	redis *store.RedisStore,
	sessionID string,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:       st,
		engine:      engine,
		broadcaster: broadcaster,
		redis:       redis,
		sessionID:   sessionID,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metrics", metrics.HandleMetrics)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("GET /api/sessions/current/recent", s.handleRecent)
	api.HandleFunc("GET /api/sessions/current/state", s.handleCurrentState)
	api.HandleFunc("GET /api/sessions/{id}", s.handleSessionData)
	api.HandleFunc("GET /api/alerts", s.handleListRules)
	api.HandleFunc("POST /api/alerts", s.handleCreateRule)
	api.HandleFunc("POST /api/alerts/reload", s.handleReloadRules)
	api.HandleFunc("POST /api/alerts/{id}/enabled", s.handleSetRuleEnabled)
	api.HandleFunc("GET /api/alerts/history", s.handleAlertHistory)
	api.HandleFunc("POST /api/export", s.handleExport)
	api.HandleFunc("GET /ws/telemetry", s.handleWebsocket)

	protected := NewAuthMiddleware(authn).Wrap(api)
	mux.Handle("/api/", protected)
	mux.Handle("/ws/", protected)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully with a
// bounded deadline.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown incomplete", "error", err)
		}
		return <-errCh
	}
}
