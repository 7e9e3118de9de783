package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/handlers"
	"github.com/ternarybob/arbor"
)

// Server serves run progress and reports over HTTP and websocket
type Server struct {
	config common.ServerConfig
	logger arbor.ILogger
	api    *handlers.APIHandler
	runs   *handlers.RunHandler
	ws     *handlers.WebSocketHandler
	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server. ws may be nil, in which case /ws is not routed.
func New(config common.ServerConfig, logger arbor.ILogger, api *handlers.APIHandler, runs *handlers.RunHandler, ws *handlers.WebSocketHandler) *Server {
	s := &Server{
		config: config,
		logger: logger,
		api:    api,
		runs:   runs,
		ws:     ws,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // PDF rendering of large runs
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Addr returns the host:port the server listens on
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.Addr()).
		Msg("HTTP server starting")

	s.logger.Info().
		Str("url", fmt.Sprintf("http://%s/api/status", s.Addr())).
		Msg("Run status available")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if s.ws != nil {
		s.ws.Close()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
