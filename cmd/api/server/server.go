package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"user-service/internal/config"

	"go.uber.org/zap"
)

// Server owns the HTTP listener serving the Gin router.
type Server struct {
	Config *config.Config
	Logger *zap.Logger
	HTTP   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, l *zap.Logger, handler http.Handler) *Server {
	return &Server{
		Config: cfg,
		Logger: l,
		HTTP:   NewHTTPServer(handler, httpAddress(cfg)),
	}
}

// NewHTTPServer wraps handler in an http.Server with sane timeouts.
func NewHTTPServer(handler http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.Logger.Info("HTTP server running",
		zap.String("address", s.HTTP.Addr),
		zap.String("swagger", "http://localhost"+s.HTTP.Addr+"/swagger/index.html"),
	)

	if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTP.Shutdown(ctx)
}

// httpAddress returns the HTTP server address
func httpAddress(cfg *config.Config) string {
	return ":" + cfg.App.HTTPPort
}
