// Package api provides the HTTP boundary for sage.
//
// Endpoints:
//
//	GET  /health         liveness probe (unauthenticated)
//	GET  /ready          readiness probe, pings the database (unauthenticated)
//	POST /chat           run one conversational turn
//	GET  /chat_history   user-visible message history
//	POST /clear_history  drop the conversation checkpoint
//
// All /chat* endpoints require an HMAC-signed bearer token. The user ID
// carried in the token is the conversation thread ID.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, logging, auth
//   - ratelimit.go: per-IP token bucket
//   - identity.go: signed token mint/verify
//   - chat.go: conversational endpoints
//   - health.go: probes
//   - response.go: JSON helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// A turn can take the full turn timeout before the response starts.
	WriteTimeout = 90 * time.Second

	// IdleTimeout is the maximum wait for the next request on keep-alive
	// connections.
	IdleTimeout = 120 * time.Second

	// Requests per second refilled per client IP, and the bucket size.
	requestsPerSecond = 5
	requestBurst      = 10
)

// ServerConfig contains the parameters for the HTTP server.
type ServerConfig struct {
	Addr       string
	AuthSecret []byte
	Engine     TurnRunner
	Threads    HistoryStore
	Pool       *pgxpool.Pool
	Logger     *slog.Logger
}

// Server is sage's HTTP server.
type Server struct {
	addr    string
	logger  *slog.Logger
	handler http.Handler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	// Probes stay unauthenticated; everything else requires a signed token.
	probes := http.NewServeMux()
	NewHealthHandler(cfg.Pool, logger).RegisterRoutes(probes)

	chatMux := http.NewServeMux()
	NewChatHandler(cfg.Engine, cfg.Threads, logger).RegisterRoutes(chatMux)

	mux := http.NewServeMux()
	mux.Handle("/health", probes)
	mux.Handle("/ready", probes)
	mux.Handle("/", chain(chatMux,
		authMiddleware(cfg.AuthSecret, logger),
		rateLimitMiddleware(newRateLimiter(requestsPerSecond, requestBurst), logger),
	))

	return &Server{
		addr:    addr,
		logger:  logger,
		handler: chain(mux, recoveryMiddleware(logger), loggingMiddleware(logger)),
	}
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then routing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
