// Package server assembles the reference mutation server: routes,
// middleware chain and background maintenance.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/offsync/internal/server/handlers"
	"github.com/iudanet/offsync/internal/server/middleware"
	"github.com/iudanet/offsync/internal/server/storage"
	"github.com/iudanet/offsync/pkg/api"
)

// HealthPath is served without authentication.
const HealthPath = "/api/v1/health"

// Config настройки HTTP слоя сервера
type Config struct {
	JWT            handlers.JWTConfig
	Version        string
	RateLimit      int           // запросов на пользователя за RateWindow, 0 = без ограничения
	RateWindow     time.Duration
	IdempotencyTTL time.Duration // сколько помнить применённые ключи
	PruneInterval  time.Duration
}

// DefaultConfig returns the server defaults without a JWT secret.
func DefaultConfig() Config {
	return Config{
		JWT:            handlers.JWTConfig{AccessTokenTTL: 30 * 24 * time.Hour},
		Version:        "dev",
		RateLimit:      600,
		RateWindow:     time.Minute,
		IdempotencyTTL: 7 * 24 * time.Hour,
		PruneInterval:  time.Hour,
	}
}

// Server holds the HTTP handler and its background resources.
type Server struct {
	handler http.Handler
	limiter *middleware.RateLimiter
	storage storage.MutationStorage
	logger  *slog.Logger
	cfg     Config
}

// New builds the routes:
//
//	GET  /api/v1/health
//	POST /api/v1/mutations              (auth)
//	GET  /api/v1/resources/{target...}  (auth)
func New(logger *slog.Logger, s storage.MutationStorage, cfg Config) *Server {
	health := handlers.NewHealthHandler(logger, s, cfg.Version)
	mutations := handlers.NewMutationsHandler(logger, s)

	auth := middleware.AuthMiddleware(logger, cfg.JWT)

	srv := &Server{storage: s, logger: logger, cfg: cfg}

	// Лимит считается по user_id, поэтому стоит после auth
	protect := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		if cfg.RateLimit > 0 {
			if srv.limiter == nil {
				srv.limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, logger)
			}
			wrapped = srv.limiter.Middleware(wrapped)
		}
		return auth(wrapped)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+HealthPath, health.Health)
	mux.Handle("POST "+api.MutationsPath, protect(mutations.Apply))
	mux.Handle("GET "+api.ResourcesPath+"/{target...}", protect(mutations.Resource))

	var h http.Handler = mux
	h = middleware.LoggingMiddleware(logger, HealthPath)(h)
	h = middleware.RecoveryMiddleware(logger)(h)
	srv.handler = h

	return srv
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RunJanitor prunes expired idempotency keys every PruneInterval until ctx
// is done. It blocks.
func (s *Server) RunJanitor(ctx context.Context) {
	if s.cfg.IdempotencyTTL <= 0 || s.cfg.PruneInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune(ctx)
		}
	}
}

func (s *Server) prune(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.IdempotencyTTL)
	n, err := s.storage.PruneApplied(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune idempotency keys", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Pruned idempotency keys", "count", n, "before", cutoff)
	}
}

// Close stops background goroutines of the middleware.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
