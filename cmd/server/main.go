package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/offsync/internal/logging"
	"github.com/iudanet/offsync/internal/server"
	"github.com/iudanet/offsync/internal/server/handlers"
	"github.com/iudanet/offsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	envJWTSecret    = "OFFSYNC_JWT_SECRET"
	shutdownTimeout = 10 * time.Second
)

func main() {
	defaults := server.DefaultConfig()

	// Parse flags
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", ":8080", "Listen address")
	dbPath := flag.String("db", "offsync-server.db", "Path to SQLite database")
	jwtSecret := flag.String("jwt-secret", "", "JWT signing secret (default $"+envJWTSecret+")")
	tokenTTL := flag.Duration("token-ttl", defaults.JWT.AccessTokenTTL, "Lifetime of issued tokens")
	issueToken := flag.String("issue-token", "", "Print a token for the given user id and exit")
	rateLimit := flag.Int("rate-limit", defaults.RateLimit, "Requests per user per rate window, 0 disables the limit")
	rateWindow := flag.Duration("rate-window", defaults.RateWindow, "Rate limit window")
	idempotencyTTL := flag.Duration("idempotency-ttl", defaults.IdempotencyTTL, "How long applied idempotency keys are kept")
	pruneInterval := flag.Duration("prune-interval", defaults.PruneInterval, "How often expired keys are pruned")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "Log format: text or json")
	logFile := flag.String("log-file", "", "Log file with rotation, empty for stderr")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	secret := *jwtSecret
	if secret == "" {
		secret = os.Getenv(envJWTSecret)
	}
	if secret == "" {
		fmt.Fprintf(os.Stderr, "JWT secret is required: use -jwt-secret or %s\n", envJWTSecret)
		os.Exit(1)
	}

	cfg := defaults
	cfg.JWT.Secret = []byte(secret)
	cfg.JWT.AccessTokenTTL = *tokenTTL
	cfg.Version = Version
	cfg.RateLimit = *rateLimit
	cfg.RateWindow = *rateWindow
	cfg.IdempotencyTTL = *idempotencyTTL
	cfg.PruneInterval = *pruneInterval

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      *logLevel,
		Format:     *logFormat,
		File:       *logFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = closer.Close()
	}()

	if err := run(logger, cfg, *addr, *dbPath); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg server.Config, addr, dbPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	srv := server.New(logger, store, cfg)
	defer srv.Close()

	go srv.RunJanitor(ctx)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", addr, "db", dbPath, "version", cfg.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func printToken(cfg server.Config, userID string) error {
	token, expiresIn, err := handlers.GenerateAccessToken(cfg.JWT, userID, userID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Valid for %s\n", time.Duration(expiresIn)*time.Second)
	return nil
}

func printVersion() {
	fmt.Printf("offsync server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
