package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/iudanet/offsync/internal/client/status"
)

const metricsShutdownTimeout = 5 * time.Second

func (c *Cli) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep syncing in the foreground until interrupted",
		Long: `Watch connectivity and deliver mutations as they are enqueued by other
offsync invocations, printing a line on every status change. Serves
prometheus metrics on metrics_addr when it is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return c.withApp(ctx, func(a *App) error {
				return c.run(ctx, a)
			})
		},
	}
}

func (c *Cli) run(ctx context.Context, a *App) error {
	subscription := a.status.Subscribe(func(s status.Snapshot) {
		c.io.Println(time.Now().Format(time.TimeOnly), c.statusLine(s))
	})
	defer subscription.Unregister()

	if c.cfg.MetricsAddr != "" {
		shutdown, err := c.serveMetrics(a.registry)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if err := a.Start(ctx, true); err != nil {
		return err
	}

	c.io.Println(time.Now().Format(time.TimeOnly), c.statusLine(a.status.Snapshot()))
	c.logger.Info("Client running", "server", c.cfg.ServerURL, "db", c.cfg.DBPath)

	<-ctx.Done()
	c.logger.Info("Shutting down")
	return nil
}

// metricsHandler отдает метрики движка в формате prometheus
func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func (c *Cli) serveMetrics(registry *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", c.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", c.cfg.MetricsAddr, err)
	}

	srv := &http.Server{
		Handler:           metricsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server failed", "error", err)
		}
	}()
	c.logger.Info("Serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			c.logger.Warn("Failed to stop metrics server", "error", err)
		}
	}, nil
}
