package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iudanet/offsync/internal/client/api"
	"github.com/iudanet/offsync/internal/client/connectivity"
	"github.com/iudanet/offsync/internal/client/queue"
	"github.com/iudanet/offsync/internal/client/status"
	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/client/storage/boltdb"
	syncengine "github.com/iudanet/offsync/internal/client/sync"
	"github.com/iudanet/offsync/internal/clock"
	"github.com/iudanet/offsync/internal/config"
	"github.com/iudanet/offsync/internal/observer"
)

// App is the composition root of a client process: one store, one mutation
// log, one monitor, one engine and one status broadcaster.
//
// Nothing runs until Start; commands that only read or edit the log use the
// components directly.
type App struct {
	store    *boltdb.Storage
	log      *queue.Log
	meta     *storage.Metadata
	monitor  *connectivity.Monitor
	engine   *syncengine.Engine
	status   *status.Broadcaster
	registry *prometheus.Registry
	logger   *slog.Logger
	handles  []observer.Handle
	started  bool
}

// NewApp opens the local database and wires the components.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	clk := clock.Real()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := syncengine.NewMetrics(registry)

	log := queue.New(store, clk, logger)
	monitor := connectivity.NewMonitor(connectivity.NewHTTPProber(cfg.ServerURL), clk, cfg.MonitorConfig(), logger)
	transport := api.NewClient(cfg.ServerURL, cfg.Token)
	engine := syncengine.NewEngine(log, transport, monitor, clk, cfg.EngineConfig(), logger,
		syncengine.WithMetrics(metrics))

	a := &App{
		store:    store,
		log:      log,
		meta:     storage.NewMetadata(store),
		monitor:  monitor,
		engine:   engine,
		status:   status.New(log, engine, monitor, clk, logger),
		registry: registry,
		logger:   logger,
	}

	a.handles = append(a.handles, log.OnChange(func(s queue.Stats) {
		metrics.SetQueueDepth(s.Outstanding(), s.Failed)
	}))
	a.handles = append(a.handles, engine.OnOutcome(func(o syncengine.Outcome) {
		if o.Kind != syncengine.OutcomeApplied {
			return
		}
		if err := a.meta.RecordApplied(context.Background(), o.MutationID, clk.Now()); err != nil {
			logger.Warn("Failed to record sync metadata", "mutation_id", o.MutationID, "error", err)
		}
	}))
	if stats, err := log.Stats(ctx); err == nil {
		metrics.SetQueueDepth(stats.Outstanding(), stats.Failed)
	}

	return a, nil
}

// Start runs the broadcaster and the engine. With poll set the monitor keeps
// probing in the background; otherwise the caller drives it with ProbeOnce.
func (a *App) Start(ctx context.Context, poll bool) error {
	if err := a.status.Init(ctx); err != nil {
		return err
	}
	if err := a.engine.Init(ctx); err != nil {
		a.status.Dispose()
		return err
	}
	if poll {
		a.monitor.Start(ctx)
	}
	a.started = true
	return nil
}

// Close stops everything started and closes the database.
func (a *App) Close() error {
	if a.started {
		a.monitor.Stop()
		a.engine.Dispose()
		a.status.Dispose()
	}
	for _, h := range a.handles {
		h.Unregister()
	}
	a.handles = nil

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
