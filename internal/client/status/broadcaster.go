// Package status derives the aggregate sync status shown to the user from
// connectivity, the sync session and the mutation log counters.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/offsync/internal/client/connectivity"
	"github.com/iudanet/offsync/internal/client/queue"
	syncengine "github.com/iudanet/offsync/internal/client/sync"
	"github.com/iudanet/offsync/internal/clock"
	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/observer"
)

// Status is the aggregate state shown to the user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusSyncing Status = "syncing"
	StatusOffline Status = "offline"
)

// ErrNotInitialized indicates a call before Init or after Dispose
var ErrNotInitialized = errors.New("status broadcaster is not initialized")

// Derive computes the aggregate status.
// Anything but a confirmed online connection is offline; failed records do
// not keep the status in syncing.
func Derive(conn connectivity.State, stats queue.Stats) Status {
	if conn != connectivity.StateOnline {
		return StatusOffline
	}
	if stats.Outstanding() == 0 {
		return StatusOnline
	}
	return StatusSyncing
}

// Anomaly is the last storage problem reported by the mutation log.
type Anomaly struct {
	At  time.Time
	Err error
}

// Snapshot is everything a status subscriber may want to display.
type Snapshot struct {
	Anomaly      *Anomaly
	Status       Status
	Connectivity connectivity.State
	Session      syncengine.SessionState
	Stats        queue.Stats
}

// Log is the part of the mutation log the broadcaster reads and manages.
type Log interface {
	Stats(ctx context.Context) (queue.Stats, error)
	ListFailed(ctx context.Context) ([]*models.MutationRecord, error)
	Retry(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	OnChange(fn func(queue.Stats)) observer.Handle
	OnAnomaly(fn func(error)) observer.Handle
}

// Engine is the part of the sync engine the broadcaster drives.
type Engine interface {
	State() syncengine.SessionState
	OnStateChange(fn func(syncengine.SessionState)) observer.Handle
	Enqueue(ctx context.Context, action models.Action, target string, payload json.RawMessage, priority int) (string, error)
	ForceSync(ctx context.Context) error
	Wake()
}

// Connectivity is the debounced reachability signal.
type Connectivity interface {
	Current() connectivity.State
	OnChange(fn func(connectivity.State)) observer.Handle
}

// Broadcaster is the single status service of a client process. The
// composition root creates it, calls Init and passes it to consumers.
type Broadcaster struct {
	log         Log
	engine      Engine
	conn        Connectivity
	clock       clock.Clock
	logger      *slog.Logger
	subscribers observer.Ordered[Snapshot]
	handles     []observer.Handle
	current     Snapshot
	mu          sync.Mutex
	initialized bool
}

// New creates a broadcaster. Nothing is observed until Init.
func New(log Log, engine Engine, conn Connectivity, clk clock.Clock, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:    log,
		engine: engine,
		conn:   conn,
		clock:  clk,
		logger: logger,
	}
}

// Init reads the initial counters and starts observing all sources.
func (b *Broadcaster) Init(ctx context.Context) error {
	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	stats, err := b.log.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read mutation log stats: %w", err)
	}

	b.mu.Lock()
	b.initialized = true
	b.current = Snapshot{
		Stats:        stats,
		Connectivity: b.conn.Current(),
		Session:      b.engine.State(),
	}
	b.current.Status = Derive(b.current.Connectivity, stats)
	b.mu.Unlock()

	handles := []observer.Handle{
		b.log.OnChange(b.onStats),
		b.log.OnAnomaly(b.onAnomaly),
		b.conn.OnChange(func(connectivity.State) { b.recompute(nil) }),
		b.engine.OnStateChange(func(syncengine.SessionState) { b.recompute(nil) }),
	}

	b.mu.Lock()
	b.handles = handles
	b.mu.Unlock()

	// Источники могли измениться между чтением и подпиской
	if stats, err := b.log.Stats(ctx); err == nil {
		b.onStats(stats)
	} else {
		b.recompute(nil)
	}

	b.logger.Info("Status broadcaster started", "status", b.GetStatus())
	return nil
}

// Dispose stops observing. Subscribers stay registered but receive nothing.
func (b *Broadcaster) Dispose() {
	b.mu.Lock()
	handles := b.handles
	b.handles = nil
	b.initialized = false
	b.mu.Unlock()

	for _, h := range handles {
		h.Unregister()
	}
}

// GetStatus returns the current aggregate status.
func (b *Broadcaster) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Status
}

// Snapshot returns the current aggregate status with its inputs.
func (b *Broadcaster) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers fn to be called with a fresh snapshot whenever the
// aggregate status changes or a storage anomaly is reported.
func (b *Broadcaster) Subscribe(fn func(Snapshot)) observer.Handle {
	return b.subscribers.Register(fn)
}

// ForceSync requests an immediate drain and waits for it. It returns at once
// when offline or when a drain is already running.
func (b *Broadcaster) ForceSync(ctx context.Context) error {
	if err := b.checkInitialized(); err != nil {
		return err
	}
	return b.engine.ForceSync(ctx)
}

// Enqueue is the producer API: it persists the mutation and returns its id
// without waiting for the network.
func (b *Broadcaster) Enqueue(ctx context.Context, action models.Action, target string, payload json.RawMessage, priority int) (string, error) {
	return b.engine.Enqueue(ctx, action, target, payload, priority)
}

// ListFailed returns records that need a manual retry or discard.
func (b *Broadcaster) ListFailed(ctx context.Context) ([]*models.MutationRecord, error) {
	return b.log.ListFailed(ctx)
}

// Retry returns a failed record to the queue and wakes the engine.
func (b *Broadcaster) Retry(ctx context.Context, id string) error {
	if err := b.log.Retry(ctx, id); err != nil {
		return err
	}
	b.logger.Info("Mutation scheduled for retry", "mutation_id", id)
	b.engine.Wake()
	return nil
}

// Discard drops a failed record.
func (b *Broadcaster) Discard(ctx context.Context, id string) error {
	if err := b.log.Discard(ctx, id); err != nil {
		return err
	}
	b.logger.Info("Mutation discarded", "mutation_id", id)
	return nil
}

func (b *Broadcaster) checkInitialized() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (b *Broadcaster) onStats(stats queue.Stats) {
	b.mu.Lock()
	// Уведомления лога могут прийти не по порядку, старую ревизию пропускаем
	if stats.Revision >= b.current.Stats.Revision {
		b.current.Stats = stats
	}
	b.mu.Unlock()

	b.recompute(nil)
}

func (b *Broadcaster) onAnomaly(err error) {
	b.logger.Error("Mutation log anomaly", "error", err)
	b.recompute(&Anomaly{At: b.clock.Now(), Err: err})
}

// recompute перечитывает источники и уведомляет подписчиков,
// если статус изменился или пришла новая аномалия
func (b *Broadcaster) recompute(anomaly *Anomaly) {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return
	}

	prev := b.current.Status
	b.current.Connectivity = b.conn.Current()
	b.current.Session = b.engine.State()
	b.current.Status = Derive(b.current.Connectivity, b.current.Stats)
	if anomaly != nil {
		b.current.Anomaly = anomaly
	}

	changed := b.current.Status != prev
	if changed || anomaly != nil {
		b.subscribers.Queue(b.current)
	}
	snapshot := b.current
	b.mu.Unlock()

	if changed {
		b.logger.Info("Sync status changed",
			"from", prev,
			"to", snapshot.Status,
			"pending", snapshot.Stats.Pending,
			"failed", snapshot.Stats.Failed)
	}
	b.subscribers.Flush()
}
