// Package sync drains the durable mutation log to the remote service.
//
// The Engine is a small state machine (idle, draining, backoff). At most one
// drain goroutine runs at a time and it delivers records strictly in log
// order, one transport call at a time.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/iudanet/offsync/internal/client/connectivity"
	"github.com/iudanet/offsync/internal/clock"
	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/observer"
)

// SessionState is the engine's drain state.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateDraining SessionState = "draining"
	StateBackoff  SessionState = "backoff"
)

var (
	// ErrNotRunning indicates that the engine is not initialized or already disposed
	ErrNotRunning = errors.New("sync engine is not running")

	// ErrAlreadyRunning indicates a second Init call
	ErrAlreadyRunning = errors.New("sync engine is already running")
)

//go:generate moq -out transport_mock.go . Transport

// Transport delivers one mutation to the remote service.
// Errors implementing Permanent() bool with a true result are not retried.
// Errors implementing SessionRejected() bool with a true result pause delivery
// without spending an attempt. Every other error is treated as transient.
type Transport interface {
	Apply(ctx context.Context, m models.Mutation) error
}

// Queue is the part of the mutation log the engine drives.
type Queue interface {
	Enqueue(ctx context.Context, action models.Action, target string, payload json.RawMessage, priority int) (string, error)
	PeekNext(ctx context.Context) (*models.MutationRecord, error)
	MarkInFlight(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	MarkPendingWithBackoff(ctx context.Context, id string, cause error, attempts int) error
	MarkPending(ctx context.Context, id string) error
	Recover(ctx context.Context) (int, error)
}

// Connectivity is the debounced reachability signal.
type Connectivity interface {
	Current() connectivity.State
	OnChange(fn func(connectivity.State)) observer.Handle
}

// Config holds retry policy.
type Config struct {
	// MaxAttempts is the number of transport calls before a record fails
	MaxAttempts int

	// BaseDelay is the delay after the first transient failure
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay
	MaxDelay time.Duration

	// Jitter is the relative spread applied to every delay (0.2 = ±20%)
	Jitter float64

	// RequestTimeout bounds a single transport call
	RequestTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       5 * time.Minute,
		Jitter:         0.2,
		RequestTimeout: 30 * time.Second,
	}
}

// OutcomeKind describes what happened to a record after a transport call.
type OutcomeKind string

const (
	OutcomeApplied     OutcomeKind = "applied"
	OutcomeFailed      OutcomeKind = "failed"
	OutcomeRescheduled OutcomeKind = "rescheduled"
	OutcomeInterrupted OutcomeKind = "interrupted"
)

// Outcome is reported to OnOutcome observers after every transport call.
type Outcome struct {
	Err        error
	MutationID string
	Kind       OutcomeKind
	Attempts   int
	Delay      time.Duration // задержка до следующей попытки для OutcomeRescheduled
}

// Trigger names what woke the engine up. Used for logging.
type Trigger string

const (
	TriggerInit    Trigger = "init"
	TriggerOnline  Trigger = "online"
	TriggerEnqueue Trigger = "enqueue"
	TriggerTimer   Trigger = "timer"
	TriggerForce   Trigger = "force"
)

// Engine drains the mutation log through the transport.
type Engine struct {
	queue     Queue
	transport Transport
	conn      Connectivity
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics
	random    func() float64

	ctx        context.Context
	cancel     context.CancelFunc
	timer      clock.Timer
	connHandle observer.Handle
	done       chan struct{} // закрывается по окончании текущего прохода

	states   observer.Ordered[SessionState]
	outcomes observer.Registry[Outcome]

	state    SessionState
	cfg      Config
	timerGen uint64
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	rerun    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records engine activity on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(e *Engine) {
		e.random = fn
	}
}

// NewEngine creates an idle engine. Call Init to start reacting to triggers.
func NewEngine(q Queue, transport Transport, conn Connectivity, clk clock.Clock, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	e := &Engine{
		queue:     q,
		transport: transport,
		conn:      conn,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		random:    rand.Float64,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.states.Register(e.metrics.setState)
	return e
}

// Init recovers records interrupted by a previous process, subscribes to
// connectivity and starts a drain if the service is already reachable.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.mu.Unlock()

	if _, err := e.queue.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover mutation log: %w", err)
	}

	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.running = true
	e.mu.Unlock()

	handle := e.conn.OnChange(func(s connectivity.State) {
		if s == connectivity.StateOnline {
			_, _ = e.trigger(TriggerOnline)
		}
	})
	e.mu.Lock()
	e.connHandle = handle
	e.mu.Unlock()

	e.metrics.setState(StateIdle)
	e.logger.Info("Sync engine started",
		"max_attempts", e.cfg.MaxAttempts,
		"base_delay", e.cfg.BaseDelay,
		"max_delay", e.cfg.MaxDelay)

	_, _ = e.trigger(TriggerInit)
	return nil
}

// Dispose stops the engine: the backoff timer is cancelled, the running
// drain is interrupted and waited for. A call in flight is cancelled and its
// record returned to pending.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.stopTimerLocked()
	handle := e.connHandle
	e.connHandle = observer.Handle{}
	cancel := e.cancel
	e.mu.Unlock()

	handle.Unregister()
	cancel()
	e.wg.Wait()

	e.setState(StateIdle)
	e.logger.Info("Sync engine stopped")
}

// State returns the current session state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnStateChange registers fn to be called on every session state change.
func (e *Engine) OnStateChange(fn func(SessionState)) observer.Handle {
	return e.states.Register(fn)
}

// OnOutcome registers fn to be called after every transport call.
func (e *Engine) OnOutcome(fn func(Outcome)) observer.Handle {
	return e.outcomes.Register(fn)
}

// Enqueue appends a mutation to the log and wakes the engine. It returns as
// soon as the record is persisted.
func (e *Engine) Enqueue(ctx context.Context, action models.Action, target string, payload json.RawMessage, priority int) (string, error) {
	id, err := e.queue.Enqueue(ctx, action, target, payload, priority)
	if err != nil {
		return "", err
	}
	e.Wake()
	return id, nil
}

// Wake starts a drain the way a new enqueue does, for records that became
// pending again through a manual retry. It does not cut a backoff short.
func (e *Engine) Wake() {
	_, _ = e.trigger(TriggerEnqueue)
}

// ForceSync starts a drain regardless of a pending backoff timer and waits
// for it to finish. It returns immediately when a drain is already running or
// the service is not reachable.
func (e *Engine) ForceSync(ctx context.Context) error {
	done, err := e.trigger(TriggerForce)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// trigger starts a drain if the current state allows it. The returned
// channel is closed when the started drain finishes. If nothing was started
// the channel is already closed.
func (e *Engine) trigger(reason Trigger) (<-chan struct{}, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return closedChan, ErrNotRunning
	}

	switch e.state {
	case StateDraining:
		// Текущий проход перечитает лог перед завершением
		e.rerun = true
		e.mu.Unlock()
		return closedChan, nil
	case StateBackoff:
		if reason == TriggerEnqueue {
			e.mu.Unlock()
			return closedChan, nil
		}
	}

	if e.conn.Current() != connectivity.StateOnline {
		e.mu.Unlock()
		e.logger.Debug("Sync trigger ignored while offline", "trigger", reason)
		return closedChan, nil
	}

	done := e.startLocked()
	e.mu.Unlock()

	e.logger.Debug("Starting drain", "trigger", reason)
	e.flush()
	return done, nil
}

// startLocked переводит движок в draining и запускает горутину прохода
func (e *Engine) startLocked() chan struct{} {
	e.stopTimerLocked()
	e.changeLocked(StateDraining)
	e.rerun = false
	e.done = make(chan struct{})
	e.wg.Add(1)
	go e.drain(e.ctx, e.done)
	return e.done
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

func (e *Engine) drain(ctx context.Context, done chan struct{}) {
	defer e.wg.Done()
	defer close(done)

	// Запись результата доставки не должна прерываться остановкой движка
	writeCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil || e.conn.Current() != connectivity.StateOnline {
			if ctx.Err() == nil {
				e.logger.Info("Connectivity lost, pausing drain")
			}
			if e.finishIfNoRerun() {
				return
			}
			continue
		}

		record, err := e.queue.PeekNext(ctx)
		if err != nil {
			e.storageFailure("peek", "", err)
			return
		}
		if record == nil {
			if e.finishIfNoRerun() {
				return
			}
			continue
		}

		if err := e.queue.MarkInFlight(writeCtx, record.ID); err != nil {
			e.storageFailure("mark_in_flight", record.ID, err)
			return
		}
		attempts := record.Attempts + 1

		applyErr := e.apply(ctx, record)

		if !e.settle(ctx, writeCtx, record, attempts, applyErr) {
			return
		}
	}
}

// apply выполняет один вызов транспорта с собственным таймаутом.
// Контекст вызова не зависит от состояния сети.
func (e *Engine) apply(ctx context.Context, record *models.MutationRecord) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	start := e.clock.Now()
	err := e.transport.Apply(callCtx, record.Mutation())
	e.metrics.observeApply(e.clock.Now().Sub(start))
	return err
}

// settle записывает результат вызова. Возвращает false, если проход нужно остановить.
func (e *Engine) settle(ctx, writeCtx context.Context, record *models.MutationRecord, attempts int, applyErr error) bool {
	id := record.ID

	if applyErr == nil {
		if err := e.queue.MarkDone(writeCtx, id); err != nil {
			e.storageFailure("mark_done", id, err)
			return false
		}
		e.metrics.incApplied()
		e.logger.Debug("Mutation applied", "mutation_id", id, "attempts", attempts)
		e.notifyOutcome(Outcome{MutationID: id, Kind: OutcomeApplied, Attempts: attempts})
		return true
	}

	if ctx.Err() != nil && errors.Is(applyErr, context.Canceled) {
		// Движок остановлен во время вызова, исход неизвестен
		if err := e.queue.MarkPending(writeCtx, id); err != nil {
			e.storageFailure("mark_pending", id, err)
			return false
		}
		e.logger.Info("Mutation interrupted by shutdown", "mutation_id", id)
		e.notifyOutcome(Outcome{MutationID: id, Kind: OutcomeInterrupted, Attempts: attempts, Err: applyErr})
		e.finish()
		return false
	}

	if isSessionRejected(applyErr) {
		return e.pause(writeCtx, id, attempts-1, applyErr)
	}

	if isPermanent(applyErr) {
		return e.fail(writeCtx, id, attempts, applyErr, "permanent")
	}

	if attempts >= e.cfg.MaxAttempts {
		return e.fail(writeCtx, id, attempts, applyErr, "exhausted")
	}

	delay := backoffDelay(e.cfg, attempts, e.random())
	if hint := retryAfter(applyErr); hint > delay {
		delay = hint
		if e.cfg.MaxDelay > 0 && delay > e.cfg.MaxDelay {
			delay = e.cfg.MaxDelay
		}
	}

	if err := e.queue.MarkPendingWithBackoff(writeCtx, id, applyErr, attempts); err != nil {
		e.storageFailure("mark_backoff", id, err)
		return false
	}
	e.metrics.incRetried()
	e.logger.Warn("Mutation delivery failed, retrying later",
		"mutation_id", id,
		"attempts", attempts,
		"delay", delay,
		"error", applyErr)
	e.notifyOutcome(Outcome{MutationID: id, Kind: OutcomeRescheduled, Attempts: attempts, Delay: delay, Err: applyErr})
	e.enterBackoff(delay)
	return false
}

// pause возвращает запись в pending без траты попытки и откладывает проход на max_delay.
// Отказ в авторизации не говорит ничего о самой мутации.
func (e *Engine) pause(writeCtx context.Context, id string, attempts int, cause error) bool {
	delay := e.cfg.MaxDelay
	if delay <= 0 {
		delay = backoffDelay(e.cfg, attempts+1, e.random())
	}
	if hint := retryAfter(cause); hint > delay {
		delay = hint
	}

	if err := e.queue.MarkPendingWithBackoff(writeCtx, id, cause, attempts); err != nil {
		e.storageFailure("mark_backoff", id, err)
		return false
	}
	e.metrics.incRetried()
	e.logger.Error("Server rejected credentials, delivery paused",
		"mutation_id", id,
		"delay", delay,
		"error", cause)
	e.notifyOutcome(Outcome{MutationID: id, Kind: OutcomeRescheduled, Attempts: attempts, Delay: delay, Err: cause})
	e.enterBackoff(delay)
	return false
}

func (e *Engine) fail(writeCtx context.Context, id string, attempts int, cause error, reason string) bool {
	if err := e.queue.MarkFailed(writeCtx, id, cause); err != nil {
		e.storageFailure("mark_failed", id, err)
		return false
	}
	e.metrics.incFailed(reason)
	e.logger.Warn("Mutation failed",
		"mutation_id", id,
		"attempts", attempts,
		"reason", reason,
		"error", cause)
	e.notifyOutcome(Outcome{MutationID: id, Kind: OutcomeFailed, Attempts: attempts, Err: cause})
	return true
}

func (e *Engine) enterBackoff(delay time.Duration) {
	e.mu.Lock()
	if !e.running {
		e.changeLocked(StateIdle)
		e.mu.Unlock()
		e.flush()
		return
	}
	e.stopTimerLocked()
	gen := e.timerGen
	e.changeLocked(StateBackoff)
	e.rerun = false
	e.timer = e.clock.AfterFunc(delay, func() {
		e.onTimer(gen)
	})
	e.mu.Unlock()

	e.flush()
}

func (e *Engine) onTimer(gen uint64) {
	e.mu.Lock()
	if !e.running || e.state != StateBackoff || e.timerGen != gen {
		e.mu.Unlock()
		return
	}
	e.timer = nil

	if e.conn.Current() != connectivity.StateOnline {
		// Ждем возвращения сети, запись остается pending
		e.changeLocked(StateIdle)
		e.mu.Unlock()
		e.flush()
		return
	}

	e.startLocked()
	e.mu.Unlock()

	e.logger.Debug("Starting drain", "trigger", TriggerTimer)
	e.flush()
}

// finishIfNoRerun завершает проход, если за это время не пришло новых триггеров.
// Иначе проход продолжается и перечитывает лог.
func (e *Engine) finishIfNoRerun() bool {
	e.mu.Lock()
	if e.rerun && e.running {
		e.rerun = false
		e.mu.Unlock()
		return false
	}
	e.changeLocked(StateIdle)
	e.mu.Unlock()

	e.flush()
	return true
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.changeLocked(StateIdle)
	e.rerun = false
	e.mu.Unlock()

	e.flush()
}

func (e *Engine) storageFailure(op, id string, err error) {
	e.logger.Error("Mutation log operation failed, sync paused",
		"op", op,
		"mutation_id", id,
		"error", err)
	e.finish()
}

func (e *Engine) setState(state SessionState) {
	e.mu.Lock()
	e.changeLocked(state)
	e.mu.Unlock()

	e.flush()
}

// changeLocked меняет состояние и ставит уведомление в очередь
func (e *Engine) changeLocked(state SessionState) {
	if e.state == state {
		return
	}
	e.state = state
	e.states.Queue(state)
}

func (e *Engine) flush() {
	e.states.Flush()
}

func (e *Engine) notifyOutcome(o Outcome) {
	e.outcomes.Notify(o)
}

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

func isSessionRejected(err error) bool {
	var s interface{ SessionRejected() bool }
	return errors.As(err, &s) && s.SessionRejected()
}

func retryAfter(err error) time.Duration {
	var r interface{ RetryAfter() time.Duration }
	if errors.As(err, &r) {
		return r.RetryAfter()
	}
	return 0
}
