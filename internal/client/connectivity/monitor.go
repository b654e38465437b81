// Package connectivity tracks whether the remote service is reachable.
//
// Raw observations come from polling a Prober or from Report calls made by
// a platform integration. A changed observation only becomes the current
// state after it has held for the configured dwell time, so short flaps do
// not wake the sync engine.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/offsync/internal/clock"
	"github.com/iudanet/offsync/internal/observer"
)

// State is the observed reachability of the remote service.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

//go:generate moq -out prober_mock.go . Prober

// Prober checks reachability once. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Config holds monitor timing.
type Config struct {
	// PollInterval is how often Start probes the remote service
	PollInterval time.Duration

	// Dwell is how long a new state must hold before it is reported
	Dwell time.Duration

	// ProbeTimeout bounds a single probe
	ProbeTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Dwell:        500 * time.Millisecond,
		ProbeTimeout: 3 * time.Second,
	}
}

// Monitor maintains the debounced connectivity state.
type Monitor struct {
	prober    Prober
	clock     clock.Clock
	logger    *slog.Logger
	timer     clock.Timer
	cancel    context.CancelFunc
	observers observer.Registry[State]
	current   State
	candidate State
	cfg       Config
	gen       uint64
	wg        sync.WaitGroup
	mu        sync.Mutex
	polling   bool
}

// NewMonitor creates a monitor in the unknown state. prober may be nil when
// all observations arrive through Report.
func NewMonitor(prober Prober, clk clock.Clock, cfg Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		prober:  prober,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
		current: StateUnknown,
	}
}

// Current returns the debounced state.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnChange registers fn to be called with every committed transition.
func (m *Monitor) OnChange(fn func(State)) observer.Handle {
	return m.observers.Register(fn)
}

// Report feeds one raw observation into the debouncer.
func (m *Monitor) Report(online bool) {
	if online {
		m.observe(StateOnline)
		return
	}
	m.observe(StateOffline)
}

// ProbeOnce probes immediately, feeds the result into the debouncer and
// returns the resulting current state.
func (m *Monitor) ProbeOnce(ctx context.Context) State {
	m.probe(ctx)
	return m.Current()
}

// Start begins polling the prober until ctx is cancelled or Stop is called.
// Calling Start while polling is already running does nothing.
func (m *Monitor) Start(ctx context.Context) {
	if m.prober == nil {
		return
	}

	m.mu.Lock()
	if m.polling {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.polling = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.poll(ctx)
}

// Stop stops polling and cancels a pending transition.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.candidate = ""
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) poll(ctx context.Context) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.polling = false
		m.mu.Unlock()
	}()

	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}

	// Интервал отсчитывается от конца предыдущей проверки
	tick := make(chan struct{}, 1)
	schedule := func() clock.Timer {
		return m.clock.AfterFunc(interval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})
	}

	m.probe(ctx)
	timer := schedule()
	defer func() {
		timer.Stop()
	}()

	for {
		select {
		case <-tick:
			m.probe(ctx)
			timer = schedule()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	if m.prober == nil {
		return
	}

	timeout := m.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		// Остановлены во время проверки, результат не учитываем
		return
	}
	if err != nil {
		m.logger.Debug("Connectivity probe failed", "error", err)
		m.observe(StateOffline)
		return
	}
	m.observe(StateOnline)
}

func (m *Monitor) observe(raw State) {
	m.mu.Lock()

	if raw == m.current {
		// Вернулись в текущее состояние до истечения dwell: отменяем кандидата
		m.cancelCandidateLocked()
		m.mu.Unlock()
		return
	}

	// Первое наблюдение после unknown применяем сразу
	if m.current == StateUnknown || m.cfg.Dwell <= 0 {
		m.cancelCandidateLocked()
		m.current = raw
		m.mu.Unlock()
		m.committed(raw)
		return
	}

	if raw == m.candidate {
		m.mu.Unlock()
		return
	}

	m.cancelCandidateLocked()
	m.candidate = raw
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.cfg.Dwell, func() {
		m.commit(raw, gen)
	})
	m.mu.Unlock()
}

func (m *Monitor) commit(raw State, gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.candidate != raw {
		m.mu.Unlock()
		return
	}
	m.current = raw
	m.candidate = ""
	m.timer = nil
	m.gen++
	m.mu.Unlock()

	m.committed(raw)
}

func (m *Monitor) cancelCandidateLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.candidate = ""
	m.gen++
}

func (m *Monitor) committed(state State) {
	m.logger.Info("Connectivity changed", "state", state)
	m.observers.Notify(state)
}
