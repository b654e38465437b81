package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/testutil"
)

type stateRecorder struct {
	states []State
	mu     sync.Mutex
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newTestMonitor(prober Prober) (*Monitor, *testutil.FakeClock, *stateRecorder) {
	clk := testutil.NewFakeClock()
	cfg := DefaultConfig()
	m := NewMonitor(prober, clk, cfg, testutil.DiscardLogger())
	rec := &stateRecorder{}
	m.OnChange(rec.record)
	return m, clk, rec
}

func TestMonitor_FirstObservationCommitsImmediately(t *testing.T) {
	m, _, rec := newTestMonitor(nil)

	assert.Equal(t, StateUnknown, m.Current())

	m.Report(true)

	assert.Equal(t, StateOnline, m.Current())
	assert.Equal(t, []State{StateOnline}, rec.get())
}

func TestMonitor_TransitionRequiresDwell(t *testing.T) {
	m, clk, rec := newTestMonitor(nil)
	m.Report(true)

	m.Report(false)
	assert.Equal(t, StateOnline, m.Current(), "must not switch before dwell")

	clk.Advance(499 * time.Millisecond)
	assert.Equal(t, StateOnline, m.Current())

	// Повторное наблюдение того же кандидата не перезапускает таймер
	m.Report(false)
	clk.Advance(time.Millisecond)
	assert.Equal(t, StateOffline, m.Current())

	assert.Equal(t, []State{StateOnline, StateOffline}, rec.get())
}

func TestMonitor_FlapIsSuppressed(t *testing.T) {
	m, clk, rec := newTestMonitor(nil)
	m.Report(true)

	// Быстрое мигание online -> offline -> online
	for i := 0; i < 10; i++ {
		m.Report(false)
		clk.Advance(100 * time.Millisecond)
		m.Report(true)
		clk.Advance(100 * time.Millisecond)
	}

	clk.Advance(time.Second)
	assert.Equal(t, StateOnline, m.Current())
	assert.Equal(t, []State{StateOnline}, rec.get())
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestMonitor_ZeroDwellCommitsImmediately(t *testing.T) {
	clk := testutil.NewFakeClock()
	m := NewMonitor(nil, clk, Config{Dwell: 0}, testutil.DiscardLogger())

	m.Report(true)
	m.Report(false)
	assert.Equal(t, StateOffline, m.Current())
}

func TestMonitor_ProbeOnce(t *testing.T) {
	reachable := true
	prober := &ProberMock{
		ProbeFunc: func(ctx context.Context) error {
			if reachable {
				return nil
			}
			return errors.New("connection refused")
		},
	}
	m, clk, _ := newTestMonitor(prober)

	assert.Equal(t, StateOnline, m.ProbeOnce(context.Background()))

	reachable = false
	assert.Equal(t, StateOnline, m.ProbeOnce(context.Background()))
	clk.Advance(time.Second)
	assert.Equal(t, StateOffline, m.Current())

	assert.Len(t, prober.ProbeCalls(), 2)
}

func TestMonitor_StartPolls(t *testing.T) {
	var calls atomic.Int32
	prober := &ProberMock{
		ProbeFunc: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	}

	clk := testutil.NewFakeClock()
	m := NewMonitor(prober, clk, Config{
		PollInterval: 10 * time.Second,
		Dwell:        500 * time.Millisecond,
		ProbeTimeout: time.Second,
	}, testutil.DiscardLogger())

	m.Start(context.Background())
	defer m.Stop()

	// Первая проверка сразу, следующая только по часам монитора
	waitPolls(t, clk, &calls, 1)
	assert.Equal(t, StateOnline, m.Current())

	clk.Advance(9 * time.Second)
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(time.Second)
	waitPolls(t, clk, &calls, 2)

	clk.Advance(10 * time.Second)
	waitPolls(t, clk, &calls, 3)
}

func TestMonitor_StartTwiceRunsSinglePollLoop(t *testing.T) {
	var calls atomic.Int32
	prober := &ProberMock{
		ProbeFunc: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	}

	clk := testutil.NewFakeClock()
	m := NewMonitor(prober, clk, Config{
		PollInterval: 10 * time.Second,
		ProbeTimeout: time.Second,
	}, testutil.DiscardLogger())

	m.Start(context.Background())
	m.Start(context.Background())

	waitPolls(t, clk, &calls, 1)
	clk.Advance(10 * time.Second)
	waitPolls(t, clk, &calls, 2)
	assert.Never(t, func() bool {
		return calls.Load() > 2 || clk.PendingTimers() > 1
	}, 50*time.Millisecond, 5*time.Millisecond)

	// После Stop монитор можно запустить снова
	m.Stop()
	assert.Equal(t, 0, clk.PendingTimers())

	m.Start(context.Background())
	defer m.Stop()
	waitPolls(t, clk, &calls, 3)
}

// waitPolls ждет want проверок и запланированного следующего опроса.
func waitPolls(t *testing.T, clk *testutil.FakeClock, calls *atomic.Int32, want int32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return calls.Load() == want && clk.PendingTimers() == 1
	}, 2*time.Second, time.Millisecond)
}

func TestMonitor_StopCancelsPendingTransition(t *testing.T) {
	m, clk, rec := newTestMonitor(nil)
	m.Report(true)
	m.Report(false)

	m.Stop()
	clk.Advance(time.Second)

	assert.Equal(t, StateOnline, m.Current())
	assert.Equal(t, []State{StateOnline}, rec.get())
}

func TestHTTPProber(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HealthPath, r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	prober := NewHTTPProber(srv.URL + "/")
	assert.NoError(t, prober.Probe(context.Background()))

	status.Store(http.StatusServiceUnavailable)
	assert.Error(t, prober.Probe(context.Background()))

	srv.Close()
	assert.Error(t, prober.Probe(context.Background()))
}
