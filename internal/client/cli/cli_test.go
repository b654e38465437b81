package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/client/iocli"
	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/config"
	"github.com/iudanet/offsync/pkg/api"
)

// syncBuffer bytes.Buffer под мьютексом: status подписчики пишут из других горутин
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv локальная база и конфиг одного "пользователя" CLI
type testEnv struct {
	configPath string
	dbPath     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	for _, k := range []string{config.EnvServerURL, config.EnvToken, config.EnvDBPath, config.EnvLogLevel} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("connectivity:\n  poll_interval: 100ms\n"), 0o600))

	return &testEnv{
		configPath: configPath,
		dbPath:     filepath.Join(dir, "client.db"),
	}
}

// exec запускает одну команду, как отдельный процесс offsync
func (e *testEnv) exec(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	return e.execContext(context.Background(), t, server, args...)
}

func (e *testEnv) execContext(ctx context.Context, t *testing.T, server string, args ...string) (string, error) {
	t.Helper()

	out := &syncBuffer{}
	c := New(iocli.NewWriter(out), "test")
	c.logOutput = io.Discard

	full := append([]string{"--config", e.configPath, "--db", e.dbPath, "--server", server}, args...)
	err := c.Execute(ctx, full)
	return out.String(), err
}

// fakeServer минимальный сервер мутаций с настраиваемым ответом
type fakeServer struct {
	*httptest.Server
	respond  func(req api.ApplyMutationRequest) int
	keys     []string
	requests []api.ApplyMutationRequest
	mu       sync.Mutex
}

func newFakeServer(t *testing.T, respond func(req api.ApplyMutationRequest) int) *fakeServer {
	t.Helper()

	fs := &fakeServer{respond: respond}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+api.MutationsPath, func(w http.ResponseWriter, r *http.Request) {
		var req api.ApplyMutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		fs.keys = append(fs.keys, r.Header.Get(api.IdempotencyKeyHeader))
		code := fs.respond(req)
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_ = json.NewEncoder(w).Encode(api.ApplyMutationResponse{ID: req.ID, Target: req.Target})
			return
		}
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: http.StatusText(code), Message: "rejected by test"})
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) received() ([]api.ApplyMutationRequest, []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]api.ApplyMutationRequest(nil), fs.requests...), append([]string(nil), fs.keys...)
}

// unreachableURL адрес, на котором гарантированно никто не слушает
func unreachableURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	return url
}

func enqueue(t *testing.T, env *testEnv, server string, args ...string) string {
	t.Helper()
	out, err := env.exec(t, server, append([]string{"enqueue"}, args...)...)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)
	return id
}

func TestEnqueue_ThenStatusOffline(t *testing.T) {
	env := newTestEnv(t)
	server := unreachableURL(t)

	enqueue(t, env, server, "--action", "create", "--target", "notes/1", "--payload", `{"title":"hi"}`)
	enqueue(t, env, server, "--action", "delete", "--target", "notes/2")

	out, err := env.exec(t, server, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    offline")
	assert.Contains(t, out, "Pending:   2")
	assert.Contains(t, out, "Failed:    0")
	assert.Contains(t, out, "Last sync: never")
}

func TestEnqueue_Validation(t *testing.T) {
	env := newTestEnv(t)
	server := unreachableURL(t)

	tests := []struct {
		name    string
		wantErr string
		args    []string
	}{
		{name: "unknown action", args: []string{"--action", "upsert", "--target", "a", "--payload", "{}"}, wantErr: "unknown action"},
		{name: "invalid json", args: []string{"--action", "create", "--target", "a", "--payload", "{"}, wantErr: "not valid JSON"},
		{name: "missing payload", args: []string{"--action", "create", "--target", "a"}, wantErr: "payload"},
		{name: "missing target flag", args: []string{"--action", "create"}, wantErr: "target"},
		{name: "missing payload file", args: []string{"--action", "create", "--target", "a", "--payload", "@/does/not/exist"}, wantErr: "payload file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.exec(t, server, append([]string{"enqueue"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"from":"file"}`), 0o600))

	got, err := readPayload("@" + path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"file"}`, string(got))

	got, err = readPayload("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = readPayload(`[1,2]`)
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))
}

func TestSetup_FlagsOverrideConfig(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.exec(t, "ftp://nope", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_url")

	_, err = (&testEnv{configPath: filepath.Join(t.TempDir(), "missing.yaml"), dbPath: env.dbPath}).exec(t, unreachableURL(t), "status")
	require.Error(t, err, "explicit --config must exist")
}

func TestPrintStatus_TerminalIcons(t *testing.T) {
	var out []byte
	mockIO := &iocli.IOMock{
		IsTerminalFunc: func() bool { return true },
		WriteFunc: func(p []byte) (int, error) {
			out = append(out, p...)
			return len(p), nil
		},
	}

	c := New(mockIO, "test")
	c.cfg = config.Default()

	env := newTestEnv(t)
	server := newFakeServer(t, func(api.ApplyMutationRequest) int { return http.StatusOK })
	c.cfg.DBPath = env.dbPath
	c.cfg.ServerURL = server.URL
	c.logger = discardLogger()

	require.NoError(t, c.withApp(context.Background(), func(a *App) error {
		a.monitor.ProbeOnce(context.Background())
		require.NoError(t, a.status.Init(context.Background()))
		defer a.status.Dispose()
		return c.printStatus(a.status.Snapshot(), storage.SyncMetadata{})
	}))

	assert.Contains(t, string(out), "Status:    ✓ online")
	assert.Contains(t, string(out), "Last sync: never")
	assert.NotEmpty(t, mockIO.IsTerminalCalls())
}
