package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/pkg/api"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		wantLevel string
		status    int
	}{
		{name: "ok is info", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error is warn", status: http.StatusConflict, wantLevel: "WARN"},
		{name: "server error is error", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/mutations", nil)
			req.Header.Set(api.IdempotencyKeyHeader, "key-1")
			req.Header.Set("Authorization", "Bearer secret-token")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			lines := decodeLogLines(t, &buf)
			require.Len(t, lines, 1)
			entry := lines[0]

			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "HTTP request", entry["msg"])
			assert.Equal(t, "POST", entry["method"])
			assert.Equal(t, "/api/v1/mutations", entry["path"])
			assert.EqualValues(t, tt.status, entry["status"])
			assert.EqualValues(t, 5, entry["bytes_written"])
			assert.Equal(t, "key-1", entry["idempotency_key"])
			assert.NotContains(t, buf.String(), "secret-token")
		})
	}
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := LoggingMiddleware(logger, "/api/v1/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/resources/a", nil))
	assert.Len(t, decodeLogLines(t, &buf), 1)
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// Обработчик без явного WriteHeader
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.EqualValues(t, http.StatusOK, lines[0]["status"])
}
