package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/config"
)

func TestMetricsHandler(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default()
	cfg.DBPath = env.dbPath
	cfg.ServerURL = unreachableURL(t)

	a, err := NewApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, a.Close())
	}()

	ts := httptest.NewServer(metricsHandler(a.registry))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "offsync_queue_outstanding 0")
	assert.Contains(t, string(body), "go_goroutines")
}
