package cli

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/client/iocli"
	"github.com/iudanet/offsync/pkg/api"
)

func TestSync_DeliversInOrder(t *testing.T) {
	env := newTestEnv(t)
	server := newFakeServer(t, func(api.ApplyMutationRequest) int { return http.StatusOK })

	first := enqueue(t, env, server.URL, "--action", "create", "--target", "notes/1", "--payload", `{"v":1}`)
	second := enqueue(t, env, server.URL, "--action", "update", "--target", "notes/1", "--payload", `{"v":2}`)
	urgent := enqueue(t, env, server.URL, "--action", "create", "--target", "notes/0", "--payload", `{}`, "--priority=-1")

	out, err := env.exec(t, server.URL, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied:     3")
	assert.Contains(t, out, "Remaining:   0")

	requests, keys := server.received()
	require.Len(t, requests, 3)
	assert.Equal(t, []string{urgent, first, second}, keys, "priority first, then enqueue order")
	for i, req := range requests {
		assert.Equal(t, keys[i], req.ID, "idempotency key is the mutation id")
	}

	out, err = env.exec(t, server.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    online")
	assert.Contains(t, out, "Pending:   0")
	assert.Contains(t, out, "(3 applied)")
}

func TestSync_Unreachable(t *testing.T) {
	env := newTestEnv(t)
	server := unreachableURL(t)
	enqueue(t, env, server, "--action", "create", "--target", "notes/1", "--payload", `{}`)

	out, err := env.exec(t, server, "sync")
	require.ErrorIs(t, err, ErrServerUnreachable)
	assert.Contains(t, out, "1 mutation(s) stay queued")
}

func TestSync_TransientFailureIsRescheduled(t *testing.T) {
	env := newTestEnv(t)
	server := newFakeServer(t, func(api.ApplyMutationRequest) int { return http.StatusServiceUnavailable })
	enqueue(t, env, server.URL, "--action", "create", "--target", "notes/1", "--payload", `{}`)

	out, err := env.exec(t, server.URL, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied:     0")
	assert.Contains(t, out, "Rescheduled: 1")
	assert.Contains(t, out, "Remaining:   1")
	assert.Contains(t, out, "Next retry in")

	out, err = env.exec(t, server.URL, "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No failed mutations.")
}

func TestSync_PermanentFailureRetryAndDiscard(t *testing.T) {
	env := newTestEnv(t)

	accept := false
	server := newFakeServer(t, func(api.ApplyMutationRequest) int {
		if accept {
			return http.StatusOK
		}
		return http.StatusConflict
	})

	id := enqueue(t, env, server.URL, "--action", "create", "--target", "notes/1", "--payload", `{}`)

	out, err := env.exec(t, server.URL, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Failed:      1")
	assert.Contains(t, out, "Remaining:   0")

	out, err = env.exec(t, server.URL, "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 failed mutation(s)")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "create notes/1")
	assert.Contains(t, out, "409")

	out, err = env.exec(t, server.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    online", "failed records do not keep the status in syncing")
	assert.Contains(t, out, "offsync failed")

	// Повтор после исправления на сервере
	out, err = env.exec(t, server.URL, "retry", id)
	require.NoError(t, err)
	assert.Contains(t, out, "queued again")

	server.mu.Lock()
	accept = true
	server.mu.Unlock()

	out, err = env.exec(t, server.URL, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied:     1")

	_, keys := server.received()
	assert.Equal(t, []string{id, id}, keys, "retry keeps the idempotency key")

	_, err = env.exec(t, server.URL, "discard", id)
	require.Error(t, err, "applied records are gone")
}

func TestDiscard_FailedRecord(t *testing.T) {
	env := newTestEnv(t)
	server := newFakeServer(t, func(api.ApplyMutationRequest) int { return http.StatusUnprocessableEntity })

	id := enqueue(t, env, server.URL, "--action", "update", "--target", "notes/1", "--payload", `{}`)
	_, err := env.exec(t, server.URL, "sync")
	require.NoError(t, err)

	out, err := env.exec(t, server.URL, "discard", id)
	require.NoError(t, err)
	assert.Contains(t, out, "discarded")

	out, err = env.exec(t, server.URL, "failed")
	require.NoError(t, err)
	assert.Equal(t, "No failed mutations.", strings.TrimSpace(out))
}

func TestRun_UntilCancelled(t *testing.T) {
	env := newTestEnv(t)
	server := newFakeServer(t, func(api.ApplyMutationRequest) int { return http.StatusOK })
	enqueue(t, env, server.URL, "--action", "create", "--target", "notes/1", "--payload", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		c := New(iocli.NewWriter(out), "test")
		c.logOutput = io.Discard
		done <- c.Execute(ctx, []string{"--config", env.configPath, "--db", env.dbPath, "--server", server.URL, "run"})
	}()

	require.Eventually(t, func() bool {
		requests, _ := server.received()
		return len(requests) == 1 && strings.Contains(out.String(), "online pending=0")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	// База закрыта, следующий процесс может ее открыть
	_, err := env.exec(t, server.URL, "status")
	require.NoError(t, err)
}
