package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/pkg/api"
)

func testMutation() models.Mutation {
	return models.Mutation{
		ID:      "0b8f9a52-7d7a-4a44-9a0e-6c3c8f1b2d11",
		Action:  models.ActionCreate,
		Target:  "notes/42",
		Payload: json.RawMessage(`{"title":"hello"}`),
	}
}

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/", "")

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

// TestClient_ApplyMutation проверяет успешную доставку мутации
func TestClient_ApplyMutation(t *testing.T) {
	m := testMutation()
	appliedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Проверяем метод, путь и заголовки
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, api.MutationsPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, m.ID, r.Header.Get(api.IdempotencyKeyHeader))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var req api.ApplyMutationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, m.ID, req.ID)
		assert.Equal(t, "create", req.Action)
		assert.Equal(t, "notes/42", req.Target)
		assert.JSONEq(t, `{"title":"hello"}`, string(req.Payload))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.ApplyMutationResponse{
			ID:        req.ID,
			Target:    req.Target,
			AppliedAt: appliedAt,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	resp, err := client.ApplyMutation(context.Background(), m)

	require.NoError(t, err)
	assert.Equal(t, m.ID, resp.ID)
	assert.False(t, resp.Replayed)
	assert.True(t, appliedAt.Equal(resp.AppliedAt))
}

// TestClient_Apply_NoToken проверяет, что без токена Authorization не отправляется
func TestClient_Apply_NoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewClient(server.URL, "").Apply(context.Background(), testMutation())
	assert.NoError(t, err)
}

// TestClient_Apply_Classification проверяет классификацию ошибок сервера
func TestClient_Apply_Classification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMsg    string
		statusCode int
		wantKind   ErrorKind
	}{
		{name: "bad request", statusCode: http.StatusBadRequest, body: `{"error":"bad_request","message":"invalid payload"}`, wantKind: Permanent, wantMsg: "invalid payload"},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, body: `{"error":"unauthorized"}`, wantKind: Unauthorized, wantMsg: "unauthorized"},
		{name: "forbidden", statusCode: http.StatusForbidden, body: `{"error":"forbidden","message":"token revoked"}`, wantKind: Unauthorized, wantMsg: "token revoked"},
		{name: "not found", statusCode: http.StatusNotFound, body: `{"error":"not_found","message":"resource not found"}`, wantKind: Permanent, wantMsg: "resource not found"},
		{name: "conflict", statusCode: http.StatusConflict, body: `{"error":"conflict","message":"already exists"}`, wantKind: Permanent, wantMsg: "already exists"},
		{name: "unprocessable", statusCode: http.StatusUnprocessableEntity, body: `{"error":"idempotency_mismatch","message":"key reused"}`, wantKind: Permanent, wantMsg: "key reused"},
		{name: "request timeout", statusCode: http.StatusRequestTimeout, body: "", wantKind: Transient},
		{name: "too early", statusCode: http.StatusTooEarly, body: "", wantKind: Transient},
		{name: "too many requests", statusCode: http.StatusTooManyRequests, body: "slow down", wantKind: Transient, wantMsg: "slow down"},
		{name: "internal error", statusCode: http.StatusInternalServerError, body: `{"error":"internal","message":"boom"}`, wantKind: Transient, wantMsg: "boom"},
		{name: "bad gateway", statusCode: http.StatusBadGateway, body: "<html>bad gateway</html>", wantKind: Transient, wantMsg: "<html>bad gateway</html>"},
		{name: "unavailable", statusCode: http.StatusServiceUnavailable, body: "", wantKind: Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewClient(server.URL, "").Apply(context.Background(), testMutation())
			require.Error(t, err)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.wantKind, te.Kind)
			assert.Equal(t, tt.statusCode, te.StatusCode)
			assert.Equal(t, tt.wantMsg, te.Message)
			assert.Equal(t, tt.wantKind == Permanent, IsPermanent(err))
			assert.Equal(t, tt.wantKind == Transient, IsTransient(err))
			assert.Equal(t, tt.wantKind == Unauthorized, te.SessionRejected())
		})
	}
}

// TestClient_Apply_OversizedErrorBody проверяет, что тело ответа читается с ограничением
func TestClient_Apply_OversizedErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		chunk := []byte(strings.Repeat("ж", 512))
		for range (2 * maxResponseBodySize) / len(chunk) {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	err := NewClient(server.URL, "").Apply(context.Background(), testMutation())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Transient, te.Kind)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.LessOrEqual(t, len(te.Message), maxErrorMessageLength+len("..."))
	assert.True(t, strings.HasSuffix(te.Message, "..."))
	assert.True(t, utf8.ValidString(te.Message))
}

// TestClient_GetResource_OversizedBody проверяет, что слишком большой ответ не декодируется
func TestClient_GetResource_OversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"target":"notes/1","payload":"`))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxResponseBodySize))
		_, _ = w.Write([]byte(`"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").GetResource(context.Background(), "notes/1")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Transient, te.Kind)
	assert.Contains(t, te.Err.Error(), "exceeds")
}

// TestClient_Apply_NetworkError проверяет, что недоступный сервер дает transient ошибку
func TestClient_Apply_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url, "").Apply(context.Background(), testMutation())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}

// TestClient_Apply_ContextTimeout проверяет, что истекший таймаут считается transient
func TestClient_Apply_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewClient(server.URL, "").Apply(ctx, testMutation())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestClient_Apply_RetryAfter проверяет разбор заголовка Retry-After
func TestClient_Apply_RetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewClient(server.URL, "").Apply(context.Background(), testMutation())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 7*time.Second, te.RetryAfter())
	assert.False(t, te.Permanent())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, 120*time.Second, parseRetryAfter("120", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

// TestClient_GetResource проверяет чтение ресурса с вложенным путем
func TestClient_GetResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/resources/notes/a b", r.URL.Path)
		assert.Equal(t, "/api/v1/resources/notes/a%20b", r.URL.EscapedPath())

		_ = json.NewEncoder(w).Encode(api.ResourceResponse{
			Target:  "notes/a b",
			Payload: json.RawMessage(`{"n":1}`),
		})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "").GetResource(context.Background(), "/notes/a b")
	require.NoError(t, err)
	assert.Equal(t, "notes/a b", resp.Target)
	assert.JSONEq(t, `{"n":1}`, string(resp.Payload))
}

func TestClient_GetResource_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"resource not found"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").GetResource(context.Background(), "notes/1")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "resource not found")
}

func TestTransportError_Error(t *testing.T) {
	assert.Equal(t, "permanent error (404): gone", (&TransportError{Kind: Permanent, StatusCode: 404, Message: "gone"}).Error())
	assert.Equal(t, "transient error (503)", (&TransportError{Kind: Transient, StatusCode: 503}).Error())
	assert.Equal(t, "unauthorized error (401)", (&TransportError{Kind: Unauthorized, StatusCode: 401}).Error())
	assert.Equal(t, "transient error: dial failed", (&TransportError{Kind: Transient, Err: errors.New("dial failed")}).Error())
}
