package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/pkg/api"
)

const (
	// maxResponseBodySize ограничивает чтение ответа сервера
	maxResponseBodySize = 4 << 20

	// maxErrorMessageLength ограничивает текст ошибки, который попадает в лог мутаций
	maxErrorMessageLength = 1024
)

// Client представляет HTTP клиент для доставки мутаций на сервер
type Client struct {
	httpClient *http.Client
	now        func() time.Time
	baseURL    string
	token      string
}

// NewClient создает новый API клиент. token может быть пустым, тогда
// заголовок Authorization не отправляется.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		now:     time.Now,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Apply delivers one mutation. It satisfies the sync engine's transport.
func (c *Client) Apply(ctx context.Context, m models.Mutation) error {
	_, err := c.ApplyMutation(ctx, m)
	return err
}

// ApplyMutation delivers one mutation and returns the server acknowledgement.
// The mutation id is sent as the idempotency key.
func (c *Client) ApplyMutation(ctx context.Context, m models.Mutation) (*api.ApplyMutationResponse, error) {
	req := api.ApplyMutationRequest{
		ID:      m.ID,
		Action:  string(m.Action),
		Target:  m.Target,
		Payload: m.Payload,
	}
	headers := map[string]string{api.IdempotencyKeyHeader: m.ID}

	var resp api.ApplyMutationResponse
	if err := c.doRequest(ctx, http.MethodPost, api.MutationsPath, headers, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetResource reads the current server copy of target.
func (c *Client) GetResource(ctx context.Context, target string) (*api.ResourceResponse, error) {
	var resp api.ResourceResponse
	path := api.ResourcesPath + "/" + escapeTarget(target)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get resource request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос. Любая ошибка возвращается как *TransportError.
func (c *Client) doRequest(ctx context.Context, method, path string, headers map[string]string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Kind: Permanent, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &TransportError{Kind: Permanent, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки и таймауты повторяем
		return &TransportError{Kind: Transient, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа, но не больше лимита
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return &TransportError{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	oversized := len(respBody) > maxResponseBodySize
	if oversized {
		respBody = respBody[:maxResponseBodySize]
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := &TransportError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Delay:      parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && (errResp.Message != "" || errResp.Error != "") {
			te.Message = errResp.Message
			if te.Message == "" {
				te.Message = errResp.Error
			}
		} else {
			te.Message = strings.TrimSpace(string(respBody))
		}
		te.Message = truncateMessage(te.Message)
		te.Err = errors.New(http.StatusText(resp.StatusCode))
		return te
	}

	// Декодируем успешный ответ
	if result != nil && oversized {
		return &TransportError{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", maxResponseBodySize)}
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			// Сервер уже применил изменение; повтор безопасен благодаря idempotency key
			return &TransportError{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	return nil
}

// truncateMessage обрезает сообщение по границе символа
func truncateMessage(msg string) string {
	if len(msg) <= maxErrorMessageLength {
		return msg
	}
	cut := maxErrorMessageLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

// escapeTarget экранирует сегменты пути, сохраняя разделители
func escapeTarget(target string) string {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
