package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HealthPath is the endpoint HTTPProber checks.
const HealthPath = "/api/v1/health"

// HTTPProber считает сервер доступным, если health endpoint отвечает 2xx
type HTTPProber struct {
	httpClient *http.Client
	url        string
}

// NewHTTPProber creates a prober for the server at baseURL.
// Timeouts come from the context passed to Probe.
func NewHTTPProber(baseURL string) *HTTPProber {
	return &HTTPProber{
		httpClient: &http.Client{},
		url:        strings.TrimRight(baseURL, "/") + HealthPath,
	}
}

// Probe performs one health request.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
