package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthPingTimeout ограничивает проверку базы в health check
const healthPingTimeout = 2 * time.Second

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	db      Pinger
	logger  *slog.Logger
	version string
}

// NewHealthHandler создает новый handler для health check.
// db may be nil, then only the process is checked.
func NewHealthHandler(logger *slog.Logger, db Pinger, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		logger:  logger,
		version: version,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health обрабатывает GET /api/v1/health.
// Клиентский connectivity monitor считает сервер доступным только по 2xx.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", "error", err)
			writeJSON(w, h.logger, http.StatusServiceUnavailable, HealthResponse{
				Status:  "unavailable",
				Version: h.version,
			})
			return
		}
	}

	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}
