package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/iudanet/offsync/internal/crypto"
	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/server/storage"
	"github.com/iudanet/offsync/internal/validation"
	"github.com/iudanet/offsync/pkg/api"
)

const (
	// maxMutationBodySize ограничение тела POST /api/v1/mutations
	maxMutationBodySize = 1 << 20
)

// MutationsHandler обрабатывает применение мутаций и чтение ресурсов
type MutationsHandler struct {
	storage storage.MutationStorage
	logger  *slog.Logger
}

// NewMutationsHandler создает новый handler для мутаций
func NewMutationsHandler(logger *slog.Logger, s storage.MutationStorage) *MutationsHandler {
	return &MutationsHandler{
		storage: s,
		logger:  logger,
	}
}

// Apply обрабатывает POST /api/v1/mutations.
// The Idempotency-Key header must equal the body id; a redelivered mutation
// is acknowledged again without being re-applied.
func (h *MutationsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "missing user")
		return
	}

	var req api.ApplyMutationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMutationBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("Invalid mutation body", "error", err, "user_id", userID)
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	key := r.Header.Get(api.IdempotencyKeyHeader)
	if key == "" {
		writeError(w, h.logger, http.StatusBadRequest, api.IdempotencyKeyHeader+" header is required")
		return
	}
	if key != req.ID {
		writeError(w, h.logger, http.StatusBadRequest, api.IdempotencyKeyHeader+" must equal mutation id")
		return
	}

	applyReq, err := buildApplyRequest(userID, &req)
	if err != nil {
		h.logger.Warn("Mutation rejected", "error", err, "mutation_id", req.ID, "user_id", userID)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.storage.ApplyMutation(r.Context(), applyReq)
	if err != nil {
		status, msg := applyErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to apply mutation", "error", err, "mutation_id", req.ID)
		} else {
			h.logger.Info("Mutation not applied",
				"reason", msg,
				"mutation_id", req.ID,
				"action", req.Action,
				"target", req.Target)
		}
		writeError(w, h.logger, status, msg)
		return
	}

	h.logger.Info("Mutation applied",
		"mutation_id", result.ID,
		"action", applyReq.Action,
		"target", result.Target,
		"replayed", result.Replayed,
		"user_id", userID)

	writeJSON(w, h.logger, http.StatusOK, api.ApplyMutationResponse{
		ID:        result.ID,
		Target:    result.Target,
		AppliedAt: result.AppliedAt,
		Replayed:  result.Replayed,
	})
}

// Resource обрабатывает GET /api/v1/resources/{target...}
func (h *MutationsHandler) Resource(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "missing user")
		return
	}

	target := r.PathValue("target")
	if err := validation.ValidateTarget(target); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.storage.GetResource(r.Context(), userID, target)
	if errors.Is(err, storage.ErrResourceNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get resource", "error", err, "target", target)
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, api.ResourceResponse{
		Target:    res.Target,
		Payload:   res.Payload,
		Deleted:   res.Deleted,
		UpdatedAt: res.UpdatedAt,
	})
}

// buildApplyRequest проверяет запрос и считает fingerprint
func buildApplyRequest(userID string, req *api.ApplyMutationRequest) (*storage.ApplyRequest, error) {
	if _, err := uuid.Parse(req.ID); err != nil {
		return nil, errors.New("id must be a UUID")
	}

	action, err := models.ParseAction(req.Action)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateTarget(req.Target); err != nil {
		return nil, err
	}

	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		if action != models.ActionDelete {
			return nil, fmt.Errorf("payload is required for %s", action)
		}
		req.Payload = nil
	}

	fp, err := crypto.Fingerprint(string(action), req.Target, req.Payload)
	if err != nil {
		return nil, err
	}

	return &storage.ApplyRequest{
		Owner:       userID,
		ID:          req.ID,
		Action:      action,
		Target:      req.Target,
		Payload:     req.Payload,
		Fingerprint: fp,
	}, nil
}

// applyErrorStatus переводит ошибку хранилища в HTTP статус.
// Клиент считает 404, 409 и 422 окончательными и не повторяет их.
func applyErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrResourceExists):
		return http.StatusConflict, "resource already exists"
	case errors.Is(err, storage.ErrResourceNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, storage.ErrIdempotencyMismatch):
		return http.StatusUnprocessableEntity, "idempotency key reused with a different mutation"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
