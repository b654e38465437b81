package api

import (
	"encoding/json"
	"time"
)

// IdempotencyKeyHeader carries the mutation id so the server can recognize
// a redelivered mutation.
const IdempotencyKeyHeader = "Idempotency-Key"

// MutationsPath is the endpoint mutations are applied to.
const MutationsPath = "/api/v1/mutations"

// ResourcesPath is the prefix for reading resources back.
const ResourcesPath = "/api/v1/resources"

// ApplyMutationRequest represents POST /api/v1/mutations request body
type ApplyMutationRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Target  string          `json:"target"`
}

// ApplyMutationResponse represents the acknowledgement for an applied mutation
type ApplyMutationResponse struct {
	AppliedAt time.Time `json:"applied_at"`
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Replayed  bool      `json:"replayed"` // true если мутация уже применялась с этим ключом
}

// ResourceResponse represents GET /api/v1/resources/{target} response
type ResourceResponse struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Target    string          `json:"target"`
	Deleted   bool            `json:"deleted"`
}

// ErrorResponse represents error response body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
