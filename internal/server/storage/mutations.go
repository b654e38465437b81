package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iudanet/offsync/internal/models"
)

// ApplyRequest is a validated mutation ready to be applied for an owner.
type ApplyRequest struct {
	Payload     json.RawMessage
	Owner       string
	ID          string
	Action      models.Action
	Target      string
	Fingerprint string
}

// ApplyResult is the acknowledgement for an applied mutation.
type ApplyResult struct {
	AppliedAt time.Time
	ID        string
	Target    string
	Replayed  bool
}

//go:generate moq -out mutations_mock.go . MutationStorage

// MutationStorage defines interface for applying mutations with
// at-most-once semantics per idempotency key
type MutationStorage interface {
	// ApplyMutation applies req in one transaction.
	// A key already seen with the same fingerprint returns the original
	// result with Replayed set; with another fingerprint it returns
	// ErrIdempotencyMismatch. Create on a live resource returns
	// ErrResourceExists, update and delete on a missing one ErrResourceNotFound.
	ApplyMutation(ctx context.Context, req *ApplyRequest) (*ApplyResult, error)

	// GetResource returns the resource, deleted ones included.
	// Returns ErrResourceNotFound if it was never created.
	GetResource(ctx context.Context, owner, target string) (*models.Resource, error)

	// PruneApplied forgets idempotency keys applied before the cutoff.
	PruneApplied(ctx context.Context, before time.Time) (int64, error)

	// Ping checks that the database is reachable
	Ping(ctx context.Context) error
}
