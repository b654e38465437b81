package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/server/storage"
)

// ApplyMutation applies req in a single transaction, see storage.MutationStorage.
func (s *Storage) ApplyMutation(ctx context.Context, req *storage.ApplyRequest) (*storage.ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Ключ уже применялся: повтор или чужая мутация с тем же ключом
	prev, err := getApplied(ctx, tx, req.Owner, req.ID)
	switch {
	case err == nil:
		if prev.Fingerprint != req.Fingerprint {
			return nil, storage.ErrIdempotencyMismatch
		}
		return &storage.ApplyResult{
			ID:        prev.ID,
			Target:    prev.Target,
			AppliedAt: prev.AppliedAt,
			Replayed:  true,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	existing, err := getResource(ctx, tx, req.Owner, req.Target)
	if err != nil && !errors.Is(err, storage.ErrResourceNotFound) {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}
	live := existing != nil && !existing.Deleted

	now := s.now().UTC()

	switch req.Action {
	case models.ActionCreate:
		if live {
			return nil, storage.ErrResourceExists
		}
		err = upsertResource(ctx, tx, req, now, false)
	case models.ActionUpdate:
		if !live {
			return nil, storage.ErrResourceNotFound
		}
		err = upsertResource(ctx, tx, req, now, false)
	case models.ActionDelete:
		if !live {
			return nil, storage.ErrResourceNotFound
		}
		err = upsertResource(ctx, tx, req, now, true)
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO applied_mutations (owner, id, action, target, fingerprint, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		req.Owner, req.ID, string(req.Action), req.Target, req.Fingerprint, now.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("failed to record applied mutation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &storage.ApplyResult{
		ID:        req.ID,
		Target:    req.Target,
		AppliedAt: now,
	}, nil
}

// GetResource returns the resource, deleted ones included.
func (s *Storage) GetResource(ctx context.Context, owner, target string) (*models.Resource, error) {
	return getResource(ctx, s.db, owner, target)
}

// PruneApplied deletes idempotency records older than before.
// Resources themselves are kept.
func (s *Storage) PruneApplied(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM applied_mutations WHERE applied_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune applied mutations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// queryer общий интерфейс *sql.DB и *sql.Tx для чтения
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getApplied(ctx context.Context, q queryer, owner, id string) (*models.AppliedMutation, error) {
	query := `
		SELECT owner, id, action, target, fingerprint, applied_at
		FROM applied_mutations
		WHERE owner = ? AND id = ?
	`

	var (
		m         models.AppliedMutation
		action    string
		appliedAt int64
	)
	err := q.QueryRowContext(ctx, query, owner, id).Scan(
		&m.Owner, &m.ID, &action, &m.Target, &m.Fingerprint, &appliedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Action = models.Action(action)
	m.AppliedAt = time.Unix(0, appliedAt).UTC()
	return &m, nil
}

func getResource(ctx context.Context, q queryer, owner, target string) (*models.Resource, error) {
	query := `
		SELECT owner, target, payload, deleted, created_at, updated_at
		FROM resources
		WHERE owner = ? AND target = ?
	`

	var (
		r                    models.Resource
		payload              []byte
		deleted              int
		createdAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx, query, owner, target).Scan(
		&r.Owner, &r.Target, &payload, &deleted, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	r.Payload = payload
	r.Deleted = deleted != 0
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &r, nil
}

// upsertResource пишет новое состояние ресурса, при удалении payload очищается
func upsertResource(ctx context.Context, tx *sql.Tx, req *storage.ApplyRequest, now time.Time, deleted bool) error {
	var payload []byte
	if !deleted {
		payload = req.Payload
	}

	query := `
		INSERT INTO resources (owner, target, payload, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, target) DO UPDATE SET
			payload = excluded.payload,
			deleted = excluded.deleted,
			created_at = CASE WHEN resources.deleted = 1 THEN excluded.created_at ELSE resources.created_at END,
			updated_at = excluded.updated_at
	`

	_, err := tx.ExecContext(ctx, query,
		req.Owner, req.Target, payload, boolToInt(deleted), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write resource: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
