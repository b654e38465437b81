// Package queue implements the durable mutation log: an ordered, persisted
// collection of pending write operations stored under a single key of the
// local store.
//
// Every mutation of the log is a read-modify-write of the whole JSON array
// executed under the log's writer lock and inside one store transaction, so
// concurrent producers and the sync engine never lose each other's updates.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/clock"
	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/observer"
	"github.com/iudanet/offsync/internal/validation"
)

// Key is the store key holding the persisted log.
const Key = "sync_queue.v1"

// Stats summarizes the log.
// Revision grows with every committed change and lets observers discard
// notifications that arrive out of order.
type Stats struct {
	Pending  int    `json:"pending"`
	InFlight int    `json:"in_flight"`
	Failed   int    `json:"failed"`
	Revision uint64 `json:"revision"`
}

// Outstanding returns the number of records still waiting for delivery.
func (s Stats) Outstanding() int {
	return s.Pending + s.InFlight
}

// Log is the durable mutation log.
type Log struct {
	store     storage.Store
	clock     clock.Clock
	logger    *slog.Logger
	newID     func() string
	changes   observer.Registry[Stats]
	anomalies observer.Registry[error]
	revision  uint64
	lastStamp int64
	mu        sync.Mutex // single logical writer lock
}

// New creates a log on top of store and registers the validator for Key.
func New(store storage.Store, clk clock.Clock, logger *slog.Logger) *Log {
	store.RegisterValidator(Key, storage.JSONValidator(checkRecords))

	return &Log{
		store:  store,
		clock:  clk,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// OnChange registers fn to be called with fresh stats after every committed
// change, including a reinitialization after corruption.
func (l *Log) OnChange(fn func(Stats)) observer.Handle {
	return l.changes.Register(fn)
}

// OnAnomaly registers fn to be called with every *storage.StorageError the
// log runs into.
func (l *Log) OnAnomaly(fn func(error)) observer.Handle {
	return l.anomalies.Register(fn)
}

// Enqueue validates and appends a new pending mutation and returns its id.
// It never touches the network.
func (l *Log) Enqueue(ctx context.Context, action models.Action, target string, payload json.RawMessage, priority int) (string, error) {
	if err := validateMutation(action, target, payload); err != nil {
		return "", err
	}

	var id string
	_, err := l.mutate(ctx, "enqueue", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		now := l.clock.Now().UnixNano()
		stamp := l.nextStamp(now, records)

		record := &models.MutationRecord{
			ID:        l.newID(),
			Action:    action,
			Target:    strings.TrimSpace(target),
			Payload:   compactPayload(payload),
			Priority:  priority,
			CreatedAt: stamp,
			UpdatedAt: now,
			Status:    models.MutationPending,
		}
		id = record.ID
		return append(records, record), nil
	})
	if err != nil {
		return "", err
	}

	l.logger.Debug("Mutation enqueued",
		"mutation_id", id,
		"action", action,
		"target", target,
		"priority", priority)

	return id, nil
}

// PeekNext returns the pending record that drains first, or nil.
func (l *Log) PeekNext(ctx context.Context) (*models.MutationRecord, error) {
	var next *models.MutationRecord
	err := l.read(ctx, "peek", func(records []*models.MutationRecord) {
		for _, r := range records {
			if r.Status == models.MutationPending {
				next = r.Clone()
				return
			}
		}
	})
	return next, err
}

// Get returns the record with id.
func (l *Log) Get(ctx context.Context, id string) (*models.MutationRecord, error) {
	var found *models.MutationRecord
	err := l.read(ctx, "get", func(records []*models.MutationRecord) {
		if r := findRecord(records, id); r != nil {
			found = r.Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return found, nil
}

// MarkInFlight moves a pending record to in_flight and counts the attempt.
func (l *Log) MarkInFlight(ctx context.Context, id string) error {
	_, err := l.mutate(ctx, "mark_in_flight", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		for _, r := range records {
			if r.Status == models.MutationInFlight && r.ID != id {
				return nil, fmt.Errorf("%w: %s", ErrInFlightExists, r.ID)
			}
		}

		r, err := transition(records, id, models.MutationPending)
		if err != nil {
			return nil, err
		}
		r.Status = models.MutationInFlight
		r.Attempts++
		r.UpdatedAt = l.clock.Now().UnixNano()
		return records, nil
	})
	return err
}

// MarkDone removes an in_flight record from the log.
func (l *Log) MarkDone(ctx context.Context, id string) error {
	_, err := l.mutate(ctx, "mark_done", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		if _, err := transition(records, id, models.MutationInFlight); err != nil {
			return nil, err
		}
		return removeRecord(records, id), nil
	})
	return err
}

// MarkFailed keeps an in_flight record as failed until it is retried or
// discarded.
func (l *Log) MarkFailed(ctx context.Context, id string, cause error) error {
	_, err := l.mutate(ctx, "mark_failed", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		r, err := transition(records, id, models.MutationInFlight)
		if err != nil {
			return nil, err
		}
		r.Status = models.MutationFailed
		r.LastError = errorText(cause)
		r.UpdatedAt = l.clock.Now().UnixNano()
		return records, nil
	})
	return err
}

// MarkPendingWithBackoff returns an in_flight record to pending after a
// transient failure. The record keeps its priority and CreatedAt, so it
// stays at its original place in the drain order.
func (l *Log) MarkPendingWithBackoff(ctx context.Context, id string, cause error, attempts int) error {
	_, err := l.mutate(ctx, "mark_backoff", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		r, err := transition(records, id, models.MutationInFlight)
		if err != nil {
			return nil, err
		}
		r.Status = models.MutationPending
		r.Attempts = attempts
		r.LastError = errorText(cause)
		r.UpdatedAt = l.clock.Now().UnixNano()
		return records, nil
	})
	return err
}

// MarkPending returns an in_flight record to pending without touching its
// attempts, for a call whose outcome is unknown because the engine stopped.
func (l *Log) MarkPending(ctx context.Context, id string) error {
	_, err := l.mutate(ctx, "mark_pending", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		r, err := transition(records, id, models.MutationInFlight)
		if err != nil {
			return nil, err
		}
		r.Status = models.MutationPending
		r.UpdatedAt = l.clock.Now().UnixNano()
		return records, nil
	})
	return err
}

// Retry moves a failed record back to pending with a fresh attempt budget.
// The id is kept, so the remote side can recognize a mutation that already
// landed.
func (l *Log) Retry(ctx context.Context, id string) error {
	_, err := l.mutate(ctx, "retry", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		r, err := transition(records, id, models.MutationFailed)
		if err != nil {
			return nil, err
		}
		r.Status = models.MutationPending
		r.Attempts = 0
		r.UpdatedAt = l.clock.Now().UnixNano()
		return records, nil
	})
	return err
}

// Discard removes a failed record.
func (l *Log) Discard(ctx context.Context, id string) error {
	_, err := l.mutate(ctx, "discard", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		if _, err := transition(records, id, models.MutationFailed); err != nil {
			return nil, err
		}
		return removeRecord(records, id), nil
	})
	return err
}

// Recover returns records left in_flight by a previous process to pending.
// Call it once before the engine starts draining.
func (l *Log) Recover(ctx context.Context) (int, error) {
	recovered := 0
	_, err := l.mutate(ctx, "recover", func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		for _, r := range records {
			if r.Status == models.MutationInFlight {
				r.Status = models.MutationPending
				r.UpdatedAt = l.clock.Now().UnixNano()
				recovered++
			}
		}
		return records, nil
	})
	if err != nil {
		return 0, err
	}

	if recovered > 0 {
		l.logger.Warn("Recovered interrupted mutations", "count", recovered)
	}
	return recovered, nil
}

// Stats returns the number of pending, in_flight and failed records.
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	// Ревизию читаем до данных: счетчики могут быть только новее ревизии, не старее
	l.mu.Lock()
	revision := l.revision
	l.mu.Unlock()

	var stats Stats
	err := l.read(ctx, "stats", func(records []*models.MutationRecord) {
		stats = countRecords(records)
	})
	if err != nil {
		return Stats{}, err
	}

	stats.Revision = revision
	return stats, nil
}

// ListFailed returns failed records in drain order.
func (l *Log) ListFailed(ctx context.Context) ([]*models.MutationRecord, error) {
	return l.filter(ctx, "list_failed", func(r *models.MutationRecord) bool {
		return r.Status == models.MutationFailed
	})
}

// List returns every record in drain order.
func (l *Log) List(ctx context.Context) ([]*models.MutationRecord, error) {
	return l.filter(ctx, "list", nil)
}

func (l *Log) filter(ctx context.Context, op string, keep func(*models.MutationRecord) bool) ([]*models.MutationRecord, error) {
	result := []*models.MutationRecord{}
	err := l.read(ctx, op, func(records []*models.MutationRecord) {
		for _, r := range records {
			if keep == nil || keep(r) {
				result = append(result, r.Clone())
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// nextStamp возвращает строго возрастающий CreatedAt даже если часы стоят или идут назад
func (l *Log) nextStamp(now int64, records []*models.MutationRecord) int64 {
	last := l.lastStamp
	for _, r := range records {
		if r.CreatedAt > last {
			last = r.CreatedAt
		}
	}
	if now <= last {
		now = last + 1
	}
	l.lastStamp = now
	return now
}

func validateMutation(action models.Action, target string, payload json.RawMessage) error {
	if !action.Valid() {
		return &storage.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if err := validation.ValidateTarget(strings.TrimSpace(target)); err != nil {
		return &storage.ValidationError{Field: "target", Reason: err.Error()}
	}
	if len(payload) == 0 {
		if action != models.ActionDelete {
			return &storage.ValidationError{Field: "payload", Reason: fmt.Sprintf("required for %s", action)}
		}
		return nil
	}
	if !json.Valid(payload) {
		return &storage.ValidationError{Field: "payload", Reason: "must be valid JSON"}
	}
	return nil
}

// checkRecords проверяет инварианты сохраняемого лога
func checkRecords(records *[]*models.MutationRecord) error {
	seen := make(map[string]struct{}, len(*records))
	inFlight := 0
	for _, r := range *records {
		if r == nil || r.ID == "" {
			return &storage.ValidationError{Field: "id", Reason: "record without id"}
		}
		if _, dup := seen[r.ID]; dup {
			return &storage.ValidationError{Field: "id", Reason: "duplicate id " + r.ID}
		}
		seen[r.ID] = struct{}{}

		switch r.Status {
		case models.MutationPending, models.MutationFailed:
		case models.MutationInFlight:
			inFlight++
		default:
			return &storage.ValidationError{Field: "status", Reason: fmt.Sprintf("unexpected status %q", r.Status)}
		}
	}
	if inFlight > 1 {
		return &storage.ValidationError{Field: "status", Reason: "more than one record in flight"}
	}
	return nil
}

func decodeRecords(data []byte) ([]*models.MutationRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []*models.MutationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	// Валидный JSON с нарушенными инвариантами тоже считается повреждением
	for _, r := range records {
		if r == nil {
			return nil, errors.New("null record in log")
		}
	}
	if err := checkRecords(&records); err != nil {
		return nil, fmt.Errorf("log breaks its invariants: %v", err)
	}
	return records, nil
}

func sortRecords(records []*models.MutationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Less(records[j])
	})
}

func countRecords(records []*models.MutationRecord) Stats {
	var s Stats
	for _, r := range records {
		switch r.Status {
		case models.MutationPending:
			s.Pending++
		case models.MutationInFlight:
			s.InFlight++
		case models.MutationFailed:
			s.Failed++
		}
	}
	return s
}

func findRecord(records []*models.MutationRecord, id string) *models.MutationRecord {
	for _, r := range records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// transition находит запись и проверяет, что она в ожидаемом статусе
func transition(records []*models.MutationRecord, id string, from models.MutationStatus) (*models.MutationRecord, error) {
	r := findRecord(records, id)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if r.Status != from {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, id, r.Status, from)
	}
	return r, nil
}

func removeRecord(records []*models.MutationRecord, id string) []*models.MutationRecord {
	out := records[:0]
	for _, r := range records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func compactPayload(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(payload))
	copy(out, payload)
	return out
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
