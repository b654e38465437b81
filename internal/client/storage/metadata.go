package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MetadataKey ключ, под которым хранятся сведения о синхронизации
const MetadataKey = "sync_metadata"

// SyncMetadata is the persisted summary of past deliveries.
type SyncMetadata struct {
	LastMutation string `json:"last_mutation,omitempty"`
	LastSyncAt   int64  `json:"last_sync_at"` // unix nano, 0 = ни разу
	TotalApplied int64  `json:"total_applied"`
}

// Metadata reads and writes SyncMetadata through a Store.
type Metadata struct {
	store Store
}

// NewMetadata registers the metadata validator on store.
func NewMetadata(store Store) *Metadata {
	store.RegisterValidator(MetadataKey, JSONValidator(func(m *SyncMetadata) error {
		if m.LastSyncAt < 0 || m.TotalApplied < 0 {
			return &ValidationError{Key: MetadataKey, Field: "last_sync_at", Reason: "must not be negative"}
		}
		return nil
	}))
	return &Metadata{store: store}
}

// Get returns the stored metadata, zero value if nothing was delivered yet.
func (m *Metadata) Get(ctx context.Context) (SyncMetadata, error) {
	var meta SyncMetadata

	data, err := m.store.Get(ctx, MetadataKey)
	if errors.Is(err, ErrKeyNotFound) {
		return meta, nil
	}
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to decode sync metadata: %w", err)
	}
	return meta, nil
}

// RecordApplied stores the time of a successful delivery of mutationID.
func (m *Metadata) RecordApplied(ctx context.Context, mutationID string, at time.Time) error {
	return m.store.Update(ctx, MetadataKey, func(old []byte) ([]byte, error) {
		var meta SyncMetadata
		if old != nil {
			if err := json.Unmarshal(old, &meta); err != nil {
				return nil, fmt.Errorf("failed to decode sync metadata: %w", err)
			}
		}

		// Часы могли уйти назад, время последней синхронизации не уменьшаем
		if ns := at.UnixNano(); ns > meta.LastSyncAt {
			meta.LastSyncAt = ns
		}
		meta.LastMutation = mutationID
		meta.TotalApplied++

		return json.Marshal(meta)
	})
}

// LastSync returns the time of the last delivery, zero if none.
func (s SyncMetadata) LastSync() time.Time {
	if s.LastSyncAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, s.LastSyncAt)
}
