package storage

import (
	"context"
	"encoding/json"
)

//go:generate moq -out store_mock.go . Store

// Store defines the keyed durable storage used by every client component.
// It is the only place where the client touches the disk.
type Store interface {
	// Get returns the value stored under key
	// Returns ErrKeyNotFound if the key is absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set validates and stores value under key
	// Returns *ValidationError without writing if the key's validator rejects it
	Set(ctx context.Context, key string, value []byte) error

	// Update atomically replaces the value under key with fn(old)
	// old is nil when the key is absent. The result goes through the key's
	// validator; if fn or validation fails nothing is written
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error

	// Remove deletes key. Removing an absent key is not an error
	Remove(ctx context.Context, key string) error

	// RegisterValidator installs v for key, replacing a previous validator
	RegisterValidator(key string, v Validator)
}

// Validator checks a value before it is persisted.
type Validator func(value []byte) error

// JSONValidator returns a Validator that requires the value to decode into T
// and, when check is non-nil, to pass check.
func JSONValidator[T any](check func(*T) error) Validator {
	return func(value []byte) error {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			return &ValidationError{Reason: "value is not valid JSON for the key: " + err.Error()}
		}
		if check != nil {
			return check(&v)
		}
		return nil
	}
}
