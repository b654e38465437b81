package storage

import (
	"errors"
	"fmt"
)

// Common client storage errors
var (
	// ErrKeyNotFound indicates that no value is stored under the key
	ErrKeyNotFound = errors.New("key not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)

// ValidationError is returned when a value is rejected before it reaches
// durable storage. Nothing is persisted when it is returned.
type ValidationError struct {
	Key    string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Key != "" && e.Field != "":
		return fmt.Sprintf("validation failed for %s (%s): %s", e.Key, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("validation failed (%s): %s", e.Field, e.Reason)
	case e.Key != "":
		return fmt.Sprintf("validation failed for %s: %s", e.Key, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// StorageError wraps a failure to read or write durable state.
type StorageError struct {
	Err error
	Op  string
	Key string
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
