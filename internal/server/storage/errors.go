package storage

import "errors"

// Common storage errors
var (
	// ErrResourceNotFound indicates that the target does not exist or is deleted
	ErrResourceNotFound = errors.New("resource not found")

	// ErrResourceExists indicates a create for a target that is already live
	ErrResourceExists = errors.New("resource already exists")

	// ErrIdempotencyMismatch indicates that the idempotency key was already
	// used for a different mutation
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different mutation")
)
