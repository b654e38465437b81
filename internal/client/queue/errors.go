package queue

import (
	"errors"

	"github.com/iudanet/offsync/internal/client/storage"
)

var (
	// ErrRecordNotFound indicates that no mutation with the id is in the log
	ErrRecordNotFound = errors.New("mutation record not found")

	// ErrInvalidTransition indicates a status change the log does not allow
	ErrInvalidTransition = errors.New("invalid mutation status transition")

	// ErrInFlightExists indicates that another record is already in flight
	ErrInFlightExists = errors.New("another mutation is already in flight")

	// ErrLogCorrupted indicates that the persisted log could not be decoded
	// and was reinitialized to empty
	ErrLogCorrupted = errors.New("mutation log corrupted")
)

// isDomainError отделяет ошибки бизнес-логики от ошибок хранилища
func isDomainError(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInFlightExists) ||
		storage.IsValidationError(err)
}
