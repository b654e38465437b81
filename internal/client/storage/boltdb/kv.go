package boltdb

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/offsync/internal/client/storage"
)

// RegisterValidator installs a validator for key
func (s *Storage) RegisterValidator(key string, v storage.Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v == nil {
		delete(s.validators, key)
		return
	}
	s.validators[key] = v
}

// Get returns the value stored under key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketKV)
		if bucket == nil {
			return storage.ErrKeyNotFound
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return storage.ErrKeyNotFound
		}

		// Память bbolt валидна только внутри транзакции, копируем
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})

	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, err
		}
		return nil, &storage.StorageError{Op: "get", Key: key, Err: err}
	}

	return value, nil
}

// Set validates and stores value under key
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return value, nil
	})
}

// Update atomically replaces the value under key inside one write transaction
func (s *Storage) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrStorageClosed
	}

	validator := s.validators[key]

	// fnErr отделяет ошибки вызывающего кода и валидации от ошибок bbolt
	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketKV)
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}

		var old []byte
		if data := bucket.Get([]byte(key)); data != nil {
			old = make([]byte, len(data))
			copy(old, data)
		}

		value, err := fn(old)
		if err != nil {
			fnErr = err
			return err
		}

		if validator != nil {
			if err := validator(value); err != nil {
				fnErr = asValidationError(key, err)
				return fnErr
			}
		}

		if err := bucket.Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to put value: %w", err)
		}
		return nil
	})

	if err != nil {
		if fnErr != nil {
			return fnErr
		}
		return &storage.StorageError{Op: "set", Key: key, Err: err}
	}

	return nil
}

// Remove deletes key
func (s *Storage) Remove(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketKV)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})

	if err != nil {
		return &storage.StorageError{Op: "remove", Key: key, Err: err}
	}

	return nil
}

// asValidationError приводит ошибку валидатора к *storage.ValidationError с заполненным ключом
func asValidationError(key string, err error) error {
	var ve *storage.ValidationError
	if errors.As(err, &ve) {
		if ve.Key == "" {
			withKey := *ve
			withKey.Key = key
			return &withKey
		}
		return ve
	}
	return &storage.ValidationError{Key: key, Reason: err.Error()}
}
