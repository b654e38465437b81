package boltdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/offsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketKV = []byte("kv")
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db         *bbolt.DB
	validators map[string]storage.Validator
	mu         sync.RWMutex // защищает db и validators
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB; таймаут, чтобы второй процесс не висел на flock бесконечно
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{
		db:         db,
		validators: make(map[string]storage.Validator),
	}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
// Second call is a no-op
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKV); err != nil {
			return fmt.Errorf("failed to create kv bucket: %w", err)
		}
		return nil
	})
}
