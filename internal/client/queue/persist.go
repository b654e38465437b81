package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/models"
)

var emptyLog = []byte("[]")

type mutation func(records []*models.MutationRecord) ([]*models.MutationRecord, error)

// mutate выполняет read-modify-write всего лога под writer lock.
// Наблюдатели уведомляются после снятия блокировки.
func (l *Log) mutate(ctx context.Context, op string, fn mutation) ([]*models.MutationRecord, error) {
	l.mu.Lock()
	records, stats, changed, err := l.mutateLocked(ctx, op, fn)
	l.mu.Unlock()

	if changed {
		l.changes.Notify(stats)
	}
	if err != nil && storage.IsStorageError(err) {
		l.anomalies.Notify(err)
	}
	return records, err
}

func (l *Log) mutateLocked(ctx context.Context, op string, fn mutation) ([]*models.MutationRecord, Stats, bool, error) {
	var (
		result  []*models.MutationRecord
		corrupt error
		lost    int
	)

	err := l.store.Update(ctx, Key, func(old []byte) ([]byte, error) {
		records, err := decodeRecords(old)
		if err != nil {
			// Лог не читается: переинициализируем в той же транзакции
			corrupt, lost = err, len(old)
			return emptyLog, nil
		}

		records, err = fn(records)
		if err != nil {
			return nil, err
		}
		sortRecords(records)
		result = records

		if records == nil {
			return emptyLog, nil
		}
		return json.Marshal(records)
	})

	if err != nil {
		if isDomainError(err) {
			return nil, Stats{}, false, err
		}
		return nil, Stats{}, false, l.storageFailure(op, err)
	}

	l.revision++
	if corrupt != nil {
		return nil, Stats{Revision: l.revision}, true, l.corrupted(op, lost, corrupt)
	}

	stats := countRecords(result)
	stats.Revision = l.revision
	return result, stats, true, nil
}

// read передает в fn текущее содержимое лога.
// Нечитаемый лог переинициализируется так же, как при записи.
func (l *Log) read(ctx context.Context, op string, fn func(records []*models.MutationRecord)) error {
	data, err := l.store.Get(ctx, Key)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		err = l.storageFailure(op, err)
		l.anomalies.Notify(err)
		return err
	}

	records, decodeErr := decodeRecords(data)
	if decodeErr == nil {
		fn(records)
		return nil
	}

	// Повторяем через mutate: он перечитает лог внутри транзакции и сбросит его
	_, err = l.mutate(ctx, op, func(records []*models.MutationRecord) ([]*models.MutationRecord, error) {
		fn(records)
		return records, nil
	})
	return err
}

func (l *Log) corrupted(op string, lost int, cause error) error {
	l.logger.Error("Mutation log corrupted, reinitialized empty; queued mutations were lost",
		"op", op,
		"key", Key,
		"lost_bytes", lost,
		"error", cause)

	return &storage.StorageError{
		Op:  op,
		Key: Key,
		Err: fmt.Errorf("%w: %v", ErrLogCorrupted, cause),
	}
}

func (l *Log) storageFailure(op string, err error) error {
	l.logger.Error("Mutation log storage failure", "op", op, "key", Key, "error", err)

	var se *storage.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &storage.StorageError{Op: op, Key: Key, Err: err}
}
