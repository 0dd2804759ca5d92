package memstore

import (
	"context"
	"sync"

	"github.com/ayo6706/delivery-marketplace/internal/repository"
)

// IdempotencyKeys is an in-memory idempotency_keys table.
type IdempotencyKeys struct {
	mu   sync.Mutex
	rows map[string]repository.IdempotencyKey
}

func NewIdempotencyKeys() *IdempotencyKeys {
	return &IdempotencyKeys{rows: map[string]repository.IdempotencyKey{}}
}

func (k *IdempotencyKeys) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	row, ok := k.rows[key]
	if !ok {
		return repository.IdempotencyKey{}, errNoRows()
	}
	return row, nil
}

func (k *IdempotencyKeys) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, taken := k.rows[arg.IdempotencyKey]; taken {
		return repository.IdempotencyKey{}, errNoRows()
	}
	row := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
		CreatedAt:      now(),
		UpdatedAt:      now(),
	}
	k.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (k *IdempotencyKeys) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	row, ok := k.rows[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, errNoRows()
	}
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	row.ContentType = arg.ContentType
	row.InProgress = false
	row.UpdatedAt = now()
	k.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (k *IdempotencyKeys) DeleteIdempotencyKey(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if row, ok := k.rows[key]; ok && row.InProgress {
		delete(k.rows, key)
	}
	return nil
}
