package storage

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// InmemoryStore is a single JSON document guarded by a mutex, written by the
// hub's one goroutine and read concurrently by the status HTTP handler.
type InmemoryStore struct {
	mu     sync.Mutex
	values []byte
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{values: []byte("{}")}
}

func (i *InmemoryStore) Set(ctx context.Context, path string, value interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	updated, err := sjson.SetBytes(i.values, path, value)
	if err != nil {
		return err
	}

	i.values = updated
	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	result := gjson.GetBytes(i.values, path)
	return []byte(result.Raw), nil
}

func (i *InmemoryStore) Snapshot() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]byte, len(i.values))
	copy(out, i.values)

	return out, nil
}

func (i *InmemoryStore) Close() error {
	return nil
}

var _ Store = (*InmemoryStore)(nil)
