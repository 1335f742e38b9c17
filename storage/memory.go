package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory is an in-memory Adapter backed by two maps: metadata items and
// raw shard byte buffers.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*Item
	data  map[string][]byte
}

// NewMemory returns an empty in-memory Adapter.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]*Item),
		data:  make(map[string][]byte),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (*Item, io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if shard, ok := m.data[key]; ok {
		return item, io.NopCloser(bytes.NewReader(shard)), nil
	}
	return item, nil, nil
}

func (m *Memory) Peek(ctx context.Context, key string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

func (m *Memory) Put(ctx context.Context, key string, item *Item, shard io.Reader) error {
	if err := ValidateKey(key, item); err != nil {
		return err
	}

	var shardBytes []byte
	if shard != nil {
		var err error
		shardBytes, err = io.ReadAll(shard)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[key]
	if !ok {
		existing = NewItem(item.Hash)
	}
	mergeInto(existing, item)
	m.items[key] = existing
	if shardBytes != nil {
		m.data[key] = shardBytes
	}
	return nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if KeyPattern.MatchString(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Size(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, b := range m.data {
		total += int64(len(b))
	}
	return total, nil
}
