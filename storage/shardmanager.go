package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Storj/core/errs"
)

// ErrStorageFull is returned when a Put would exceed the configured size
// cap.
var ErrStorageFull = fmt.Errorf("%w: storage at capacity", errs.ErrStorage)

// ShardManager mediates access to an Adapter, applying policy: a size
// cap, an eviction hook invoked when Put would exceed it, and a per-key
// mutex so concurrent Puts to the same key serialise (§5).
type ShardManager struct {
	adapter Adapter
	maxSize int64

	// OnEvictionNeeded is called with the number of bytes that must be
	// freed before a Put can proceed; it should Del enough keys (e.g. via
	// an LRU policy) and return the bytes actually freed. A nil hook means
	// ErrStorageFull is returned immediately instead.
	OnEvictionNeeded func(ctx context.Context, need int64) (freed int64, err error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewShardManager wraps adapter with a maxSize byte cap (0 = unlimited).
func NewShardManager(adapter Adapter, maxSize int64) *ShardManager {
	return &ShardManager{
		adapter: adapter,
		maxSize: maxSize,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *ShardManager) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Get delegates to the wrapped adapter.
func (s *ShardManager) Get(ctx context.Context, key string) (*Item, io.ReadCloser, error) {
	return s.adapter.Get(ctx, key)
}

// Peek delegates to the wrapped adapter.
func (s *ShardManager) Peek(ctx context.Context, key string) (*Item, error) {
	return s.adapter.Peek(ctx, key)
}

// Put serialises concurrent writers to key and enforces the size cap,
// requesting eviction before failing with ErrStorageFull.
func (s *ShardManager) Put(ctx context.Context, key string, item *Item, shard io.Reader, shardSize int64) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if s.maxSize > 0 && shardSize > 0 {
		used, err := s.adapter.Size(ctx)
		if err != nil {
			return err
		}
		if used+shardSize > s.maxSize {
			need := used + shardSize - s.maxSize
			if s.OnEvictionNeeded == nil {
				return ErrStorageFull
			}
			freed, err := s.OnEvictionNeeded(ctx, need)
			if err != nil {
				return err
			}
			if freed < need {
				return ErrStorageFull
			}
		}
	}

	return s.adapter.Put(ctx, key, item, shard)
}

// Del delegates to the wrapped adapter.
func (s *ShardManager) Del(ctx context.Context, key string) error {
	return s.adapter.Del(ctx, key)
}

// Keys delegates to the wrapped adapter.
func (s *ShardManager) Keys(ctx context.Context) ([]string, error) {
	return s.adapter.Keys(ctx)
}

// Size delegates to the wrapped adapter.
func (s *ShardManager) Size(ctx context.Context) (int64, error) {
	return s.adapter.Size(ctx)
}
