// Package storage defines the abstract key -> (item, shard bytes) store
// every farmer uses to hold shards and their per-farmer contract/audit
// metadata, plus three concrete adapters (memory, embedded-KV, filesystem)
// and a ShardManager that layers eviction/locking policy on top of any of
// them.
package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/Storj/core/audit"
	"github.com/Storj/core/contract"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
)

// KeyPattern matches the 40-hex RIPEMD160 shard hash used as every
// adapter key.
var KeyPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ErrNotFound is returned by Get/Peek when key has no record.
var ErrNotFound = fmt.Errorf("%w: no record for key", errs.ErrStorage)

// ErrHashMismatch is returned by Put when key does not equal the hex form
// of item.Hash.
var ErrHashMismatch = fmt.Errorf("%w: key does not match item hash", errs.ErrStorage)

// Item is a shard's metadata: its hash, and per-farmer contract/audit
// state. The renter and farmer both hold Items for the same shard, keyed
// under different farmer IDs as a contract is negotiated with more
// farmers (mirroring), so every field here is a map keyed by a string ID.
// Contracts is keyed by farmer ID; the protocol handlers key Trees by
// contract ID.
type Item struct {
	Hash       crypto.Hash
	Contracts  map[string]*contract.Contract
	Trees      map[string][]crypto.Hash
	Challenges map[string][]audit.Challenge
	Meta       map[string]map[string]any
}

// NewItem returns an empty Item for hash.
func NewItem(hash crypto.Hash) *Item {
	return &Item{
		Hash:       hash,
		Contracts:  make(map[string]*contract.Contract),
		Trees:      make(map[string][]crypto.Hash),
		Challenges: make(map[string][]audit.Challenge),
		Meta:       make(map[string]map[string]any),
	}
}

// mergeInto unions src's per-farmer entries into dst, never dropping an
// entry already present in dst (put-then-get must return a semantic
// superset, invariant 4).
func mergeInto(dst, src *Item) {
	for k, v := range src.Contracts {
		dst.Contracts[k] = v
	}
	for k, v := range src.Trees {
		dst.Trees[k] = v
	}
	for k, v := range src.Challenges {
		dst.Challenges[k] = v
	}
	for k, v := range src.Meta {
		if dst.Meta[k] == nil {
			dst.Meta[k] = make(map[string]any)
		}
		for mk, mv := range v {
			dst.Meta[k][mk] = mv
		}
	}
}

// Adapter is the abstract shard store. Implementations must serialise
// concurrent Puts to the same key (§5); concurrent Gets are always safe.
type Adapter interface {
	// Get returns item's metadata and, if shard bytes are present, a
	// readable stream over them. The caller must close the stream.
	Get(ctx context.Context, key string) (*Item, io.ReadCloser, error)

	// Peek returns item's metadata without attaching a shard stream.
	Peek(ctx context.Context, key string) (*Item, error)

	// Put idempotently merges item's per-farmer maps into any existing
	// record for key, and, if shard is non-nil, stores its bytes
	// (overwriting any previous bytes for key).
	Put(ctx context.Context, key string, item *Item, shard io.Reader) error

	// Del removes key's shard bytes; metadata retention is left to the
	// policy layer (ShardManager), not the adapter.
	Del(ctx context.Context, key string) error

	// Keys iterates the adapter's stored keys, filtered to KeyPattern.
	Keys(ctx context.Context) ([]string, error)

	// Size reports total bytes of shard data currently stored.
	Size(ctx context.Context) (int64, error)
}

// ValidateKey reports whether key matches the 40-hex pattern and, if
// item is non-nil, that key equals item.Hash's hex form.
func ValidateKey(key string, item *Item) error {
	if !KeyPattern.MatchString(key) {
		return fmt.Errorf("%w: key %q is not a 40-hex shard hash", errs.ErrValidation, key)
	}
	if item != nil && item.Hash.String() != key {
		return ErrHashMismatch
	}
	return nil
}
