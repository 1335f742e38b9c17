package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/Storj/core/crypto"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketItems  = []byte("items")
	bucketShards = []byte("shards")
)

// Bolt is an Adapter backed by a go.etcd.io/bbolt database: metadata is
// stored as JSON in the "items" bucket, shard bytes as a binary value in
// the "shards" bucket, which Get returns as a reader over an in-memory
// copy of the value.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketItems); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketShards)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying database file.
func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) Get(ctx context.Context, key string) (*Item, io.ReadCloser, error) {
	item, err := b.Peek(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	var shard io.ReadCloser
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketShards).Get([]byte(key))
		if v != nil {
			// Copy out of the mmap'd page before the transaction closes.
			shard = io.NopCloser(bytes.NewReader(append([]byte(nil), v...)))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return item, shard, nil
}

func (b *Bolt) Peek(ctx context.Context, key string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketItems).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		item = NewItem(crypto.Hash{})
		return json.Unmarshal(v, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (b *Bolt) Put(ctx context.Context, key string, item *Item, shard io.Reader) error {
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

	return b.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(bucketItems)
		existing := NewItem(item.Hash)
		if v := items.Get([]byte(key)); v != nil {
			if err := json.Unmarshal(v, existing); err != nil {
				return err
			}
		}
		mergeInto(existing, item)

		encoded, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		if err := items.Put([]byte(key), encoded); err != nil {
			return err
		}
		if shardBytes != nil {
			if err := tx.Bucket(bucketShards).Put([]byte(key), shardBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Del(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShards).Delete([]byte(key))
	})
}

func (b *Bolt) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(k, _ []byte) error {
			if KeyPattern.Match(k) {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	return keys, err
}

func (b *Bolt) Size(ctx context.Context) (int64, error) {
	var total int64
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShards).ForEach(func(_, v []byte) error {
			total += int64(len(v))
			return nil
		})
	})
	return total, err
}
