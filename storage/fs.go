package storage

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gitlab.com/NebulousLabs/writeaheadlog"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
)

// writeFileUpdateName names the one write-ahead log update type FS uses:
// write data to a path. Mirrors the teacher's
// contractmanager/writeaheadlog.go idiom of one named update per
// idempotent disk mutation.
const writeFileUpdateName = "WriteFile"

// fileUpdate is the JSON-encoded Instructions payload for a
// writeFileUpdateName update.
type fileUpdate struct {
	Path string
	Data []byte
}

func writeFileUpdate(path string, data []byte) (writeaheadlog.Update, error) {
	instructions, err := json.Marshal(fileUpdate{Path: path, Data: data})
	if err != nil {
		return writeaheadlog.Update{}, err
	}
	return writeaheadlog.Update{Name: writeFileUpdateName, Instructions: instructions}, nil
}

func applyFileUpdate(u writeaheadlog.Update) error {
	var fu fileUpdate
	if err := json.Unmarshal(u.Instructions, &fu); err != nil {
		return err
	}
	return os.WriteFile(fu.Path, fu.Data, 0o600)
}

// FS is a filesystem-backed Adapter: each shard gets its own directory
// under root, holding meta.json (the Item) and shard.bin (the raw
// bytes). Both files making up one Put are written through a
// write-ahead log transaction so a crash between them can't leave
// meta.json pointing at a shard.bin that was never fully written.
type FS struct {
	root string
	wal  *writeaheadlog.WAL
	mu   sync.Mutex
}

// NewFS returns an Adapter rooted at dir, creating it if necessary and
// replaying any write-ahead log transactions left unfinished by a prior
// crash before serving reads.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	unfinished, wal, err := writeaheadlog.New(filepath.Join(dir, "fs.wal"))
	if err != nil {
		return nil, errs.AddContext(err, "open shard store write-ahead log")
	}
	for _, txn := range unfinished {
		for _, u := range txn.Updates {
			if u.Name != writeFileUpdateName {
				continue
			}
			if err := applyFileUpdate(u); err != nil {
				return nil, errs.AddContext(err, "replay shard store write-ahead log")
			}
		}
		if err := txn.SignalUpdatesApplied(); err != nil {
			return nil, errs.AddContext(err, "signal replayed updates applied")
		}
	}

	return &FS{root: dir, wal: wal}, nil
}

func (f *FS) shardDir(key string) string { return filepath.Join(f.root, key) }
func (f *FS) metaPath(key string) string { return filepath.Join(f.shardDir(key), "meta.json") }
func (f *FS) dataPath(key string) string { return filepath.Join(f.shardDir(key), "shard.bin") }

func (f *FS) Get(ctx context.Context, key string) (*Item, io.ReadCloser, error) {
	item, err := f.Peek(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(f.dataPath(key))
	if os.IsNotExist(err) {
		return item, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return item, file, nil
}

func (f *FS) Peek(ctx context.Context, key string) (*Item, error) {
	b, err := os.ReadFile(f.metaPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item := NewItem(crypto.Hash{})
	if err := json.Unmarshal(b, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Put merges item into any existing metadata for key and, if shard is
// non-nil, writes its bytes too. Both writes happen inside a single
// write-ahead log transaction (gitlab.com/NebulousLabs/writeaheadlog, as
// used by the teacher's contractmanager for multi-file sector updates):
// Put either lands both files or, after a crash, replays both from the
// log on the next NewFS — never just the meta half.
func (f *FS) Put(ctx context.Context, key string, item *Item, shard io.Reader) error {
	if err := ValidateKey(key, item); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.shardDir(key), 0o700); err != nil {
		return err
	}

	existing := NewItem(item.Hash)
	if b, err := os.ReadFile(f.metaPath(key)); err == nil {
		if err := json.Unmarshal(b, existing); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	mergeInto(existing, item)

	encoded, err := json.Marshal(existing)
	if err != nil {
		return err
	}

	updates := make([]writeaheadlog.Update, 0, 2)
	metaUpdate, err := writeFileUpdate(f.metaPath(key), encoded)
	if err != nil {
		return err
	}
	updates = append(updates, metaUpdate)

	if shard != nil {
		shardBytes, err := io.ReadAll(shard)
		if err != nil {
			return err
		}
		dataUpdate, err := writeFileUpdate(f.dataPath(key), shardBytes)
		if err != nil {
			return err
		}
		updates = append(updates, dataUpdate)
	}

	txn, err := f.wal.NewTransaction(updates)
	if err != nil {
		return errs.AddContext(err, "create shard store wal transaction")
	}
	if err := <-txn.SignalSetupComplete(); err != nil {
		return errs.AddContext(err, "signal shard store wal setup complete")
	}
	for _, u := range updates {
		if err := applyFileUpdate(u); err != nil {
			return err
		}
	}
	if err := txn.SignalUpdatesApplied(); err != nil {
		return errs.AddContext(err, "signal shard store wal updates applied")
	}
	return nil
}

func (f *FS) Del(ctx context.Context, key string) error {
	err := os.Remove(f.dataPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() && KeyPattern.MatchString(e.Name()) {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

func (f *FS) Size(ctx context.Context) (int64, error) {
	keys, err := f.Keys(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		info, err := os.Stat(f.dataPath(key))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
