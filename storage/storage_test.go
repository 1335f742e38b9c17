package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/Storj/core/crypto"
)

func runAdapterSuite(t *testing.T, newAdapter func(t *testing.T) Adapter) {
	t.Run("PutGetRoundTrip", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		hash := crypto.H([]byte("hello storj"))
		key := hash.String()

		item := NewItem(hash)
		item.Meta["farmer1"] = map[string]any{"note": "first"}
		if err := a.Put(ctx, key, item, bytes.NewReader([]byte("hello storj"))); err != nil {
			t.Fatal(err)
		}

		got, rc, err := a.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "hello storj" {
			t.Fatalf("got shard %q", data)
		}
		if got.Meta["farmer1"]["note"] != "first" {
			t.Fatalf("expected merged meta to survive, got %v", got.Meta)
		}
	})

	t.Run("PutMergesNeverDrops", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		hash := crypto.H([]byte("shard-data"))
		key := hash.String()

		first := NewItem(hash)
		first.Meta["farmerA"] = map[string]any{"x": "1"}
		if err := a.Put(ctx, key, first, bytes.NewReader([]byte("shard-data"))); err != nil {
			t.Fatal(err)
		}

		second := NewItem(hash)
		second.Meta["farmerB"] = map[string]any{"y": "2"}
		if err := a.Put(ctx, key, second, nil); err != nil {
			t.Fatal(err)
		}

		got, err := a.Peek(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if got.Meta["farmerA"]["x"] != "1" {
			t.Fatal("expected first put's metadata to survive a second put")
		}
		if got.Meta["farmerB"]["y"] != "2" {
			t.Fatal("expected second put's metadata to be merged in")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		if _, _, err := a.Get(ctx, "0000000000000000000000000000000000000a"); err != ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("HashMismatchRejected", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		hash := crypto.H([]byte("a"))
		item := NewItem(hash)
		if err := a.Put(ctx, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", item, nil); err == nil {
			t.Fatal("expected key/hash mismatch to be rejected")
		}
	})
}

func TestMemoryAdapter(t *testing.T) {
	runAdapterSuite(t, func(t *testing.T) Adapter { return NewMemory() })
}

func TestFSAdapter(t *testing.T) {
	runAdapterSuite(t, func(t *testing.T) Adapter {
		dir := t.TempDir()
		a, err := NewFS(dir)
		if err != nil {
			t.Fatal(err)
		}
		return a
	})
}

func TestBoltAdapter(t *testing.T) {
	runAdapterSuite(t, func(t *testing.T) Adapter {
		dir := t.TempDir()
		a, err := OpenBolt(dir + "/shards.db")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { a.Close() })
		return a
	})
}
