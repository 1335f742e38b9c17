package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/storage"
)

func newTestServer(t *testing.T) (*Server, *TokenStore) {
	t.Helper()
	adapter := storage.NewShardManager(storage.NewMemory(), 0)
	tokens := NewTokenStore()
	return NewServer(adapter, tokens, nil), tokens
}

func listen(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		ln.Close()
	})
	go s.Serve(ctx, ln)
	return ln.Addr().String()
}

func TestPushThenPull(t *testing.T) {
	server, tokens := newTestServer(t)
	addr := listen(t, server)

	shard := []byte("the quick brown fox")
	hash := crypto.H(shard)

	pushToken := &Token{Value: "push-1", Operation: OpPush, Hash: hash, ExpiresAt: time.Now().Add(time.Minute)}
	tokens.Issue(pushToken)

	if _, err := Dial(addr, "push-1", hash, OpPush, shard); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	pullToken := &Token{Value: "pull-1", Operation: OpPull, Hash: hash, ExpiresAt: time.Now().Add(time.Minute)}
	tokens.Issue(pullToken)

	got, err := Dial(addr, "pull-1", hash, OpPull, nil)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if string(got) != string(shard) {
		t.Fatalf("pull returned %q, want %q", got, shard)
	}
}

func TestPushHashMismatchRejected(t *testing.T) {
	server, tokens := newTestServer(t)
	addr := listen(t, server)

	hash := crypto.H([]byte("expected"))
	tokens.Issue(&Token{Value: "push-1", Operation: OpPush, Hash: hash, ExpiresAt: time.Now().Add(time.Minute)})

	if _, err := Dial(addr, "push-1", hash, OpPush, []byte("different bytes entirely")); err == nil {
		t.Fatal("expected hash mismatch to surface as an error")
	}

	// Token must not be consumed: a second attempt with correct bytes
	// should still succeed.
	if _, err := Dial(addr, "push-1", hash, OpPush, []byte("expected")); err != nil {
		t.Fatalf("expected retry with correct bytes to succeed, got %v", err)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	server, _ := newTestServer(t)
	addr := listen(t, server)

	hash := crypto.H([]byte("x"))
	if _, err := Dial(addr, "no-such-token", hash, OpPull, nil); err == nil {
		t.Fatal("expected invalid token to be rejected")
	}
}

// TestHandleConnServesAlreadyDecodedHandshake exercises the entry point a
// shared demultiplexing listener uses: the handshake frame is decoded
// once by the caller (here, simulated directly) and handed to HandleConn
// alongside the still-open connection, rather than HandleConn reading it
// itself off the wire.
func TestHandleConnServesAlreadyDecodedHandshake(t *testing.T) {
	server, tokens := newTestServer(t)

	shard := []byte("mux-delivered shard")
	hash := crypto.H(shard)
	tokens.Issue(&Token{Value: "push-1", Operation: OpPush, Hash: hash, ExpiresAt: time.Now().Add(time.Minute)})

	client, remote := net.Pipe()

	done := make(chan error, 1)
	go func() {
		hs := Handshake{Token: "push-1", Hash: hash.String(), Operation: OpPush}
		done <- server.HandleConn(context.Background(), remote, hs)
	}()

	ack, err := readAck(client)
	if err != nil {
		t.Fatalf("reading ack: %v", err)
	}
	if !ack.OK {
		t.Fatalf("expected ack ok, got %q", ack.Message)
	}
	if _, err := client.Write(shard); err != nil {
		t.Fatal(err)
	}
	client.Close()

	if err := <-done; err != nil {
		t.Fatalf("HandleConn returned error: %v", err)
	}
	// Release ran before HandleConn returned: the successful push
	// retired the token, so it cannot be reserved again.
	if _, err := tokens.Reserve("push-1", OpPush, hash); err == nil {
		t.Fatal("expected the consumed push token to stay released, not reusable")
	}
}

func TestSecondConnectionOnSameTokenRejected(t *testing.T) {
	_, tokens := newTestServer(t)
	hash := crypto.H([]byte("x"))
	tok := &Token{Value: "t1", Operation: OpPull, Hash: hash, ExpiresAt: time.Now().Add(time.Minute)}
	tokens.Issue(tok)

	if _, err := tokens.Reserve("t1", OpPull, hash); err != nil {
		t.Fatalf("first reservation should succeed: %v", err)
	}
	if _, err := tokens.Reserve("t1", OpPull, hash); err != ErrChannelClosed {
		t.Fatalf("expected ErrChannelClosed on concurrent reservation, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	_, tokens := newTestServer(t)
	hash := crypto.H([]byte("x"))
	tokens.Issue(&Token{Value: "t1", Operation: OpPull, Hash: hash, ExpiresAt: time.Now().Add(-time.Second)})

	if _, err := tokens.Reserve("t1", OpPull, hash); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
