package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Storj/core/channel"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/log"
	"github.com/Storj/core/rpc"
	"github.com/Storj/core/storage"
)

func newTestManager(t *testing.T) (*transportManager, *crypto.KeyPair, rpc.Contact) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	self := rpc.Contact{Address: "127.0.0.1", NodeID: kp.NodeID}

	shards := storage.NewShardManager(storage.NewMemory(), 0)
	tokens := channel.NewTokenStore()
	channelServer := channel.NewServer(shards, tokens, nil)

	rpcServer := rpc.NewServer(kp, self, rpc.NewLimiter(600), nil)
	rpcServer.Register(map[string]rpc.Handler{
		"PING": func(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
			return []byte("pong"), nil
		},
	})

	return newTransportManager(":0", channelServer, rpcServer, log.Discard()), kp, self
}

func TestTransportManagerRoutesRPCEnvelope(t *testing.T) {
	m, kp, self := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	resp, err := rpc.Call(kp, m.ln.Addr().String(), "PING", nil, self)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Body) != "pong" {
		t.Fatalf("got body %q, want pong", resp.Body)
	}
}

func TestTransportManagerRoutesChannelHandshake(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	shard := []byte("routed through the shared listener")
	hash := crypto.H(shard)
	m.channelServer.Tokens.Issue(&channel.Token{
		Value: "push-1", Operation: channel.OpPush, Hash: hash, ExpiresAt: time.Now().Add(time.Minute),
	})

	if _, err := channel.Dial(m.ln.Addr().String(), "push-1", hash, channel.OpPush, shard); err != nil {
		t.Fatalf("push over the shared listener failed: %v", err)
	}
}
