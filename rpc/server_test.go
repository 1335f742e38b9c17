package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestServerDispatchesRegisteredMethod(t *testing.T) {
	kp := testKeyPair(t)
	self := Contact{Address: "10.0.0.1", Port: 4000, NodeID: kp.NodeID}
	s := NewServer(kp, self, NewLimiter(600), nil)

	called := false
	s.Register(map[string]Handler{
		"PING": func(ctx context.Context, body []byte, sender Contact) ([]byte, error) {
			called = true
			return []byte(`{"ok":true}`), nil
		},
	})

	client := testKeyPair(t)
	sender := Contact{Address: "10.0.0.2", Port: 4001, NodeID: client.NodeID}
	now := time.Now().UnixMilli()
	env := Sign(client, NewID(), "PING", nil, sender, now)

	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.HandleConn(context.Background(), serverConn, env)
		close(done)
	}()

	var resp Envelope
	if err := json.NewDecoder(clientConn).Decode(&resp); err != nil {
		t.Fatalf("expected a reply envelope: %v", err)
	}
	<-done

	if !called {
		t.Fatal("expected the registered handler to run")
	}
	if resp.ID != env.ID {
		t.Fatalf("expected reply to echo request id %q, got %q", env.ID, resp.ID)
	}
}

func TestServerRejectsUnknownMethod(t *testing.T) {
	kp := testKeyPair(t)
	self := Contact{Address: "10.0.0.1", Port: 4000, NodeID: kp.NodeID}
	s := NewServer(kp, self, NewLimiter(600), nil)

	client := testKeyPair(t)
	sender := Contact{Address: "10.0.0.2", Port: 4001, NodeID: client.NodeID}
	env := Sign(client, NewID(), "NOSUCHMETHOD", nil, sender, time.Now().UnixMilli())

	serverConn, clientConn := net.Pipe()
	go s.HandleConn(context.Background(), serverConn, env)

	var resp Envelope
	if err := json.NewDecoder(clientConn).Decode(&resp); err != nil {
		t.Fatalf("expected a reply envelope: %v", err)
	}
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &errBody); err != nil {
		t.Fatalf("expected an error body: %v", err)
	}
	if errBody.Error == "" {
		t.Fatal("expected a non-empty error message for an unregistered method")
	}
}

func TestServerRejectsOverBudgetSender(t *testing.T) {
	kp := testKeyPair(t)
	self := Contact{Address: "10.0.0.1", Port: 4000, NodeID: kp.NodeID}
	s := NewServer(kp, self, NewLimiter(1), nil)
	s.Register(map[string]Handler{
		"PING": func(ctx context.Context, body []byte, sender Contact) ([]byte, error) {
			return []byte("ok"), nil
		},
	})

	client := testKeyPair(t)
	sender := Contact{Address: "10.0.0.2", Port: 4001, NodeID: client.NodeID}
	now := time.Now().UnixMilli()

	for i := 0; i < 2; i++ {
		env := Sign(client, NewID(), "PING", nil, sender, now)
		serverConn, clientConn := net.Pipe()
		go s.HandleConn(context.Background(), serverConn, env)

		var resp Envelope
		if err := json.NewDecoder(clientConn).Decode(&resp); err != nil {
			t.Fatalf("expected a reply envelope: %v", err)
		}
		if i == 1 {
			var errBody struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(resp.Body, &errBody); err != nil || errBody.Error == "" {
				t.Fatal("expected the second request to be rejected for rate limiting")
			}
		}
	}
}
