package rpc

import (
	"testing"
	"time"

	"github.com/Storj/core/crypto"
)

func testKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func TestEnvelopeSignVerifyRoundTrip(t *testing.T) {
	kp := testKeyPair(t)
	sender := Contact{Address: "127.0.0.1", Port: 4000, NodeID: kp.NodeID}
	now := time.Now().UnixMilli()

	env := Sign(kp, NewID(), "AUDIT", []byte(`{"data_hash":"abc"}`), sender, now)
	if err := Verify(env, now+10, 0); err != nil {
		t.Fatalf("expected fresh envelope to verify: %v", err)
	}
}

func TestEnvelopeIDDistinguishesIdenticalMethodAndBody(t *testing.T) {
	kp := testKeyPair(t)
	sender := Contact{Address: "127.0.0.1", Port: 4000, NodeID: kp.NodeID}
	now := time.Now().UnixMilli()

	a := Sign(kp, NewID(), "AUDIT", []byte("same body"), sender, now)
	b := Sign(kp, NewID(), "AUDIT", []byte("same body"), sender, now)
	if a.ID == b.ID {
		t.Fatal("expected distinct envelopes to mint distinct ids")
	}
	if a.Signature == b.Signature {
		t.Fatal("expected signatures to differ once id is part of the signed value")
	}

	// A reply reuses the request's id so the requester can correlate it.
	reply := Sign(kp, a.ID, "", []byte("result"), sender, now)
	if reply.ID != a.ID {
		t.Fatal("expected reply to echo the request id")
	}
}

func TestEnvelopeRejectsExpiredNonce(t *testing.T) {
	kp := testKeyPair(t)
	sender := Contact{Address: "127.0.0.1", Port: 4000, NodeID: kp.NodeID}
	now := time.Now().UnixMilli()

	env := Sign(kp, NewID(), "AUDIT", []byte("body"), sender, now)
	later := now + DefaultNonceExpire.Milliseconds() + 1000
	if err := Verify(env, later, 0); err == nil {
		t.Fatal("expected expired nonce to be rejected")
	}
}

func TestEnvelopeRejectsMismatchedSender(t *testing.T) {
	kp := testKeyPair(t)
	other := testKeyPair(t)
	now := time.Now().UnixMilli()

	env := Sign(kp, NewID(), "AUDIT", []byte("body"), Contact{NodeID: other.NodeID}, now)
	if err := Verify(env, now, 0); err == nil {
		t.Fatal("expected mismatched claimed sender to be rejected")
	}
}

func TestUnverifiedMethodsExempt(t *testing.T) {
	env := Envelope{Method: "PROBE", Nonce: 0}
	if err := Verify(env, time.Now().UnixMilli(), 0); err != nil {
		t.Fatalf("PROBE should bypass verification, got %v", err)
	}
}

func TestLimiterAllowsWithinBudgetAndRejectsOverBudget(t *testing.T) {
	l := NewLimiter(2)
	kp := testKeyPair(t)
	now := time.Now()

	if ok, _ := l.Allow(kp.NodeID, now); !ok {
		t.Fatal("expected first request to be allowed")
	}
	if ok, _ := l.Allow(kp.NodeID, now); !ok {
		t.Fatal("expected second request to be allowed")
	}
	if ok, retry := l.Allow(kp.NodeID, now); ok {
		t.Fatal("expected third request within the same instant to be rejected")
	} else if retry <= 0 {
		t.Fatal("expected a positive retry-after duration")
	}
}

func TestLimiterRefillsOverTime(t *testing.T) {
	l := NewLimiter(60) // one token per second
	kp := testKeyPair(t)
	now := time.Now()

	if ok, _ := l.Allow(kp.NodeID, now); !ok {
		t.Fatal("expected first request to be allowed")
	}
	if ok, _ := l.Allow(kp.NodeID, now); ok {
		t.Fatal("expected immediate second request to be rejected")
	}
	later := now.Add(2 * time.Second)
	if ok, _ := l.Allow(kp.NodeID, later); !ok {
		t.Fatal("expected request after refill window to be allowed")
	}
}
