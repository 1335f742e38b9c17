package rpc

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"gitlab.com/NebulousLabs/fastrand"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
)

// DefaultNonceExpire is the default maximum age a nonce may have at
// verification time. Verify takes the limit as an argument.
const DefaultNonceExpire = 5 * time.Minute

// UnverifiedMethods lists the three opcodes exempt from signature
// verification because they are part of establishing a contact's
// reachability in the first place (§4.6).
var UnverifiedMethods = map[string]bool{
	"PROBE":       true,
	"FIND_TUNNEL": true,
	"OPEN_TUNNEL": true,
}

// Envelope wraps a request or response body with the sender's replay
// protection and authenticity proof. The same shape carries both a
// request (Method set) and its response (ID echoed back, Method left
// empty): §6 distinguishes the two by which of params/result a decoder
// finds populated, not by a separate frame type.
type Envelope struct {
	ID        string  `json:"id"`
	Method    string  `json:"method"`
	Body      []byte  `json:"body"`
	Nonce     int64   `json:"nonce"`
	Signature string  `json:"signature"`
	Sender    Contact `json:"sender"`
}

// NewID returns a random 160-bit hex identifier, suitable for Sign's id
// argument. Every request mints its own; a response echoes the request's.
func NewID() string {
	b := make([]byte, crypto.HashSize)
	fastrand.Read(b)
	return hex.EncodeToString(b)
}

// Sign populates ID, Nonce, Sender and Signature on env using kp, signing
// H(id || nonce) per invariant 6 (§4.6, §8). id should be a fresh NewID()
// for a request, or the request's own ID when signing a reply so the
// caller can correlate the two.
func Sign(kp *crypto.KeyPair, id, method string, body []byte, sender Contact, nonceMillis int64) Envelope {
	signed := crypto.H([]byte(id), int64ToBytes(nonceMillis))
	sig := crypto.Sign(kp, signed)
	return Envelope{
		ID:        id,
		Method:    method,
		Body:      body,
		Nonce:     nonceMillis,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Sender:    sender,
	}
}

// Verify checks env's nonce freshness and signature, recovering the
// signer's NodeID and comparing it against env.Sender.NodeID. nowMillis
// and nonceExpire let callers control the clock and window in tests; a
// zero nonceExpire uses DefaultNonceExpire.
func Verify(env Envelope, nowMillis int64, nonceExpire time.Duration) error {
	if UnverifiedMethods[env.Method] {
		return nil
	}
	if nonceExpire <= 0 {
		nonceExpire = DefaultNonceExpire
	}

	age := time.Duration(nowMillis-env.Nonce) * time.Millisecond
	if age < 0 || age >= nonceExpire {
		return fmt.Errorf("%w: nonce outside freshness window", errs.ErrSignature)
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding", errs.ErrSignature)
	}

	signed := crypto.H([]byte(env.ID), int64ToBytes(env.Nonce))

	_, nodeID, err := crypto.Recover(signed, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSignature, err)
	}
	if nodeID != env.Sender.NodeID {
		return fmt.Errorf("%w: recovered key does not match claimed sender", errs.ErrSignature)
	}
	return nil
}

func int64ToBytes(v int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
