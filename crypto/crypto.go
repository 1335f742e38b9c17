// Package crypto provides the secp256k1 key pairs, compact ECDSA
// signatures, and RIPEMD160(SHA256(·)) hashing that every trust boundary
// in the node (contracts, RPC envelopes, NodeIDs) is built on.
package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // deliberate: matches original wire hash
)

// HashSize is the length in bytes of H's output and of a NodeID.
const HashSize = 20

// Hash is a RIPEMD160(SHA256(·)) digest.
type Hash [HashSize]byte

// H computes RIPEMD160(SHA256(data)), the hash used across the wire format
// for NodeIDs, shard hashes, and Merkle leaves.
func H(data ...[]byte) Hash {
	sh := sha256.New()
	for _, d := range data {
		sh.Write(d)
	}
	mid := sh.Sum(nil)

	rh := ripemd160.New()
	rh.Write(mid)

	var out Hash
	copy(out[:], rh.Sum(nil))
	return out
}

// HashEmpty is H("") — the padding leaf used by the Merkle tree builder.
var HashEmpty = H([]byte{})

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// KeyPair is a secp256k1 private/public key pair, together with its
// derived NodeID.
type KeyPair struct {
	Private *btcec.PrivateKey
	Public  *btcec.PublicKey
	NodeID  Hash
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return newKeyPair(priv), nil
}

// KeyPairFromPrivate constructs a KeyPair from raw 32-byte private key
// material, as read from a key-ring file.
func KeyPairFromPrivate(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return newKeyPair(priv), nil
}

func newKeyPair(priv *btcec.PrivateKey) *KeyPair {
	pub := priv.PubKey()
	return &KeyPair{
		Private: priv,
		Public:  pub,
		NodeID:  NodeIDFromPublicKey(pub),
	}
}

// NodeIDFromPublicKey derives the 20-byte NodeID from a public key:
// RIPEMD160(SHA256(compressed pubkey)).
func NodeIDFromPublicKey(pub *btcec.PublicKey) Hash {
	return H(pub.SerializeCompressed())
}

// Sign produces a compact (65-byte) ECDSA signature over hash, from which
// the signer's public key can be recovered by Recover.
func Sign(kp *KeyPair, hash Hash) []byte {
	return ecdsa.SignCompact(kp.Private, hash[:], true)
}

// Recover recovers the public key and its NodeID that produced sig over
// hash. It returns an error if sig is malformed.
func Recover(hash Hash, sig []byte) (*btcec.PublicKey, Hash, error) {
	pub, _, err := ecdsa.RecoverCompact(sig, hash[:])
	if err != nil {
		return nil, Hash{}, fmt.Errorf("crypto: recover signature: %w", err)
	}
	return pub, NodeIDFromPublicKey(pub), nil
}

// Verify reports whether sig over hash was produced by expected's private
// key, i.e. recovery yields expected's NodeID.
func Verify(hash Hash, sig []byte, expected Hash) bool {
	_, nodeID, err := Recover(hash, sig)
	return err == nil && nodeID == expected
}
