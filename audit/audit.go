// Package audit implements the Merkle-tree challenge/response proof of
// storage: a renter builds a set of per-shard challenges and a Merkle
// root (Generator), a farmer answers a single challenge with a proof
// (Prover), and the renter recomputes the root to verify it (Verifier).
package audit

import (
	"fmt"
	"io"

	"github.com/Storj/core/crypto"
	"gitlab.com/NebulousLabs/fastrand"
)

// ChallengeSize is the length in bytes of a single-use challenge nonce.
const ChallengeSize = 16

// Challenge is a cryptographically random nonce that, combined with the
// shard bytes, maps to one Merkle leaf.
type Challenge [ChallengeSize]byte

// PrivateRecord is held exclusively by the renter: the challenges it may
// still spend, the Merkle root they fold up to, and the tree depth.
type PrivateRecord struct {
	Challenges []Challenge
	Root       crypto.Hash
	Depth      int
}

// PublicRecord is handed to the farmer alongside the shard bytes: one leaf
// per challenge, in the same order as PrivateRecord.Challenges.
type PublicRecord struct {
	Leaves []crypto.Hash
}

// Generate reads shard to EOF, building N independent challenge/leaf
// pairs and the Merkle tree over the padded leaf set. On any read error
// the whole audit set is discarded — no partial record is returned.
func Generate(shard io.Reader, n int) (*PrivateRecord, *PublicRecord, error) {
	if n <= 0 {
		return nil, nil, fmt.Errorf("audit: challenge count must be positive, got %d", n)
	}

	challenges := make([]Challenge, n)
	for i := range challenges {
		fastrand.Read(challenges[i][:])
	}

	hashers := make([]hashState, n)
	for i := range hashers {
		hashers[i].prependOnce(challenges[i][:])
	}

	buf := make([]byte, 32*1024)
	for {
		nr, err := shard.Read(buf)
		if nr > 0 {
			chunk := append([]byte(nil), buf[:nr]...)
			for i := range hashers {
				hashers[i].write(chunk)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("audit: reading shard: %w", err)
		}
	}

	leaves := make([]crypto.Hash, n)
	for i := range hashers {
		preimage := hashers[i].sum()
		leaves[i] = crypto.H(preimage[:])
	}

	padded, depth := padToPowerOfTwo(leaves)
	root := buildTree(padded)

	return &PrivateRecord{Challenges: challenges, Root: root, Depth: depth},
		&PublicRecord{Leaves: leaves}, nil
}

// hashState accumulates "challenge || shard bytes": it keeps the nonce and
// every shard chunk in memory and hashes them all at once in sum.
type hashState struct {
	parts [][]byte
}

func (h *hashState) prependOnce(nonce []byte) {
	h.parts = append(h.parts, append([]byte(nil), nonce...))
}

func (h *hashState) write(p []byte) {
	h.parts = append(h.parts, p)
}

func (h *hashState) sum() crypto.Hash {
	return crypto.H(h.parts...)
}

// padToPowerOfTwo pads leaves with crypto.HashEmpty up to the next power
// of two and returns the padded slice and tree depth (log2 of its size).
func padToPowerOfTwo(leaves []crypto.Hash) ([]crypto.Hash, int) {
	size := 1
	depth := 0
	for size < len(leaves) {
		size <<= 1
		depth++
	}
	if size == 0 {
		size, depth = 1, 0
	}
	padded := make([]crypto.Hash, size)
	copy(padded, leaves)
	for i := len(leaves); i < size; i++ {
		padded[i] = crypto.HashEmpty
	}
	return padded, depth
}

// buildTree folds a power-of-two leaf slice up to its Merkle root.
func buildTree(leaves []crypto.Hash) crypto.Hash {
	level := leaves
	for len(level) > 1 {
		next := make([]crypto.Hash, len(level)/2)
		for i := range next {
			next[i] = crypto.H(level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	if len(level) == 0 {
		return crypto.HashEmpty
	}
	return level[0]
}
