package audit

import (
	"errors"
	"fmt"
	"io"

	"github.com/Storj/core/crypto"
)

// ErrUnknownChallenge is returned when a received challenge does not
// correspond to any leaf the farmer holds for the shard.
var ErrUnknownChallenge = errors.New("audit: challenge does not match any held leaf")

// Proof is the Merkle authentication path for a single leaf: the nested
// [sibling, [sibling, [...[response hash]...]]] form of tree traversal,
// held flat as the response hash plus a leaf-to-root list of siblings
// that each record their left/right position.
type Proof struct {
	// ResponseHash is H(challenge || shard) — the pre-double-hash
	// preimage, i.e. the deepest scalar of the proof.
	ResponseHash crypto.Hash
	// Path holds siblings from the leaf up to the root, in order. Each
	// entry's Left flag records whether the sibling sits to the left of
	// the node being folded.
	Path []ProofStep
}

// ProofStep is one level of a Merkle authentication path.
type ProofStep struct {
	Sibling crypto.Hash
	Left    bool
}

// Prove locates the leaf matching challenge among public's leaves, reads
// shard fully, and assembles the authentication path for that leaf. It
// returns ErrUnknownChallenge if no leaf in public matches.
func Prove(shard io.Reader, public *PublicRecord, challenge Challenge) (*Proof, error) {
	data, err := io.ReadAll(shard)
	if err != nil {
		return nil, fmt.Errorf("audit: reading shard: %w", err)
	}

	preimage := crypto.H(challenge[:], data)
	responseHash := preimage
	leaf := crypto.H(responseHash[:])

	index := -1
	for i, l := range public.Leaves {
		if l == leaf {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, ErrUnknownChallenge
	}

	padded, _ := padToPowerOfTwo(public.Leaves)
	path := authenticationPath(padded, index)

	return &Proof{ResponseHash: responseHash, Path: path}, nil
}

// authenticationPath walks leaves (a power-of-two slice) from index up to
// the root, recording the sibling hash at each level.
func authenticationPath(leaves []crypto.Hash, index int) []ProofStep {
	level := leaves
	var path []ProofStep
	for len(level) > 1 {
		isRight := index%2 == 1
		siblingIndex := index - 1
		if !isRight {
			siblingIndex = index + 1
		}
		path = append(path, ProofStep{Sibling: level[siblingIndex], Left: isRight})

		next := make([]crypto.Hash, len(level)/2)
		for i := range next {
			next[i] = crypto.H(level[2*i][:], level[2*i+1][:])
		}
		level = next
		index /= 2
	}
	return path
}
