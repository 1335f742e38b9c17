package audit

import (
	"errors"

	"github.com/Storj/core/crypto"
)

// ErrDepthMismatch is returned when a proof's path length does not match
// the expected tree depth.
var ErrDepthMismatch = errors.New("audit: proof depth does not match expected depth")

// Verify recomputes the root from proof and reports (computedRoot,
// expectedRoot); the caller compares them for equality. A malformed proof
// (wrong depth) is reported via err.
func Verify(proof *Proof, expectedRoot crypto.Hash, expectedDepth int) (computed crypto.Hash, expected crypto.Hash, err error) {
	if len(proof.Path) != expectedDepth {
		return crypto.Hash{}, expectedRoot, ErrDepthMismatch
	}

	// Recover the leaf from the claimed response hash, then fold upward
	// through the recorded siblings.
	node := crypto.H(proof.ResponseHash[:])
	for _, step := range proof.Path {
		if step.Left {
			node = crypto.H(step.Sibling[:], node[:])
		} else {
			node = crypto.H(node[:], step.Sibling[:])
		}
	}
	return node, expectedRoot, nil
}
