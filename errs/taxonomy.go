package errs

import nlerrors "gitlab.com/NebulousLabs/errors"

// Error taxonomy buckets from the error handling design. Callers use
// errors.Is against these sentinels to classify a failure without string
// matching; concrete errors wrap one of these via AddContext/fmt.Errorf
// with %w.
var (
	// Validation: missing/invalid parameter, unparseable address,
	// incompatible protocol version. Never retried.
	ErrValidation = nlerrors.New("validation error")

	// Signature: signature invalid, nonce expired, pubkey mismatch.
	ErrSignature = nlerrors.New("signature error")

	// Transport: network unreachable, timeout, tunnel closed. Retried
	// internally up to a configured cap.
	ErrTransport = nlerrors.New("transport error")

	// Storage: shard not found, hash mismatch on PUSH, adapter I/O error.
	ErrStorage = nlerrors.New("storage error")

	// Contract: signature mismatch, expired, missing. Always fatal to the
	// affected operation.
	ErrContract = nlerrors.New("contract error")

	// Audit: unknown challenge, proof verification failure.
	ErrAudit = nlerrors.New("audit error")

	// RateLimit: sender over budget.
	ErrRateLimit = nlerrors.New("rate limit exceeded")
)
