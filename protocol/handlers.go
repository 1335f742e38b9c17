package protocol

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Storj/core/audit"
	"github.com/Storj/core/channel"
	"github.com/Storj/core/contract"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
	"github.com/Storj/core/metrics"
	"github.com/Storj/core/storage"
)

// OfferRequest is the body of an OFFER RPC: a farmer proposing terms on a
// renter's published contract.
type OfferRequest struct {
	Contract *contract.Contract
}

// OfferResponse acknowledges a matched, completed contract back to the
// farmer.
type OfferResponse struct {
	Contract *contract.Contract
}

// Handler holds the state a renter needs to answer protocol RPCs: its
// own pending-contract tracker and shard store.
type Handler struct {
	Pending *PendingContracts
	Tokens  *channel.TokenStore
	Adapter *storage.ShardManager
	Metrics *metrics.Metrics

	// TokenTTL is the lifetime given to tokens minted by the wire
	// dispatcher (Routes) for CONSIGN/RETRIEVE; it is node-local policy,
	// not something a request carries. Direct Go callers (tests) still
	// pass their own ttl to HandleConsign/HandleRetrieve.
	TokenTTL time.Duration
}

// NewHandler constructs a Handler over the given shared state. Metrics
// defaults to a throwaway registry; set h.Metrics to share the node's
// real one.
func NewHandler(pending *PendingContracts, tokens *channel.TokenStore, adapter *storage.ShardManager) *Handler {
	return &Handler{Pending: pending, Tokens: tokens, Adapter: adapter, Metrics: metrics.Discard(), TokenTTL: 5 * time.Minute}
}

// HandleOffer implements the renter side of OFFER. The renter publishes
// a renter-signed (RENTER_SIGNED) draft; a farmer's OFFER carries that
// same draft completed with its own farmer signature. HandleOffer
// verifies the farmer's signature, matches against the renter's pending
// publication, and accepts the now-complete contract. A second OFFER
// against an already matched publication fails with ErrAlreadyMatched.
func (h *Handler) HandleOffer(req OfferRequest) (*OfferResponse, error) {
	c := req.Contract
	if err := c.Verify(contract.RoleFarmer, c.FarmerID); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSignature, err)
	}

	// Matching keys on data_hash rather than the contract's own canonical
	// ID: the farmer's ID (and thus the canonical hash) differs
	// between competing offers, but every offer on one publication shares
	// the same shard.
	if _, err := h.Pending.Match(c.DataHash); err != nil {
		if errs.Is(err, ErrAlreadyMatched) {
			h.Metrics.ContractsOffered.WithLabelValues("already_matched").Inc()
		}
		return nil, err
	}

	if !c.IsComplete() {
		return nil, fmt.Errorf("%w: offer did not complete the contract", errs.ErrContract)
	}
	h.Metrics.ContractsOffered.WithLabelValues("accepted").Inc()
	h.Metrics.ContractsCompleted.Inc()
	return &OfferResponse{Contract: c}, nil
}

// ConsignRequest is the body of a CONSIGN RPC.
type ConsignRequest struct {
	ContractID crypto.Hash
	DataHash   crypto.Hash
	AuditTree  []crypto.Hash // public leaves
}

// ConsignResponse carries the one-shot PUSH token.
type ConsignResponse struct {
	Token string
}

// HandleConsign issues a single-use PUSH token scoped to dataHash,
// recording the renter's public audit leaves under the request's contract
// ID. No stored contract is looked up. Calling it again before the shard
// arrives rewrites the same leaves and issues a further token.
func (h *Handler) HandleConsign(ctx context.Context, req ConsignRequest, dataHash crypto.Hash, ttl time.Duration) (*ConsignResponse, error) {
	key := dataHash.String()
	item, err := h.Adapter.Peek(ctx, key)
	if err != nil && !errs.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if item == nil {
		item = storage.NewItem(dataHash)
	}

	farmerKey := req.ContractID.String()
	item.Trees[farmerKey] = req.AuditTree
	if err := h.Adapter.Put(ctx, key, item, nil, 0); err != nil {
		return nil, err
	}

	tokenValue := uuid.NewString()
	h.Tokens.Issue(&channel.Token{
		Value:      tokenValue,
		Operation:  channel.OpPush,
		Hash:       dataHash,
		ContractID: req.ContractID,
		ExpiresAt:  time.Now().Add(ttl),
	})
	return &ConsignResponse{Token: tokenValue}, nil
}

// RetrieveRequest is the body of a RETRIEVE RPC.
type RetrieveRequest struct {
	DataHash crypto.Hash
}

// RetrieveResponse carries the PULL token.
type RetrieveResponse struct {
	Token string
}

// HandleRetrieve issues a PULL token for a shard the farmer holds a
// valid contract for.
func (h *Handler) HandleRetrieve(ctx context.Context, req RetrieveRequest, farmerID crypto.Hash, ttl time.Duration) (*RetrieveResponse, error) {
	key := req.DataHash.String()
	item, err := h.Adapter.Peek(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, ok := item.Contracts[farmerID.String()]; !ok {
		return nil, fmt.Errorf("%w: no contract on file for this shard", errs.ErrContract)
	}

	tokenValue := uuid.NewString()
	h.Tokens.Issue(&channel.Token{
		Value:     tokenValue,
		Operation: channel.OpPull,
		Hash:      req.DataHash,
		ExpiresAt: time.Now().Add(ttl),
	})
	return &RetrieveResponse{Token: tokenValue}, nil
}

// AuditRequest is the body of an AUDIT RPC.
type AuditRequest struct {
	DataHash   crypto.Hash
	ContractID crypto.Hash
	Challenge  audit.Challenge
}

// AuditResponse carries the farmer's proof.
type AuditResponse struct {
	Proof *audit.Proof
}

// HandleAudit looks up the shard, generates a proof against the caller's
// challenge, and returns it. Challenges are single-use from the renter's
// perspective but the farmer answers statelessly (§4.7).
func (h *Handler) HandleAudit(ctx context.Context, req AuditRequest, public *audit.PublicRecord) (*AuditResponse, error) {
	key := req.DataHash.String()
	_, rc, err := h.Adapter.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: shard bytes not present", errs.ErrStorage)
	}
	defer rc.Close()

	proof, err := audit.Prove(rc, public, req.Challenge)
	if err != nil {
		h.Metrics.AuditsPerformed.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", errs.ErrAudit, err)
	}
	h.Metrics.AuditsPerformed.WithLabelValues("succeeded").Inc()
	return &AuditResponse{Proof: proof}, nil
}

// MirrorRequest is the body of a MIRROR RPC: instructs a farmer to pull a
// shard from a source peer using an already-issued token and accept it
// under a new contract with the requesting renter.
type MirrorRequest struct {
	SourceContract      *contract.Contract
	SourceFarmerAddress string
	Token               string
	NewContract         *contract.Contract
}

// HandleMirror pulls the shard from sourceAddr using token on a PULL data
// channel and stores it locally under newContract.
func (h *Handler) HandleMirror(ctx context.Context, req MirrorRequest, newContract *contract.Contract) error {
	got, err := channel.Dial(req.SourceFarmerAddress, req.Token, req.SourceContract.DataHash, channel.OpPull, nil)
	if err != nil {
		return fmt.Errorf("%w: mirror pull failed: %v", errs.ErrTransport, err)
	}

	if crypto.H(got) != req.SourceContract.DataHash {
		return fmt.Errorf("%w: mirrored shard hash mismatch", errs.ErrStorage)
	}

	key := req.SourceContract.DataHash.String()
	item := storage.NewItem(req.SourceContract.DataHash)
	item.Contracts[newContract.FarmerID.String()] = newContract
	return h.Adapter.Put(ctx, key, item, bytes.NewReader(got), int64(len(got)))
}
