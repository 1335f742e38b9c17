// Package contract implements the bilaterally-signed storage agreement
// between a renter and a farmer: canonical serialisation, two-party
// compact-ECDSA signing, and the INIT -> RENTER_SIGNED -> COMPLETE state
// machine.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Storj/core/crypto"
)

// Role identifies which party is signing a Contract.
type Role int

const (
	RoleRenter Role = iota
	RoleFarmer
)

// State is the contract's signature-completion state.
type State int

const (
	StateInit State = iota
	StateRenterSigned
	StateComplete
)

// Contract is the signed document describing a storage agreement. Field
// order here governs MarshalCanonical's output order.
type Contract struct {
	RenterID      crypto.Hash `json:"renter_id"`
	RenterHDKey   string      `json:"renter_hd_key,omitempty"`
	FarmerID      crypto.Hash `json:"farmer_id"`
	DataSize      int64       `json:"data_size"`
	DataHash      crypto.Hash `json:"data_hash"`
	StoreBegin    int64       `json:"store_begin"`
	StoreEnd      int64       `json:"store_end"`
	AuditCount    int         `json:"audit_count"`
	PaymentDest   string      `json:"payment_destination"`
	PaymentAmount int64       `json:"payment_amount"`

	RenterSignature []byte `json:"-"`
	FarmerSignature []byte `json:"-"`
}

// New checks that data_size and audit_count are positive and that
// store_end is after store_begin, and returns a fresh INIT-state
// Contract. No other field is checked; FarmerID and the signatures are
// left empty.
func New(renterID crypto.Hash, dataSize int64, dataHash crypto.Hash, storeBegin, storeEnd int64, auditCount int, paymentDest string, paymentAmount int64) (*Contract, error) {
	c := &Contract{
		RenterID:      renterID,
		DataSize:      dataSize,
		DataHash:      dataHash,
		StoreBegin:    storeBegin,
		StoreEnd:      storeEnd,
		AuditCount:    auditCount,
		PaymentDest:   paymentDest,
		PaymentAmount: paymentAmount,
	}
	if err := c.validateInvariants(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contract) validateInvariants() error {
	if c.DataSize <= 0 {
		return fmt.Errorf("contract: data_size must be positive, got %d", c.DataSize)
	}
	if c.StoreEnd <= c.StoreBegin {
		return fmt.Errorf("contract: store_end (%d) must be after store_begin (%d)", c.StoreEnd, c.StoreBegin)
	}
	if c.AuditCount <= 0 {
		return fmt.Errorf("contract: audit_count must be positive, got %d", c.AuditCount)
	}
	return nil
}

// canonicalFields is the lexicographic field list used by MarshalCanonical;
// keeping it explicit (rather than reflecting over json tags) makes the
// wire order a compile-time fact, not a runtime one.
type canonicalFields struct {
	AuditCount    int    `json:"audit_count"`
	DataHash      string `json:"data_hash"`
	DataSize      int64  `json:"data_size"`
	FarmerID      string `json:"farmer_id"`
	PaymentAmount int64  `json:"payment_amount"`
	PaymentDest   string `json:"payment_destination"`
	RenterHDKey   string `json:"renter_hd_key"`
	RenterID      string `json:"renter_id"`
	StoreBegin    int64  `json:"store_begin"`
	StoreEnd      int64  `json:"store_end"`
}

// MarshalCanonical returns the deterministic, signature-field-stripped
// JSON form both parties sign over.
func (c *Contract) MarshalCanonical() ([]byte, error) {
	cf := canonicalFields{
		AuditCount:    c.AuditCount,
		DataHash:      c.DataHash.String(),
		DataSize:      c.DataSize,
		FarmerID:      c.FarmerID.String(),
		PaymentAmount: c.PaymentAmount,
		PaymentDest:   c.PaymentDest,
		RenterHDKey:   c.RenterHDKey,
		RenterID:      c.RenterID.String(),
		StoreBegin:    c.StoreBegin,
		StoreEnd:      c.StoreEnd,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cf); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (c *Contract) canonicalHash() (crypto.Hash, error) {
	b, err := c.MarshalCanonical()
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.H(b), nil
}

// State reports the contract's current signature-completion state.
func (c *Contract) State() State {
	switch {
	case len(c.RenterSignature) > 0 && len(c.FarmerSignature) > 0:
		return StateComplete
	case len(c.RenterSignature) > 0:
		return StateRenterSigned
	default:
		return StateInit
	}
}

// Sign hashes the canonical form and signs it with kp, storing a compact
// signature under the role's field. Transitions back from a later state
// (e.g. re-signing as renter after the farmer has signed) are rejected.
func (c *Contract) Sign(kp *crypto.KeyPair, role Role) error {
	switch role {
	case RoleRenter:
		if c.State() != StateInit {
			return fmt.Errorf("contract: cannot renter-sign from state %d", c.State())
		}
	case RoleFarmer:
		if c.State() != StateRenterSigned {
			return fmt.Errorf("contract: farmer may only sign a renter-signed contract, state is %d", c.State())
		}
		c.FarmerID = kp.NodeID
	default:
		return fmt.Errorf("contract: unknown role %d", role)
	}

	hash, err := c.signingHash(role)
	if err != nil {
		return err
	}
	sig := crypto.Sign(kp, hash)

	switch role {
	case RoleRenter:
		c.RenterSignature = sig
	case RoleFarmer:
		c.FarmerSignature = sig
	}
	return nil
}

// Verify recomputes the canonical hash and checks that the named role's
// signature recovers to expectedNodeID.
func (c *Contract) Verify(role Role, expectedNodeID crypto.Hash) error {
	hash, err := c.canonicalHash()
	if err != nil {
		return err
	}
	var sig []byte
	switch role {
	case RoleRenter:
		sig = c.RenterSignature
	case RoleFarmer:
		sig = c.FarmerSignature
	default:
		return fmt.Errorf("contract: unknown role %d", role)
	}
	if len(sig) == 0 {
		return fmt.Errorf("contract: role %d has not signed", role)
	}
	if !crypto.Verify(hash, sig, expectedNodeID) {
		return fmt.Errorf("contract: signature for role %d does not recover to expected NodeID", role)
	}
	return nil
}

// IsComplete reports whether both signatures are present and verify
// against the contract's own RenterID/FarmerID.
func (c *Contract) IsComplete() bool {
	if c.State() != StateComplete {
		return false
	}
	return c.Verify(RoleRenter, c.RenterID) == nil && c.Verify(RoleFarmer, c.FarmerID) == nil
}

// ID returns the canonical hash as the contract's identifier. Signatures
// are not part of the canonical form, so contracts with identical fields
// share an ID whatever their signatures. FarmerID is part of it, so the ID
// changes when the farmer signs; an ID taken after completion is stable.
func (c *Contract) ID() (crypto.Hash, error) {
	return c.canonicalHash()
}
