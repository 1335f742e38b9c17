// Package rpc implements the signed request/response envelope every
// overlay RPC travels in, plus the per-contact rate limiter that guards
// handler dispatch.
package rpc

import (
	"fmt"

	"github.com/Storj/core/crypto"
)

// Contact identifies a reachable peer on the overlay.
type Contact struct {
	Address         string      `json:"address"`
	Port            int         `json:"port"`
	NodeID          crypto.Hash `json:"nodeID"`
	ProtocolVersion string      `json:"protocol_version"`
	LastSeen        int64       `json:"last_seen"`

	// MuxAddress and MuxPublicKey locate this contact's data channel
	// siamux listener, mirroring the teacher's HostExternalSettings
	// SiaMuxPort/PublicKey pairing a renter dials into for sector
	// transfer: a farmer advertises a mux address separate from its RPC
	// port, keyed under an Ed25519 public key rather than by NodeID.
	// Empty when the contact only accepts plain-TCP data channel dials.
	MuxAddress   string `json:"mux_address,omitempty"`
	MuxPublicKey string `json:"mux_public_key,omitempty"` // hex-encoded Ed25519 key
}

// URI renders c in the storj://host:port/nodeid form used in logs and in
// the bridge's frame metadata.
func (c Contact) URI() string {
	return fmt.Sprintf("storj://%s:%d/%s", c.Address, c.Port, c.NodeID.String())
}
