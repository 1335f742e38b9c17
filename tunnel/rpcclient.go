package tunnel

import (
	"encoding/json"
	"fmt"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/rpc"
)

// RPCClient implements Prober, Finder and Opener over the real overlay
// RPC transport (rpc.Call), the concrete counterpart Responder answers.
// A Node wires one of these into tunnel.NewClient instead of a test fake.
type RPCClient struct {
	KeyPair *crypto.KeyPair
	Self    rpc.Contact
}

// NewRPCClient constructs an RPCClient that signs outgoing envelopes as
// kp and advertises self as the caller's contact.
func NewRPCClient(kp *crypto.KeyPair, self rpc.Contact) *RPCClient {
	return &RPCClient{KeyPair: kp, Self: self}
}

func (c *RPCClient) addr(contact rpc.Contact) string {
	return fmt.Sprintf("%s:%d", contact.Address, contact.Port)
}

// Probe issues PROBE against seed, asking it to dial back to c.Self.
func (c *RPCClient) Probe(seed rpc.Contact) (bool, error) {
	body, err := json.Marshal(ProbeRequest{Contact: c.Self})
	if err != nil {
		return false, err
	}
	resp, err := rpc.Call(c.KeyPair, c.addr(seed), "PROBE", body, c.Self)
	if err != nil {
		return false, err
	}
	var out ProbeResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return false, err
	}
	return out.Reachable, nil
}

// FindTunnel issues FIND_TUNNEL against contact.
func (c *RPCClient) FindTunnel(contact rpc.Contact, k int) ([]rpc.Contact, error) {
	body, err := json.Marshal(FindTunnelRequest{K: k})
	if err != nil {
		return nil, err
	}
	resp, err := rpc.Call(c.KeyPair, c.addr(contact), "FIND_TUNNEL", body, c.Self)
	if err != nil {
		return nil, err
	}
	var out FindTunnelResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

// OpenTunnel issues OPEN_TUNNEL against tunneler.
func (c *RPCClient) OpenTunnel(tunneler rpc.Contact) (wsURL string, alias string, err error) {
	resp, err := rpc.Call(c.KeyPair, c.addr(tunneler), "OPEN_TUNNEL", nil, c.Self)
	if err != nil {
		return "", "", err
	}
	var out struct {
		OpenTunnelResponse
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", "", err
	}
	if out.Error != "" {
		return "", "", fmt.Errorf("tunnel: open_tunnel refused: %s", out.Error)
	}
	return out.WSURL, out.Alias, nil
}
