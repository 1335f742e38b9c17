package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/Storj/core/crypto"
)

// Call dials addr, sends a freshly-signed envelope for method/body as
// self, and returns the decoded reply envelope. One connection per call,
// mirroring channel.Dial's per-transfer connection model.
func Call(kp *crypto.KeyPair, addr, method string, body []byte, self Contact) (Envelope, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return Envelope{}, err
	}
	defer conn.Close()
	return CallConn(conn, kp, method, body, self)
}

// CallConn is Call over an already-open conn (e.g. a multiplexed stream),
// left open for the caller to close.
func CallConn(conn net.Conn, kp *crypto.KeyPair, method string, body []byte, self Contact) (Envelope, error) {
	req := Sign(kp, NewID(), method, body, self, time.Now().UnixMilli())
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Envelope{}, err
	}
	var resp Envelope
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Envelope{}, err
	}
	if resp.ID != req.ID {
		return Envelope{}, fmt.Errorf("rpc: reply id %q does not match request id %q", resp.ID, req.ID)
	}
	return resp, nil
}
