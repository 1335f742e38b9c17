package channel

import (
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/Storj/core/crypto"
)

// Handshake is the first frame sent by the client on a new data channel
// connection: a JSON object naming the token, the expected shard hash,
// and the requested direction.
type Handshake struct {
	Token     string    `json:"token"`
	Hash      string    `json:"hash"`
	Operation Operation `json:"operation"`
}

// readHandshake decodes a single JSON-encoded Handshake frame from r.
func readHandshake(r io.Reader) (Handshake, error) {
	var h Handshake
	dec := json.NewDecoder(r)
	if err := dec.Decode(&h); err != nil {
		return Handshake{}, err
	}
	return h, nil
}

// ackFrame is the server's single reply frame before streaming begins.
type ackFrame struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// writeAck writes a one-line JSON status frame.
func writeAck(w io.Writer, ok bool, message string) error {
	return json.NewEncoder(w).Encode(ackFrame{OK: ok, Message: message})
}

// readAck decodes a single JSON-encoded ackFrame from r.
func readAck(r io.Reader) (ackFrame, error) {
	var a ackFrame
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return ackFrame{}, err
	}
	return a, nil
}

// writeHandshake encodes a single JSON Handshake frame to w.
func writeHandshake(w io.Writer, h Handshake) error {
	return json.NewEncoder(w).Encode(h)
}

func parseHash(s string) (crypto.Hash, error) {
	var h crypto.Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}
