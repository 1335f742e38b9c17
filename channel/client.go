package channel

import (
	"bytes"
	"encoding/json"
	"io"
	"net"

	"github.com/Storj/core/crypto"
)

// Dial opens a plain-TCP data channel to addr and performs op, returning
// the transferred bytes (the received shard for PULL, or nil for PUSH).
// For PUSH, payload is sent as the shard body; for PULL, payload is
// ignored.
func Dial(addr, token string, hash crypto.Hash, op Operation, payload []byte) ([]byte, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return dialOn(conn, token, hash, op, payload)
}

// dialOn runs the handshake/ack/transfer sequence over an already-open
// stream, shared by Dial (plain net.Conn) and DialMux (a siamux.Stream,
// which satisfies the same Read/Write surface).
func dialOn(stream io.ReadWriter, token string, hash crypto.Hash, op Operation, payload []byte) ([]byte, error) {
	hs := Handshake{Token: token, Hash: hash.String(), Operation: op}
	if err := writeHandshake(stream, hs); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(stream)
	var ack ackFrame
	if err := dec.Decode(&ack); err != nil {
		return nil, err
	}
	if !ack.OK {
		return nil, &remoteError{ack.Message}
	}

	switch op {
	case OpPush:
		_, err := io.Copy(stream, bytes.NewReader(payload))
		return nil, err
	case OpPull:
		// The ack decoder may have read past the ack into the shard;
		// replay what it buffered before the rest of the stream.
		return io.ReadAll(io.MultiReader(dec.Buffered(), stream))
	default:
		return nil, &remoteError{"unknown operation"}
	}
}

type remoteError struct{ msg string }

func (e *remoteError) Error() string { return e.msg }
