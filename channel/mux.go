package channel

import (
	"net"

	"gitlab.com/NebulousLabs/siamux"

	"github.com/Storj/core/crypto"
)

// muxSubscriber is the siamux subscriber name the data channel registers
// under, analogous to the teacher's host registering its contract/RPC
// subscribers on its own siamux instance (modules/host/rpcsubscribe.go).
const muxSubscriber = "storjnode-channel"

// NewMux starts a siamux multiplexer accepting connections on
// tcpAddress, persisting its identity and connection state under
// persistDir. A node that wants its data channel reachable behind the
// same NAT-traversal story as the teacher's hosts (one mux public key,
// independent of the RPC listener's address) runs exactly one of these.
func NewMux(tcpAddress, wsAddress, persistDir string) (*siamux.SiaMux, error) {
	return siamux.New(tcpAddress, wsAddress, nil, persistDir)
}

// MuxListener returns a net.Listener for the data channel's subscriber on
// mux, usable with Server.Serve exactly like a plain net.Listener.
func MuxListener(mux *siamux.SiaMux) (net.Listener, error) {
	return mux.NewListener(muxSubscriber)
}

// DialMux opens a data channel stream over mux to the remote siamux
// listening at address under muxPublicKey, and performs op exactly like
// Dial.
func DialMux(mux *siamux.SiaMux, address string, muxPublicKey siamux.ED25519PublicKey, token string, hash crypto.Hash, op Operation, payload []byte) ([]byte, error) {
	stream, err := mux.NewStream(muxSubscriber, address, muxPublicKey)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return dialOn(stream, token, hash, op, payload)
}
