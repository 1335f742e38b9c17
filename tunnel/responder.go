package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/Storj/core/errs"
	"github.com/Storj/core/log"
	"github.com/Storj/core/rpc"
)

// defaultFindTunnelK is how many candidates FIND_TUNNEL returns when a
// caller doesn't ask for a specific count.
const defaultFindTunnelK = 8

// ProbeRequest asks the responder to dial back to Contact to confirm it's
// publicly reachable.
type ProbeRequest struct {
	Contact rpc.Contact
}

// ProbeResponse reports whether the dial-back succeeded.
type ProbeResponse struct {
	Reachable bool
}

// FindTunnelRequest asks for up to K known tunneler contacts. K defaults
// to defaultFindTunnelK when zero.
type FindTunnelRequest struct {
	K int
}

// FindTunnelResponse carries the responder's candidate tunnelers.
type FindTunnelResponse struct {
	Candidates []rpc.Contact
}

// OpenTunnelRequest reserves a relay slot. It carries no fields beyond
// what the envelope already supplies (the caller's identity as Sender).
type OpenTunnelRequest struct{}

// OpenTunnelResponse carries the websocket URL to dial and the alias the
// caller should advertise as its own contact once connected.
type OpenTunnelResponse struct {
	WSURL string
	Alias string
}

// Responder answers the PROBE/FIND_TUNNEL/OPEN_TUNNEL RPCs a NAT-bound
// peer's tunnel.Client issues during Establish (§4.8). It is the
// server-side half that Client's Prober/Finder/Opener interfaces call
// into over the wire.
type Responder struct {
	Bucket      *Bucket
	Server      *Server
	PublicWSURL string // base URL, e.g. "ws://relay.example:4000/tunnel/"

	// dialback attempts a TCP connection to confirm reachability.
	// Overridable in tests; defaults to a real net.DialTimeout.
	dialback func(addr string) error

	Log log.Logger
}

// NewResponder constructs a Responder serving relay slots from server and
// candidate contacts from bucket. publicWSURL is the base websocket URL
// this node advertises in OPEN_TUNNEL responses, with the alias appended.
func NewResponder(bucket *Bucket, server *Server, publicWSURL string, logger log.Logger) *Responder {
	if logger == nil {
		logger = log.Discard()
	}
	return &Responder{
		Bucket:      bucket,
		Server:      server,
		PublicWSURL: publicWSURL,
		dialback:    defaultDialback,
		Log:         logger,
	}
}

func defaultDialback(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Routes adapts the three handlers to rpc.Handler, keyed by the method
// names rpc.UnverifiedMethods exempts from signature verification (a
// NAT-bound peer probing its own reachability has no prior signed
// relationship with the responder yet).
func (r *Responder) Routes() map[string]rpc.Handler {
	return map[string]rpc.Handler{
		"PROBE":       r.handleProbe,
		"FIND_TUNNEL": r.handleFindTunnel,
		"OPEN_TUNNEL": r.handleOpenTunnel,
	}
}

func (r *Responder) handleProbe(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req ProbeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	addr := fmt.Sprintf("%s:%d", req.Contact.Address, req.Contact.Port)
	reachable := r.dialback(addr) == nil
	return json.Marshal(ProbeResponse{Reachable: reachable})
}

func (r *Responder) handleFindTunnel(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req FindTunnelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	k := req.K
	if k <= 0 {
		k = defaultFindTunnelK
	}
	return json.Marshal(FindTunnelResponse{Candidates: r.Bucket.Candidates(k)})
}

func (r *Responder) handleOpenTunnel(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	alias := rpc.NewID()
	if err := r.Server.Open(alias); err != nil {
		return nil, err
	}
	return json.Marshal(OpenTunnelResponse{WSURL: r.PublicWSURL + alias, Alias: alias})
}
