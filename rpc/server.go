package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
	"github.com/Storj/core/log"
	"github.com/Storj/core/metrics"
)

// Handler answers one envelope-verified, rate-limit-cleared request body
// and returns the response body to sign and send back, or an error to
// report in its place (§4.7/§4.8 dispatch targets).
type Handler func(ctx context.Context, body []byte, sender Contact) ([]byte, error)

// Server ties envelope verification and rate limiting (§4.6) to
// method-keyed dispatch (§4.7/§4.8). It is the concrete overlay RPC
// responder that node.Manager's "RPC dispatch loop" promises.
type Server struct {
	KeyPair     *crypto.KeyPair
	Self        Contact
	Handlers    map[string]Handler
	Limiter     *Limiter
	NonceExpire time.Duration
	Log         log.Logger
	Metrics     *metrics.Metrics
}

// NewServer constructs a Server that signs replies as self and rate
// limits inbound requests via limiter. A nil limiter gets a permissive
// default; callers wiring real rate limits should always pass one.
func NewServer(kp *crypto.KeyPair, self Contact, limiter *Limiter, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if limiter == nil {
		limiter = NewLimiter(600)
	}
	return &Server{
		KeyPair:     kp,
		Self:        self,
		Handlers:    make(map[string]Handler),
		Limiter:     limiter,
		NonceExpire: DefaultNonceExpire,
		Log:         logger,
		Metrics:     metrics.Discard(),
	}
}

// Register adds routes to s, as returned by protocol.Handler.Routes or
// tunnel.Responder.Routes. A duplicate method name is a wiring bug caught
// at startup, not a runtime condition, so it panics.
func (s *Server) Register(routes map[string]Handler) {
	for method, h := range routes {
		if _, exists := s.Handlers[method]; exists {
			panic("rpc: duplicate method registered: " + method)
		}
		s.Handlers[method] = h
	}
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails,
// decoding one envelope per connection and handing it to HandleConn.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		go s.accept(ctx, conn)
	}
}

func (s *Server) accept(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	var env Envelope
	if err := json.NewDecoder(conn).Decode(&env); err != nil {
		s.Log.Debug("rpc: bad envelope", "err", err, "remote", conn.RemoteAddr())
		return
	}
	s.HandleConn(ctx, conn, env)
}

// HandleConn verifies, rate-limits, dispatches and replies to an
// already-decoded envelope on conn, without closing conn itself. Exported
// so a shared-listener demultiplexer (cmd/storjnode's transportManager)
// can probe one decoded frame for its kind and hand an rpc.Envelope here
// directly instead of running a second Accept loop.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn, env Envelope) {
	result, handlerErr := s.dispatch(ctx, env)
	if handlerErr != nil {
		result, _ = json.Marshal(map[string]string{"error": handlerErr.Error()})
	}
	resp := Sign(s.KeyPair, env.ID, "", result, s.Self, time.Now().UnixMilli())
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.Log.Debug("rpc: failed writing response", "err", err, "method", env.Method)
	}
}

func (s *Server) dispatch(ctx context.Context, env Envelope) ([]byte, error) {
	if err := Verify(env, time.Now().UnixMilli(), s.NonceExpire); err != nil {
		return nil, err
	}
	if ok, retryAfter := s.Limiter.Allow(env.Sender.NodeID, time.Now()); !ok {
		return nil, RateLimitError(retryAfter)
	}
	handler, ok := s.Handlers[env.Method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q", errs.ErrValidation, env.Method)
	}
	return handler(ctx, env.Body, env.Sender)
}
