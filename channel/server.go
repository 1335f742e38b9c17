package channel

import (
	"bytes"
	"context"
	"io"
	"net"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
	"github.com/Storj/core/log"
	"github.com/Storj/core/metrics"
	"github.com/Storj/core/storage"
)

// Server accepts data channel connections and services the single
// PUSH/PULL transfer each one carries.
type Server struct {
	Adapter *storage.ShardManager
	Tokens  *TokenStore
	Log     log.Logger
	Metrics *metrics.Metrics
}

// NewServer constructs a Server over adapter and tokens.
func NewServer(adapter *storage.ShardManager, tokens *TokenStore, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{Adapter: adapter, Tokens: tokens, Log: logger, Metrics: metrics.Discard()}
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
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

	hs, err := readHandshake(conn)
	if err != nil {
		s.Log.Debug("channel: bad handshake", "err", err, "remote", conn.RemoteAddr())
		return
	}
	if err := s.HandleConn(ctx, conn, hs); err != nil {
		s.Log.Debug("channel: transfer failed", "err", err)
	}
}

// HandleConn services the single PUSH/PULL transfer hs describes over an
// already-open conn, writing the ack and shard bytes but never closing
// conn itself -- the caller owns the connection's lifecycle. This is the
// entry point a shared demultiplexing listener (deciding per-connection
// between a channel.Handshake and an rpc.Envelope) calls once it has
// already read and identified hs off the wire.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn, hs Handshake) error {
	hash, err := parseHash(hs.Hash)
	if err != nil {
		writeAck(conn, false, "invalid hash")
		return err
	}

	tok, err := s.Tokens.Reserve(hs.Token, hs.Operation, hash)
	if err != nil {
		writeAck(conn, false, err.Error())
		return err
	}

	var xferErr error
	switch hs.Operation {
	case OpPush:
		xferErr = s.servePush(ctx, conn, tok)
	case OpPull:
		xferErr = s.servePull(ctx, conn, tok)
	default:
		xferErr = errs.AddContext(errs.ErrValidation, "unknown operation")
	}

	s.Tokens.Release(tok.Value, xferErr == nil)
	return xferErr
}

// servePush receives a shard from the client, verifying its hash matches
// the token's bound shard hash before committing it to storage. On
// mismatch the shard is discarded and the token is released unconsumed
// (§4.4: "token not consumed").
func (s *Server) servePush(ctx context.Context, conn net.Conn, tok *Token) error {
	if err := writeAck(conn, true, ""); err != nil {
		return err
	}

	buf, err := io.ReadAll(conn)
	if err != nil {
		return err
	}

	if crypto.H(buf) != tok.Hash {
		return ErrHashMismatch
	}

	item := storage.NewItem(tok.Hash)
	key := tok.Hash.String()
	if err := s.Adapter.Put(ctx, key, item, bytes.NewReader(buf), int64(len(buf))); err != nil {
		return err
	}
	s.Metrics.ShardsPushed.Inc()
	s.Metrics.ShardBytesRecvd.Add(float64(len(buf)))
	return nil
}

// servePull streams the shard's bytes to the client.
func (s *Server) servePull(ctx context.Context, conn net.Conn, tok *Token) error {
	key := tok.Hash.String()
	_, rc, err := s.Adapter.Get(ctx, key)
	if err != nil {
		writeAck(conn, false, err.Error())
		return err
	}
	if rc == nil {
		// Metadata exists (e.g. from a matched contract) but the shard bytes
		// haven't landed yet — distinct from the adapter actually being out
		// of capacity (ErrStorageFull).
		writeAck(conn, false, ErrShardPending.Error())
		return ErrShardPending
	}
	defer rc.Close()

	if err := writeAck(conn, true, ""); err != nil {
		return err
	}
	n, err := io.Copy(conn, rc)
	if err != nil {
		return err
	}
	s.Metrics.ShardsPulled.Inc()
	s.Metrics.ShardBytesSent.Add(float64(n))
	return nil
}
