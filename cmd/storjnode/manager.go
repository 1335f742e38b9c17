package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/Storj/core/channel"
	"github.com/Storj/core/log"
	"github.com/Storj/core/rpc"
)

// transportManager is the node.Manager this binary wires in: a single
// shared TCP listener, demultiplexing each inbound connection's first
// JSON frame between the data channel protocol (channel.Handshake) and
// the overlay RPC protocol (rpc.Envelope), and dispatching it to
// whichever server owns it. Open binds the listener and starts
// accepting; Close tears it down.
type transportManager struct {
	addr          string
	channelServer *channel.Server
	rpcServer     *rpc.Server
	logger        log.Logger

	ln net.Listener
}

func newTransportManager(addr string, channelServer *channel.Server, rpcServer *rpc.Server, logger log.Logger) *transportManager {
	if logger == nil {
		logger = log.Discard()
	}
	return &transportManager{addr: addr, channelServer: channelServer, rpcServer: rpcServer, logger: logger}
}

func (m *transportManager) Open(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("storjnode: listen on %s: %w", m.addr, err)
	}
	m.ln = ln
	go m.accept(ctx, ln)
	m.logger.Info("storjnode: listening", "addr", m.addr)
	return nil
}

func (m *transportManager) Close() error {
	if m.ln == nil {
		return nil
	}
	return m.ln.Close()
}

func (m *transportManager) accept(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				m.logger.Error("storjnode: accept failed", "err", err)
				return
			}
		}
		go m.route(ctx, conn)
	}
}

// frameProbe distinguishes the two wire protocols sharing this listener
// by which top-level key their opening frame carries: every
// channel.Handshake names an Operation, every rpc.Envelope names a
// Method (even a reply's, though nothing dials in expecting one).
type frameProbe struct {
	Operation *string `json:"operation"`
	Method    *string `json:"method"`
}

func (m *transportManager) route(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		m.logger.Debug("storjnode: bad opening frame", "err", err, "remote", conn.RemoteAddr())
		return
	}

	var probe frameProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		m.logger.Debug("storjnode: unreadable opening frame", "err", err, "remote", conn.RemoteAddr())
		return
	}

	switch {
	case probe.Operation != nil:
		var hs channel.Handshake
		if err := json.Unmarshal(raw, &hs); err != nil {
			m.logger.Debug("storjnode: bad handshake frame", "err", err)
			return
		}
		if err := m.channelServer.HandleConn(ctx, conn, hs); err != nil {
			m.logger.Debug("storjnode: channel transfer failed", "err", err)
		}
	case probe.Method != nil:
		var env rpc.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			m.logger.Debug("storjnode: bad envelope frame", "err", err)
			return
		}
		m.rpcServer.HandleConn(ctx, conn, env)
	default:
		m.logger.Debug("storjnode: opening frame matched neither protocol", "remote", conn.RemoteAddr())
	}
}
