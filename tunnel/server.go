package tunnel

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Storj/core/errs"
	"github.com/Storj/core/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server holds one websocket connection per alias assigned at
// OPEN_TUNNEL time and writes each message it reads back on that same
// connection; it does not pair two peers under one alias. A
// node's MaxTunnels caps concurrently open relay slots; a tunnel-client
// node (one using a relay itself) sets this to zero so it never relays
// for others (§4.8).
type Server struct {
	MaxTunnels int
	Log        log.Logger

	mu     sync.Mutex
	active map[string]*relay
}

type relay struct {
	alias string
	conn  *websocket.Conn
}

// NewServer returns a Server admitting at most maxTunnels concurrent
// relay slots.
func NewServer(maxTunnels int, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{MaxTunnels: maxTunnels, Log: logger, active: make(map[string]*relay)}
}

// ErrNoTunnelAvailable is returned when every relay slot is occupied.
var ErrNoTunnelAvailable = fmt.Errorf("%w: no tunnel slots available", errs.ErrTransport)

// Open reserves a relay slot for alias and returns an error if the
// server is at MaxTunnels capacity (including MaxTunnels == 0, the
// tunnel-client configuration).
func (s *Server) Open(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) >= s.MaxTunnels {
		return ErrNoTunnelAvailable
	}
	s.active[alias] = &relay{alias: alias}
	return nil
}

// ServeHTTP upgrades the connection and relays bytes for the reserved
// alias named in the request path until either side closes.
func (s *Server) ServeHTTP(alias string, w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rl, ok := s.active[alias]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown tunnel alias", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Debug("tunnel: upgrade failed", "err", err, "alias", alias)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	rl.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, alias)
		s.mu.Unlock()
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := s.forward(alias, mt, data); err != nil {
			return
		}
	}
}

// forward writes one message back on the websocket connection registered
// for alias, failing with io.ErrClosedPipe if there is none.
func (s *Server) forward(alias string, messageType int, data []byte) error {
	s.mu.Lock()
	rl, ok := s.active[alias]
	s.mu.Unlock()
	if !ok || rl.conn == nil {
		return io.ErrClosedPipe
	}
	return rl.conn.WriteMessage(messageType, data)
}
