package tunnel

import (
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/Storj/core/errs"
	"github.com/Storj/core/log"
	"github.com/Storj/core/rpc"
)

// Prober asks a contact to attempt a reverse connection back to the
// caller, used to decide public reachability before falling back to a
// tunnel.
type Prober interface {
	Probe(seed rpc.Contact) (reachable bool, err error)
}

// Finder asks a contact for up to k known tunneler contacts.
type Finder interface {
	FindTunnel(contact rpc.Contact, k int) ([]rpc.Contact, error)
}

// Opener requests a relay slot from a tunneler, returning the websocket
// URL to dial and the public alias to advertise as this node's own
// contact.
type Opener interface {
	OpenTunnel(tunneler rpc.Contact) (wsURL string, alias string, err error)
}

// Client performs the PROBE → FIND_TUNNEL → OPEN_TUNNEL handshake
// in order. Reestablish re-runs it on request; Client does not detect a
// lost relay connection by itself.
type Client struct {
	Prober Prober
	Finder Finder
	Opener Opener
	Log    log.Logger

	// dial opens the relay websocket connection. Overridable in tests;
	// defaults to a real websocket.DefaultDialer.Dial.
	dial func(wsURL string) (*websocket.Conn, error)

	conn  *websocket.Conn
	alias string
}

// NewClient constructs a Client over the given handshake steps.
func NewClient(p Prober, f Finder, o Opener, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{Prober: p, Finder: f, Opener: o, Log: logger, dial: defaultDial}
}

func defaultDial(wsURL string) (*websocket.Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

// ErrUnreachable is returned when no candidate tunneler succeeds.
var ErrUnreachable = fmt.Errorf("%w: no reachable tunneler found", errs.ErrTransport)

// Establish runs the handshake against seed: PROBE first (if reachable,
// no tunnel is needed and Establish returns "", nil); otherwise
// FIND_TUNNEL against seed itself (no other contact is asked), then
// OPEN_TUNNEL against each
// candidate in order until one succeeds. The successful alias becomes
// this node's advertised contact.
func (c *Client) Establish(seed rpc.Contact) (alias string, err error) {
	reachable, err := c.Prober.Probe(seed)
	if err != nil {
		return "", fmt.Errorf("%w: probe failed: %v", errs.ErrTransport, err)
	}
	if reachable {
		return "", nil
	}

	candidates, err := c.Finder.FindTunnel(seed, 8)
	if err != nil {
		return "", fmt.Errorf("%w: find_tunnel failed: %v", errs.ErrTransport, err)
	}

	for _, cand := range candidates {
		wsURL, alias, err := c.Opener.OpenTunnel(cand)
		if err != nil {
			c.Log.Debug("tunnel: open_tunnel candidate failed", "candidate", cand.URI(), "err", err)
			continue
		}
		conn, err := c.dial(wsURL)
		if err != nil {
			c.Log.Debug("tunnel: dial failed after open_tunnel", "candidate", cand.URI(), "err", err)
			continue
		}
		c.conn = conn
		c.alias = alias
		return alias, nil
	}
	return "", ErrUnreachable
}

// Reestablish closes the active relay connection, if any, and runs
// Establish against seed once more, returning its result.
func (c *Client) Reestablish(seed rpc.Contact) (alias string, err error) {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return c.Establish(seed)
}

// Close terminates the active relay connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
