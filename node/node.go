package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/NebulousLabs/threadgroup"

	"github.com/Storj/core/config"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
	"github.com/Storj/core/log"
	"github.com/Storj/core/metrics"
	"github.com/Storj/core/rpc"
)

// Manager is the transport the node opens and closes around its
// lifetime (listening sockets, the RPC dispatch loop). Node depends on
// the interface, not a concrete transport, so tests can substitute a
// fake.
type Manager interface {
	Open(ctx context.Context) error
	Close() error
}

// TunnelClient establishes (and re-establishes) a relay connection for
// NAT-bound nodes. A node that is already publicly reachable can pass a
// no-op implementation.
type TunnelClient interface {
	Establish(seed rpc.Contact) (alias string, err error)
}

// Node is the facade tying together transport lifecycle, the routing
// table, tunnel readiness, and inactivity reentry.
type Node struct {
	KeyPair *crypto.KeyPair
	Config  config.Config
	Version Version

	Manager Manager
	Tunnel  TunnelClient
	Table   *RoutingTable
	Log     log.Logger
	Metrics *metrics.Metrics

	Seeds []rpc.Contact

	// ready receives once the node has finished Join, either directly
	// reachable or via an established tunnel alias. Components waiting
	// on tunnel readiness (e.g. the tunneler-announce loop) subscribe
	// here instead of holding a back-reference into Node (§9).
	ready chan string

	mu          sync.Mutex
	lastTraffic time.Time
	tg          threadgroup.ThreadGroup
}

// New constructs a Node. table and manager are required; tunnel may be
// nil for a node that never needs relaying.
func New(kp *crypto.KeyPair, cfg config.Config, version Version, table *RoutingTable, manager Manager, tunnel TunnelClient, logger log.Logger) *Node {
	if logger == nil {
		logger = log.Discard()
	}
	n := &Node{
		KeyPair: kp,
		Config:  cfg,
		Version: version,
		Manager: manager,
		Tunnel:  tunnel,
		Table:   table,
		Log:     logger,
		ready:   make(chan string, 1),
	}
	n.Metrics = metrics.New(func() float64 { return float64(len(table.Contacts())) })
	return n
}

// Ready returns the channel that receives the node's tunnel alias (or
// "" if directly reachable) once Join completes.
func (n *Node) Ready() <-chan string { return n.ready }

// Join opens the transport manager, establishes a tunnel if one is
// configured, inserts the seeds into the routing table in series
// (stopping at the first one Insert accepts, and failing if none is) without
// sending any request to a seed, and starts the routing-table cleaner
// and reentry timer. cb is invoked once Join completes, successfully or not.
func (n *Node) Join(ctx context.Context, cb func(error)) error {
	err := n.join(ctx)
	if cb != nil {
		cb(err)
	}
	return err
}

func (n *Node) join(ctx context.Context) error {
	if err := n.Manager.Open(ctx); err != nil {
		return fmt.Errorf("%w: manager open: %v", errs.ErrTransport, err)
	}

	var alias string
	if n.Tunnel != nil && len(n.Seeds) > 0 {
		a, err := n.Tunnel.Establish(n.Seeds[0])
		if err != nil {
			return fmt.Errorf("%w: tunnel setup: %v", errs.ErrTransport, err)
		}
		alias = a
	}

	var lastErr error
	connected := false
	for _, seed := range n.Seeds {
		if err := n.Table.Insert(seed); err != nil {
			lastErr = err
			continue
		}
		connected = true
		break
	}
	if len(n.Seeds) > 0 && !connected {
		return fmt.Errorf("%w: no seed accepted: %v", errs.ErrTransport, lastErr)
	}

	n.Table.RunCleaner(n.Config.RouterClean, n.tg.StopChan())

	n.mu.Lock()
	n.lastTraffic = time.Now()
	n.mu.Unlock()

	if err := n.tg.Add(); err != nil {
		// Already stopping (or stopped): a reentry join racing a Leave.
		// The caller still gets a usable node for this one join; no new
		// reentry loop is started since there's nothing left to tend it.
		return nil
	}
	go func() {
		defer n.tg.Done()
		n.reentryLoop(ctx)
	}()

	select {
	case n.ready <- alias:
	default:
	}
	return nil
}

// Leave closes the transport manager and stops background loops. cb is
// invoked with the result.
func (n *Node) Leave(cb func(error)) error {
	// Stop blocks until the reentry loop (and anything else tracked via
	// tg.Add) has returned. A Leave called before any Join is a no-op
	// error from threadgroup, not a panic, so it's safe to ignore here.
	_ = n.tg.Stop()
	err := n.Manager.Close()
	if cb != nil {
		cb(err)
	}
	return err
}

// NoteTraffic records that a message was just received from the
// overlay, resetting the inactivity reentry timer.
func (n *Node) NoteTraffic() {
	n.mu.Lock()
	n.lastTraffic = time.Now()
	n.mu.Unlock()
}

// reentryLoop re-runs Join after Config.ReentryIdle elapses without
// NoteTraffic being called (§4.9 Inactivity reentry).
func (n *Node) reentryLoop(ctx context.Context) {
	ticker := time.NewTicker(n.Config.ReentryIdle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.mu.Lock()
			idle := time.Since(n.lastTraffic)
			n.mu.Unlock()
			if idle >= n.Config.ReentryIdle {
				n.Log.Info("node: inactivity reentry triggered", "idle", idle)
				if err := n.join(ctx); err != nil {
					n.Log.Error("node: reentry join failed", "err", err)
				}
			}
		case <-n.tg.StopChan():
			return
		}
	}
}
