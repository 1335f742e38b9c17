// Package tunnel implements relaying for NAT-bound peers: publicly
// reachable nodes advertise as tunnelers over the protocol market, and
// NAT-bound nodes probe, discover, and open a websocket relay through
// one of them.
package tunnel

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/Storj/core/rpc"
)

// Bucket is a bounded cache of known tunneler contacts, evicting the
// oldest entry when a new one arrives at capacity (§5: "insertion with
// eviction of the oldest when full").
type Bucket struct {
	cache *lru.Cache
}

// NewBucket returns a Bucket capped at size entries.
func NewBucket(size int) (*Bucket, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Bucket{cache: c}, nil
}

// Add records or refreshes a tunneler contact.
func (b *Bucket) Add(c rpc.Contact) {
	b.cache.Add(c.NodeID, c)
}

// Remove withdraws a tunneler contact (on receiving its UNAVAIL
// advertisement).
func (b *Bucket) Remove(c rpc.Contact) {
	b.cache.Remove(c.NodeID)
}

// Candidates returns up to k known tunnelers, most recently added
// first, for a FIND_TUNNEL response.
func (b *Bucket) Candidates(k int) []rpc.Contact {
	keys := b.cache.Keys()
	out := make([]rpc.Contact, 0, k)
	for i := len(keys) - 1; i >= 0 && len(out) < k; i-- {
		v, ok := b.cache.Peek(keys[i])
		if !ok {
			continue
		}
		out = append(out, v.(rpc.Contact))
	}
	return out
}
