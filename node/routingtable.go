package node

import (
	"net"
	"sync"
	"time"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/rpc"
)

// bucketCount is the number of XOR-distance prefix buckets, one per bit
// of a NodeID.
const bucketCount = crypto.HashSize * 8

// RoutingTable buckets known contacts by XOR-distance prefix from a local
// NodeID and periodically evicts entries that fail Valid.
type RoutingTable struct {
	self          crypto.Hash
	allowLoopback bool
	localVersion  Version

	mu      sync.Mutex
	buckets [bucketCount][]rpc.Contact
}

// NewRoutingTable returns an empty table centred on self.
func NewRoutingTable(self crypto.Hash, localVersion Version, allowLoopback bool) *RoutingTable {
	return &RoutingTable{self: self, localVersion: localVersion, allowLoopback: allowLoopback}
}

// bucketIndex returns the index of the highest differing bit between
// self and id, i.e. the XOR-distance prefix length.
func (rt *RoutingTable) bucketIndex(id crypto.Hash) int {
	for byteIdx := 0; byteIdx < crypto.HashSize; byteIdx++ {
		x := rt.self[byteIdx] ^ id[byteIdx]
		if x == 0 {
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if x&(1<<uint(bit)) != 0 {
				return byteIdx*8 + (7 - bit)
			}
		}
	}
	return bucketCount - 1
}

// Insert adds or refreshes c, rejecting it outright if invalid (see
// Valid).
func (rt *RoutingTable) Insert(c rpc.Contact) error {
	if err := rt.Valid(c); err != nil {
		return err
	}
	idx := rt.bucketIndex(c.NodeID)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	bucket := rt.buckets[idx]
	for i, existing := range bucket {
		if existing.NodeID == c.NodeID {
			bucket[i] = c
			return nil
		}
	}
	rt.buckets[idx] = append(bucket, c)
	return nil
}

// Valid reports whether c passes the cleaner's admission rules: a
// compatible protocol version, a non-loopback address unless explicitly
// allowed, and a positive port.
func (rt *RoutingTable) Valid(c rpc.Contact) error {
	v, err := ParseVersion(c.ProtocolVersion)
	if err != nil {
		return err
	}
	if !Compatible(v, rt.localVersion) {
		return errIncompatibleVersion
	}
	if c.Port <= 0 {
		return errInvalidPort
	}
	if !rt.allowLoopback && isLoopback(c.Address) {
		return errLoopbackDisallowed
	}
	return nil
}

func isLoopback(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		// Not a bare IP (e.g. a hostname); let higher-level DNS resolution
		// decide reachability instead of rejecting at insert time.
		return false
	}
	return ip.IsLoopback()
}

// Clean removes every contact failing Valid. Call on a fixed interval
// (config.RouterClean).
func (rt *RoutingTable) Clean() (removed int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, bucket := range rt.buckets {
		kept := bucket[:0]
		for _, c := range bucket {
			if rt.Valid(c) == nil {
				kept = append(kept, c)
			} else {
				removed++
			}
		}
		rt.buckets[i] = kept
	}
	return removed
}

// Contacts returns every contact currently held, across all buckets.
func (rt *RoutingTable) Contacts() []rpc.Contact {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []rpc.Contact
	for _, bucket := range rt.buckets {
		out = append(out, bucket...)
	}
	return out
}

// RunCleaner starts a goroutine that calls Clean every interval until
// stop is closed.
func (rt *RoutingTable) RunCleaner(interval time.Duration, stop <-chan struct{}) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				rt.Clean()
			case <-stop:
				return
			}
		}
	}()
}

var (
	errIncompatibleVersion = versionError("incompatible protocol version")
	errInvalidPort         = versionError("port must be greater than zero")
	errLoopbackDisallowed  = versionError("loopback address disallowed")
)

type versionError string

func (e versionError) Error() string { return "node: " + string(e) }
