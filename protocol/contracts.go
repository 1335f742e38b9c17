package protocol

import (
	"sync"

	"github.com/Storj/core/contract"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
)

// ErrAlreadyMatched is returned to a farmer whose OFFER arrives after the
// renter already accepted a different farmer's offer for the same
// publication (§4.7's race rule: first offer wins).
var ErrAlreadyMatched = errs.AddContext(errs.ErrContract, "contract already matched")

// PendingContracts tracks, per publication key, the contract a renter is
// waiting to have countersigned. Access to any individual key is
// serialised so the first OFFER to arrive always wins the race.
type PendingContracts struct {
	mu    sync.Mutex
	locks map[crypto.Hash]*sync.Mutex
	items map[crypto.Hash]*contract.Contract
}

// NewPendingContracts returns an empty tracker.
func NewPendingContracts() *PendingContracts {
	return &PendingContracts{
		locks: make(map[crypto.Hash]*sync.Mutex),
		items: make(map[crypto.Hash]*contract.Contract),
	}
}

// Publish registers c as pending under key (typically H(data_hash)),
// ready to be matched by the first arriving OFFER.
func (p *PendingContracts) Publish(key crypto.Hash, c *contract.Contract) {
	lock := p.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	p.items[key] = c
}

// Match atomically claims key's pending contract for a single caller:
// the first call after Publish succeeds and removes the entry; every
// later call before a new Publish returns ErrAlreadyMatched.
func (p *PendingContracts) Match(key crypto.Hash) (*contract.Contract, error) {
	lock := p.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	c, ok := p.items[key]
	if !ok {
		return nil, ErrAlreadyMatched
	}
	delete(p.items, key)
	return c, nil
}

func (p *PendingContracts) keyLock(key crypto.Hash) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}
