// Package protocol implements the OFFER/CONSIGN/RETRIEVE/AUDIT/MIRROR
// negotiation handlers and the opcode-topic publish/subscribe contract
// market that matches farmers to renter publications.
package protocol

import "sync"

// Topic is a publish/subscribe key: a one-byte opcode prefix plus a
// two-byte stream descriptor (shard size bucket, contract shape bucket),
// per §4.7.
type Topic [3]byte

// NewTopic builds a Topic from its opcode prefix and descriptor bytes.
func NewTopic(prefix byte, sizeBucket, shapeBucket byte) Topic {
	return Topic{prefix, sizeBucket, shapeBucket}
}

// Publication is a renter's announcement of a contract it wants
// countersigned by a farmer, fanned out to every subscriber of its topic.
type Publication struct {
	Topic    Topic
	Contract []byte // canonical contract JSON, renter-signed
}

// Market is a publish/subscribe broker keyed by opcode topic. Farmers
// subscribe to topics matching their capabilities; renters publish
// contract offers, and every matching subscriber receives a copy.
type Market struct {
	mu   sync.RWMutex
	subs map[Topic][]chan Publication
}

// NewMarket returns an empty Market.
func NewMarket() *Market {
	return &Market{subs: make(map[Topic][]chan Publication)}
}

// Subscribe returns a channel receiving every future Publication on
// topic. The channel is buffered; slow subscribers drop publications
// rather than block publishers (call the returned unsubscribe function
// once done).
func (m *Market) Subscribe(topic Topic) (ch <-chan Publication, unsubscribe func()) {
	c := make(chan Publication, 32)
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], c)
	m.mu.Unlock()

	unsub := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[topic]
		for i, s := range subs {
			if s == c {
				m.subs[topic] = append(subs[:i], subs[i+1:]...)
				close(c)
				break
			}
		}
	}
	return c, unsub
}

// Publish fans pub out to every subscriber of pub.Topic, dropping it for
// any subscriber whose buffer is full rather than blocking.
func (m *Market) Publish(pub Publication) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.subs[pub.Topic] {
		select {
		case c <- pub:
		default:
		}
	}
}
