// Package muxer implements the deterministic split of a file into
// fixed-size shards (Demuxer) and the deterministic, strictly-ordered
// reassembly of shard streams back into a file (Muxer).
package muxer

import (
	"bufio"
	"io"
)

// DefaultShardSize is the demuxer's default shard size (8 MiB).
const DefaultShardSize = 8 << 20

// Demuxer splits a single byte stream into ascending-index shard readers
// of shardSize bytes each, the final one possibly shorter. Concatenating
// every shard it emits reproduces the source bytes exactly.
type Demuxer struct {
	br        *bufio.Reader
	shardSize int64
	index     int
}

// NewDemuxer wraps r, emitting shards of shardSize bytes. A shardSize of
// zero uses DefaultShardSize.
func NewDemuxer(r io.Reader, shardSize int64) *Demuxer {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return &Demuxer{br: bufio.NewReader(r), shardSize: shardSize}
}

// Next returns the next shard's reader and its ascending index, or
// ok=false once the source is exhausted. The previous shard's reader must
// be fully drained before calling Next again — they share the underlying
// stream.
func (d *Demuxer) Next() (shard io.Reader, index int, ok bool, err error) {
	if _, err := d.br.Peek(1); err != nil {
		if err == io.EOF {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	idx := d.index
	d.index++
	return io.LimitReader(d.br, d.shardSize), idx, true, nil
}
