// Package registry tracks connected peers in an FNV-hash sharded map,
// inserted on CONNECT and removed on DISCONNECT, with a broadcast-friendly
// Snapshot for iterating without holding any shard lock.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package registry

import (
	"hash/fnv"
	"sync"
)

// Peer is opaque state associated with a connected endpoint. The registry
// itself never inspects Value; it exists so callers can attach whatever
// connection/session object the transport produced.
type Peer struct {
	Key   string
	Value any
}

type shard struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// Registry is a sharded, concurrent-safe map of peer key to Peer. One
// short lock per shard guards insert/remove/snapshot, held only for the
// duration of that single operation.
type Registry struct {
	shards []*shard
	mask   uint32
}

// New constructs a Registry with shardCount shards, rounded up to the
// next power of two (at least 1) so shard selection is a bitmask.
func New(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	n := nextPow2(uint32(shardCount))
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{peers: make(map[string]*Peer)}
	}
	return &Registry{shards: shards, mask: n - 1}
}

func nextPow2(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	if v == 0 {
		v = 1
	}
	return v
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func (r *Registry) shardFor(key string) *shard {
	return r.shards[fnv32(key)&r.mask]
}

// Insert adds the peer at key. If a peer already exists at that key it
// is left in place and Insert returns false (the caller's CONNECT
// handler decides whether that's acceptable).
func (r *Registry) Insert(key string, value any) (inserted bool) {
	sh := r.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.peers[key]; exists {
		return false
	}
	sh.peers[key] = &Peer{Key: key, Value: value}
	return true
}

// Get returns the peer at key, if present.
func (r *Registry) Get(key string) (*Peer, bool) {
	sh := r.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	p, ok := sh.peers[key]
	return p, ok
}

// Remove deletes the peer at key, if present.
func (r *Registry) Remove(key string) {
	sh := r.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.peers, key)
}

// Snapshot returns a copy of all currently registered peers, taken under
// each shard's lock in turn and released before the caller iterates —
// so a slow consumer of the snapshot never blocks concurrent
// registration.
func (r *Registry) Snapshot() []*Peer {
	var out []*Peer
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, p := range sh.peers {
			out = append(out, p)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the total number of registered peers across all shards.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.peers)
		sh.mu.RUnlock()
	}
	return n
}
