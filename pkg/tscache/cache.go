// Package tscache implements the Timestamp Cache: a concurrent mapping from
// user key bytes to a stable Timestamp Word address, reference-counted so
// its slots can be reclaimed once no in-flight transaction still borrows
// them.
package tscache

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/clayne/splinterdb/pkg/tsword"
)

// Mode selects slot-reclamation behavior.
type Mode int

const (
	// Ephemeral reclaims a slot once its refcount drops to zero.
	Ephemeral Mode = iota
	// RetainAll never reclaims a slot once inserted, regardless of refcount.
	RetainAll
)

// shardBits controls the number of independent shard locks; it is
// deliberately decoupled from the caller's requested log-slot sizing hint,
// which only pre-sizes each shard's map.
const shardBits = 6
const shardCount = 1 << shardBits

// Slot holds one Timestamp Word for a given user key. Its address never
// moves and its Word's contents change only by CAS once allocated; the
// shard mutex guards only the map's own insert/remove bookkeeping, never
// reads or writes of an already-obtained Slot's Word.
type Slot struct {
	Word *tsword.Word
	key  []byte
	refs int64
}

type shard struct {
	mu sync.Mutex
	m  map[string]*Slot
}

// Cache is a fixed array of key-hash-routed shards. Routing is purely a
// function of the key bytes (never of the caller's tid) so that two
// goroutines touching the same key always land on the same slot; tid is
// accepted for interface parity with per-thread registration and is
// reserved for future shard-affinity tuning.
type Cache struct {
	mode   Mode
	shards [shardCount]*shard
	mask   uint64
}

// New builds a Cache. logSlots is log2 of the total slot array the caller
// intends to hold; it only sizes each shard's initial map capacity, capped
// at 2^maxShardHintBits entries per shard since a Go map allocates its
// whole initial capacity up front.
func New(logSlots int, mode Mode) *Cache {
	const maxShardHintBits = 10
	hintBits := logSlots - shardBits
	if hintBits > maxShardHintBits {
		hintBits = maxShardHintBits
	}
	hint := 1
	if hintBits > 0 {
		hint = 1 << uint(hintBits)
	}
	c := &Cache{mode: mode, mask: shardCount - 1}
	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[string]*Slot, hint)}
	}
	return c
}

func (c *Cache) shardFor(key []byte) *shard {
	h := xxhash.Sum64(key)
	return c.shards[h&c.mask]
}

// InsertAndGet returns the slot for key, creating one with wts=0 if absent,
// and increments its refcount. tid is accepted for interface parity with
// per-thread registration; see the Cache doc comment.
func (c *Cache) InsertAndGet(tid uint32, key []byte) (*Slot, bool) {
	_ = tid
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.m[string(key)]; ok {
		s.refs++
		return s, false
	}
	s := &Slot{Word: tsword.New(0), key: append([]byte(nil), key...), refs: 1}
	sh.m[string(key)] = s
	return s, true
}

// InsertAndGetNoRef is the retain-all variant of InsertAndGet: it binds a
// slot without incrementing the refcount, since retained slots are never
// reclaimed by refcount accounting anyway.
func (c *Cache) InsertAndGetNoRef(key []byte) *Slot {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.m[string(key)]; ok {
		return s
	}
	s := &Slot{Word: tsword.New(0), key: append([]byte(nil), key...)}
	sh.m[string(key)] = s
	return s
}

// GetAndRemove decrements key's refcount; in Ephemeral mode the slot is
// physically removed once the refcount reaches zero. In RetainAll mode the
// refcount is still tracked (for the refcount-pairing invariant) but the
// slot is never removed from the map.
func (c *Cache) GetAndRemove(tid uint32, key []byte) {
	_ = tid
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.m[string(key)]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 && c.mode == Ephemeral {
		delete(sh.m, string(key))
	}
}

// Peek returns the slot for key if present, without affecting its refcount.
// Useful for tests and diagnostics; not part of the core commit path.
func (c *Cache) Peek(key []byte) (*Slot, bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.m[string(key)]
	return s, ok
}

// Len returns the total number of live slots across all shards.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
