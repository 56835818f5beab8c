// Package rwset implements the RW-Entry and Transaction Context: the
// per-key, per-transaction bookkeeping the commit engine partitions into
// read and write sets.
package rwset

import (
	"bytes"
	"sync"

	"github.com/clayne/splinterdb/pkg/dataconfig"
	"github.com/clayne/splinterdb/pkg/errors"
	"github.com/clayne/splinterdb/pkg/tscache"
)

// MsgClass is the kind of buffered write on an entry.
type MsgClass uint8

const (
	Insert MsgClass = iota + 1
	Update
	Delete
)

// IsDefinitive reports whether the class replaces any prior buffered
// message outright instead of merging onto it.
func (c MsgClass) IsDefinitive() bool { return c == Insert || c == Delete }

// Msg is a buffered write, owned by the Entry that holds it.
type Msg struct {
	Class MsgClass
	Value []byte
}

// RWSetSizeLimit caps the number of distinct keys one transaction may touch.
const RWSetSizeLimit = 4096

// Entry is one key's worth of per-transaction state.
type Entry struct {
	Key  []byte
	Msg  *Msg
	Wts  uint64
	Rts  uint64
	Slot *tscache.Slot

	IsRead bool

	// NeedToKeepKey is reserved for a zero-copy optimization where Key
	// would alias the cache slot's own retained key copy instead of a
	// private one; this implementation always owns a private copy, so it
	// is always false, but the field is carried since it is part of the
	// RW-Entry's specified shape.
	NeedToKeepKey bool

	// NeedToDecrRef is true once a cache slot has been bound for this
	// entry and must be released (GetAndRemove) at teardown.
	NeedToDecrRef bool
}

var entryPool = sync.Pool{
	New: func() any { return new(Entry) },
}

// AcquireEntry obtains a zeroed Entry from the pool.
func AcquireEntry() *Entry {
	return entryPool.Get().(*Entry)
}

// ReleaseEntry resets and returns an Entry to the pool.
func ReleaseEntry(e *Entry) {
	*e = Entry{}
	entryPool.Put(e)
}

// SetMsg merges msg into the entry's buffered message per the RW-Entry
// merge rules: an empty entry stores a copy outright; a DEFINITIVE message
// (INSERT/DELETE) always replaces; anything else merges via merge, and it
// is an invariant violation to merge onto a DELETE.
func (e *Entry) SetMsg(msg Msg, merge dataconfig.MergeFunc) error {
	value := append([]byte(nil), msg.Value...)

	if e.Msg == nil {
		e.Msg = &Msg{Class: msg.Class, Value: value}
		return nil
	}

	if e.Msg.Class == Delete && !msg.Class.IsDefinitive() {
		return errors.NewInvariantViolation("merge attempted onto a deleted entry for key %q", e.Key)
	}

	if msg.Class.IsDefinitive() {
		e.Msg = &Msg{Class: msg.Class, Value: value}
		return nil
	}

	merged, err := merge(e.Key, e.Msg.Value, value)
	if err != nil {
		return err
	}
	e.Msg = &Msg{Class: Update, Value: merged}
	return nil
}

// Context is the ordered, deduplicated list of RW-Entries for one
// in-progress transaction. It is private to the owning goroutine and must
// not be shared concurrently.
type Context struct {
	Entries []*Entry
}

// NewContext allocates an empty Transaction Context.
func NewContext() *Context {
	return &Context{Entries: make([]*Entry, 0, 8)}
}

// GetOrCreate finds the entry for key, allocating and appending one if
// absent (sets are typically tiny, so this is a linear scan), and ORs
// isRead into the entry's read flag.
func (c *Context) GetOrCreate(key []byte, isRead bool) (*Entry, error) {
	for _, e := range c.Entries {
		if bytes.Equal(e.Key, key) {
			e.IsRead = e.IsRead || isRead
			return e, nil
		}
	}
	if len(c.Entries) >= RWSetSizeLimit {
		return nil, errors.NewInvariantViolation("transaction read/write set exceeded %d keys", RWSetSizeLimit)
	}
	e := AcquireEntry()
	e.Key = append([]byte(nil), key...)
	e.IsRead = isRead
	c.Entries = append(c.Entries, e)
	return e, nil
}

// Reset releases every entry back to the pool and empties the context,
// ready for reuse by a fresh transaction.
func (c *Context) Reset() {
	for _, e := range c.Entries {
		ReleaseEntry(e)
	}
	c.Entries = c.Entries[:0]
}
