// Package pebblekv adapts github.com/cockroachdb/pebble as a kv.Backend:
// the production-grade ordered key-value store the TicToc core is meant to
// be pluggable over.
package pebblekv

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/clayne/splinterdb/pkg/errors"
	"github.com/clayne/splinterdb/pkg/kv"
)

// Config configures a pebble-backed Backend.
type Config struct {
	// Dir is the on-disk directory for pebble's store. Ignored if InMemory.
	Dir string
	// InMemory uses pebble's in-memory vfs, for tests and ephemeral handles.
	InMemory bool
}

// Backend is a kv.Backend implementation wrapping a single pebble.DB.
type Backend struct {
	db *pebble.DB
}

var _ kv.Backend = (*Backend)(nil)

// Open creates or opens a pebble store per cfg.
func Open(cfg Config) (*Backend, error) {
	opts := &pebble.Options{
		Compression: pebble.SnappyCompression,
	}
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(cfg.Dir, opts)
	if err != nil {
		return nil, cerrors.Wrapf(err, "pebblekv: open %q", cfg.Dir)
	}
	return &Backend{db: db}, nil
}

// RegisterThread is a no-op: pebble needs no per-thread registration.
func (b *Backend) RegisterThread(uint32) {}

// DeregisterThread is a no-op: pebble needs no per-thread registration.
func (b *Backend) DeregisterThread(uint32) {}

// Insert durably writes key/value, synced.
func (b *Backend) Insert(key, value []byte) error {
	if err := b.db.Set(key, value, pebble.Sync); err != nil {
		return errors.WrapBackend(err, "insert", string(key))
	}
	return nil
}

// Update overwrites key's value; pebble has no distinct update operation.
func (b *Backend) Update(key, value []byte) error {
	return b.Insert(key, value)
}

// Delete removes key.
func (b *Backend) Delete(key []byte) error {
	if err := b.db.Delete(key, pebble.Sync); err != nil {
		return errors.WrapBackend(err, "delete", string(key))
	}
	return nil
}

// Lookup fills out with key's latest committed value, if any.
func (b *Backend) Lookup(key []byte, out *kv.Result) error {
	v, closer, err := b.db.Get(key)
	if err == pebble.ErrNotFound {
		out.Reset()
		return nil
	}
	if err != nil {
		return errors.WrapBackend(err, "lookup", string(key))
	}
	defer closer.Close()
	out.Value = append(out.Value[:0], v...)
	out.Found = true
	return nil
}

// Close closes the underlying pebble.DB.
func (b *Backend) Close() error {
	return b.db.Close()
}
