// Package tictoc implements the transactional layer: the Public API
// (handles, thread tokens, transactions) and, in engine.go, the TicToc
// commit protocol that backs it.
package tictoc

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/clayne/splinterdb/pkg/dataconfig"
	"github.com/clayne/splinterdb/pkg/errors"
	"github.com/clayne/splinterdb/pkg/kv"
	"github.com/clayne/splinterdb/pkg/rwset"
	"github.com/clayne/splinterdb/pkg/tscache"
	"github.com/clayne/splinterdb/pkg/tsword"
)

// IsolationLevel selects the isolation the commit engine enforces.
// SERIALIZABLE is the only level this core implements; the type exists so
// SetIsolationLevel has somewhere to put a value and so a future weaker
// level has a slot to land in without an API break.
type IsolationLevel int

const (
	Serializable IsolationLevel = iota
)

// defaultTSCacheLogSlots matches the spec default of log2(slot count) = 29.
const defaultTSCacheLogSlots = 29

// defaultLockRetryDelay is the tunable sleep between write-set lock
// acquisition retries. Not a correctness constant: callers under heavy
// contention may prefer exponential backoff instead.
const defaultLockRetryDelay = time.Microsecond

// Config wraps the backend already opened by the caller plus the
// transactional layer's own tuning knobs.
type Config struct {
	// Backend is the already-opened KV Backend Adapter. The spec's
	// create_or_open takes a backend config directly; here the caller
	// constructs and opens the backend (pebblekv.Open, nativekv.Open, ...)
	// and hands the already-live handle in, since backend construction is
	// backend-specific and out of this package's scope.
	Backend kv.Backend

	// Data supplies the key comparator and merge function.
	Data dataconfig.Config

	// TSCacheLogSlots is log2 of the timestamp cache's slot array.
	TSCacheLogSlots int

	// Isolation is the isolation level transactions run under.
	Isolation IsolationLevel

	// SiloCompat bumps the initial commit_ts by one beyond the read set's
	// maximum wts, matching the original Silo paper's convention.
	SiloCompat bool

	// LockRetryDelay is the sleep between write-set lock retries.
	LockRetryDelay time.Duration

	// CacheMode selects Ephemeral or RetainAll slot reclamation.
	CacheMode tscache.Mode

	// OnFatal is invoked when a commit-phase backend write fails after
	// locks are already held and commit_ts already chosen — a condition
	// the spec treats as fatal since no rollback is attempted. Defaults to
	// reporting to Sentry (if configured) and panicking.
	OnFatal func(error)
}

// DefaultConfig returns a Config wired to backend with the spec's stated
// defaults: SERIALIZABLE isolation, tscache_log_slots=29, last-write-wins
// merge, ephemeral cache slots, a 1us lock retry delay.
func DefaultConfig(backend kv.Backend) Config {
	return Config{
		Backend:         backend,
		Data:            dataconfig.Default(),
		TSCacheLogSlots: defaultTSCacheLogSlots,
		Isolation:       Serializable,
		LockRetryDelay:  defaultLockRetryDelay,
		CacheMode:       tscache.Ephemeral,
		OnFatal:         defaultOnFatal,
	}
}

func defaultOnFatal(err error) {
	if sentry.CurrentHub().Client() != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
	}
	panic(err)
}

// Handle is the process-wide transactional handle: a backend plus the
// timestamp cache guarding it. Both have explicit create and close
// lifecycle; there is no other process-wide state.
type Handle struct {
	cfg       Config
	cache     *tscache.Cache
	threadSeq atomic.Uint32
	isolation atomic.Int32
}

// Create opens a fresh transactional handle over cfg.Backend. It is
// distinguished from Open only at the backend layer (create vs open an
// existing store), which has already happened by the time cfg.Backend
// reaches here; both constructors build an identical Handle.
func Create(cfg Config) (*Handle, error) {
	return newHandle(cfg)
}

// Open opens a transactional handle over an existing cfg.Backend. See Create.
func Open(cfg Config) (*Handle, error) {
	return newHandle(cfg)
}

func newHandle(cfg Config) (*Handle, error) {
	if cfg.Backend == nil {
		return nil, errors.NewInvariantViolation("tictoc: Config.Backend must not be nil")
	}
	if cfg.Data.Compare == nil || cfg.Data.Merge == nil {
		cfg.Data = dataconfig.Default()
	}
	if cfg.TSCacheLogSlots <= 0 {
		cfg.TSCacheLogSlots = defaultTSCacheLogSlots
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = defaultLockRetryDelay
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = defaultOnFatal
	}

	h := &Handle{
		cfg:   cfg,
		cache: tscache.New(cfg.TSCacheLogSlots, cfg.CacheMode),
	}
	h.isolation.Store(int32(cfg.Isolation))
	return h, nil
}

// Close closes the backend. The timestamp cache is not cleared or freed
// here; its slots stay allocated for as long as the Handle is reachable.
func (h *Handle) Close() error {
	return h.cfg.Backend.Close()
}

// SetIsolationLevel changes the isolation level new transactions run
// under. Only Serializable has distinct commit semantics today.
func (h *Handle) SetIsolationLevel(level IsolationLevel) {
	h.isolation.Store(int32(level))
}

func (h *Handle) isolationLevel() IsolationLevel {
	return IsolationLevel(h.isolation.Load())
}

func (h *Handle) onFatal(err error) {
	h.cfg.OnFatal(err)
}

// bindSlot binds key's cache slot for tid's transaction, following h's
// configured cache mode. In RetainAll mode, slots are never reclaimed by
// refcount, so binding goes through the no-ref variant and the caller must
// not later call GetAndRemove for it (the returned needDecrRef is false).
func (h *Handle) bindSlot(tid uint32, key []byte) (slot *tscache.Slot, needDecrRef bool) {
	if h.cfg.CacheMode == tscache.RetainAll {
		return h.cache.InsertAndGetNoRef(key), false
	}
	slot, _ = h.cache.InsertAndGet(tid, key)
	return slot, true
}

// ThreadToken identifies a registered thread (goroutine) to the backend.
// Per-thread identifiers are opaque to this package beyond their numeric
// form, which is passed to the backend's thread registration and to the
// timestamp cache; the cache accepts it but routes by key only.
type ThreadToken struct {
	ID  uuid.UUID
	num uint32
}

// NewThreadToken allocates a new thread identity scoped to h. Call
// RegisterThread with it before any goroutine uses the handle, and
// DeregisterThread on goroutine exit.
func (h *Handle) NewThreadToken() ThreadToken {
	return ThreadToken{ID: uuid.New(), num: h.threadSeq.Add(1)}
}

// RegisterThread binds tok's backend-facing thread state.
func (h *Handle) RegisterThread(tok ThreadToken) {
	h.cfg.Backend.RegisterThread(tok.num)
}

// DeregisterThread releases tok's backend-facing thread state.
func (h *Handle) DeregisterThread(tok ThreadToken) {
	h.cfg.Backend.DeregisterThread(tok.num)
}

// Txn is an in-progress transaction: a Transaction Context private to the
// goroutine that began it. It must not be shared across goroutines.
type Txn struct {
	h   *Handle
	tid uint32
	ctx *rwset.Context
}

// Begin zero-initializes a new transaction bound to tok's thread identity.
func (h *Handle) Begin(tok ThreadToken) *Txn {
	return &Txn{h: h, tid: tok.num, ctx: rwset.NewContext()}
}

// Lookup implements the read path (spec §4.5): get-or-create the RW-Entry,
// bind a cache slot, then consistently double-read the slot around either
// a read-your-own-write materialization or a backend lookup.
func (tx *Txn) Lookup(key []byte, out *kv.Result) error {
	entry, err := tx.ctx.GetOrCreate(key, true)
	if err != nil {
		return err
	}
	if entry.Slot == nil {
		entry.Slot, entry.NeedToDecrRef = tx.h.bindSlot(tx.tid, key)
	}

	var v1 tsword.Tuple
	for {
		v1 = entry.Slot.Word.Load()

		if entry.Msg != nil {
			materializeFromBuffer(entry, out)
		} else if err := tx.h.cfg.Backend.Lookup(key, out); err != nil {
			return err
		}

		v2 := entry.Slot.Word.Load()
		if v1 == v2 && !v1.Locked {
			break
		}
	}

	entry.Wts = v1.Wts
	entry.Rts = v1.Rts()
	return nil
}

// materializeFromBuffer fills out from entry's own buffered write,
// implementing read-your-own-write: a lookup after an insert/update of the
// same key within the same transaction reflects the pending value without
// consulting the backend.
func materializeFromBuffer(entry *rwset.Entry, out *kv.Result) {
	if entry.Msg.Class == rwset.Delete {
		out.Reset()
		return
	}
	out.Value = append(out.Value[:0], entry.Msg.Value...)
	out.Found = true
}

// Insert buffers an INSERT for key.
func (tx *Txn) Insert(key, value []byte) error {
	return tx.localWrite(key, rwset.Msg{Class: rwset.Insert, Value: value})
}

// Update buffers an UPDATE for key: delta is merged with any UPDATE/INSERT
// already buffered for key in this transaction, per the merge function.
func (tx *Txn) Update(key, delta []byte) error {
	return tx.localWrite(key, rwset.Msg{Class: rwset.Update, Value: delta})
}

// Delete buffers a DELETE for key.
func (tx *Txn) Delete(key []byte) error {
	return tx.localWrite(key, rwset.Msg{Class: rwset.Delete})
}

// localWrite implements the write path (spec §4.6).
func (tx *Txn) localWrite(key []byte, msg rwset.Msg) error {
	entry, err := tx.ctx.GetOrCreate(key, false)
	if err != nil {
		return err
	}

	if msg.Class != rwset.Insert && entry.Slot == nil {
		entry.Slot, entry.NeedToDecrRef = tx.h.bindSlot(tx.tid, key)
		v := entry.Slot.Word.Load()
		entry.Wts = v.Wts
		entry.Rts = v.Rts()
	}

	return entry.SetMsg(msg, tx.h.cfg.Data.Merge)
}
