package tictoc

import (
	"time"

	"github.com/clayne/splinterdb/pkg/errors"
	"github.com/clayne/splinterdb/pkg/metrics"
	"github.com/clayne/splinterdb/pkg/rwset"
	"github.com/clayne/splinterdb/pkg/tsword"
)

// Commit runs the six-phase TicToc protocol over tx's Transaction Context:
// partition, sort writes, lock writes, raise commit_ts, validate and
// extend reads, then apply or roll back. Teardown always runs, win or
// lose.
func (tx *Txn) Commit() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)
	defer tx.teardown()

	readSet, writeSet := tx.partition()
	metrics.ReadSetSize.Observe(float64(len(readSet)))
	metrics.WriteSetSize.Observe(float64(len(writeSet)))

	commitTS := uint64(0)
	for _, r := range readSet {
		if r.Wts > commitTS {
			commitTS = r.Wts
		}
	}
	if tx.h.cfg.SiloCompat {
		commitTS++
	}

	sortWriteSet(writeSet, tx.h.cfg.Data.Compare)

	tx.lockWriteSet(writeSet)

	for _, w := range writeSet {
		if rts := w.Slot.Word.Load().Rts(); rts+1 > commitTS {
			commitTS = rts + 1
		}
	}

	for _, r := range readSet {
		if r.Rts >= commitTS {
			continue
		}
		if !tx.validateReader(r, commitTS, writeSet) {
			tx.unlockWriteSet(writeSet)
			metrics.AbortsTotal.WithLabelValues("read_validation").Inc()
			return errors.ErrTxnAborted
		}
	}

	tx.apply(writeSet, commitTS)
	metrics.CommitsTotal.Inc()
	return nil
}

// Abort discards the transaction without attempting to commit. No locks
// are held at this point — locking only happens inside Commit — so abort
// is just teardown.
func (tx *Txn) Abort() error {
	tx.teardown()
	return nil
}

// partition splits the Transaction Context's entries into the read set and
// write set. An entry with a buffered message is a writer; an entry with
// IsRead set is a reader; an entry may be both.
func (tx *Txn) partition() (readSet, writeSet []*rwset.Entry) {
	for _, e := range tx.ctx.Entries {
		if e.IsRead {
			readSet = append(readSet, e)
		}
		if e.Msg != nil {
			writeSet = append(writeSet, e)
		}
	}
	return readSet, writeSet
}

func sortWriteSet(writeSet []*rwset.Entry, compare func(a, b []byte) int) {
	// Insertion sort: write sets are small (bounded by RWSetSizeLimit but
	// typically a handful of keys), so an allocation-free in-place sort
	// beats pulling in sort.Slice's reflection-driven swaps.
	for i := 1; i < len(writeSet); i++ {
		for j := i; j > 0 && compare(writeSet[j].Key, writeSet[j-1].Key) < 0; j-- {
			writeSet[j], writeSet[j-1] = writeSet[j-1], writeSet[j]
		}
	}
}

// lockWriteSet binds a cache slot to every writer that lacks one, then
// try-locks each in sorted key order. A failed try_lock releases every
// lock acquired in this attempt and retries from the first writer after a
// short sleep; global key order across all committers guarantees some
// attempt eventually succeeds.
func (tx *Txn) lockWriteSet(writeSet []*rwset.Entry) {
	for {
		acquired := 0
		ok := true
		for _, w := range writeSet {
			if w.Slot == nil {
				w.Slot, w.NeedToDecrRef = tx.h.bindSlot(tx.tid, w.Key)
			}
			if !w.Slot.Word.TryLock() {
				ok = false
				break
			}
			acquired++
		}
		if ok {
			return
		}
		for _, w := range writeSet[:acquired] {
			w.Slot.Word.Unlock()
		}
		metrics.LockRetriesTotal.Inc()
		time.Sleep(tx.h.cfg.LockRetryDelay)
	}
}

func (tx *Txn) unlockWriteSet(writeSet []*rwset.Entry) {
	for _, w := range writeSet {
		w.Slot.Word.Unlock()
	}
}

// validateReader implements Phase 4 for a single reader whose cached rts
// fell behind commitTS. It restarts from a fresh snapshot whenever the
// extension CAS loses a race, and never blocks: every path either aborts,
// extends, or falls through validated.
func (tx *Txn) validateReader(r *rwset.Entry, commitTS uint64, writeSet []*rwset.Entry) bool {
	for {
		v1 := r.Slot.Word.Load()
		rtsV1 := v1.Rts()

		if v1.Wts != r.Wts {
			return false
		}

		if rtsV1 <= commitTS && v1.Locked && !isWriterOf(writeSet, r.Key) {
			return false
		}

		if rtsV1 > commitTS {
			return true
		}

		v2 := tsword.ExtendedTuple(v1, commitTS)
		if r.Slot.Word.CAS(v1, v2) {
			return true
		}
		// Lost the race to a concurrent extender or locker; re-snapshot.
	}
}

func isWriterOf(writeSet []*rwset.Entry, key []byte) bool {
	for _, w := range writeSet {
		if string(w.Key) == string(key) {
			return true
		}
	}
	return false
}

// apply dispatches every writer's buffered message to the backend and then
// finalizes its slot to (wts=commitTS, delta=0, lock_bit=0). A backend
// write failure here is fatal: locks are already held and commit_ts
// already chosen, so no rollback is attempted, matching §7's error design.
func (tx *Txn) apply(writeSet []*rwset.Entry, commitTS uint64) {
	for _, w := range writeSet {
		var err error
		switch w.Msg.Class {
		case rwset.Insert:
			err = tx.h.cfg.Backend.Insert(w.Key, w.Msg.Value)
		case rwset.Update:
			err = tx.h.cfg.Backend.Update(w.Key, w.Msg.Value)
		case rwset.Delete:
			err = tx.h.cfg.Backend.Delete(w.Key)
		}
		if err != nil {
			tx.h.onFatal(errors.WrapBackend(err, "apply", string(w.Key)))
			continue
		}

		next := tsword.Tuple{Wts: commitTS}
		for {
			cur := w.Slot.Word.Load()
			if w.Slot.Word.CAS(cur, next) {
				break
			}
		}
	}
}

// teardown releases every entry's cache slot reference and returns the
// Transaction Context's entries to the pool. It always runs, on both the
// commit and abort paths.
func (tx *Txn) teardown() {
	for _, e := range tx.ctx.Entries {
		if e.NeedToDecrRef {
			tx.h.cache.GetAndRemove(tx.tid, e.Key)
		}
	}
	tx.ctx.Reset()
}
