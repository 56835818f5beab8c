package nativekv

import "sync/atomic"

// lsnTracker assigns monotonically increasing log sequence numbers. It
// mirrors the atomic-counter-wrapped-in-a-tiny-struct idiom the WAL/heap
// layer already uses elsewhere in this module, kept here directly since the
// package it used to live in (a document-engine-specific package) was
// dropped wholesale.
type lsnTracker struct {
	current atomic.Uint64
}

func newLSNTracker(start uint64) *lsnTracker {
	lt := &lsnTracker{}
	lt.current.Store(start)
	return lt
}

// Next increments and returns the next LSN.
func (lt *lsnTracker) Next() uint64 {
	return lt.current.Add(1)
}

// Current returns the current LSN without incrementing it.
func (lt *lsnTracker) Current() uint64 {
	return lt.current.Load()
}
