package wal

import "sync"

// pool.go: object pools that keep ReadEntry/WriteEntry off the allocator
// on the hot path.

var (
	// entryPool reuses WALEntry structs (and their Payload backing array).
	entryPool = sync.Pool{
		New: func() interface{} {
			return &WALEntry{
				Payload: make([]byte, 0, 4096), // Pre-allocate 4KB.
			}
		},
	}

	// bufferPool reuses scratch byte slices, e.g. for the fixed-size
	// header read in ReadEntry.
	bufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 8192) // 8KB buffer.
			return &buf
		},
	}
)

// AcquireEntry gets a WALEntry from the pool.
func AcquireEntry() *WALEntry {
	return entryPool.Get().(*WALEntry)
}

// ReleaseEntry returns entry to the pool.
func ReleaseEntry(e *WALEntry) {
	e.Header = WALHeader{}    // Zero the header.
	e.Payload = e.Payload[:0] // Reset the payload slice, keep its capacity.
	entryPool.Put(e)
}

// AcquireBuffer gets a scratch byte slice from the pool.
func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// ReleaseBuffer returns buf to the pool.
func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
