package wal

import "time"

// SyncPolicy selects the writer's durability strategy.
type SyncPolicy int

const (
	// SyncEveryWrite calls fsync() after every write. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval calls fsync() periodically from a background goroutine.
	// Balanced.
	SyncInterval

	// SyncBatch calls fsync() once the buffer reaches a byte threshold.
	// Fastest, widens the crash-loss window.
	SyncBatch
)

// Options configures a WALWriter.
type Options struct {
	// DirPath is the directory the log lives under (informational; nativekv
	// passes the full log file path to NewWALWriter directly).
	DirPath string

	// BufferSize is the bufio buffer size before flushing to the OS.
	BufferSize int

	SyncPolicy SyncPolicy

	// SyncIntervalDuration is the period between syncs under SyncInterval.
	SyncIntervalDuration time.Duration

	// SyncBatchBytes is the accumulated byte threshold that triggers a
	// sync under SyncBatch.
	SyncBatchBytes int64
}

// DefaultOptions returns a balanced, safe-by-default configuration.
func DefaultOptions() Options {
	return Options{
		DirPath:              "./wal_data",
		BufferSize:           64 * 1024, // 64KB bufio buffer.
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024, // 1MB.
	}
}
