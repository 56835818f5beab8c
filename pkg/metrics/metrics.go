// Package metrics exposes Prometheus counters and histograms for the
// commit engine: how many transactions commit or abort, how long commits
// take, and how much contention the locking phase sees.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "splinterdb_commits_total",
			Help: "Total number of transactions that committed",
		},
	)

	AbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splinterdb_aborts_total",
			Help: "Total number of transactions that aborted, by reason",
		},
		[]string{"reason"},
	)

	LockRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "splinterdb_lock_retries_total",
			Help: "Total number of write-set lock acquisition retries across all commits",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splinterdb_commit_duration_seconds",
			Help:    "Time spent in the commit engine per transaction, successful or not",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReadSetSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splinterdb_read_set_size",
			Help:    "Number of reads validated per commit",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	WriteSetSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splinterdb_write_set_size",
			Help:    "Number of writes applied per commit",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)
)

// MustRegister registers every metric above against reg. Tests and
// embedders that want an isolated registry (rather than the global
// prometheus.DefaultRegisterer) pass their own prometheus.Registry here.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		CommitsTotal,
		AbortsTotal,
		LockRetriesTotal,
		CommitDuration,
		ReadSetSize,
		WriteSetSize,
	)
}

// Timer mirrors the teacher pack's timing helper: start one at the top of
// an operation, observe it into a histogram when the operation ends.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
