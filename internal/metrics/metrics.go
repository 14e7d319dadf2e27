// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the ingestion pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the
//     project (storage.Repository), keeping concrete metric systems isolated
//     in subpackages.
//
// The primary use case is instrumentation of the per-table load phases
// (stream, transform, insert, index rebuild) without coupling the pipeline
// to a specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordTableLoad measures one table's load end to end: duration plus a
// success/failure count.
func RecordTableLoad(table string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"table":  table,
		"status": status,
	}

	backend.IncCounter("ingest_table_total", 1, lbls)
	backend.ObserveHistogram("ingest_table_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a record-level counter for the given table and kind.
//
// Kinds mirror the load report fields:
//   - "loaded"
//   - "skipped"
//   - "duplicates"
func RecordRows(table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_rows_total", float64(delta), Labels{
		"table": table,
		"kind":  kind,
	})
}

// RecordBatches increments the flushed-batch counter for the given table.
func RecordBatches(table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_batches_total", float64(delta), Labels{
		"table": table,
	})
}

// RecordRetries counts insert retries caused by store contention.
func RecordRetries(table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_retries_total", float64(delta), Labels{
		"table": table,
	})
}
