// Package dedup tracks natural keys already accepted during one ingestion
// run so duplicate rows within a source, or overlapping reads across
// partitions, are dropped before they reach the store. The store's own
// unique constraint remains the backstop for cross-run re-entrancy.
package dedup

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// Filter is a run-scoped seen-set of natural keys. Keys are tracked as
// 64-bit xxh3 hashes, keeping memory at 8 bytes per key even for sources
// with tens of millions of rows. Safe for concurrent use by partition
// workers sharing one run.
type Filter struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
	dups uint64
}

// NewFilter returns an empty filter sized for sizeHint keys (0 is fine).
func NewFilter(sizeHint int) *Filter {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Filter{seen: make(map[uint64]struct{}, sizeHint)}
}

// Accept reports whether key has not been seen in this run, marking it seen.
// Empty keys are never accepted: a row without its natural key cannot be
// persisted under the unique constraint anyway.
func (f *Filter) Accept(key string) bool {
	if key == "" {
		return false
	}
	h := xxh3.HashString(key)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[h]; dup {
		f.dups++
		return false
	}
	f.seen[h] = struct{}{}
	return true
}

// Len returns the number of distinct keys accepted so far.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Duplicates returns the number of rejected repeats so far.
func (f *Filter) Duplicates() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dups
}
