// Package ohlcring implements the fixed-capacity, single-writer OHLC ring
// buffer described in spec.md §4.1 (C1). One ring exists per (broker,symbol)
// within a brokerd process; exactly one goroutine may hold the writer role
// for a given ring at a time.
package ohlcring

import (
	"fmt"
	"sync"

	"github.com/tradekit/ems/internal/wireproto"
)

// Bar is one OHLCV row, matching the on-wire schema in spec.md §6.
type Bar struct {
	Index  int32
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Ring is a fixed-length columnar ring of Bars, ordered oldest to newest.
// The head row (index len-1 of the populated slice) is mutated in place by
// the sampling loop; stable rows below it are immutable once written.
type Ring struct {
	mu       sync.RWMutex
	name     string
	capacity int
	rows     []Bar
	start    int // index of oldest row within rows (ring cursor)
	count    int // number of populated rows
	nextIdx  int32

	writerHeld bool
}

// New creates an empty ring with the given name and capacity. The name
// doubles as the shm-style token identity (spec.md §3 ShmArray).
func New(name string, capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1 << 15
	}
	return &Ring{
		name:     name,
		capacity: capacity,
		rows:     make([]Bar, capacity),
	}
}

// Token returns the serializable descriptor for this ring (spec.md §4.1).
func (r *Ring) Token() wireproto.RingToken {
	return wireproto.RingToken{
		Name:       r.name,
		DTypeDescr: "index:i32,time:i64,open:f64,high:f64,low:f64,close:f64,volume:f64",
		Size:       r.capacity,
	}
}

// AcquireWriter elects the caller as the ring's sole writer. Returns false
// if a writer is already active: a contract violation per spec.md §7
// ("Duplicate writer attempt on shm") that the caller must treat as fatal.
func (r *Ring) AcquireWriter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writerHeld {
		return false
	}
	r.writerHeld = true
	return true
}

// ReleaseWriter clears the writer flag so a later AcquireWriter can succeed.
// The feed bus never calls it: a feed's writer stays elected for the life
// of the process.
func (r *Ring) ReleaseWriter() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writerHeld = false
}

// Push appends a row at the head. If prepend is true, the row is inserted
// at the tail instead (used for historical backfill, spec.md §4.1).
// Writer-only; callers must hold the elected writer role.
func (r *Ring) Push(row Bar, prepend bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row.Index = r.nextIdx
	r.nextIdx++

	if prepend {
		// Shift the logical start back by one slot, wrapping, and write
		// the historical row there: it becomes the new oldest entry.
		r.start = (r.start - 1 + r.capacity) % r.capacity
		r.rows[r.start] = row
		if r.count < r.capacity {
			r.count++
		}
		return
	}

	writeAt := (r.start + r.count) % r.capacity
	if r.count == r.capacity {
		// Full: overwrite the oldest slot and advance start.
		writeAt = r.start
		r.start = (r.start + 1) % r.capacity
	} else {
		r.count++
	}
	r.rows[writeAt] = row
}

// UpdateHead mutates the most recently pushed row in place: the live bar
// the sampling loop is still accumulating into. No-op on an empty ring.
func (r *Ring) UpdateHead(mutate func(*Bar)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return
	}
	headAt := (r.start + r.count - 1) % r.capacity
	mutate(&r.rows[headAt])
}

// Array returns a read-only snapshot of the populated rows, oldest first.
// The head row may be torn relative to a concurrent UpdateHead call;
// callers must tolerate that per spec.md §4.1.
func (r *Ring) Array() []Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Bar, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.rows[(r.start+i)%r.capacity]
	}
	return out
}

// Len returns the number of populated rows.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Ring) String() string {
	return fmt.Sprintf("ring(%s, cap=%d, len=%d)", r.name, r.capacity, r.Len())
}
