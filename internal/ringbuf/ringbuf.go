// Package ringbuf provides a capacity-bounded FIFO ring for PnL snapshots.
// When the ring is full the oldest entry is overwritten, so the buffer always
// holds exactly the most recent N snapshots. It is not concurrency-safe on
// its own; the position book serializes access under its lock.
package ringbuf

import "pairs-execd/internal/model"

// Ring is a fixed-capacity circular buffer of PnL snapshots.
type Ring struct {
	buf  []model.PnLSnapshot
	head uint64 // total pushes; next write slot is head % cap
	tail uint64 // oldest retained entry
}

// New creates a ring holding at most capacity snapshots. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.PnLSnapshot, capacity)}
}

// Push appends a snapshot, evicting the oldest entry when full.
func (r *Ring) Push(s model.PnLSnapshot) {
	if r.head-r.tail == uint64(len(r.buf)) {
		r.tail++
	}
	r.buf[r.head%uint64(len(r.buf))] = s
	r.head++
}

// Len returns the number of retained snapshots.
func (r *Ring) Len() int {
	return int(r.head - r.tail)
}

// Cap returns the maximum number of retained snapshots.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Snapshot copies the retained entries oldest first.
func (r *Ring) Snapshot() []model.PnLSnapshot {
	out := make([]model.PnLSnapshot, 0, r.Len())
	for i := r.tail; i < r.head; i++ {
		out = append(out, r.buf[i%uint64(len(r.buf))])
	}
	return out
}

// Reset drops all retained entries.
func (r *Ring) Reset() {
	r.head = 0
	r.tail = 0
}
