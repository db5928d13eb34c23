package clock

import "sync/atomic"

// Seq is a monotonic logical counter used to stamp trace records.
//
// Wall-clock readings are never used for ordering records: two callbacks in
// the same tick share a timestamp but always get distinct seq values.
//
// Thread-safety: Seq is safe for concurrent use (atomic operations).
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a counter starting at 0.
func NewSeq() *Seq {
	return &Seq{}
}

// NewSeqAt creates a counter starting at a specific value.
// Used when appending to a previously recorded run.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next increments the counter and returns the new value.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}
