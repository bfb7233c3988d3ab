package sequence

import "sync/atomic"

// Sequencer issues strictly monotonic ids.
// The first id handed out by a fresh sequencer is 1, so 0 never names a record.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose last issued id is start.
// Fresh start: start = 0
// Recovery: start = highest persisted id
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset sets the last issued id. Only used while restoring from storage.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
