package testutil

import (
	"strconv"
	"sync"
)

// Sequence hands out monotonically increasing numeric identifiers,
// formatted as strings the way the chat surface formats message ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sequence struct {
	mu   sync.Mutex
	base int64
	seq  int64
}

// NewSequence creates a sequence whose first Next() returns base+1.
func NewSequence(base int64) *Sequence {
	return &Sequence{base: base, seq: base}
}

// Next increments and returns the next identifier.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return strconv.FormatInt(s.seq, 10)
}

// Current returns the last identifier handed out, or the base.
func (s *Sequence) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.FormatInt(s.seq, 10)
}

// Reset rewinds the sequence to its base.
//
// Used for test reuse. After Reset(), Next() returns base+1 again.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = s.base
}
