// internal/pool/slots.go
package pool

import "sync"

// slots tracks how many workers are inside a remote call
type slots struct {
	mu       sync.Mutex
	busy     int
	peak     int
	onChange func(busy int)
}

func newSlots(onChange func(busy int)) *slots {
	return &slots{onChange: onChange}
}

func (s *slots) acquire() {
	s.mu.Lock()
	s.busy++
	if s.busy > s.peak {
		s.peak = s.busy
	}
	callback := s.onChange
	busy := s.busy
	s.mu.Unlock()

	// Notify outside of lock to avoid deadlock
	if callback != nil {
		callback(busy)
	}
}

func (s *slots) release() {
	s.mu.Lock()
	if s.busy > 0 {
		s.busy--
	}
	callback := s.onChange
	busy := s.busy
	s.mu.Unlock()

	if callback != nil {
		callback(busy)
	}
}

// Peak returns the highest number of concurrent calls observed
func (s *slots) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}
