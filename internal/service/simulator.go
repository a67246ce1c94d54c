package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulator schedules delayed fake payment confirmations for development
// environments. Timers are keyed by order id so a real confirmation arriving
// first can cancel the pending fake one.
type Simulator struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
	delay  time.Duration
}

// NewSimulator creates a simulator firing after the given delay.
func NewSimulator(delay time.Duration) *Simulator {
	return &Simulator{
		timers: make(map[uuid.UUID]*time.Timer),
		delay:  delay,
	}
}

// Schedule arms a timer for the order, replacing any existing one. fn runs at
// most once; it is skipped entirely if Cancel wins the race.
func (s *Simulator) Schedule(orderID uuid.UUID, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[orderID]; ok {
		t.Stop()
	}
	s.timers[orderID] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.timers, orderID)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops a pending timer for the order, if any. Safe to call when none
// exists or after the timer fired.
func (s *Simulator) Cancel(orderID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[orderID]; ok {
		t.Stop()
		delete(s.timers, orderID)
	}
}
