package event

import (
	"fmt"
	"sync"
)

// Slot holds the event a connection is currently handling. It is set once
// per event and cleared as soon as the handler returns, so the next event on
// the same connection never sees a previous payload.
type Slot struct {
	mu      sync.Mutex
	current Event
}

// Handle attaches ev for the duration of h.
func (s *Slot) Handle(ev Event, h func(Event) error) error {
	if err := s.attach(ev); err != nil {
		return err
	}
	defer s.clear()
	return h(ev)
}

func (s *Slot) Current() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

func (s *Slot) attach(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return fmt.Errorf("event %s still in flight", s.current.Name())
	}
	s.current = ev
	return nil
}

func (s *Slot) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
