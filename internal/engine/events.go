package engine

import (
	"github.com/google/uuid"
)

// maxEvents bounds the recent-event buffer.
const maxEvents = 200

// Event is a notable change in the simulation.
type Event struct {
	Tick        uint64  `json:"tick"`
	Elapsed     float64 `json:"elapsed"`
	Kind        string  `json:"kind"` // "started", "stopped", "completed", "cleared", "params", "nodule"
	Description string  `json:"description"`
}

// Subscribe registers a listener for new events. Slow listeners miss events
// rather than stalling the tick loop.
func (s *Simulation) Subscribe() (string, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return id, ch
}

// SubscribeWithHistory registers a listener and returns up to n of the
// latest events as of registration. No event appears in both the history
// and the channel.
func (s *Simulation) SubscribeWithHistory(n int) (string, []Event, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return id, s.recentLocked(n), ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked(n)
}

func (s *Simulation) recentLocked(n int) []Event {
	start := len(s.events) - n
	if start < 0 || n <= 0 {
		start = 0
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// emitLocked records e and fans it out. Caller holds s.mu.
func (s *Simulation) emitLocked(kind, desc string) {
	e := Event{Tick: s.tick, Elapsed: s.elapsed, Kind: kind, Description: desc}
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	if s.recording {
		s.runEvents = append(s.runEvents, e)
		if len(s.runEvents) > maxEvents {
			s.runEvents = s.runEvents[len(s.runEvents)-maxEvents:]
		}
	}
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
