package perf

import (
	"sync"
	"time"
)

const defaultSubscriberBuffer = 8

// Change is published whenever the selected or active mode changes.
type Change struct {
	From     Mode      `json:"from"`
	To       Mode      `json:"to"`
	Selected Mode      `json:"selected"`
	Reason   Reason    `json:"reason"`
	At       time.Time `json:"at"`
}

// Store holds the selected and active mode of one render tree. It is
// created with the tree and closed when the tree goes away; callers pass it
// explicitly instead of sharing a global.
type Store struct {
	mu       sync.RWMutex
	selected Mode
	active   Mode
	state    ControllerState
	subs     map[int]chan Change
	nextID   int
	closed   bool
}

// NewStore creates a store. An initial mode of auto starts at full.
func NewStore(initial Mode) *Store {
	s := &Store{
		selected: initial,
		active:   initial,
		subs:     make(map[int]chan Change),
	}
	if initial == ModeAuto || !initial.IsTier() {
		s.selected = ModeAuto
		s.active = ModeFull
		s.state.PreviousMode = ModeFull
	}
	return s
}

func (s *Store) Selected() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *Store) Active() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) State() ControllerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Select applies a user choice. Selecting auto remembers the active tier as
// the restore target and resets the issue counter; the time of the last
// controller change survives so cooldowns still hold. Selecting a tier
// applies it at once.
func (s *Store) Select(mode Mode, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == s.selected {
		return
	}

	if mode == ModeAuto {
		s.selected = ModeAuto
		s.state = ControllerState{LastChange: s.state.LastChange, PreviousMode: s.active}
		s.publish(Change{From: s.active, To: s.active, Selected: ModeAuto, Reason: ReasonSelected, At: now})
		return
	}

	from := s.active
	s.selected = mode
	s.active = mode
	s.publish(Change{From: from, To: mode, Selected: mode, Reason: ReasonSelected, At: now})
}

// Evaluate runs a controller tick when auto is selected.
func (s *Store) Evaluate(c *Controller, snap Snapshot, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != ModeAuto {
		return Decision{From: s.active, To: s.active, Suggested: SuggestMode(snap)}
	}

	var d Decision
	s.state, d = c.Tick(s.state, s.active, snap, now)
	s.apply(d, now)
	return d
}

// ObserveLatency feeds one interaction sample to the controller when auto
// is selected.
func (s *Store) ObserveLatency(c *Controller, latency time.Duration, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != ModeAuto {
		return Decision{From: s.active, To: s.active, Suggested: s.active}
	}

	var d Decision
	s.state, d = c.ObserveLatency(s.state, s.active, latency, now)
	s.apply(d, now)
	return d
}

// Apply commits a decision computed elsewhere. It is ignored unless auto is
// selected and the decision starts from the current active tier.
func (s *Store) Apply(d Decision, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != ModeAuto || d.From != s.active {
		return false
	}
	return s.apply(d, now)
}

func (s *Store) apply(d Decision, now time.Time) bool {
	if !d.Changed || d.From == d.To {
		return false
	}
	s.active = d.To
	if d.Reason != ReasonSelected {
		s.state.LastChange = now
	}
	s.publish(Change{From: d.From, To: d.To, Selected: s.selected, Reason: d.Reason, At: now})
	return true
}

// Subscribe returns a channel of changes and a function that releases it.
// A subscriber that falls behind loses its oldest pending change.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Change, defaultSubscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close releases all subscribers.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) publish(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}
