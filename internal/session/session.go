// Package session keeps per-conversation subject state between questions.
//
// Each conversation has its own lock. A turn holds that lock from state read
// to state write, so two questions in one conversation are serialized while
// different conversations never wait on each other.
package session

import (
	"sync"
	"time"
)

// State is the remembered subject of a conversation.
type State struct {
	CurrentStudy string `json:"current_study,omitempty"`
	CurrentEmne  string `json:"current_emne,omitempty"`
}

type entry struct {
	mu       sync.Mutex
	state    State
	lastUsed time.Time
	refs     int // holders and waiters; guarded by Store.mu
}

// Store maps conversation ids to state.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	idle    time.Duration
	now     func() time.Time
}

// NewStore creates a store. Conversations idle longer than idle start over
// with empty state; zero disables expiry.
func NewStore(idle time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		idle:    idle,
		now:     time.Now,
	}
}

// Turn is exclusive access to one conversation's state.
type Turn struct {
	store *Store
	id    string
	e     *entry
	done  bool
}

// Begin locks the conversation and returns its turn. Callers must call End.
func (s *Store) Begin(id string) *Turn {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.pruneLocked()
		e = &entry{}
		s.entries[id] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	now := s.now()
	if s.idle > 0 && !e.lastUsed.IsZero() && now.Sub(e.lastUsed) > s.idle {
		e.state = State{}
	}
	e.lastUsed = now
	return &Turn{store: s, id: id, e: e}
}

// State returns the conversation's current state.
func (t *Turn) State() State {
	return t.e.state
}

// Observe records the first extracted course and program, if any.
// Later questions overwrite earlier subjects; the most recent mention wins.
func (t *Turn) Observe(courses, programs []string) {
	if len(courses) > 0 {
		t.e.state.CurrentEmne = courses[0]
	}
	if len(programs) > 0 {
		t.e.state.CurrentStudy = programs[0]
	}
}

// End releases the conversation. Calling End twice is a no-op.
func (t *Turn) End() {
	if t.done {
		return
	}
	t.done = true
	t.e.lastUsed = t.store.now()
	t.e.mu.Unlock()

	t.store.mu.Lock()
	t.e.refs--
	t.store.mu.Unlock()
}

// Get returns a snapshot of a conversation's state without creating it.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		e.refs++
	}
	s.mu.Unlock()
	if !ok {
		return State{}, false
	}

	e.mu.Lock()
	st := e.state
	expired := s.idle > 0 && !e.lastUsed.IsZero() && s.now().Sub(e.lastUsed) > s.idle
	e.mu.Unlock()

	s.mu.Lock()
	e.refs--
	s.mu.Unlock()

	if expired {
		return State{}, false
	}
	return st, true
}

// Forget drops a conversation. A turn in progress keeps its own state and the
// next Begin starts fresh.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// pruneLocked drops idle conversations nobody holds. s.mu must be held.
func (s *Store) pruneLocked() {
	if s.idle <= 0 {
		return
	}
	now := s.now()
	for id, e := range s.entries {
		if e.refs > 0 {
			continue
		}
		// refs == 0 means no goroutine holds or waits for e.mu,
		// so lastUsed is stable here.
		if now.Sub(e.lastUsed) > s.idle {
			delete(s.entries, id)
		}
	}
}
