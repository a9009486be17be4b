// Package connectivity mirrors the device's online/offline state.
//
// An Oracle answers IsOnline synchronously and notifies listeners on every
// transition. Manual is driven by the embedding application (or tests);
// Watcher derives the state by pinging the server on an interval.
package connectivity

import (
	"sort"
	"sync"
)

// Oracle is the Connectivity Oracle.
type Oracle interface {
	IsOnline() bool
	// OnChange registers fn for transitions and returns a function that
	// unregisters it.
	OnChange(fn func(online bool)) (cancel func())
}

// state holds the flag and listeners shared by the implementations.
type state struct {
	// notifyMu is held across a transition and its notifications, so
	// listeners see transitions in the order they happened.
	notifyMu sync.Mutex

	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	nextID    int
}

func (s *state) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *state) OnChange(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = map[int]func(bool){}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// set stores v and, on a transition, calls listeners in registration
// order. Listeners may read the state but must not change it. It reports
// whether the state changed.
func (s *state) set(v bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.online == v {
		s.mu.Unlock()
		return false
	}
	s.online = v

	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
	return true
}

// Manual is an Oracle whose state is set explicitly.
type Manual struct {
	state
}

func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// Set updates the state, notifying listeners on a transition.
func (m *Manual) Set(online bool) {
	m.set(online)
}
