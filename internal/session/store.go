// Package session provides the global session store: a small reducer-style
// state container that the sync core reads from and signals through Dispatch.
package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// State is the session snapshot shared with every component.
type State struct {
	// InitComplete is set once the bootstrap sequence has signalled.
	InitComplete bool

	// Language is the ISO language code currently in use.
	Language string

	// AuthToken is the bearer token from the login flows, if any.
	AuthToken string

	// UserID identifies the signed-in customer.
	UserID string

	// FCMToken is the push registration token registered by the push bootstrap.
	FCMToken string
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.AuthToken != ""
}

// Dispatcher receives actions. Components mutate the session only through it.
type Dispatcher interface {
	Dispatch(action Action)
}

// Listener is notified after every dispatched action.
type Listener func(action Action, state State)

// Store is an in-memory session store.
type Store struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store with the given initial state.
func NewStore(initial State, logger zerolog.Logger) *Store {
	if initial.Language == "" {
		initial.Language = "en"
	}
	return &Store{
		logger:    logger,
		state:     initial,
		listeners: make(map[int]Listener),
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies action and notifies listeners.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.state = action.apply(s.state)
	state := s.state
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.logger.Debug().Str("action", action.Type()).Msg("session action dispatched")

	for _, l := range listeners {
		l(action, state)
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Select reads a derived value from the store.
func Select[T any](s *Store, selector func(State) T) T {
	return selector(s.State())
}

// Ensure Store implements Dispatcher interface.
var _ Dispatcher = (*Store)(nil)
