package core

import (
	"sync"

	"sampleflow/pkg/domain"
)

// Store holds canonical entities and override maps. Writes go through Mutate,
// which works on a private copy and commits only when the callback succeeds.
type Store struct {
	mu    sync.RWMutex
	state domain.State
	seq   map[string]uint64
	bus   *EventBus
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: domain.NewState(),
		seq:   make(map[string]uint64),
		bus:   NewEventBus(),
	}
}

// Txn is the working copy handed to Mutate callbacks.
type Txn struct {
	State  domain.State
	base   map[string]uint64
	bumped map[string]uint64
}

// Bump allocates the next sequence number for an entity key. A backend
// response is merged only while its sequence is still the latest.
func (tx *Txn) Bump(key string) uint64 {
	n, ok := tx.bumped[key]
	if !ok {
		n = tx.base[key]
	}
	n++
	tx.bumped[key] = n
	return n
}

// Mutate runs fn against a copy of the state and commits it on success.
func (s *Store) Mutate(fn func(tx *Txn) error) error {
	s.mu.Lock()
	tx := &Txn{State: s.state.Clone(), base: s.seq, bumped: make(map[string]uint64)}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = tx.State
	for k, v := range tx.bumped {
		s.seq[k] = v
	}
	s.mu.Unlock()
	s.bus.Emit(Event{Type: EventStateChanged})
	return nil
}

// Merge applies fn only if seq is still the latest sequence for key. It
// reports whether the merge happened.
func (s *Store) Merge(key string, seq uint64, fn func(st *domain.State)) bool {
	s.mu.Lock()
	if s.seq[key] != seq {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	s.mu.Unlock()
	s.bus.Emit(Event{Type: EventStateChanged})
	return true
}

// Rekey applies fn whatever the sequence for from and then carries from's
// sequence over to to. fresh reports whether seq was still the latest for
// from, i.e. no newer mutation touched the entity meanwhile.
func (s *Store) Rekey(from, to string, seq uint64, fn func(st *domain.State, fresh bool)) {
	s.mu.Lock()
	fn(&s.state, s.seq[from] == seq)
	if n := s.seq[from]; n > s.seq[to] {
		s.seq[to] = n
	}
	s.mu.Unlock()
	s.bus.Emit(Event{Type: EventStateChanged})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Overrides returns a copy of the override maps.
func (s *Store) Overrides() domain.Overrides {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Overrides.Clone()
}

// ReplaceCanonical swaps the canonical collections and keeps overrides.
func (s *Store) ReplaceCanonical(canonical domain.State) {
	s.mu.Lock()
	next := canonical.Clone()
	next.Overrides = s.state.Overrides
	s.state = next
	s.mu.Unlock()
	s.bus.Emit(Event{Type: EventStateChanged})
}

// SetOverrides replaces the override maps, typically after loading persisted state.
func (s *Store) SetOverrides(o domain.Overrides) {
	s.mu.Lock()
	s.state.Overrides = o.Clone()
	s.mu.Unlock()
	s.bus.Emit(Event{Type: EventStateChanged})
}

// Subscribe registers fn on the store's event bus.
func (s *Store) Subscribe(fn SubscriberFunc, types ...EventType) SubscriberID {
	return s.bus.Subscribe(fn, types...)
}

// Unsubscribe removes a subscriber.
func (s *Store) Unsubscribe(id SubscriberID) {
	s.bus.Unsubscribe(id)
}

// Emit publishes evt on the store's bus.
func (s *Store) Emit(evt Event) {
	s.bus.Emit(evt)
}

func sampleKey(id string) string   { return "sample:" + id }
func analysisKey(id string) string { return "analysis:" + id }
func conflictKey(id string) string { return "conflict:" + id }
