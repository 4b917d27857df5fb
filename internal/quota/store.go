package quota

import "sync"

// Store persists feature quota states. Load returns (nil, nil) when
// nothing has been persisted for the feature yet; callers treat that
// as a zero-value state.
type Store interface {
	Save(state *State) error
	Load(feature Feature) (*State, error)
	LoadAll() ([]*State, error)
}

// MemoryStore is a map-backed Store. It backs tests and serves as the
// fail-open fallback when no durable backend can be reached.
type MemoryStore struct {
	mu     sync.Mutex
	states map[Feature]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Feature]State)}
}

// Save implements Store.
func (s *MemoryStore) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Feature] = *state
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(feature Feature) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[feature]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// LoadAll implements Store.
func (s *MemoryStore) LoadAll() ([]*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		st := st
		out = append(out, &st)
	}
	return out, nil
}
