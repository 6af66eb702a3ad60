package registry

import "sync"

// InmemStore implements the Store interface with a plain map. It is used in
// tests and in standalone mode, where tag stability across restarts does not
// matter.
type InmemStore struct {
	sync.Mutex
	ids  map[string]int
	next int
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		ids:  make(map[string]int),
		next: 1,
	}
}

// GetOrCreate implements the Store interface.
func (s *InmemStore) GetOrCreate(peerID string) (int, error) {
	s.Lock()
	defer s.Unlock()

	if id, ok := s.ids[peerID]; ok {
		return id, nil
	}

	id := s.next
	s.next++
	s.ids[peerID] = id

	return id, nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(peerID string) (int, error) {
	s.Lock()
	defer s.Unlock()

	id, ok := s.ids[peerID]
	if !ok {
		return 0, ErrNotFound
	}

	return id, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
