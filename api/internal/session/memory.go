package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory; suitable for a single instance.
type MemoryStore struct {
	ttl time.Duration
	mu  sync.Mutex
	m   map[string]State
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, m: make(map[string]State)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[id]
	if !ok {
		return New(id), nil
	}
	if expired(&st, s.ttl) {
		delete(s.m, id)
		return New(id), nil
	}
	st.Lines = append([]string(nil), st.Lines...)
	return &st, nil
}

func (s *MemoryStore) Save(_ context.Context, st *State) error {
	cp := *st
	cp.Lines = append([]string(nil), st.Lines...)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.m[st.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}

// PurgeOlderThan drops sessions not updated since cutoff.
func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, st := range s.m {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore) Close() error { return nil }
