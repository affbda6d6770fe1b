package event

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory event store for demo/testing.
type MemoryStore struct {
	events map[string]*Event
	mu     sync.RWMutex
}

// NewMemoryStore creates an in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

func (s *MemoryStore) Create(_ context.Context, e *Event) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *e
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.events[cp.ID] = &cp

	out := cp
	out.EscrowSecretEncrypted = ""
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	cp.EscrowSecretEncrypted = ""
	return &cp, nil
}

func (s *MemoryStore) GetWithEscrowSecret(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, status Status) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		if status != "" && e.Status != status {
			continue
		}
		cp := *e
		cp.EscrowSecretEncrypted = ""
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetEscrow(_ context.Context, id, publicKey, secretEncrypted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.EscrowPublicKey = publicKey
	e.EscrowSecretEncrypted = secretEncrypted
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClearEscrowSecret(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.EscrowSecretEncrypted = ""
	e.UpdatedAt = time.Now()
	return nil
}

// Put inserts an event directly (for testing).
func (s *MemoryStore) Put(e *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events[e.ID] = &cp
}
