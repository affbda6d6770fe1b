package user

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory user store for demo/testing.
type MemoryStore struct {
	users map[string]*User
	mu    sync.RWMutex
}

// NewMemoryStore creates an in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetWallet(_ context.Context, id, publicKey string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	u, ok := s.users[id]
	if !ok {
		u = &User{ID: id, CreatedAt: now}
		s.users[id] = u
	}
	u.StellarPublicKey = publicKey
	u.UpdatedAt = now

	cp := *u
	return &cp, nil
}

// Put inserts a user directly (for testing).
func (s *MemoryStore) Put(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
}
