package ticket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrDuplicateHash signals a second ticket for the same transaction hash.
var ErrDuplicateHash = errors.New("ticket already exists for transaction hash")

// MemoryStore is an in-memory ticket store for demo/testing.
type MemoryStore struct {
	tickets map[string]*Ticket
	byHash  map[string]string
	mu      sync.RWMutex
}

// NewMemoryStore creates an in-memory ticket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]*Ticket),
		byHash:  make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, t *Ticket) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[t.TransactionHash]; exists {
		return nil, ErrDuplicateHash
	}

	now := time.Now()
	cp := *t
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.tickets[cp.ID] = &cp
	s.byHash[cp.TransactionHash] = cp.ID

	out := cp
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetByTransactionHash(_ context.Context, hash string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrTicketNotFound
	}
	cp := *s.tickets[id]
	return &cp, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Ticket
	for _, t := range s.tickets {
		if t.OwnerID == ownerID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) SetSignature(_ context.Context, id, signature string) error {
	return s.update(id, func(t *Ticket) { t.Signature = signature })
}

func (s *MemoryStore) SetOwner(_ context.Context, id, ownerID string) error {
	return s.update(id, func(t *Ticket) { t.OwnerID = ownerID })
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	return s.update(id, func(t *Ticket) { t.Status = status })
}

func (s *MemoryStore) MarkRefundedByOwner(_ context.Context, eventID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.EventID == eventID && t.OwnerID == ownerID {
			t.Status = StatusRefunded
			t.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) update(id string, fn func(*Ticket)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	fn(t)
	t.UpdatedAt = time.Now()
	return nil
}

// Put inserts a ticket directly (for testing).
func (s *MemoryStore) Put(t *Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tickets[t.ID] = &cp
	s.byHash[t.TransactionHash] = t.ID
}
