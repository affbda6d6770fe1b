package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory payment store for demo/testing.
type MemoryStore struct {
	payments map[string]*Payment
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*Payment)}
}

func (s *MemoryStore) Create(_ context.Context, p *Payment) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *p
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.payments[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPendingByID(_ context.Context, id string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok || p.Status != StatusPending {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CountActiveByEvent(_ context.Context, eventID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.payments {
		if p.EventID == eventID && (p.Status == StatusPending || p.Status == StatusConfirmed) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) HasActiveForUser(_ context.Context, eventID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.EventID == eventID && p.UserID == userID &&
			(p.Status == StatusPending || p.Status == StatusConfirmed) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListConfirmedByEvent(_ context.Context, eventID string) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Payment
	for _, p := range s.payments {
		if p.EventID == eventID && p.Status == StatusConfirmed {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) SetConfirmed(_ context.Context, id, transactionHash string) error {
	return s.update(id, func(p *Payment) {
		p.Status = StatusConfirmed
		p.TransactionHash = transactionHash
	})
}

func (s *MemoryStore) SetFailed(_ context.Context, id, reason string) error {
	return s.update(id, func(p *Payment) {
		p.Status = StatusFailed
		p.FailureReason = reason
	})
}

func (s *MemoryStore) SetRefunded(_ context.Context, id string) error {
	return s.update(id, func(p *Payment) {
		p.Status = StatusRefunded
	})
}

func (s *MemoryStore) update(id string, fn func(*Payment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now()
	return nil
}

// Put inserts a payment directly (for testing).
func (s *MemoryStore) Put(p *Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.payments[p.ID] = &cp
}
