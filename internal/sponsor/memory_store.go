package sponsor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory sponsor store for demo/testing.
type MemoryStore struct {
	tiers   map[string]*Tier
	pledges map[string]*Pledge
	mu      sync.RWMutex
}

// NewMemoryStore creates an in-memory sponsor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiers:   make(map[string]*Tier),
		pledges: make(map[string]*Pledge),
	}
}

func (s *MemoryStore) CreateTier(_ context.Context, t *Tier) (*Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	cp.CreatedAt = time.Now()
	s.tiers[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *MemoryStore) GetTier(_ context.Context, id string) (*Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tiers[id]
	if !ok {
		return nil, ErrTierNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTiersByEvent(_ context.Context, eventID string) ([]*Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Tier
	for _, t := range s.tiers {
		if t.EventID == eventID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) CreatePledge(_ context.Context, p *Pledge) (*Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *p
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.pledges[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *MemoryStore) GetPendingPledge(_ context.Context, id string) (*Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pledges[id]
	if !ok || p.Status != PledgePending {
		return nil, ErrPledgeNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPledgesByEvent(_ context.Context, eventID string) ([]*Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Pledge
	for _, p := range s.pledges {
		if p.EventID == eventID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) SetPledgeConfirmed(_ context.Context, id, transactionHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pledges[id]
	if !ok {
		return ErrPledgeNotFound
	}
	p.Status = PledgeConfirmed
	p.TransactionHash = transactionHash
	p.UpdatedAt = time.Now()
	return nil
}
