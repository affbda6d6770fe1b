// Package sponsor manages sponsorship tiers and pledges.
//
// Pledges settle like payments do: the sponsor pays the platform sponsor
// wallet with the pledge id as memo, and the chain observer falls through to
// ConfirmPayment here when no ticket payment matched the transaction.
package sponsor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/idgen"
	"github.com/lumenpass/lumenpass/internal/stellar"
	"github.com/lumenpass/lumenpass/internal/validation"
)

var (
	ErrTierNotFound      = errors.New("sponsor tier not found")
	ErrPledgeNotFound    = errors.New("pledge not found")
	ErrInvalidAmount     = errors.New("tier amount must be a positive amount")
	ErrNoSponsorWallet   = errors.New("no sponsor wallet configured")
	ErrWrongDestination  = errors.New("no operation pays the sponsor wallet")
	ErrPledgeUnderfunded = errors.New("operation amount is below the pledged amount")
	ErrAssetMismatch     = errors.New("operation asset does not match pledge currency")
	ErrTransactionNoMemo = errors.New("transaction carries no memo, cannot correlate")
)

// PledgeStatus is a pledge lifecycle state.
type PledgeStatus string

const (
	PledgePending   PledgeStatus = "pending"
	PledgeConfirmed PledgeStatus = "confirmed"
)

// Tier is a sponsorship level for an event.
type Tier struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pledge is one sponsor's commitment to a tier.
type Pledge struct {
	ID              string       `json:"id"`
	EventID         string       `json:"eventId"`
	TierID          string       `json:"tierId"`
	SponsorID       string       `json:"sponsorId"`
	Amount          string       `json:"amount"`
	Currency        string       `json:"currency"`
	Status          PledgeStatus `json:"status"`
	TransactionHash string       `json:"transactionHash,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// PledgeIntent tells the sponsor how to pay their pledge.
type PledgeIntent struct {
	PledgeID    string `json:"pledgeId"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Memo        string `json:"memo"`
}

// Store persists tiers and pledges.
type Store interface {
	CreateTier(ctx context.Context, t *Tier) (*Tier, error)
	GetTier(ctx context.Context, id string) (*Tier, error)
	ListTiersByEvent(ctx context.Context, eventID string) ([]*Tier, error)
	CreatePledge(ctx context.Context, p *Pledge) (*Pledge, error)
	GetPendingPledge(ctx context.Context, id string) (*Pledge, error)
	ListPledgesByEvent(ctx context.Context, eventID string) ([]*Pledge, error)
	SetPledgeConfirmed(ctx context.Context, id, transactionHash string) error
}

// EventStore is the slice of event persistence the sponsor service needs.
type EventStore interface {
	Get(ctx context.Context, id string) (*event.Event, error)
}

// LedgerGateway is the slice of the chain client the sponsor service needs.
type LedgerGateway interface {
	GetTransaction(ctx context.Context, hash string) (*stellar.Transaction, error)
	GetTransactionOperations(ctx context.Context, hash string) ([]stellar.PaymentOperation, error)
}

// Service manages sponsorships.
type Service struct {
	store         Store
	events        EventStore
	ledger        LedgerGateway
	auditLog      audit.Logger
	logger        *slog.Logger
	sponsorWallet string
}

// NewService creates a sponsor service. sponsorWallet receives pledge
// payments; pledging is disabled when it is empty.
func NewService(store Store, events EventStore, ledger LedgerGateway, auditLog audit.Logger, logger *slog.Logger, sponsorWallet string) *Service {
	return &Service{
		store:         store,
		events:        events,
		ledger:        ledger,
		auditLog:      auditLog,
		logger:        logger,
		sponsorWallet: sponsorWallet,
	}
}

// CreateTier adds a sponsorship tier to an event.
func (s *Service) CreateTier(ctx context.Context, eventID, name, amt, currency string) (*Tier, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	if !validation.IsValidAmount(amt) {
		return nil, ErrInvalidAmount
	}
	if !stellar.IsSupportedAsset(currency) {
		return nil, fmt.Errorf("unsupported asset code: %s", currency)
	}

	t := &Tier{
		ID:       idgen.WithPrefix("tier_"),
		EventID:  eventID,
		Name:     validation.SanitizeString(name, 120),
		Amount:   amt,
		Currency: stellar.NormalizeAssetCode(currency),
	}
	return s.store.CreateTier(ctx, t)
}

// ListTiers returns an event's sponsorship tiers.
func (s *Service) ListTiers(ctx context.Context, eventID string) ([]*Tier, error) {
	return s.store.ListTiersByEvent(ctx, eventID)
}

// CreatePledge opens a pending pledge against a tier and returns payment
// instructions.
func (s *Service) CreatePledge(ctx context.Context, tierID, sponsorID string) (*PledgeIntent, error) {
	if s.sponsorWallet == "" {
		return nil, ErrNoSponsorWallet
	}

	tier, err := s.store.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}

	p := &Pledge{
		ID:        idgen.WithPrefix("plg_"),
		EventID:   tier.EventID,
		TierID:    tier.ID,
		SponsorID: sponsorID,
		Amount:    tier.Amount,
		Currency:  tier.Currency,
		Status:    PledgePending,
	}
	created, err := s.store.CreatePledge(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create pledge: %w", err)
	}

	s.logger.Info("pledge created", "pledge_id", created.ID, "tier_id", tierID, "sponsor_id", sponsorID)
	return &PledgeIntent{
		PledgeID:    created.ID,
		Destination: s.sponsorWallet,
		Amount:      created.Amount,
		Currency:    created.Currency,
		Memo:        created.ID,
	}, nil
}

// ListPledges returns an event's pledges.
func (s *Service) ListPledges(ctx context.Context, eventID string) ([]*Pledge, error) {
	return s.store.ListPledgesByEvent(ctx, eventID)
}

// ConfirmPayment correlates an on-chain transaction to a pending pledge by
// memo. Unlike ticket payments, a sponsor may pay more than pledged; only
// underfunding fails.
func (s *Service) ConfirmPayment(ctx context.Context, transactionHash string) (*Pledge, error) {
	if s.sponsorWallet == "" {
		return nil, ErrPledgeNotFound
	}

	tx, err := s.ledger.GetTransaction(ctx, transactionHash)
	if err != nil {
		if errors.Is(err, stellar.ErrNotFound) {
			return nil, ErrPledgeNotFound
		}
		return nil, fmt.Errorf("fetch transaction %s: %w", transactionHash, err)
	}
	if tx.Memo == "" {
		return nil, ErrTransactionNoMemo
	}

	p, err := s.store.GetPendingPledge(ctx, tx.Memo)
	if err != nil {
		return nil, err
	}

	ops, err := s.ledger.GetTransactionOperations(ctx, transactionHash)
	if err != nil {
		return nil, fmt.Errorf("resolve operations for %s: %w", transactionHash, err)
	}

	var match *stellar.PaymentOperation
	for i := range ops {
		if ops[i].To == s.sponsorWallet {
			match = &ops[i]
			break
		}
	}
	if match == nil {
		return nil, ErrWrongDestination
	}

	if match.AssetCodeOrNative() != p.Currency {
		return nil, ErrAssetMismatch
	}

	pledged, err := stellar.ParseStroops(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse pledged amount %q: %w", p.Amount, err)
	}
	paid, err := stellar.ParseStroops(match.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse operation amount %q: %w", match.Amount, err)
	}
	if paid < pledged {
		return nil, fmt.Errorf("%w: pledged %s, paid %s", ErrPledgeUnderfunded, p.Amount, match.Amount)
	}

	if err := s.store.SetPledgeConfirmed(ctx, p.ID, transactionHash); err != nil {
		return nil, fmt.Errorf("confirm pledge %s: %w", p.ID, err)
	}
	p.Status = PledgeConfirmed
	p.TransactionHash = transactionHash

	if err := s.auditLog.Log(ctx, &audit.Entry{
		Action:     audit.ActionSponsorPledgeConfirmed,
		UserID:     p.SponsorID,
		ResourceID: p.ID,
		Meta:       map[string]any{"transactionHash": transactionHash, "eventId": p.EventID},
	}); err != nil {
		s.logger.Error("audit log failed", "action", audit.ActionSponsorPledgeConfirmed, "error", err)
	}

	s.logger.Info("pledge confirmed", "pledge_id", p.ID, "tx_hash", transactionHash)
	return p, nil
}
