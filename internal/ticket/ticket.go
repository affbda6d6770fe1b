// Package ticket turns confirmed payments into signed, redeemable tickets.
//
// A ticket is minted from exactly one on-chain transaction; the hash is
// unique across all tickets, so re-issuing for the same payment returns the
// existing ticket. The ticket id is signed after persistence and the
// signature is verified before any lookup at redemption time.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/idgen"
	"github.com/lumenpass/lumenpass/internal/metrics"
	"github.com/lumenpass/lumenpass/internal/payment"
	"github.com/lumenpass/lumenpass/internal/stellar"
)

var (
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrPaymentNotConfirmed = errors.New("payment is not confirmed")
	ErrMemoMismatch        = errors.New("transaction memo does not match payment")
	ErrNotOwner            = errors.New("caller does not own this ticket")
	ErrNotTransferable     = errors.New("ticket is not transferable")
	ErrInvalidSignature    = errors.New("invalid ticket signature")
	ErrAlreadyUsed         = errors.New("ticket already used")
	ErrNoLongerValid       = errors.New("ticket is no longer valid")
)

// Status is a ticket lifecycle state.
type Status string

const (
	StatusValid    Status = "valid"
	StatusUsed     Status = "used"
	StatusRefunded Status = "refunded"
)

// Ticket is an admission right minted from a confirmed payment.
type Ticket struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	OwnerID         string    `json:"ownerId"`
	AssetCode       string    `json:"assetCode"`
	TransactionHash string    `json:"transactionHash"`
	Status          Status    `json:"status"`
	Signature       string    `json:"signature,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Store persists tickets. TransactionHash is unique across all tickets.
type Store interface {
	Create(ctx context.Context, t *Ticket) (*Ticket, error)
	Get(ctx context.Context, id string) (*Ticket, error)
	GetByTransactionHash(ctx context.Context, hash string) (*Ticket, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Ticket, error)
	SetSignature(ctx context.Context, id, signature string) error
	SetOwner(ctx context.Context, id, ownerID string) error
	SetStatus(ctx context.Context, id string, status Status) error
	MarkRefundedByOwner(ctx context.Context, eventID, ownerID string) error
}

// PaymentLedger is the slice of the payment service the issuer needs.
type PaymentLedger interface {
	GetByID(ctx context.Context, id string) (*payment.Payment, error)
}

// LedgerGateway re-checks the memo correlation at issue time.
type LedgerGateway interface {
	GetTransaction(ctx context.Context, hash string) (*stellar.Transaction, error)
}

// Service issues, transfers and redeems tickets.
type Service struct {
	store    Store
	payments PaymentLedger
	ledger   LedgerGateway
	signer   *Signer
	auditLog audit.Logger
	logger   *slog.Logger
}

// NewService creates a ticket service.
func NewService(store Store, payments PaymentLedger, ledger LedgerGateway, signer *Signer, auditLog audit.Logger, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		payments: payments,
		ledger:   ledger,
		signer:   signer,
		auditLog: auditLog,
		logger:   logger,
	}
}

// Issue mints a ticket for a confirmed payment. Idempotent on the payment's
// transaction hash: a second call returns the existing ticket.
func (s *Service) Issue(ctx context.Context, paymentID string) (*Ticket, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != payment.StatusConfirmed || p.TransactionHash == "" {
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotConfirmed, p.Status)
	}

	existing, err := s.store.GetByTransactionHash(ctx, p.TransactionHash)
	if err == nil {
		s.logger.Info("ticket already issued for transaction, returning existing",
			"ticket_id", existing.ID, "tx_hash", p.TransactionHash)
		return existing, nil
	}
	if !errors.Is(err, ErrTicketNotFound) {
		return nil, fmt.Errorf("check existing ticket: %w", err)
	}

	// The memo correlation was checked at confirmation time; re-check it
	// here so a ticket can never be minted from a transaction that does not
	// name this payment.
	tx, err := s.ledger.GetTransaction(ctx, p.TransactionHash)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", p.TransactionHash, err)
	}
	if tx.Memo != p.ID {
		return nil, ErrMemoMismatch
	}

	t := &Ticket{
		ID:              idgen.WithPrefix("tkt_"),
		EventID:         p.EventID,
		OwnerID:         p.UserID,
		AssetCode:       p.Currency,
		TransactionHash: p.TransactionHash,
		Status:          StatusValid,
	}
	created, err := s.store.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	// Signing happens after the identifier is persisted.
	signature := s.signer.Sign(created.ID)
	if err := s.store.SetSignature(ctx, created.ID, signature); err != nil {
		return nil, fmt.Errorf("persist ticket signature: %w", err)
	}
	created.Signature = signature

	s.audit(ctx, &audit.Entry{
		Action:     audit.ActionTicketIssued,
		UserID:     p.UserID,
		ResourceID: created.ID,
		Meta:       map[string]any{"paymentId": p.ID, "eventId": p.EventID, "transactionHash": p.TransactionHash},
	})
	metrics.TicketsIssuedTotal.Inc()

	s.logger.Info("ticket issued", "ticket_id", created.ID, "payment_id", p.ID)
	return created, nil
}

// Transfer reassigns a valid ticket to a new owner. Only the current owner
// may transfer.
func (s *Service) Transfer(ctx context.Context, ticketID, callerID, newOwnerID string) (*Ticket, error) {
	t, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if t.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	if t.Status != StatusValid {
		return nil, fmt.Errorf("%w: status is %s", ErrNotTransferable, t.Status)
	}

	if err := s.store.SetOwner(ctx, ticketID, newOwnerID); err != nil {
		return nil, fmt.Errorf("transfer ticket: %w", err)
	}
	t.OwnerID = newOwnerID

	s.logger.Info("ticket transferred", "ticket_id", ticketID, "from", callerID, "to", newOwnerID)
	return t, nil
}

// Verify redeems a ticket at the gate. The signature is checked before any
// lookup: a bad signature fails the same way whether or not the ticket
// exists, so probing leaks nothing.
//
// The status check and the save are not atomic; two concurrent scans can
// both pass the check. Known gap, see DESIGN.md.
func (s *Service) Verify(ctx context.Context, ticketID, signature string) (*Ticket, error) {
	if !s.signer.Verify(ticketID, signature) {
		return nil, ErrInvalidSignature
	}

	t, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case StatusValid:
	case StatusUsed:
		return nil, ErrAlreadyUsed
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrNoLongerValid, t.Status)
	}

	if err := s.store.SetStatus(ctx, ticketID, StatusUsed); err != nil {
		return nil, fmt.Errorf("redeem ticket: %w", err)
	}
	t.Status = StatusUsed

	s.audit(ctx, &audit.Entry{
		Action:     audit.ActionTicketRedeemed,
		UserID:     t.OwnerID,
		ResourceID: ticketID,
		Meta:       map[string]any{"eventId": t.EventID},
	})
	metrics.TicketsRedeemedTotal.Inc()

	s.logger.Info("ticket redeemed", "ticket_id", ticketID, "event_id", t.EventID)
	return t, nil
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.store.Get(ctx, id)
}

// ListByOwner returns all tickets owned by ownerID.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*Ticket, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// MarkRefundedForOwner flips the owner's tickets for an event to refunded,
// used by the refund flow after a successful payout.
func (s *Service) MarkRefundedForOwner(ctx context.Context, eventID, ownerID string) error {
	return s.store.MarkRefundedByOwner(ctx, eventID, ownerID)
}

// VerificationKey exposes the hex public key for offline gate scanners.
func (s *Service) VerificationKey() string {
	return s.signer.VerificationKey()
}

func (s *Service) audit(ctx context.Context, entry *audit.Entry) {
	if err := s.auditLog.Log(ctx, entry); err != nil {
		s.logger.Error("audit log failed", "action", entry.Action, "error", err)
	}
}
