// Package payment implements the settlement ledger: payment intents and
// their reconciliation against on-chain transactions.
//
// An intent is a pending payment whose id doubles as the transaction memo.
// Confirmation fetches the transaction by hash, correlates it back to the
// pending payment through that memo, and cross-checks destination, asset and
// amount before marking the payment confirmed. Any integrity mismatch marks
// the payment failed and is reported to the caller.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/idgen"
	"github.com/lumenpass/lumenpass/internal/metrics"
	"github.com/lumenpass/lumenpass/internal/stellar"
	"github.com/lumenpass/lumenpass/internal/traces"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrEventSuspended  = errors.New("event is suspended")
	ErrEventNotOpen    = errors.New("event is not open for payment")
	ErrNoEscrowAccount = errors.New("event has no escrow account")

	ErrUnsupportedAsset        = errors.New("unsupported asset code")
	ErrCapacityExceeded        = errors.New("event capacity exceeded")
	ErrDuplicatePayment        = errors.New("caller already has an active payment for this event")
	ErrTransactionNotOnNetwork = errors.New("transaction not found on network")
	ErrNoMemo                  = errors.New("transaction carries no memo, cannot correlate")
	ErrNotOwner                = errors.New("caller does not own this payment")

	ErrNoPaymentOperations = errors.New("transaction has no payment operations")
	ErrDestinationMismatch = errors.New("no operation pays the event escrow account")
	ErrAssetMismatch       = errors.New("operation asset does not match payment currency")
	ErrAmountMismatch      = errors.New("operation amount does not match payment amount")
)

// amountToleranceStroops is the accepted absolute difference when comparing
// amounts, one stroop (1e-7 of a whole unit).
const amountToleranceStroops = 1

// Status is a payment lifecycle state. Failed and refunded are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Payment is one user's purchase of one event ticket. At most one payment
// per (user, event) may be pending or confirmed at a time.
type Payment struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	UserID          string    `json:"userId"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Status          Status    `json:"status"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	FailureReason   string    `json:"failureReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Intent describes how a caller should pay for an event: send Amount of
// Currency to EscrowWallet with Memo attached to the transaction.
type Intent struct {
	PaymentID    string `json:"paymentId"`
	EscrowWallet string `json:"escrowWallet"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Memo         string `json:"memo"`
}

// Store persists payments.
type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	Get(ctx context.Context, id string) (*Payment, error)
	GetPendingByID(ctx context.Context, id string) (*Payment, error)
	CountActiveByEvent(ctx context.Context, eventID string) (int, error)
	HasActiveForUser(ctx context.Context, eventID, userID string) (bool, error)
	ListConfirmedByEvent(ctx context.Context, eventID string) ([]*Payment, error)
	SetConfirmed(ctx context.Context, id, transactionHash string) error
	SetFailed(ctx context.Context, id, reason string) error
	SetRefunded(ctx context.Context, id string) error
}

// LedgerGateway is the slice of the chain client the ledger needs.
type LedgerGateway interface {
	GetTransaction(ctx context.Context, hash string) (*stellar.Transaction, error)
	GetTransactionOperations(ctx context.Context, hash string) ([]stellar.PaymentOperation, error)
}

// EventStore is the slice of event persistence the ledger needs.
type EventStore interface {
	Get(ctx context.Context, id string) (*event.Event, error)
}

// Service is the payment ledger.
type Service struct {
	store    Store
	events   EventStore
	ledger   LedgerGateway
	auditLog audit.Logger
	logger   *slog.Logger
}

// NewService creates a payment ledger service.
func NewService(store Store, events EventStore, ledger LedgerGateway, auditLog audit.Logger, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		events:   events,
		ledger:   ledger,
		auditLog: auditLog,
		logger:   logger,
	}
}

// CreateIntent opens a pending payment for userID against eventID and
// returns the instructions for paying it.
//
// The capacity check and the insert are not mutually exclusive; under heavy
// concurrency an event can oversell slightly. Known gap, see DESIGN.md.
func (s *Service) CreateIntent(ctx context.Context, eventID, userID string) (*Intent, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if e.Status == event.StatusCancelled {
		return nil, ErrEventSuspended
	}
	if e.Status != event.StatusPublished {
		return nil, fmt.Errorf("%w: status is %s", ErrEventNotOpen, e.Status)
	}

	currency := stellar.NormalizeAssetCode(e.Currency)
	if !stellar.IsSupportedAsset(currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, currency)
	}

	if e.EscrowPublicKey == "" {
		return nil, ErrNoEscrowAccount
	}

	if e.MaxAttendees != nil {
		count, err := s.store.CountActiveByEvent(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("count active payments: %w", err)
		}
		if count >= *e.MaxAttendees {
			return nil, ErrCapacityExceeded
		}
	}

	active, err := s.store.HasActiveForUser(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("check active payment: %w", err)
	}
	if active {
		return nil, ErrDuplicatePayment
	}

	p := &Payment{
		ID:       idgen.WithPrefix("pay_"),
		EventID:  eventID,
		UserID:   userID,
		Amount:   e.TicketPrice,
		Currency: currency,
		Status:   StatusPending,
	}
	created, err := s.store.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.audit(ctx, &audit.Entry{
		Action:     audit.ActionPaymentIntentCreated,
		UserID:     userID,
		ResourceID: created.ID,
		Meta:       map[string]any{"eventId": eventID, "amount": created.Amount, "currency": currency},
	})
	metrics.PaymentIntentsTotal.Inc()

	s.logger.Info("payment intent created", "payment_id", created.ID, "event_id", eventID, "user_id", userID)
	return &Intent{
		PaymentID:    created.ID,
		EscrowWallet: e.EscrowPublicKey,
		Amount:       created.Amount,
		Currency:     currency,
		Memo:         created.ID,
	}, nil
}

// Confirm reconciles the on-chain transaction with hash against the pending
// payment its memo names. callerID, when non-empty, must own the payment;
// the chain observer confirms with an empty caller.
//
// Only a pending payment can confirm. A second attempt against an already
// confirmed payment finds nothing pending and fails not-found, which makes
// confirmation idempotent.
func (s *Service) Confirm(ctx context.Context, transactionHash, callerID string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "payment.Confirm", traces.TxHash(transactionHash))
	defer span.End()

	tx, err := s.ledger.GetTransaction(ctx, transactionHash)
	if err != nil {
		if errors.Is(err, stellar.ErrNotFound) {
			return nil, ErrTransactionNotOnNetwork
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction fetch failed")
		return nil, fmt.Errorf("fetch transaction %s: %w", transactionHash, err)
	}

	if tx.Memo == "" {
		return nil, ErrNoMemo
	}

	p, err := s.store.GetPendingByID(ctx, tx.Memo)
	if err != nil {
		return nil, err
	}

	if callerID != "" && p.UserID != callerID {
		return nil, ErrNotOwner
	}

	ops, err := s.ledger.GetTransactionOperations(ctx, transactionHash)
	if err != nil {
		return nil, fmt.Errorf("resolve operations for %s: %w", transactionHash, err)
	}
	if len(ops) == 0 {
		s.markFailed(ctx, p, "no payment operations")
		return nil, ErrNoPaymentOperations
	}

	e, err := s.events.Get(ctx, p.EventID)
	if err != nil {
		return nil, err
	}

	var match *stellar.PaymentOperation
	for i := range ops {
		if ops[i].To == e.EscrowPublicKey {
			match = &ops[i]
			break
		}
	}
	if match == nil {
		s.markFailed(ctx, p, "destination mismatch")
		return nil, ErrDestinationMismatch
	}

	assetCode := match.AssetCodeOrNative()
	if !strings.EqualFold(assetCode, p.Currency) {
		s.markFailed(ctx, p, "asset mismatch")
		return nil, ErrAssetMismatch
	}
	if !stellar.IsSupportedAsset(assetCode) {
		s.markFailed(ctx, p, "unsupported asset")
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, assetCode)
	}

	expected, err := stellar.ParseStroops(p.Amount)
	if err != nil {
		s.markFailed(ctx, p, "unparsable expected amount")
		return nil, fmt.Errorf("parse expected amount %q: %w", p.Amount, err)
	}
	got, err := stellar.ParseStroops(match.Amount)
	if err != nil {
		s.markFailed(ctx, p, "unparsable operation amount")
		return nil, fmt.Errorf("parse operation amount %q: %w", match.Amount, err)
	}
	if diff := expected - got; diff > amountToleranceStroops || diff < -amountToleranceStroops {
		s.markFailed(ctx, p, "amount mismatch")
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrAmountMismatch, p.Amount, match.Amount)
	}

	if err := s.store.SetConfirmed(ctx, p.ID, transactionHash); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist confirmation")
		return nil, fmt.Errorf("confirm payment %s: %w", p.ID, err)
	}
	span.SetAttributes(traces.PaymentID(p.ID), traces.EventID(p.EventID))
	p.Status = StatusConfirmed
	p.TransactionHash = transactionHash

	s.audit(ctx, &audit.Entry{
		Action:     audit.ActionPaymentConfirmed,
		UserID:     p.UserID,
		ResourceID: p.ID,
		Meta:       map[string]any{"transactionHash": transactionHash, "eventId": p.EventID},
	})
	metrics.PaymentsConfirmedTotal.Inc()

	s.logger.Info("payment confirmed", "payment_id", p.ID, "tx_hash", transactionHash)
	return p, nil
}

// GetByID returns a payment by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// ListConfirmedByEvent returns the event's confirmed payments, used by the
// refund flow.
func (s *Service) ListConfirmedByEvent(ctx context.Context, eventID string) ([]*Payment, error) {
	return s.store.ListConfirmedByEvent(ctx, eventID)
}

// MarkRefunded moves a confirmed payment to refunded.
func (s *Service) MarkRefunded(ctx context.Context, id string) error {
	return s.store.SetRefunded(ctx, id)
}

// markFailed persists status failed with the reason and audits it. Failures
// here are logged and swallowed; the caller already has an error to report.
func (s *Service) markFailed(ctx context.Context, p *Payment, reason string) {
	if err := s.store.SetFailed(ctx, p.ID, reason); err != nil {
		s.logger.Error("failed to mark payment failed", "payment_id", p.ID, "reason", reason, "error", err)
	}
	p.Status = StatusFailed
	p.FailureReason = reason

	s.audit(ctx, &audit.Entry{
		Action:     audit.ActionPaymentFailed,
		UserID:     p.UserID,
		ResourceID: p.ID,
		Meta:       map[string]any{"reason": reason},
	})
	metrics.PaymentsFailedTotal.WithLabelValues(metricReason(reason)).Inc()

	s.logger.Warn("payment marked failed", "payment_id", p.ID, "reason", reason)
}

func (s *Service) audit(ctx context.Context, entry *audit.Entry) {
	if err := s.auditLog.Log(ctx, entry); err != nil {
		s.logger.Error("audit log failed", "action", entry.Action, "error", err)
	}
}

// metricReason keeps the failure-reason label low-cardinality.
func metricReason(reason string) string {
	return strings.ReplaceAll(reason, " ", "_")
}
