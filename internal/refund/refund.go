// Package refund pays back all confirmed payments of a cancelled event.
//
// The batch decrypts the escrow credential once, then attempts every item
// independently and in order. One item's failure never stops the rest; every
// item produces a result record either way.
package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/metrics"
	"github.com/lumenpass/lumenpass/internal/payment"
	"github.com/lumenpass/lumenpass/internal/stellar"
	"github.com/lumenpass/lumenpass/internal/traces"
)

var (
	ErrEventNotCancelled = errors.New("event is not cancelled")
	ErrNoEscrow          = errors.New("event has no escrow account to refund from")
)

// Result records one refund attempt. Order in the batch result matches the
// order payments were read.
type Result struct {
	PaymentID       string `json:"paymentId"`
	UserID          string `json:"userId"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// EventStore loads the cancelled event with its escrow credential.
type EventStore interface {
	GetWithEscrowSecret(ctx context.Context, id string) (*event.Event, error)
}

// PaymentLedger is the slice of the payment service the coordinator needs.
type PaymentLedger interface {
	ListConfirmedByEvent(ctx context.Context, eventID string) ([]*payment.Payment, error)
	MarkRefunded(ctx context.Context, id string) error
}

// TicketRegistry flips tickets to refunded after a successful payout.
type TicketRegistry interface {
	MarkRefundedForOwner(ctx context.Context, eventID, ownerID string) error
}

// WalletDirectory resolves a user's registered payout account.
type WalletDirectory interface {
	WalletAddress(ctx context.Context, userID string) (string, error)
}

// CredentialDecryptor opens the escrow credential blob.
type CredentialDecryptor interface {
	DecryptEscrowSecret(blob string) (string, error)
}

// LedgerGateway submits the refund payments.
type LedgerGateway interface {
	SendPayment(ctx context.Context, sourceSecret, destination, amount, assetCode, assetIssuer string) (string, error)
}

// Coordinator runs batch refunds.
type Coordinator struct {
	events    EventStore
	payments  PaymentLedger
	tickets   TicketRegistry
	wallets   WalletDirectory
	decryptor CredentialDecryptor
	ledger    LedgerGateway
	auditLog  audit.Logger
	logger    *slog.Logger
}

// NewCoordinator creates a refund coordinator.
func NewCoordinator(events EventStore, payments PaymentLedger, tickets TicketRegistry, wallets WalletDirectory, decryptor CredentialDecryptor, ledger LedgerGateway, auditLog audit.Logger, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		events:    events,
		payments:  payments,
		tickets:   tickets,
		wallets:   wallets,
		decryptor: decryptor,
		ledger:    ledger,
		auditLog:  auditLog,
		logger:    logger,
	}
}

// RefundEvent refunds every confirmed payment of the cancelled event. The
// escrow requirements are validated before any payment is read. An event with
// no confirmed payments returns an empty result list, not an error.
func (c *Coordinator) RefundEvent(ctx context.Context, eventID string) ([]Result, error) {
	ctx, span := traces.StartSpan(ctx, "refund.RefundEvent", traces.EventID(eventID))
	defer span.End()

	e, err := c.events.GetWithEscrowSecret(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if e.Status != event.StatusCancelled {
		return nil, fmt.Errorf("%w: status is %s", ErrEventNotCancelled, e.Status)
	}
	if e.EscrowPublicKey == "" || e.EscrowSecretEncrypted == "" {
		return nil, ErrNoEscrow
	}

	confirmed, err := c.payments.ListConfirmedByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list confirmed payments: %w", err)
	}
	if len(confirmed) == 0 {
		return []Result{}, nil
	}

	// Decrypted once, shared across the batch, never persisted.
	escrowSecret, err := c.decryptor.DecryptEscrowSecret(e.EscrowSecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt escrow credential: %w", err)
	}

	results := make([]Result, 0, len(confirmed))
	succeeded, failed := 0, 0
	for _, p := range confirmed {
		r := c.refundOne(ctx, escrowSecret, eventID, p)
		if r.Success {
			succeeded++
			metrics.RefundsTotal.WithLabelValues("success").Inc()
		} else {
			failed++
			metrics.RefundsTotal.WithLabelValues("failure").Inc()
		}
		results = append(results, r)
	}

	span.SetAttributes(
		attribute.Int("refund.succeeded", succeeded),
		attribute.Int("refund.failed", failed),
	)

	c.audit(ctx, &audit.Entry{
		Action:     audit.ActionRefundEventCompleted,
		UserID:     audit.SystemUserID,
		ResourceID: eventID,
		Meta:       map[string]any{"succeeded": succeeded, "failed": failed, "total": len(confirmed)},
	})

	c.logger.Info("refund batch completed", "event_id", eventID, "succeeded", succeeded, "failed", failed)
	return results, nil
}

// refundOne attempts a single refund. Every failure path converts to a
// result record; nothing propagates out.
func (c *Coordinator) refundOne(ctx context.Context, escrowSecret, eventID string, p *payment.Payment) Result {
	r := Result{
		PaymentID: p.ID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}

	// A zero or negative stored amount is data corruption; never touch the
	// chain for it.
	stroops, err := stellar.ParseStroops(p.Amount)
	if err != nil || stroops <= 0 {
		return c.fail(ctx, r, fmt.Sprintf("invalid refund amount %q", p.Amount))
	}

	wallet, err := c.wallets.WalletAddress(ctx, p.UserID)
	if err != nil {
		return c.fail(ctx, r, fmt.Sprintf("no payout wallet for user %s: %v", p.UserID, err))
	}

	txHash, err := c.ledger.SendPayment(ctx, escrowSecret, wallet, p.Amount, p.Currency, "")
	if err != nil {
		return c.fail(ctx, r, fmt.Sprintf("refund payment failed: %v", err))
	}

	if err := c.payments.MarkRefunded(ctx, p.ID); err != nil {
		c.logger.Error("refund sent but payment not marked refunded",
			"payment_id", p.ID, "tx_hash", txHash, "error", err)
	}
	if err := c.tickets.MarkRefundedForOwner(ctx, eventID, p.UserID); err != nil {
		c.logger.Error("refund sent but tickets not marked refunded",
			"payment_id", p.ID, "owner_id", p.UserID, "error", err)
	}

	c.audit(ctx, &audit.Entry{
		Action:     audit.ActionRefundIssued,
		UserID:     p.UserID,
		ResourceID: p.ID,
		Meta:       map[string]any{"transactionHash": txHash, "amount": p.Amount, "currency": p.Currency},
	})

	r.Success = true
	r.TransactionHash = txHash
	return r
}

func (c *Coordinator) fail(ctx context.Context, r Result, reason string) Result {
	c.audit(ctx, &audit.Entry{
		Action:     audit.ActionRefundFailed,
		UserID:     r.UserID,
		ResourceID: r.PaymentID,
		Meta:       map[string]any{"reason": reason},
	})
	c.logger.Warn("refund item failed", "payment_id", r.PaymentID, "reason", reason)

	r.Success = false
	r.Error = reason
	return r
}

func (c *Coordinator) audit(ctx context.Context, entry *audit.Entry) {
	if err := c.auditLog.Log(ctx, entry); err != nil {
		c.logger.Error("audit log failed", "action", entry.Action, "error", err)
	}
}
