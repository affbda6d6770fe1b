// Package escrow provisions and drains per-event custodial accounts.
//
// Each published event gets its own on-chain account funded from the platform
// funder. The account's private credential is encrypted at rest and is only
// decrypted transiently for release and refunds. Once escrow is released the
// stored credential is nulled for good; an account merge retires the account.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/metrics"
	"github.com/lumenpass/lumenpass/internal/stellar"
	"github.com/lumenpass/lumenpass/internal/traces"
)

var (
	ErrEventNotPublished = errors.New("event must be published before escrow creation")
	ErrEventNotCompleted = errors.New("event must be completed before escrow release")
	ErrEventNotCancelled = errors.New("event is not cancelled")
	ErrNoEscrow          = errors.New("event has no escrow account")
	ErrFundingFailed     = errors.New("escrow account funding failed")
	ErrReleaseFailed     = errors.New("escrow release failed")
)

// LedgerGateway is the slice of the chain client the custodian needs.
type LedgerGateway interface {
	GenerateKeypair() (stellar.Keypair, error)
	FundAccount(ctx context.Context, funderSecret, destination, startingBalance string) (string, error)
	GetNativeBalance(ctx context.Context, accountID string) (string, error)
	MergeAccount(ctx context.Context, sourceSecret, destination string) (string, error)
}

// EventStore is the slice of event persistence the custodian needs.
type EventStore interface {
	Get(ctx context.Context, id string) (*event.Event, error)
	GetWithEscrowSecret(ctx context.Context, id string) (*event.Event, error)
	SetEscrow(ctx context.Context, id, publicKey, secretEncrypted string) error
	ClearEscrowSecret(ctx context.Context, id string) error
}

// ReleaseResult reports a completed escrow release.
type ReleaseResult struct {
	TransactionHash string `json:"transactionHash"`
	Amount          string `json:"amount"`
}

// CancellationReport is what the refund flow needs from a cancelled event's
// escrow. Reporting only; no funds move here.
type CancellationReport struct {
	EscrowPublicKey string `json:"escrowPublicKey"`
	Balance         string `json:"balance"`
}

// Custodian manages per-event escrow accounts.
type Custodian struct {
	events          EventStore
	ledger          LedgerGateway
	cipher          *Cipher
	auditLog        audit.Logger
	logger          *slog.Logger
	funderSecret    string
	startingBalance string
}

// NewCustodian creates an escrow custodian.
func NewCustodian(events EventStore, ledger LedgerGateway, cipher *Cipher, auditLog audit.Logger, logger *slog.Logger, funderSecret, startingBalance string) *Custodian {
	return &Custodian{
		events:          events,
		ledger:          ledger,
		cipher:          cipher,
		auditLog:        auditLog,
		logger:          logger,
		funderSecret:    funderSecret,
		startingBalance: startingBalance,
	}
}

// CreateEscrow provisions an escrow account for the event. Idempotent: an
// event that already has one gets its existing key back, never a second
// account. A funding failure persists nothing, so the call is safe to retry.
func (c *Custodian) CreateEscrow(ctx context.Context, eventID string) (string, error) {
	e, err := c.events.Get(ctx, eventID)
	if err != nil {
		return "", err
	}

	if e.EscrowPublicKey != "" {
		c.logger.Warn("escrow already exists, returning existing key",
			"event_id", eventID, "public_key", e.EscrowPublicKey)
		return e.EscrowPublicKey, nil
	}

	if e.Status != event.StatusPublished {
		return "", fmt.Errorf("%w: status is %s", ErrEventNotPublished, e.Status)
	}

	kp, err := c.ledger.GenerateKeypair()
	if err != nil {
		return "", fmt.Errorf("generate escrow keypair: %w", err)
	}

	fundingTx, err := c.ledger.FundAccount(ctx, c.funderSecret, kp.PublicKey, c.startingBalance)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFundingFailed, err)
	}

	encrypted, err := c.cipher.Encrypt(kp.Secret)
	if err != nil {
		return "", fmt.Errorf("encrypt escrow credential: %w", err)
	}

	if err := c.events.SetEscrow(ctx, eventID, kp.PublicKey, encrypted); err != nil {
		return "", fmt.Errorf("persist escrow for event %s: %w", eventID, err)
	}

	c.audit(ctx, &audit.Entry{
		Action:     audit.ActionEscrowCreated,
		UserID:     audit.SystemUserID,
		ResourceID: eventID,
		Meta:       map[string]any{"escrowPublicKey": kp.PublicKey, "fundingTx": fundingTx},
	})
	metrics.EscrowsCreatedTotal.Inc()

	c.logger.Info("escrow created", "event_id", eventID, "public_key", kp.PublicKey, "funding_tx", fundingTx)
	return kp.PublicKey, nil
}

// DecryptEscrowSecret returns the raw escrow credential from its at-rest
// blob. The caller holds it in memory only, as briefly as possible.
func (c *Custodian) DecryptEscrowSecret(blob string) (string, error) {
	return c.cipher.Decrypt(blob)
}

// ReleaseEscrow sweeps the event's entire escrow balance to organizerWallet
// via an account merge and permanently nulls the stored credential. A
// submission failure leaves the credential intact so release can be retried.
func (c *Custodian) ReleaseEscrow(ctx context.Context, eventID, organizerWallet string) (*ReleaseResult, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ReleaseEscrow", traces.EventID(eventID))
	defer span.End()

	e, err := c.events.GetWithEscrowSecret(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if e.Status != event.StatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrEventNotCompleted, e.Status)
	}
	if e.EscrowPublicKey == "" || e.EscrowSecretEncrypted == "" {
		return nil, ErrNoEscrow
	}

	balance, err := c.ledger.GetNativeBalance(ctx, e.EscrowPublicKey)
	if err != nil {
		return nil, fmt.Errorf("read escrow balance: %w", err)
	}

	secret, err := c.cipher.Decrypt(e.EscrowSecretEncrypted)
	if err != nil {
		return nil, err
	}

	txHash, err := c.ledger.MergeAccount(ctx, secret, organizerWallet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account merge failed")
		return nil, fmt.Errorf("%w: %v", ErrReleaseFailed, err)
	}

	// The account no longer exists after the merge; the credential must not
	// be retrievable again.
	if err := c.events.ClearEscrowSecret(ctx, eventID); err != nil {
		c.logger.Error("escrow released but credential cleanup failed",
			"event_id", eventID, "tx_hash", txHash, "error", err)
	}

	c.audit(ctx, &audit.Entry{
		Action:     audit.ActionEscrowReleased,
		UserID:     audit.SystemUserID,
		ResourceID: eventID,
		Meta:       map[string]any{"transactionHash": txHash, "amount": balance, "organizerWallet": organizerWallet},
	})
	metrics.EscrowsReleasedTotal.Inc()

	c.logger.Info("escrow released", "event_id", eventID, "tx_hash", txHash, "amount", balance)
	return &ReleaseResult{TransactionHash: txHash, Amount: balance}, nil
}

// HandleCancellation reports the escrow state of a cancelled event for the
// refund flow. It never moves funds.
func (c *Custodian) HandleCancellation(ctx context.Context, eventID string) (*CancellationReport, error) {
	e, err := c.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if e.Status != event.StatusCancelled {
		return nil, fmt.Errorf("%w: status is %s", ErrEventNotCancelled, e.Status)
	}
	if e.EscrowPublicKey == "" {
		return nil, ErrNoEscrow
	}

	balance, err := c.ledger.GetNativeBalance(ctx, e.EscrowPublicKey)
	if err != nil {
		return nil, fmt.Errorf("read escrow balance: %w", err)
	}

	c.audit(ctx, &audit.Entry{
		Action:     audit.ActionEscrowCancellation,
		UserID:     audit.SystemUserID,
		ResourceID: eventID,
		Meta:       map[string]any{"escrowPublicKey": e.EscrowPublicKey, "balance": balance},
	})

	return &CancellationReport{EscrowPublicKey: e.EscrowPublicKey, Balance: balance}, nil
}

func (c *Custodian) audit(ctx context.Context, entry *audit.Entry) {
	if err := c.auditLog.Log(ctx, entry); err != nil {
		c.logger.Error("audit log failed", "action", entry.Action, "error", err)
	}
}
