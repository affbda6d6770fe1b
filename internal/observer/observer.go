// Package observer consumes the live payment stream and feeds confirmations.
//
// The observer is a single long-lived consumer. Per-record failures are
// logged and swallowed; only the stream connection itself is supervised, with
// exponential backoff between reconnect attempts.
package observer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenpass/lumenpass/internal/metrics"
	"github.com/lumenpass/lumenpass/internal/payment"
	"github.com/lumenpass/lumenpass/internal/sponsor"
	"github.com/lumenpass/lumenpass/internal/stellar"
)

// State is the observer's connection state.
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

const (
	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 60 * time.Second
	stopTimeout        = 5 * time.Second
)

// Stream is the slice of the chain client the observer needs.
type Stream interface {
	StreamPayments(ctx context.Context, cursor string, handler func(stellar.StreamRecord)) error
}

// PaymentConfirmer is the primary confirmation target.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, transactionHash, callerID string) (*payment.Payment, error)
}

// PledgeConfirmer is the secondary target when no ticket payment matched.
type PledgeConfirmer interface {
	ConfirmPayment(ctx context.Context, transactionHash string) (*sponsor.Pledge, error)
}

// Observer supervises the payment stream subscription.
type Observer struct {
	stream   Stream
	payments PaymentConfirmer
	pledges  PledgeConfirmer
	logger   *slog.Logger

	mu    sync.RWMutex
	state State

	gotRecord atomic.Bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a chain observer.
func New(stream Stream, payments PaymentConfirmer, pledges PledgeConfirmer, logger *slog.Logger) *Observer {
	return &Observer{
		stream:   stream,
		payments: payments,
		pledges:  pledges,
		logger:   logger,
		state:    StateStopped,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the stream consumer. Call once.
func (o *Observer) Start() {
	go o.run()
}

// Stop shuts the observer down: the active subscription is closed, any
// pending reconnect is cancelled, and no further reconnects are attempted.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	select {
	case <-o.done:
	case <-time.After(stopTimeout):
		o.logger.Warn("observer did not stop in time")
	}
}

// State returns the current connection state.
func (o *Observer) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Observer) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Observer) run() {
	defer close(o.done)
	defer o.setState(StateStopped)

	delay := baseReconnectDelay
	for {
		select {
		case <-o.stop:
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-o.stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		o.gotRecord.Store(false)
		o.setState(StateConnected)
		o.logger.Info("payment stream opened", "cursor", "now")

		connectedAt := time.Now()
		err := o.stream.StreamPayments(ctx, "now", o.handleRecord)
		cancel()

		select {
		case <-o.stop:
			return
		default:
		}

		if streamWasHealthy(time.Since(connectedAt), o.gotRecord.Load()) {
			delay = baseReconnectDelay
		}

		o.setState(StateReconnecting)
		metrics.StreamReconnectsTotal.Inc()
		o.logger.Warn("payment stream lost, reconnecting", "error", err, "delay", delay)

		select {
		case <-o.stop:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// streamWasHealthy reports whether a finished stream connection resets the
// reconnect backoff. The stream API has no connected callback, so a
// connection that delivered records, or that outlived the base delay while
// idle, stands in for a successful subscription. Without the lifetime check
// a healthy-but-quiet stream that drops repeatedly would still escalate to
// the maximum delay.
func streamWasHealthy(lifetime time.Duration, deliveredRecords bool) bool {
	return deliveredRecords || lifetime >= baseReconnectDelay
}

// handleRecord dispatches one stream record. Most records on a public stream
// are unrelated to this platform; a not-found from the ledger is expected and
// silent. Nothing thrown here may kill the stream.
func (o *Observer) handleRecord(rec stellar.StreamRecord) {
	o.gotRecord.Store(true)

	if rec.Type != "payment" && rec.Type != "create_account" {
		metrics.StreamRecordsTotal.WithLabelValues("ignored").Inc()
		return
	}
	if rec.TransactionHash == "" {
		metrics.StreamRecordsTotal.WithLabelValues("ignored").Inc()
		return
	}

	ctx := context.Background()

	_, err := o.payments.Confirm(ctx, rec.TransactionHash, "")
	switch {
	case err == nil:
		metrics.StreamRecordsTotal.WithLabelValues("payment_confirmed").Inc()
		return
	case isUnmatched(err):
		// Fall through to sponsor pledges.
	default:
		metrics.StreamRecordsTotal.WithLabelValues("payment_error").Inc()
		o.logger.Error("payment confirmation failed for stream record",
			"tx_hash", rec.TransactionHash, "error", err)
		return
	}

	_, err = o.pledges.ConfirmPayment(ctx, rec.TransactionHash)
	switch {
	case err == nil:
		metrics.StreamRecordsTotal.WithLabelValues("pledge_confirmed").Inc()
	case errors.Is(err, sponsor.ErrPledgeNotFound), errors.Is(err, sponsor.ErrTransactionNoMemo):
		metrics.StreamRecordsTotal.WithLabelValues("unmatched").Inc()
	default:
		metrics.StreamRecordsTotal.WithLabelValues("pledge_error").Inc()
		o.logger.Error("pledge confirmation failed for stream record",
			"tx_hash", rec.TransactionHash, "error", err)
	}
}

// isUnmatched reports whether the ledger simply found nothing to confirm for
// this transaction.
func isUnmatched(err error) bool {
	return errors.Is(err, payment.ErrPaymentNotFound) ||
		errors.Is(err, payment.ErrTransactionNotOnNetwork) ||
		errors.Is(err, payment.ErrNoMemo)
}
