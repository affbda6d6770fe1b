package observer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/lumenpass/lumenpass/internal/payment"
	"github.com/lumenpass/lumenpass/internal/sponsor"
	"github.com/lumenpass/lumenpass/internal/stellar"
)

type fakeConfirmer struct {
	calls []string
	err   error
}

func (f *fakeConfirmer) Confirm(_ context.Context, hash, _ string) (*payment.Payment, error) {
	f.calls = append(f.calls, hash)
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Payment{ID: "pay_1", Status: payment.StatusConfirmed}, nil
}

type fakePledges struct {
	calls []string
	err   error
}

func (f *fakePledges) ConfirmPayment(_ context.Context, hash string) (*sponsor.Pledge, error) {
	f.calls = append(f.calls, hash)
	if f.err != nil {
		return nil, f.err
	}
	return &sponsor.Pledge{ID: "plg_1", Status: sponsor.PledgeConfirmed}, nil
}

type blockingStream struct{}

func (blockingStream) StreamPayments(ctx context.Context, _ string, _ func(stellar.StreamRecord)) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestObserver(payments PaymentConfirmer, pledges PledgeConfirmer) *Observer {
	return New(blockingStream{}, payments, pledges, slog.New(slog.DiscardHandler))
}

func TestHandleRecordIgnoresIrrelevantRecords(t *testing.T) {
	payments := &fakeConfirmer{}
	pledges := &fakePledges{}
	o := newTestObserver(payments, pledges)

	o.handleRecord(stellar.StreamRecord{Type: "manage_offer", TransactionHash: "hash1"})
	o.handleRecord(stellar.StreamRecord{Type: "payment", TransactionHash: ""})

	if len(payments.calls) != 0 || len(pledges.calls) != 0 {
		t.Errorf("irrelevant records dispatched: payments=%v pledges=%v", payments.calls, pledges.calls)
	}
}

func TestHandleRecordConfirmsPayment(t *testing.T) {
	payments := &fakeConfirmer{}
	pledges := &fakePledges{}
	o := newTestObserver(payments, pledges)

	o.handleRecord(stellar.StreamRecord{Type: "payment", TransactionHash: "hash1"})

	if len(payments.calls) != 1 || payments.calls[0] != "hash1" {
		t.Errorf("payment calls = %v, want [hash1]", payments.calls)
	}
	if len(pledges.calls) != 0 {
		t.Errorf("pledge fall-through ran after a successful payment confirmation")
	}
}

func TestHandleRecordFallsThroughToPledges(t *testing.T) {
	payments := &fakeConfirmer{err: payment.ErrPaymentNotFound}
	pledges := &fakePledges{err: sponsor.ErrPledgeNotFound}
	o := newTestObserver(payments, pledges)

	o.handleRecord(stellar.StreamRecord{Type: "payment", TransactionHash: "hash1"})

	if len(pledges.calls) != 1 || pledges.calls[0] != "hash1" {
		t.Errorf("pledge calls = %v, want [hash1]", pledges.calls)
	}
}

func TestHandleRecordAcceptsCreateAccount(t *testing.T) {
	payments := &fakeConfirmer{err: payment.ErrTransactionNotOnNetwork}
	pledges := &fakePledges{err: sponsor.ErrPledgeNotFound}
	o := newTestObserver(payments, pledges)

	o.handleRecord(stellar.StreamRecord{Type: "create_account", TransactionHash: "hash1"})

	if len(payments.calls) != 1 {
		t.Errorf("payment calls = %v, want one call", payments.calls)
	}
}

func TestHandleRecordSwallowsHardErrors(t *testing.T) {
	payments := &fakeConfirmer{err: errors.New("storage down")}
	pledges := &fakePledges{}
	o := newTestObserver(payments, pledges)

	// Must not panic and must not fall through.
	o.handleRecord(stellar.StreamRecord{Type: "payment", TransactionHash: "hash1"})

	if len(pledges.calls) != 0 {
		t.Error("fell through to pledges on a non-not-found error")
	}
}

func TestBackoffResetAfterHealthyStream(t *testing.T) {
	cases := []struct {
		name     string
		lifetime time.Duration
		records  bool
		want     bool
	}{
		{"short-lived with records", time.Second, true, true},
		{"long-lived but idle", baseReconnectDelay + time.Second, false, true},
		{"short-lived and idle", time.Second, false, false},
		{"immediate failure", 0, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := streamWasHealthy(tc.lifetime, tc.records); got != tc.want {
				t.Errorf("streamWasHealthy(%v, %v) = %v, want %v", tc.lifetime, tc.records, got, tc.want)
			}
		})
	}
}

func TestStopClosesSubscription(t *testing.T) {
	o := newTestObserver(&fakeConfirmer{}, &fakePledges{})
	o.Start()

	// Give the run loop a moment to open the stream.
	deadline := time.Now().Add(time.Second)
	for o.State() != StateConnected && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if o.State() != StateConnected {
		t.Fatalf("state = %s, want connected", o.State())
	}

	done := make(chan struct{})
	go func() {
		o.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if o.State() != StateStopped {
		t.Errorf("state after Stop = %s, want stopped", o.State())
	}
}
