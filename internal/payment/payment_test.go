package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/stellar"
)

type fakeLedger struct {
	txs map[string]*stellar.Transaction
	ops map[string][]stellar.PaymentOperation
}

func (f *fakeLedger) GetTransaction(_ context.Context, hash string) (*stellar.Transaction, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return nil, stellar.ErrNotFound
	}
	return tx, nil
}

func (f *fakeLedger) GetTransactionOperations(_ context.Context, hash string) ([]stellar.PaymentOperation, error) {
	return f.ops[hash], nil
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	events   *event.MemoryStore
	ledger   *fakeLedger
	auditLog *audit.MemoryLogger
}

func newFixture() *fixture {
	store := NewMemoryStore()
	events := event.NewMemoryStore()
	ledger := &fakeLedger{
		txs: make(map[string]*stellar.Transaction),
		ops: make(map[string][]stellar.PaymentOperation),
	}
	auditLog := audit.NewMemoryLogger()
	svc := NewService(store, events, ledger, auditLog, slog.New(slog.DiscardHandler))
	return &fixture{svc: svc, store: store, events: events, ledger: ledger, auditLog: auditLog}
}

func (f *fixture) publishedEvent(id string, maxAttendees *int) {
	f.events.Put(&event.Event{
		ID:              id,
		Status:          event.StatusPublished,
		TicketPrice:     "10",
		Currency:        "XLM",
		MaxAttendees:    maxAttendees,
		EscrowPublicKey: "GESCROW",
	})
}

// chainPayment registers an on-chain transaction carrying one payment op.
func (f *fixture) chainPayment(hash, memo, to, amount string) {
	f.txs()[hash] = &stellar.Transaction{Hash: hash, Memo: memo, MemoType: "text", Successful: true}
	f.ledger.ops[hash] = []stellar.PaymentOperation{{
		Type:            "payment",
		To:              to,
		Amount:          amount,
		AssetType:       "native",
		TransactionHash: hash,
	}}
}

func (f *fixture) txs() map[string]*stellar.Transaction { return f.ledger.txs }

func TestCreateIntent(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.EscrowWallet != "GESCROW" {
		t.Errorf("escrow wallet = %q, want GESCROW", intent.EscrowWallet)
	}
	if intent.Amount != "10" || intent.Currency != "XLM" {
		t.Errorf("intent = %+v", intent)
	}
	if intent.Memo != intent.PaymentID {
		t.Errorf("memo %q must equal payment id %q", intent.Memo, intent.PaymentID)
	}

	p, err := f.svc.GetByID(context.Background(), intent.PaymentID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
}

func TestCreateIntentEventGates(t *testing.T) {
	f := newFixture()
	f.events.Put(&event.Event{ID: "evt_c", Status: event.StatusCancelled, TicketPrice: "10", Currency: "XLM"})
	f.events.Put(&event.Event{ID: "evt_d", Status: event.StatusDraft, TicketPrice: "10", Currency: "XLM"})

	if _, err := f.svc.CreateIntent(context.Background(), "evt_c", "user_1"); !errors.Is(err, ErrEventSuspended) {
		t.Errorf("cancelled event = %v, want ErrEventSuspended", err)
	}
	if _, err := f.svc.CreateIntent(context.Background(), "evt_d", "user_1"); !errors.Is(err, ErrEventNotOpen) {
		t.Errorf("draft event = %v, want ErrEventNotOpen", err)
	}
	if _, err := f.svc.CreateIntent(context.Background(), "evt_missing", "user_1"); !errors.Is(err, event.ErrEventNotFound) {
		t.Errorf("missing event = %v, want ErrEventNotFound", err)
	}
}

func TestCreateIntentRequiresEscrow(t *testing.T) {
	f := newFixture()
	f.events.Put(&event.Event{ID: "evt_1", Status: event.StatusPublished, TicketPrice: "10", Currency: "XLM"})

	if _, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_1"); !errors.Is(err, ErrNoEscrowAccount) {
		t.Errorf("CreateIntent without escrow = %v, want ErrNoEscrowAccount", err)
	}
}

func TestCreateIntentCapacity(t *testing.T) {
	f := newFixture()
	maxAttendees := 2
	f.publishedEvent("evt_1", &maxAttendees)

	for i := 0; i < 2; i++ {
		if _, err := f.svc.CreateIntent(context.Background(), "evt_1", fmt.Sprintf("user_%d", i)); err != nil {
			t.Fatalf("intent %d: %v", i, err)
		}
	}

	if _, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_late"); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("intent past capacity = %v, want ErrCapacityExceeded", err)
	}
}

func TestCreateIntentDuplicate(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	if _, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_1"); err != nil {
		t.Fatalf("first intent: %v", err)
	}
	if _, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_1"); !errors.Is(err, ErrDuplicatePayment) {
		t.Errorf("second intent = %v, want ErrDuplicatePayment", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	f.chainPayment("txhash1", intent.PaymentID, "GESCROW", "10.0000000")

	p, err := f.svc.Confirm(context.Background(), "txhash1", "user_1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if p.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", p.Status)
	}
	if p.TransactionHash != "txhash1" {
		t.Errorf("transaction hash = %q, want txhash1", p.TransactionHash)
	}
}

func TestConfirmIdempotentViaNotFound(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	f.chainPayment("txhash1", intent.PaymentID, "GESCROW", "10")

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("second confirm = %v, want ErrPaymentNotFound (nothing pending)", err)
	}
}

func TestConfirmAuthorization(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	f.chainPayment("txhash1", intent.PaymentID, "GESCROW", "10")

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_other"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("confirm by non-owner = %v, want ErrNotOwner", err)
	}

	// The observer confirms with no caller; ownership is skipped.
	if _, err := f.svc.Confirm(context.Background(), "txhash1", ""); err != nil {
		t.Errorf("confirm without caller = %v, want nil", err)
	}
}

func TestConfirmTransactionNotOnNetwork(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.Confirm(context.Background(), "missing", "user_1"); !errors.Is(err, ErrTransactionNotOnNetwork) {
		t.Errorf("Confirm = %v, want ErrTransactionNotOnNetwork", err)
	}
}

func TestConfirmNoMemo(t *testing.T) {
	f := newFixture()
	f.txs()["txhash1"] = &stellar.Transaction{Hash: "txhash1"}

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); !errors.Is(err, ErrNoMemo) {
		t.Errorf("Confirm = %v, want ErrNoMemo", err)
	}
}

func TestConfirmDestinationMismatch(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	f.chainPayment("txhash1", intent.PaymentID, "GSOMEWHERE_ELSE", "10")

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); !errors.Is(err, ErrDestinationMismatch) {
		t.Fatalf("Confirm = %v, want ErrDestinationMismatch", err)
	}
	assertFailed(t, f, intent.PaymentID, "destination mismatch")
}

func TestConfirmAssetMismatch(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	f.txs()["txhash1"] = &stellar.Transaction{Hash: "txhash1", Memo: intent.PaymentID}
	f.ledger.ops["txhash1"] = []stellar.PaymentOperation{{
		Type: "payment", To: "GESCROW", Amount: "10",
		AssetType: "credit_alphanum4", AssetCode: "EURC",
	}}

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("Confirm = %v, want ErrAssetMismatch", err)
	}
	assertFailed(t, f, intent.PaymentID, "asset mismatch")
}

func TestConfirmAmountMismatch(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	f.chainPayment("txhash1", intent.PaymentID, "GESCROW", "9.9999000")

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("Confirm = %v, want ErrAmountMismatch", err)
	}
	assertFailed(t, f, intent.PaymentID, "amount mismatch")
}

func TestConfirmAmountTolerance(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	// One stroop under the expected amount is within tolerance.
	f.chainPayment("txhash1", intent.PaymentID, "GESCROW", "9.9999999")

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); err != nil {
		t.Errorf("Confirm within tolerance = %v, want nil", err)
	}
}

func TestConfirmNoOperations(t *testing.T) {
	f := newFixture()
	f.publishedEvent("evt_1", nil)

	intent, _ := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	f.txs()["txhash1"] = &stellar.Transaction{Hash: "txhash1", Memo: intent.PaymentID}

	if _, err := f.svc.Confirm(context.Background(), "txhash1", "user_1"); !errors.Is(err, ErrNoPaymentOperations) {
		t.Fatalf("Confirm = %v, want ErrNoPaymentOperations", err)
	}
	assertFailed(t, f, intent.PaymentID, "no payment operations")
}

func assertFailed(t *testing.T, f *fixture, paymentID, reason string) {
	t.Helper()

	p, err := f.svc.GetByID(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != StatusFailed {
		t.Errorf("status = %s, want failed", p.Status)
	}
	if p.FailureReason != reason {
		t.Errorf("failure reason = %q, want %q", p.FailureReason, reason)
	}

	entries := f.auditLog.ByAction(audit.ActionPaymentFailed)
	if len(entries) != 1 {
		t.Fatalf("audit entries for %s = %d, want 1", audit.ActionPaymentFailed, len(entries))
	}
	if entries[0].Meta["reason"] != reason {
		t.Errorf("audit reason = %v, want %q", entries[0].Meta["reason"], reason)
	}
}

func TestConfirmEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture()
	f.publishedEvent("evt_1", nil)
	intent, err := f.svc.CreateIntent(context.Background(), "evt_1", "user_1")
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	f.chainPayment("hash1", intent.PaymentID, "GESCROW", "10")

	if _, err := f.svc.Confirm(context.Background(), "hash1", "user_1"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	var found bool
	for _, s := range recorder.Ended() {
		if s.Name() == "payment.Confirm" {
			found = true
		}
	}
	if !found {
		t.Error("no payment.Confirm span was recorded")
	}
}
