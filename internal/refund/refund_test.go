package refund

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/payment"
)

type fakePayments struct {
	confirmed []*payment.Payment
	listCalls int
	refunded  []string
}

func (f *fakePayments) ListConfirmedByEvent(_ context.Context, _ string) ([]*payment.Payment, error) {
	f.listCalls++
	return f.confirmed, nil
}

func (f *fakePayments) MarkRefunded(_ context.Context, id string) error {
	f.refunded = append(f.refunded, id)
	return nil
}

type fakeTickets struct {
	refundedOwners []string
}

func (f *fakeTickets) MarkRefundedForOwner(_ context.Context, _, ownerID string) error {
	f.refundedOwners = append(f.refundedOwners, ownerID)
	return nil
}

type fakeWallets struct {
	wallets map[string]string
}

func (f *fakeWallets) WalletAddress(_ context.Context, userID string) (string, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return w, nil
}

type fakeDecryptor struct {
	secret string
	err    error
}

func (f *fakeDecryptor) DecryptEscrowSecret(string) (string, error) {
	return f.secret, f.err
}

type fakeGateway struct {
	failFor  map[string]error
	hashes   map[string]string
	sent     []string
	lastFrom string
}

func (f *fakeGateway) SendPayment(_ context.Context, sourceSecret, destination, _, _, _ string) (string, error) {
	f.lastFrom = sourceSecret
	if err, ok := f.failFor[destination]; ok {
		return "", err
	}
	f.sent = append(f.sent, destination)
	if h, ok := f.hashes[destination]; ok {
		return h, nil
	}
	return "tx-" + destination, nil
}

type fixture struct {
	coord    *Coordinator
	events   *event.MemoryStore
	payments *fakePayments
	tickets  *fakeTickets
	wallets  *fakeWallets
	gateway  *fakeGateway
	auditLog *audit.MemoryLogger
}

func newFixture() *fixture {
	f := &fixture{
		events:   event.NewMemoryStore(),
		payments: &fakePayments{},
		tickets:  &fakeTickets{},
		wallets:  &fakeWallets{wallets: make(map[string]string)},
		gateway:  &fakeGateway{failFor: make(map[string]error), hashes: make(map[string]string)},
		auditLog: audit.NewMemoryLogger(),
	}
	f.coord = NewCoordinator(f.events, f.payments, f.tickets, f.wallets,
		&fakeDecryptor{secret: "SESCROW"}, f.gateway, f.auditLog, slog.New(slog.DiscardHandler))
	return f
}

func (f *fixture) cancelledEvent() {
	f.events.Put(&event.Event{
		ID:                    "evt_1",
		Status:                event.StatusCancelled,
		EscrowPublicKey:       "GESCROW",
		EscrowSecretEncrypted: "iv:tag:ct",
	})
}

func confirmed(id, userID, amount string) *payment.Payment {
	return &payment.Payment{
		ID:       id,
		EventID:  "evt_1",
		UserID:   userID,
		Amount:   amount,
		Currency: "XLM",
		Status:   payment.StatusConfirmed,
	}
}

func TestRefundEventOrderAndIsolation(t *testing.T) {
	f := newFixture()
	f.cancelledEvent()
	f.payments.confirmed = []*payment.Payment{
		confirmed("pay_1", "user_1", "10"),
		confirmed("pay_2", "user_2", "10"),
	}
	f.wallets.wallets["user_1"] = "GWALLET1"
	f.wallets.wallets["user_2"] = "GWALLET2"
	f.gateway.failFor["GWALLET1"] = errors.New("tx_insufficient_balance")
	f.gateway.hashes["GWALLET2"] = "tx-success"

	results, err := f.coord.RefundEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("RefundEvent: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	if results[0].PaymentID != "pay_1" || results[0].Success {
		t.Errorf("results[0] = %+v, want pay_1 failure", results[0])
	}
	if results[0].Error == "" {
		t.Error("failed result carries no error")
	}
	if results[1].PaymentID != "pay_2" || !results[1].Success {
		t.Errorf("results[1] = %+v, want pay_2 success", results[1])
	}
	if results[1].TransactionHash != "tx-success" {
		t.Errorf("results[1].TransactionHash = %q, want tx-success", results[1].TransactionHash)
	}

	if len(f.payments.refunded) != 1 || f.payments.refunded[0] != "pay_2" {
		t.Errorf("payments marked refunded = %v, want [pay_2]", f.payments.refunded)
	}
	if len(f.tickets.refundedOwners) != 1 || f.tickets.refundedOwners[0] != "user_2" {
		t.Errorf("ticket owners refunded = %v, want [user_2]", f.tickets.refundedOwners)
	}
	if f.gateway.lastFrom != "SESCROW" {
		t.Errorf("refunds sent from %q, want decrypted escrow secret", f.gateway.lastFrom)
	}
}

func TestRefundEventRequiresEscrowBeforeReadingPayments(t *testing.T) {
	f := newFixture()
	f.events.Put(&event.Event{ID: "evt_1", Status: event.StatusCancelled})

	if _, err := f.coord.RefundEvent(context.Background(), "evt_1"); !errors.Is(err, ErrNoEscrow) {
		t.Fatalf("RefundEvent = %v, want ErrNoEscrow", err)
	}
	if f.payments.listCalls != 0 {
		t.Error("payments were read despite missing escrow")
	}
}

func TestRefundEventRequiresCancelled(t *testing.T) {
	f := newFixture()
	f.events.Put(&event.Event{
		ID: "evt_1", Status: event.StatusPublished,
		EscrowPublicKey: "GESCROW", EscrowSecretEncrypted: "iv:tag:ct",
	})

	if _, err := f.coord.RefundEvent(context.Background(), "evt_1"); !errors.Is(err, ErrEventNotCancelled) {
		t.Errorf("RefundEvent = %v, want ErrEventNotCancelled", err)
	}
}

func TestRefundEventNoConfirmedPayments(t *testing.T) {
	f := newFixture()
	f.cancelledEvent()

	results, err := f.coord.RefundEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("RefundEvent: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("results = %v, want empty non-nil list", results)
	}
}

func TestRefundItemCorruptAmount(t *testing.T) {
	f := newFixture()
	f.cancelledEvent()
	f.payments.confirmed = []*payment.Payment{confirmed("pay_1", "user_1", "0")}
	f.wallets.wallets["user_1"] = "GWALLET1"

	results, err := f.coord.RefundEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("RefundEvent: %v", err)
	}
	if results[0].Success {
		t.Error("zero-amount refund succeeded")
	}
	if len(f.gateway.sent) != 0 {
		t.Error("zero-amount refund reached the chain")
	}
}

func TestRefundItemMissingWallet(t *testing.T) {
	f := newFixture()
	f.cancelledEvent()
	f.payments.confirmed = []*payment.Payment{confirmed("pay_1", "user_1", "10")}

	results, err := f.coord.RefundEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("RefundEvent: %v", err)
	}
	if results[0].Success {
		t.Error("refund without wallet succeeded")
	}
	if len(f.gateway.sent) != 0 {
		t.Error("refund without wallet reached the chain")
	}

	failures := f.auditLog.ByAction(audit.ActionRefundFailed)
	if len(failures) != 1 {
		t.Errorf("REFUND_FAILED entries = %d, want 1", len(failures))
	}
}

func TestRefundEventEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture()
	f.cancelledEvent()
	f.payments.confirmed = []*payment.Payment{confirmed("pay_1", "user_1", "10")}
	f.wallets.wallets["user_1"] = "GWALLET1"

	if _, err := f.coord.RefundEvent(context.Background(), "evt_1"); err != nil {
		t.Fatalf("RefundEvent: %v", err)
	}

	var found bool
	for _, s := range recorder.Ended() {
		if s.Name() == "refund.RefundEvent" {
			found = true
		}
	}
	if !found {
		t.Error("no refund.RefundEvent span was recorded")
	}
}

func TestRefundEventSummaryAudit(t *testing.T) {
	f := newFixture()
	f.cancelledEvent()
	f.payments.confirmed = []*payment.Payment{
		confirmed("pay_1", "user_1", "10"),
		confirmed("pay_2", "user_2", "10"),
	}
	f.wallets.wallets["user_1"] = "GWALLET1"
	f.wallets.wallets["user_2"] = "GWALLET2"
	f.gateway.failFor["GWALLET1"] = errors.New("boom")

	if _, err := f.coord.RefundEvent(context.Background(), "evt_1"); err != nil {
		t.Fatalf("RefundEvent: %v", err)
	}

	summaries := f.auditLog.ByAction(audit.ActionRefundEventCompleted)
	if len(summaries) != 1 {
		t.Fatalf("summary entries = %d, want 1", len(summaries))
	}
	if summaries[0].Meta["succeeded"] != 1 || summaries[0].Meta["failed"] != 1 {
		t.Errorf("summary meta = %v, want succeeded=1 failed=1", summaries[0].Meta)
	}
}
