package sponsor

import (
	"context"
	"errors"
	"log/slog"
	"testing"

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
	svc    *Service
	events *event.MemoryStore
	ledger *fakeLedger
}

func newFixture(sponsorWallet string) *fixture {
	f := &fixture{
		events: event.NewMemoryStore(),
		ledger: &fakeLedger{
			txs: make(map[string]*stellar.Transaction),
			ops: make(map[string][]stellar.PaymentOperation),
		},
	}
	f.events.Put(&event.Event{ID: "evt_1", Status: event.StatusPublished})
	f.svc = NewService(NewMemoryStore(), f.events, f.ledger, audit.NewMemoryLogger(),
		slog.New(slog.DiscardHandler), sponsorWallet)
	return f
}

func (f *fixture) pledge(t *testing.T) *PledgeIntent {
	t.Helper()

	tier, err := f.svc.CreateTier(context.Background(), "evt_1", "Gold", "100", "XLM")
	if err != nil {
		t.Fatalf("CreateTier: %v", err)
	}
	intent, err := f.svc.CreatePledge(context.Background(), tier.ID, "sponsor_1")
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	return intent
}

func TestCreatePledge(t *testing.T) {
	f := newFixture("GSPONSOR")

	intent := f.pledge(t)
	if intent.Destination != "GSPONSOR" {
		t.Errorf("destination = %q, want GSPONSOR", intent.Destination)
	}
	if intent.Amount != "100" || intent.Currency != "XLM" {
		t.Errorf("intent = %+v", intent)
	}
	if intent.Memo != intent.PledgeID {
		t.Errorf("memo %q must equal pledge id %q", intent.Memo, intent.PledgeID)
	}
}

func TestCreatePledgeWithoutWallet(t *testing.T) {
	f := newFixture("")

	tier, err := f.svc.CreateTier(context.Background(), "evt_1", "Gold", "100", "XLM")
	if err != nil {
		t.Fatalf("CreateTier: %v", err)
	}
	if _, err := f.svc.CreatePledge(context.Background(), tier.ID, "sponsor_1"); !errors.Is(err, ErrNoSponsorWallet) {
		t.Errorf("CreatePledge = %v, want ErrNoSponsorWallet", err)
	}
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture("GSPONSOR")
	intent := f.pledge(t)

	f.ledger.txs["hash1"] = &stellar.Transaction{Hash: "hash1", Memo: intent.PledgeID}
	f.ledger.ops["hash1"] = []stellar.PaymentOperation{{
		Type: "payment", To: "GSPONSOR", Amount: "100", AssetType: "native",
	}}

	p, err := f.svc.ConfirmPayment(context.Background(), "hash1")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if p.Status != PledgeConfirmed || p.TransactionHash != "hash1" {
		t.Errorf("pledge = %+v", p)
	}
}

func TestConfirmPaymentOverfundedAccepted(t *testing.T) {
	f := newFixture("GSPONSOR")
	intent := f.pledge(t)

	f.ledger.txs["hash1"] = &stellar.Transaction{Hash: "hash1", Memo: intent.PledgeID}
	f.ledger.ops["hash1"] = []stellar.PaymentOperation{{
		Type: "payment", To: "GSPONSOR", Amount: "150", AssetType: "native",
	}}

	if _, err := f.svc.ConfirmPayment(context.Background(), "hash1"); err != nil {
		t.Errorf("overfunded pledge = %v, want nil", err)
	}
}

func TestConfirmPaymentUnderfunded(t *testing.T) {
	f := newFixture("GSPONSOR")
	intent := f.pledge(t)

	f.ledger.txs["hash1"] = &stellar.Transaction{Hash: "hash1", Memo: intent.PledgeID}
	f.ledger.ops["hash1"] = []stellar.PaymentOperation{{
		Type: "payment", To: "GSPONSOR", Amount: "99.9999990", AssetType: "native",
	}}

	if _, err := f.svc.ConfirmPayment(context.Background(), "hash1"); !errors.Is(err, ErrPledgeUnderfunded) {
		t.Errorf("ConfirmPayment = %v, want ErrPledgeUnderfunded", err)
	}
}

func TestConfirmPaymentUnknownMemo(t *testing.T) {
	f := newFixture("GSPONSOR")

	f.ledger.txs["hash1"] = &stellar.Transaction{Hash: "hash1", Memo: "plg_unknown"}

	if _, err := f.svc.ConfirmPayment(context.Background(), "hash1"); !errors.Is(err, ErrPledgeNotFound) {
		t.Errorf("ConfirmPayment = %v, want ErrPledgeNotFound", err)
	}
}

func TestConfirmPaymentMissingTransaction(t *testing.T) {
	f := newFixture("GSPONSOR")

	if _, err := f.svc.ConfirmPayment(context.Background(), "missing"); !errors.Is(err, ErrPledgeNotFound) {
		t.Errorf("ConfirmPayment = %v, want ErrPledgeNotFound", err)
	}
}

func TestConfirmPaymentWrongDestination(t *testing.T) {
	f := newFixture("GSPONSOR")
	intent := f.pledge(t)

	f.ledger.txs["hash1"] = &stellar.Transaction{Hash: "hash1", Memo: intent.PledgeID}
	f.ledger.ops["hash1"] = []stellar.PaymentOperation{{
		Type: "payment", To: "GELSEWHERE", Amount: "100", AssetType: "native",
	}}

	if _, err := f.svc.ConfirmPayment(context.Background(), "hash1"); !errors.Is(err, ErrWrongDestination) {
		t.Errorf("ConfirmPayment = %v, want ErrWrongDestination", err)
	}
}
