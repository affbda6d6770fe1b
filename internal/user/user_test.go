package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

var testAccountID = "G" + strings.Repeat("A", 55)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, slog.New(slog.DiscardHandler)), store
}

func TestRegisterWallet(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.RegisterWallet(context.Background(), "user_1", testAccountID)
	if err != nil {
		t.Fatalf("RegisterWallet: %v", err)
	}
	if u.StellarPublicKey != testAccountID {
		t.Errorf("wallet = %q, want %q", u.StellarPublicKey, testAccountID)
	}

	replacement := "G" + strings.Repeat("B", 55)
	u, err = svc.RegisterWallet(context.Background(), "user_1", replacement)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if u.StellarPublicKey != replacement {
		t.Errorf("wallet after re-register = %q, want %q", u.StellarPublicKey, replacement)
	}
}

func TestRegisterWalletRejectsMalformedAccounts(t *testing.T) {
	svc, _ := newTestService()

	for _, addr := range []string{"", "GABC", strings.Repeat("A", 56), "S" + strings.Repeat("A", 55)} {
		if _, err := svc.RegisterWallet(context.Background(), "user_1", addr); !errors.Is(err, ErrInvalidAccountID) {
			t.Errorf("RegisterWallet(%q) = %v, want ErrInvalidAccountID", addr, err)
		}
	}
}

func TestWalletAddress(t *testing.T) {
	svc, store := newTestService()
	store.Put(&User{ID: "user_1", StellarPublicKey: testAccountID})
	store.Put(&User{ID: "user_2"})

	addr, err := svc.WalletAddress(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("WalletAddress: %v", err)
	}
	if addr != testAccountID {
		t.Errorf("addr = %q, want %q", addr, testAccountID)
	}

	if _, err := svc.WalletAddress(context.Background(), "user_2"); !errors.Is(err, ErrNoWallet) {
		t.Errorf("WalletAddress without wallet = %v, want ErrNoWallet", err)
	}
	if _, err := svc.WalletAddress(context.Background(), "user_missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("WalletAddress for unknown user = %v, want ErrUserNotFound", err)
	}
}
