// Package user tracks platform users and their registered payout wallets.
//
// Identity is established upstream; this package only maps a verified user id
// to the Stellar account that refunds are sent to.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenpass/lumenpass/internal/validation"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNoWallet         = errors.New("user has no registered wallet")
	ErrInvalidAccountID = errors.New("invalid stellar account id")
)

// User is a platform user known to the settlement core.
type User struct {
	ID               string    `json:"id"`
	StellarPublicKey string    `json:"stellarPublicKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Store persists users.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	SetWallet(ctx context.Context, id, publicKey string) (*User, error)
}

// Service manages user wallet registrations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a user service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.Get(ctx, id)
}

// RegisterWallet records the Stellar account refunds for this user are sent
// to. Registering again replaces the previous wallet.
func (s *Service) RegisterWallet(ctx context.Context, id, publicKey string) (*User, error) {
	if !validation.IsValidAccountID(publicKey) {
		return nil, ErrInvalidAccountID
	}

	u, err := s.store.SetWallet(ctx, id, publicKey)
	if err != nil {
		return nil, fmt.Errorf("register wallet for %s: %w", id, err)
	}

	s.logger.Info("wallet registered", "user_id", id, "public_key", publicKey)
	return u, nil
}

// WalletAddress returns the user's registered payout account.
// Returns ErrNoWallet when the user exists but never registered one.
func (s *Service) WalletAddress(ctx context.Context, id string) (string, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if u.StellarPublicKey == "" {
		return "", ErrNoWallet
	}
	return u.StellarPublicKey, nil
}
