// Package event manages event records and their lifecycle.
//
// Events move draft -> published -> completed | cancelled. Publishing an
// event triggers escrow provisioning through a hook so this package stays
// unaware of the custodian. The encrypted escrow credential is excluded from
// default reads; only GetWithEscrowSecret returns it.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/idgen"
	"github.com/lumenpass/lumenpass/internal/stellar"
	"github.com/lumenpass/lumenpass/internal/validation"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrInvalidPrice     = errors.New("ticket price must be a positive amount")
	ErrUnsupportedAsset = errors.New("unsupported asset code")
	ErrInvalidStatus    = errors.New("unknown event status")
	ErrNotDraft         = errors.New("only draft events can be deleted")
)

// Event is a ticketed event with an optional per-event escrow account.
// EscrowSecretEncrypted is populated together with EscrowPublicKey and is
// nulled permanently once escrow is released.
type Event struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	OrganizerID           string    `json:"organizerId"`
	Status                Status    `json:"status"`
	TicketPrice           string    `json:"ticketPrice"`
	Currency              string    `json:"currency"`
	MaxAttendees          *int      `json:"maxAttendees,omitempty"`
	EscrowPublicKey       string    `json:"escrowPublicKey,omitempty"`
	EscrowSecretEncrypted string    `json:"-"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Store persists events. Get and List never return the encrypted escrow
// credential; GetWithEscrowSecret is the single opt-in path.
type Store interface {
	Create(ctx context.Context, e *Event) (*Event, error)
	Get(ctx context.Context, id string) (*Event, error)
	GetWithEscrowSecret(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, status Status) ([]*Event, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	SetEscrow(ctx context.Context, id, publicKey, secretEncrypted string) error
	ClearEscrowSecret(ctx context.Context, id string) error
}

// PublishHook runs after an event reaches published status.
type PublishHook func(ctx context.Context, eventID string) error

// Service manages the event lifecycle.
type Service struct {
	store     Store
	auditLog  audit.Logger
	logger    *slog.Logger
	onPublish PublishHook
}

// NewService creates an event service.
func NewService(store Store, auditLog audit.Logger, logger *slog.Logger) *Service {
	return &Service{store: store, auditLog: auditLog, logger: logger}
}

// WithPublishHook registers the hook invoked after publish. Returns the
// service for chaining.
func (s *Service) WithPublishHook(hook PublishHook) *Service {
	s.onPublish = hook
	return s
}

// CreateParams are the caller-supplied fields of a new event.
type CreateParams struct {
	Name         string
	OrganizerID  string
	TicketPrice  string
	Currency     string
	MaxAttendees *int
}

// Create persists a new draft event.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Event, error) {
	if !validation.IsValidAmount(p.TicketPrice) {
		return nil, ErrInvalidPrice
	}
	if !stellar.IsSupportedAsset(p.Currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, p.Currency)
	}
	if p.MaxAttendees != nil && *p.MaxAttendees <= 0 {
		return nil, errors.New("maxAttendees must be positive when set")
	}

	e := &Event{
		ID:           idgen.WithPrefix("evt_"),
		Name:         validation.SanitizeString(p.Name, 200),
		OrganizerID:  p.OrganizerID,
		Status:       StatusDraft,
		TicketPrice:  p.TicketPrice,
		Currency:     stellar.NormalizeAssetCode(p.Currency),
		MaxAttendees: p.MaxAttendees,
	}

	created, err := s.store.Create(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info("event created", "event_id", created.ID, "organizer_id", created.OrganizerID)
	return created, nil
}

// Get returns an event without its encrypted escrow credential.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.store.Get(ctx, id)
}

// GetWithEscrowSecret returns an event including the encrypted escrow
// credential. Callers must not serialize the result outward.
func (s *Service) GetWithEscrowSecret(ctx context.Context, id string) (*Event, error) {
	return s.store.GetWithEscrowSecret(ctx, id)
}

// List returns events, optionally filtered by status. An empty status lists
// everything.
func (s *Service) List(ctx context.Context, status Status) ([]*Event, error) {
	if status != "" && !IsValidStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return s.store.List(ctx, status)
}

// DeleteDraft removes an event that never left draft. Published and later
// events have on-chain state and cannot be deleted, only cancelled.
func (s *Service) DeleteDraft(ctx context.Context, id, callerID string) error {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != StatusDraft {
		return ErrNotDraft
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	s.logger.Info("draft event deleted", "event_id", id, "caller_id", callerID)
	return nil
}

// UpdateStatus applies a lifecycle transition requested by callerID. The
// transition table gates the change; publish additionally runs the escrow
// provisioning hook. A hook failure does not roll back the transition since
// escrow creation is idempotent and retriable.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, callerID string) (*Event, error) {
	if !IsValidStatus(next) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, next)
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(e.Status, next); err != nil {
		return nil, err
	}

	if err := s.store.UpdateStatus(ctx, id, next); err != nil {
		return nil, fmt.Errorf("update event status: %w", err)
	}
	e.Status = next

	if next == StatusCancelled {
		if err := s.auditLog.Log(ctx, &audit.Entry{
			Action:     audit.ActionEventCancelled,
			UserID:     callerID,
			ResourceID: id,
		}); err != nil {
			s.logger.Error("audit log failed", "action", audit.ActionEventCancelled, "error", err)
		}
	}

	if next == StatusPublished && s.onPublish != nil {
		if err := s.onPublish(ctx, id); err != nil {
			s.logger.Error("publish hook failed, escrow provisioning can be retried",
				"event_id", id, "error", err)
		}
	}

	s.logger.Info("event status updated", "event_id", id, "status", next, "caller_id", callerID)
	return e, nil
}
