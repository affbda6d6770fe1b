// Package audit provides an append-only audit trail for settlement actions.
//
// The trail is a write-only sink: the core emits entries and never reads them
// back on any decision path. Audit failures are logged and swallowed so a
// broken sink can never block a settlement operation.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Well-known audit actions emitted by the settlement core.
const (
	ActionPaymentIntentCreated = "PAYMENT_INTENT_CREATED"
	ActionPaymentConfirmed     = "PAYMENT_CONFIRMED"
	ActionPaymentFailed        = "PAYMENT_FAILED"
	ActionEscrowCreated        = "ESCROW_CREATED"
	ActionEscrowReleased       = "ESCROW_RELEASED"
	ActionEscrowCancellation   = "ESCROW_CANCELLATION_REPORTED"
	ActionEventCancelled       = "EVENT_CANCELLED"
	ActionRefundIssued         = "REFUND_ISSUED"
	ActionRefundFailed         = "REFUND_FAILED"
	ActionRefundEventCompleted = "REFUND_EVENT_COMPLETED"
	ActionTicketIssued         = "TICKET_ISSUED"
	ActionTicketRedeemed       = "TICKET_REDEEMED"

	ActionSponsorPledgeConfirmed = "SPONSOR_PLEDGE_CONFIRMED"
)

// SystemUserID is recorded for automated actions with no human caller.
const SystemUserID = "system"

// Entry is a single audit record.
type Entry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	UserID     string         `json:"userId"`
	ResourceID string         `json:"resourceId"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Logger persists audit entries.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
}

// metaJSON renders the meta map for storage; nil becomes an empty object.
func metaJSON(meta map[string]any) []byte {
	if meta == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return []byte("{}")
	}
	return b
}
