package realtime

import (
	"context"

	"github.com/lumenpass/lumenpass/internal/audit"
)

// NotifyingLogger decorates an audit logger so every settlement action also
// reaches WebSocket subscribers. The wrapped logger's error is returned
// unchanged; broadcasting never fails a settlement operation.
type NotifyingLogger struct {
	next audit.Logger
	hub  *Hub
}

// NewNotifyingLogger wraps next with hub broadcasting.
func NewNotifyingLogger(next audit.Logger, hub *Hub) *NotifyingLogger {
	return &NotifyingLogger{next: next, hub: hub}
}

func (l *NotifyingLogger) Log(ctx context.Context, entry *audit.Entry) error {
	l.hub.Broadcast(entry.Action, entry)
	return l.next.Log(ctx, entry)
}
