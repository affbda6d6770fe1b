package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryLogger stores audit entries in memory for demo/testing.
type MemoryLogger struct {
	entries []*Entry
	nextID  int64
	mu      sync.RWMutex
}

// NewMemoryLogger creates an in-memory audit logger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(_ context.Context, entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	cp := *entry
	cp.ID = l.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	l.entries = append(l.entries, &cp)
	return nil
}

// Entries returns all stored audit entries (for testing).
func (l *MemoryLogger) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Entry, len(l.entries))
	copy(result, l.entries)
	return result
}

// ByAction returns stored entries matching action, oldest first (for testing).
func (l *MemoryLogger) ByAction(action string) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Entry
	for _, e := range l.entries {
		if e.Action == action {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result
}
