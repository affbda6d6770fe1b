package event

import "fmt"

// Status is an event lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the fixed lifecycle table. Completed and cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPublished},
	StatusPublished: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// TransitionError reports a rejected lifecycle transition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	allowed, known := transitions[e.From]
	if known && len(allowed) == 0 {
		return fmt.Sprintf("cannot transition from %s to %s: %s is a terminal state", e.From, e.To, e.From)
	}
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// IsValidStatus reports whether s is a known lifecycle state.
func IsValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// ValidateTransition checks whether current may move to next. Every
// externally requested status change must pass through this gate before
// being persisted.
func ValidateTransition(current, next Status) error {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return nil
		}
	}
	return &TransitionError{From: current, To: next}
}
