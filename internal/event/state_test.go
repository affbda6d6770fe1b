package event

import (
	"strings"
	"testing"
)

func TestValidateTransitionAllowedEdges(t *testing.T) {
	allowed := []struct {
		from, to Status
	}{
		{StatusDraft, StatusPublished},
		{StatusPublished, StatusCompleted},
		{StatusPublished, StatusCancelled},
	}
	for _, tc := range allowed {
		if err := ValidateTransition(tc.from, tc.to); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil", tc.from, tc.to, err)
		}
	}
}

func TestValidateTransitionRejectsEverythingElse(t *testing.T) {
	states := []Status{StatusDraft, StatusPublished, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusPublished}:     true,
		{StatusPublished, StatusCompleted}: true,
		{StatusPublished, StatusCancelled}: true,
	}

	for _, from := range states {
		for _, to := range states {
			if allowed[[2]Status{from, to}] {
				continue
			}
			err := ValidateTransition(from, to)
			if err == nil {
				t.Errorf("ValidateTransition(%s, %s) = nil, want error", from, to)
				continue
			}
			if !strings.Contains(err.Error(), string(from)) || !strings.Contains(err.Error(), string(to)) {
				t.Errorf("error %q does not name both states", err.Error())
			}
		}
	}
}

func TestValidateTransitionSelfTransition(t *testing.T) {
	if err := ValidateTransition(StatusPublished, StatusPublished); err == nil {
		t.Error("self-transition accepted, want error")
	}
}

func TestValidateTransitionReverse(t *testing.T) {
	if err := ValidateTransition(StatusPublished, StatusDraft); err == nil {
		t.Error("reverse transition accepted, want error")
	}
}

func TestValidateTransitionTerminalWording(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		err := ValidateTransition(terminal, StatusPublished)
		if err == nil {
			t.Fatalf("transition out of %s accepted", terminal)
		}
		if !strings.Contains(err.Error(), "terminal") {
			t.Errorf("error %q should state that %s is terminal", err.Error(), terminal)
		}
	}
}

func TestValidateTransitionUnknownState(t *testing.T) {
	err := ValidateTransition(Status("archived"), StatusPublished)
	if err == nil {
		t.Error("unknown state accepted, want error")
	}
	if strings.Contains(err.Error(), "terminal") {
		t.Errorf("unknown state error %q should not claim terminal", err.Error())
	}
}
