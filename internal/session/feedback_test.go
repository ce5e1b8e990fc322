package session

import (
	"testing"

	"github.com/dialcoach/dialcoach/internal/outcome"
)

func TestFeedback_RotatesPerOutcome(t *testing.T) {
	t.Parallel()

	f := newFeedback()

	seen := make(map[string]bool)
	for i := 0; i < len(stayedMessages); i++ {
		msg := f.messageFor(outcome.OutcomeStayed)
		if seen[msg] {
			t.Errorf("message %q repeated before all variants were used", msg)
		}
		seen[msg] = true
	}
	// The rotation wraps around to the first variant.
	if msg := f.messageFor(outcome.OutcomeStayed); msg != stayedMessages[0] {
		t.Errorf("after full rotation got %q, want %q", msg, stayedMessages[0])
	}

	// The two outcome rotations are independent.
	if msg := f.messageFor(outcome.OutcomeLeft); msg != leftMessages[0] {
		t.Errorf("first left message = %q, want %q", msg, leftMessages[0])
	}
}
