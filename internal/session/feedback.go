package session

import (
	"sync"

	"github.com/dialcoach/dialcoach/internal/outcome"
)

// stayedMessages are shown after a call where the prospect stayed on the line.
var stayedMessages = []string{
	"Great hook — the prospect stayed on the line.",
	"That opener landed. Keep the same energy on the next call.",
	"Nice work getting past the critical first seconds.",
}

// leftMessages are shown after a call where the prospect hung up early.
var leftMessages = []string{
	"They dropped early. Try the recommended opener on the next call.",
	"Tough one — the first ten seconds decide most calls. Lead with the suggestion below.",
	"No luck this time. A different opener may land better.",
}

// feedback hands out coaching messages, rotating through the variants per
// outcome so back-to-back calls don't repeat the same line.
type feedback struct {
	mu     sync.Mutex
	stayed int
	left   int
}

func newFeedback() *feedback {
	return &feedback{}
}

func (f *feedback) messageFor(oc outcome.Outcome) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if oc == outcome.OutcomeStayed {
		msg := stayedMessages[f.stayed%len(stayedMessages)]
		f.stayed++
		return msg
	}
	msg := leftMessages[f.left%len(leftMessages)]
	f.left++
	return msg
}
