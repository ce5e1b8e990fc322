// Package outcome converts raw end-of-call signals into a binary success
// label: the prospect either stayed on the call or left.
package outcome

import "time"

// Outcome is the binary call result.
type Outcome string

const (
	// OutcomeStayed means the prospect remained on the call and responded.
	OutcomeStayed Outcome = "stayed"

	// OutcomeLeft means the prospect hung up or never responded.
	OutcomeLeft Outcome = "left"
)

// IsValid reports whether o is a recognised outcome.
func (o Outcome) IsValid() bool {
	return o == OutcomeStayed || o == OutcomeLeft
}

// defaultMinStayDuration is the minimum call length for a call to count as
// anything other than an immediate hangup.
const defaultMinStayDuration = 10 * time.Second

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithMinStayDuration overrides the minimum call duration below which every
// call is classified as [OutcomeLeft]. Zero disables the duration gate so the
// prospect response alone decides. Negative values are ignored. Default: 10s.
func WithMinStayDuration(d time.Duration) Option {
	return func(c *Classifier) {
		if d >= 0 {
			c.minStayDuration = d
		}
	}
}

// Classifier labels completed calls. It is a pure function of its inputs:
// no I/O, no persisted state. Safe for concurrent use.
type Classifier struct {
	minStayDuration time.Duration
}

// New returns a [Classifier] configured with the supplied options.
func New(opts ...Option) *Classifier {
	c := &Classifier{minStayDuration: defaultMinStayDuration}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify labels a completed call from its duration and whether the prospect
// ever spoke.
//
// A call shorter than the minimum duration is always [OutcomeLeft], even when
// some prospect words were captured — an under-10-second call is treated as
// an immediate hangup. At or above the minimum, the prospect having responded
// decides the label. The boundary at exactly the minimum duration belongs to
// the "stayed-eligible" branch.
func (c *Classifier) Classify(callDuration time.Duration, hasResponse bool) Outcome {
	if callDuration < c.minStayDuration {
		return OutcomeLeft
	}
	if hasResponse {
		return OutcomeStayed
	}
	return OutcomeLeft
}
