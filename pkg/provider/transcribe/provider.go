// Package transcribe defines the Provider interface for real-time call
// transcription backends.
//
// A transcription provider wraps a streaming speech-to-text service and
// exposes a uniform interface for live sales calls. The central abstraction
// is SessionHandle: once opened for one leg of a call (the agent's microphone
// or the prospect's line), a session accepts raw PCM audio frames and emits
// two streams of Utterance values — low-latency partials for live display and
// authoritative finals for opener detection and response tracking.
//
// Implementations must be safe for concurrent use. Audio input and utterance
// output channels are goroutine-safe by construction.
package transcribe

import (
	"context"
	"time"
)

// Speaker identifies which side of the call an utterance belongs to.
type Speaker string

const (
	// SpeakerAgent is the sales agent's side of the call.
	SpeakerAgent Speaker = "agent"
	// SpeakerProspect is the called party's side.
	SpeakerProspect Speaker = "prospect"
)

// Utterance is a transcription result for one stretch of speech on a call
// leg. Both partial (interim) and final utterances use this type.
type Utterance struct {
	// Text is the transcribed speech content.
	Text string

	// Speaker identifies the call leg the utterance was captured on.
	Speaker Speaker

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to call start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// StreamConfig describes the audio format and labeling for a new
// transcription session. One session covers one call leg.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string uses the provider default.
	Language string

	// Speaker labels every utterance emitted by the session.
	Speaker Speaker

	// WordBoost lists vocabulary hints that increase recognition probability
	// for domain terms such as product names.
	WordBoost []string
}

// SessionHandle represents an open transcription session for one call leg.
// It is an interface so that test code can provide mock implementations
// without a live provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to
// do so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim
	// Utterance values. These drive live UI only and must not feed opener
	// detection. The channel is closed when the session ends.
	Partials() <-chan Utterance

	// Finals returns a read-only channel that emits authoritative Utterance
	// values once the provider has committed to a recognition result. These
	// are the values opener detection and response tracking consume.
	// The channel is closed when the session ends.
	Finals() <-chan Utterance

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Partials and Finals
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any streaming transcription backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per call leg).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and labeling. The returned SessionHandle is ready to
	// accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close when
	// done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
