// Package assemblyai provides an AssemblyAI-backed transcription provider
// using the AssemblyAI real-time WebSocket API. It implements the
// transcribe.Provider interface.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
)

const (
	realtimeEndpoint  = "wss://api.assemblyai.com/v2/realtime/ws"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the real-time WebSocket endpoint. Useful for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements transcribe.Provider backed by the AssemblyAI real-time API.
type Provider struct {
	apiKey     string
	endpoint   string
	sampleRate int
}

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   realtimeEndpoint,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with AssemblyAI.
// It respects cfg.SampleRate and cfg.WordBoost; every emitted utterance is
// labeled with cfg.Speaker.
func (p *Provider) StartStream(ctx context.Context, cfg transcribe.StreamConfig) (transcribe.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("assemblyai: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		speaker:  cfg.Speaker,
		partials: make(chan transcribe.Utterance, 64),
		finals:   make(chan transcribe.Utterance, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the real-time endpoint URL for the given config.
func (p *Provider) buildURL(cfg transcribe.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(sr))
	if len(cfg.WordBoost) > 0 {
		// AssemblyAI expects word_boost as a JSON-encoded string array.
		boost, err := json.Marshal(cfg.WordBoost)
		if err != nil {
			return "", err
		}
		q.Set("word_boost", string(boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// realtimeMessage is the JSON structure AssemblyAI sends for transcript events.
type realtimeMessage struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	AudioStart  int64   `json:"audio_start"` // milliseconds from session start
	AudioEnd    int64   `json:"audio_end"`   // milliseconds from session start
}

// session is a live AssemblyAI streaming session. It implements
// transcribe.SessionHandle.
type session struct {
	conn     *websocket.Conn
	speaker  transcribe.Speaker
	partials chan transcribe.Utterance
	finals   chan transcribe.Utterance
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to AssemblyAI.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	}
}

// Partials returns the channel of interim utterances.
func (s *session) Partials() <-chan transcribe.Utterance { return s.partials }

// Finals returns the channel of final utterances.
func (s *session) Finals() <-chan transcribe.Utterance { return s.finals }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask AssemblyAI to flush pending audio and end the session.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"terminate_session":true}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to AssemblyAI.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from AssemblyAI and dispatches them to the
// partials and finals channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation — exit gracefully.
			return
		}

		u, ok := parseRealtimeMessage(msg, s.speaker)
		if !ok {
			continue
		}

		if u.IsFinal {
			select {
			case s.finals <- u:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- u:
			case <-s.done:
			}
		}
	}
}

// parseRealtimeMessage parses a raw AssemblyAI WebSocket message into an
// Utterance labeled with speaker. Returns (Utterance, true) on success, or
// (zero, false) if the message should be ignored.
func parseRealtimeMessage(data []byte, speaker transcribe.Speaker) (transcribe.Utterance, bool) {
	var msg realtimeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return transcribe.Utterance{}, false
	}

	var isFinal bool
	switch msg.MessageType {
	case "FinalTranscript":
		isFinal = true
	case "PartialTranscript":
		isFinal = false
	default:
		// SessionBegins, SessionTerminated, errors — nothing to emit.
		return transcribe.Utterance{}, false
	}
	if msg.Text == "" {
		return transcribe.Utterance{}, false
	}

	start := time.Duration(msg.AudioStart) * time.Millisecond
	end := time.Duration(msg.AudioEnd) * time.Millisecond
	return transcribe.Utterance{
		Text:       msg.Text,
		Speaker:    speaker,
		IsFinal:    isFinal,
		Confidence: msg.Confidence,
		Timestamp:  start,
		Duration:   end - start,
	}, true
}
