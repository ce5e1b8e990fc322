// Package session manages the lifecycle of live coaching call sessions.
//
// A session covers one outbound call: it consumes final utterances from the
// transcription provider, detects which catalog opener the agent led with,
// tracks whether the prospect responded, and on session end classifies the
// outcome, records it in the statistics store, and produces coaching feedback
// plus a fresh recommendation for the next call.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dialcoach/dialcoach/internal/match"
	"github.com/dialcoach/dialcoach/internal/outcome"
	"github.com/dialcoach/dialcoach/internal/recommend"
	"github.com/dialcoach/dialcoach/internal/stats"
	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
)

// Event types emitted on the live feed.
const (
	EventSessionStarted  = "session_started"
	EventUtterance       = "utterance"
	EventOpenerDetected  = "opener_detected"
	EventOpenerAmbiguous = "opener_ambiguous"
	EventSessionEnded    = "session_ended"
)

// Event is a live-feed notification about the active session.
type Event struct {
	Type       string                `json:"type"`
	SessionID  string                `json:"session_id"`
	Utterance  *transcribe.Utterance `json:"utterance,omitempty"`
	OpenerID   string                `json:"opener_id,omitempty"`
	Similarity float64               `json:"similarity,omitempty"`
	Outcome    outcome.Outcome       `json:"outcome,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// Info holds metadata about an active session.
type Info struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was started.
	StartedAt time.Time

	// OpenerID is the detected or manually selected opener, empty until known.
	OpenerID string

	// OpenerManual reports whether the opener was selected manually rather
	// than detected from the transcript.
	OpenerManual bool

	// HadResponse reports whether the prospect has said anything yet.
	HadResponse bool
}

// Summary is the result of ending a session.
type Summary struct {
	Info     Info
	Duration time.Duration
	Outcome  outcome.Outcome
	Feedback string
	Next     recommend.Recommendation
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Matcher    *match.Matcher
	Engine     *recommend.Engine
	Classifier *outcome.Classifier
	Store      stats.Store

	// Provider is the transcription backend. May be nil, in which case
	// sessions run without live transcription and openers must be selected
	// manually.
	Provider transcribe.Provider

	// Stream is the base stream configuration; the Speaker field is set per
	// call leg by the manager.
	Stream transcribe.StreamConfig
}

// Manager manages the lifecycle of coaching sessions.
// Only one session can be active at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	active bool
	info   Info
	cancel context.CancelFunc

	// startedAt keeps the monotonic clock reading of the session start;
	// Info.StartedAt is the UTC wall time shown to clients. Durations come
	// from startedAt so wall-clock steps cannot skew outcome classification.
	startedAt time.Time

	// handles are the open transcription sessions, closed during End.
	handles []transcribe.SessionHandle
	wg      sync.WaitGroup

	subsMu sync.Mutex
	subs   map[chan Event]struct{}

	matcher    *match.Matcher
	engine     *recommend.Engine
	classifier *outcome.Classifier
	store      stats.Store
	provider   transcribe.Provider
	stream     transcribe.StreamConfig
	feedback   *feedback

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		subs:       make(map[chan Event]struct{}),
		matcher:    cfg.Matcher,
		engine:     cfg.Engine,
		classifier: cfg.Classifier,
		store:      cfg.Store,
		provider:   cfg.Provider,
		stream:     cfg.Stream,
		feedback:   newFeedback(),
		now:        time.Now,
	}
}

// Start begins a new call session. When a transcription provider is
// configured it opens one stream per call leg and starts consuming final
// utterances.
//
// Returns an error if a session is already active.
func (m *Manager) Start(ctx context.Context) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return Info{}, fmt.Errorf("session: a session is already active (id=%s)", m.info.SessionID)
	}

	started := m.now()
	info := Info{
		SessionID: uuid.NewString(),
		StartedAt: started.UTC(),
	}

	// Streams live as long as the session, not as long as the caller's
	// request: they run on their own context, torn down by End.
	sessionCtx, cancel := context.WithCancel(context.Background())

	var handles []transcribe.SessionHandle
	if m.provider != nil {
		for _, speaker := range []transcribe.Speaker{transcribe.SpeakerAgent, transcribe.SpeakerProspect} {
			cfg := m.stream
			cfg.Speaker = speaker
			handle, err := m.provider.StartStream(sessionCtx, cfg)
			if err != nil {
				cancel()
				for _, h := range handles {
					_ = h.Close()
				}
				return Info{}, fmt.Errorf("session: start %s stream: %w", speaker, err)
			}
			handles = append(handles, handle)

			m.wg.Add(1)
			go m.consumeFinals(info.SessionID, handle.Finals())
		}
	}

	m.active = true
	m.info = info
	m.startedAt = started
	m.cancel = cancel
	m.handles = handles

	m.broadcast(Event{
		Type:      EventSessionStarted,
		SessionID: info.SessionID,
		Timestamp: info.StartedAt,
	})

	slog.Info("session started",
		"session_id", info.SessionID,
		"live_transcription", m.provider != nil,
	)
	return info, nil
}

// consumeFinals processes final utterances from one call leg until the
// channel closes. Agent utterances drive opener detection; any prospect
// utterance marks the call as answered.
func (m *Manager) consumeFinals(sessionID string, finals <-chan transcribe.Utterance) {
	defer m.wg.Done()
	for u := range finals {
		m.handleUtterance(sessionID, u)
	}
}

func (m *Manager) handleUtterance(sessionID string, u transcribe.Utterance) {
	m.mu.Lock()
	if !m.active || m.info.SessionID != sessionID {
		m.mu.Unlock()
		return
	}

	events := []Event{{
		Type:      EventUtterance,
		SessionID: sessionID,
		Utterance: &u,
		Timestamp: m.now().UTC(),
	}}

	switch u.Speaker {
	case transcribe.SpeakerProspect:
		m.info.HadResponse = true
	case transcribe.SpeakerAgent:
		if m.info.OpenerID == "" {
			if ev, ok := m.detectOpener(sessionID, u.Text); ok {
				events = append(events, ev)
			}
		}
	}
	m.mu.Unlock()

	for _, ev := range events {
		m.broadcast(ev)
	}
}

// detectOpener runs the matcher over an agent utterance. An unambiguous match
// locks in the opener; an ambiguous one is surfaced on the live feed and left
// for manual selection. Called with m.mu held.
func (m *Manager) detectOpener(sessionID, text string) (Event, bool) {
	amb := m.matcher.MatchWithAmbiguityDetection(text)
	if amb.BestMatch == nil {
		return Event{}, false
	}

	if amb.IsAmbiguous {
		slog.Info("session: ambiguous opener match, waiting for manual selection",
			"session_id", sessionID,
			"best", amb.BestMatch.Opener.ID,
			"candidates", len(amb.Matches),
		)
		return Event{
			Type:       EventOpenerAmbiguous,
			SessionID:  sessionID,
			OpenerID:   amb.BestMatch.Opener.ID,
			Similarity: amb.BestMatch.Similarity,
			Timestamp:  m.now().UTC(),
		}, true
	}

	m.info.OpenerID = amb.BestMatch.Opener.ID
	slog.Info("session: opener detected",
		"session_id", sessionID,
		"opener_id", amb.BestMatch.Opener.ID,
		"similarity", amb.BestMatch.Similarity,
	)
	return Event{
		Type:       EventOpenerDetected,
		SessionID:  sessionID,
		OpenerID:   amb.BestMatch.Opener.ID,
		Similarity: amb.BestMatch.Similarity,
		Timestamp:  m.now().UTC(),
	}, true
}

// SelectOpener manually sets the opener for the active session, overriding
// any automatic detection. Used to resolve ambiguous matches or when the
// agent improvises.
func (m *Manager) SelectOpener(openerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return fmt.Errorf("session: no active session")
	}
	if _, ok := m.engine.Catalog().Get(openerID); !ok {
		return fmt.Errorf("session: select opener: unknown opener %q", openerID)
	}

	m.info.OpenerID = openerID
	m.info.OpenerManual = true
	slog.Info("session: opener selected manually",
		"session_id", m.info.SessionID,
		"opener_id", openerID,
	)
	return nil
}

// End finishes the active session: it closes the transcription streams,
// classifies the outcome from call duration and prospect response, records
// the outcome against the detected opener, and returns coaching feedback with
// a fresh recommendation.
//
// If no opener was detected or selected, the outcome is not recorded and the
// statistics stay unchanged.
func (m *Manager) End(ctx context.Context) (Summary, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return Summary{}, fmt.Errorf("session: no active session to end")
	}

	info := m.info
	started := m.startedAt
	handles := m.handles
	cancel := m.cancel
	engine := m.engine
	classifier := m.classifier

	m.active = false
	m.info = Info{}
	m.startedAt = time.Time{}
	m.handles = nil
	m.cancel = nil
	m.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			slog.Warn("session: stream close error", "session_id", info.SessionID, "err", err)
		}
	}
	m.wg.Wait()
	cancel()

	duration := m.now().Sub(started)
	oc := classifier.Classify(duration, info.HadResponse)

	if info.OpenerID != "" {
		if err := m.store.Record(ctx, info.OpenerID, oc); err != nil {
			return Summary{}, fmt.Errorf("session: record outcome: %w", err)
		}
	} else {
		slog.Info("session: no opener identified, outcome not recorded",
			"session_id", info.SessionID)
	}

	snap, err := m.store.All(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("session: load statistics: %w", err)
	}

	summary := Summary{
		Info:     info,
		Duration: duration,
		Outcome:  oc,
		Feedback: m.feedback.messageFor(oc),
		Next:     engine.Recommend(snap),
	}

	m.broadcast(Event{
		Type:      EventSessionEnded,
		SessionID: info.SessionID,
		OpenerID:  info.OpenerID,
		Outcome:   oc,
		Timestamp: m.now().UTC(),
	})

	slog.Info("session ended",
		"session_id", info.SessionID,
		"duration", duration,
		"opener_id", info.OpenerID,
		"outcome", oc,
		"next_opener", summary.Next.Opener.ID,
		"next_reason", summary.Next.Reason,
	)
	return summary, nil
}

// Reconfigure swaps the matcher, engine, and classifier, typically after a
// config hot reload. Nil arguments leave the current component in place. The
// swap takes effect for the next utterance or session end.
func (m *Manager) Reconfigure(matcher *match.Matcher, engine *recommend.Engine, classifier *outcome.Classifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if matcher != nil {
		m.matcher = matcher
	}
	if engine != nil {
		m.engine = engine
	}
	if classifier != nil {
		m.classifier = classifier
	}
}

// Matcher returns the current transcript matcher.
func (m *Manager) Matcher() *match.Matcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matcher
}

// Engine returns the current recommendation engine.
func (m *Manager) Engine() *recommend.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

// IsActive reports whether a session is currently running.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Info returns metadata about the active session.
// Returns the zero value if no session is active.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Subscribe registers a live-feed subscriber. The returned cancel function
// removes the subscription and closes the channel. Slow subscribers miss
// events rather than blocking the session.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.subsMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) broadcast(ev Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
