package assemblyai

import (
	"net/url"
	"testing"
	"time"

	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(transcribe.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	assertEqual(t, "sample_rate", "16000", u.Query().Get("sample_rate"))
}

func TestBuildURL_CustomSampleRate(t *testing.T) {
	p, err := New("key", WithSampleRate(8000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(transcribe.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "sample_rate", "8000", u.Query().Get("sample_rate"))

	// cfg.SampleRate takes precedence over the provider-level default.
	rawURL, err = p.buildURL(transcribe.StreamConfig{SampleRate: 44100})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ = url.Parse(rawURL)
	assertEqual(t, "sample_rate", "44100", u.Query().Get("sample_rate"))
}

func TestBuildURL_WordBoost(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(transcribe.StreamConfig{
		WordBoost: []string{"DialCoach", "cold call"},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "word_boost", `["DialCoach","cold call"]`, u.Query().Get("word_boost"))
}

func TestBuildURL_NoWordBoost(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(transcribe.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	if _, ok := u.Query()["word_boost"]; ok {
		t.Error("expected no 'word_boost' param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseRealtimeMessage_Final(t *testing.T) {
	raw := []byte(`{
		"message_type": "FinalTranscript",
		"text": "Hi, did I catch you at a bad time?",
		"confidence": 0.94,
		"audio_start": 1500,
		"audio_end": 4200
	}`)

	u, ok := parseRealtimeMessage(raw, transcribe.SpeakerAgent)
	if !ok {
		t.Fatal("expected ok=true for valid FinalTranscript message")
	}

	if !u.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "Hi, did I catch you at a bad time?", u.Text)
	if u.Speaker != transcribe.SpeakerAgent {
		t.Errorf("expected speaker %q, got %q", transcribe.SpeakerAgent, u.Speaker)
	}
	if u.Confidence != 0.94 {
		t.Errorf("expected confidence 0.94, got %f", u.Confidence)
	}
	if u.Timestamp != 1500*time.Millisecond {
		t.Errorf("unexpected timestamp: %v", u.Timestamp)
	}
	if u.Duration != 2700*time.Millisecond {
		t.Errorf("unexpected duration: %v", u.Duration)
	}
}

func TestParseRealtimeMessage_Partial(t *testing.T) {
	raw := []byte(`{
		"message_type": "PartialTranscript",
		"text": "Hi, did I",
		"confidence": 0.6,
		"audio_start": 1500,
		"audio_end": 2100
	}`)

	u, ok := parseRealtimeMessage(raw, transcribe.SpeakerProspect)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if u.IsFinal {
		t.Error("expected IsFinal=false for partial result")
	}
	if u.Speaker != transcribe.SpeakerProspect {
		t.Errorf("expected speaker %q, got %q", transcribe.SpeakerProspect, u.Speaker)
	}
}

func TestParseRealtimeMessage_SessionEvents(t *testing.T) {
	for _, raw := range []string{
		`{"message_type":"SessionBegins","session_id":"abc"}`,
		`{"message_type":"SessionTerminated"}`,
	} {
		if _, ok := parseRealtimeMessage([]byte(raw), transcribe.SpeakerAgent); ok {
			t.Errorf("expected ok=false for %s", raw)
		}
	}
}

func TestParseRealtimeMessage_EmptyText(t *testing.T) {
	raw := []byte(`{"message_type":"FinalTranscript","text":"","confidence":0}`)
	if _, ok := parseRealtimeMessage(raw, transcribe.SpeakerAgent); ok {
		t.Error("expected ok=false for empty text")
	}
}

func TestParseRealtimeMessage_InvalidJSON(t *testing.T) {
	if _, ok := parseRealtimeMessage([]byte(`{invalid`), transcribe.SpeakerAgent); ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
	assertEqual(t, "endpoint", realtimeEndpoint, p.endpoint)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
