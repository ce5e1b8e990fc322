package session

import (
	"context"
	"strings"
	"testing"
)

// Call durations decide the stayed/left boundary, so they must come from the
// monotonic clock: a wall-clock step (NTP correction) between Start and End
// must not shift a call across the minimum-stay threshold.
func TestStart_KeepsMonotonicClockForDuration(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	m.mu.Lock()
	mono := m.startedAt
	wall := m.info.StartedAt
	m.mu.Unlock()

	// time.Time.String prints " m=±..." only while the monotonic reading is
	// present.
	if !strings.Contains(mono.String(), " m=") {
		t.Errorf("session start instant %v lost its monotonic reading", mono)
	}
	if strings.Contains(wall.String(), " m=") {
		t.Errorf("Info.StartedAt %v should be plain UTC wall time", wall)
	}
}
