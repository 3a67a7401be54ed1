package freshness

import (
	"testing"
	"time"
)

func TestIsStaleAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name        string
		lastUpdated *time.Time
		window      time.Duration
		expected    bool
	}{
		{name: "never synced", lastUpdated: nil, window: time.Hour, expected: true},
		{name: "zero timestamp", lastUpdated: &time.Time{}, window: time.Hour, expected: true},
		{name: "just synced", lastUpdated: at(0), window: time.Hour, expected: false},
		{name: "one nanosecond before window", lastUpdated: at(time.Hour - time.Nanosecond), window: time.Hour, expected: false},
		{name: "exactly at window", lastUpdated: at(time.Hour), window: time.Hour, expected: true},
		{name: "past window", lastUpdated: at(2 * time.Hour), window: time.Hour, expected: true},
		{name: "zero window always stale", lastUpdated: at(0), window: 0, expected: true},
		{name: "synced in the future", lastUpdated: at(-time.Minute), window: time.Hour, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStaleAt(tt.lastUpdated, tt.window, now); got != tt.expected {
				t.Errorf("IsStaleAt() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsStaleUsesCurrentTime(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	if IsStale(&recent, DefaultWindow) {
		t.Error("Expected feed synced a minute ago to be fresh")
	}

	old := time.Now().Add(-2 * DefaultWindow)
	if !IsStale(&old, DefaultWindow) {
		t.Error("Expected feed synced two windows ago to be stale")
	}
}
