package freshness

import "time"

// DefaultWindow is how long a synced feed stays fresh.
const DefaultWindow = time.Hour

// IsStale reports whether a feed last synced at lastUpdated is due for refresh.
// A nil or zero lastUpdated means the feed was never synced.
func IsStale(lastUpdated *time.Time, window time.Duration) bool {
	return IsStaleAt(lastUpdated, window, time.Now())
}

// IsStaleAt is IsStale evaluated at now.
func IsStaleAt(lastUpdated *time.Time, window time.Duration, now time.Time) bool {
	if lastUpdated == nil || lastUpdated.IsZero() {
		return true
	}
	return now.Sub(*lastUpdated) >= window
}
