package common

import "time"

// Freshness TTLs for data components
const (
	FreshnessRawSeries = 24 * time.Hour // fetched source series
	FreshnessAnalysis  = 1 * time.Hour  // computed indicator results
	FreshnessReport    = 1 * time.Hour
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
