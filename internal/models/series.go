// Package models defines data structures for FinLens
package models

import (
	"fmt"
	"time"
)

// Granularity is the sampling interval of a series.
type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityWeekly Granularity = "weekly"
)

// Valid reports whether the granularity is one of the supported set.
func (g Granularity) Valid() bool {
	return g == GranularityDaily || g == GranularityWeekly
}

// MaxGap returns the largest tolerated interval between consecutive bars.
// Daily series span weekends and exchange holidays, so the tolerance is
// wider than the nominal step.
func (g Granularity) MaxGap() time.Duration {
	switch g {
	case GranularityWeekly:
		return 14 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// TimeRange is a closed interval [From, To].
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate reports whether the range is a valid non-empty closed interval.
func (r TimeRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("time range bounds must be set")
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("time range end %s before start %s",
			r.To.Format("2006-01-02"), r.From.Format("2006-01-02"))
	}
	return nil
}

// Contains reports whether t falls within the closed interval.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s..%s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}

// Bar represents a single period's price data
type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjusted_close"`
	Volume   int64     `json:"volume"`
}

// Series holds a normalized ordered time-series for one symbol.
// Bars are ordered oldest first. Once handed to consumers the series is
// treated as immutable.
type Series struct {
	Symbol      string      `json:"symbol"`
	Granularity Granularity `json:"granularity"`
	Range       TimeRange   `json:"range"`
	Bars        []Bar       `json:"bars"`
	FetchedAt   time.Time   `json:"fetched_at"`
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Closes returns the close prices in bar order.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Validate enforces the series invariants: timestamps strictly increasing
// and no gap wider than the granularity tolerance.
func (s *Series) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("series symbol is empty")
	}
	if !s.Granularity.Valid() {
		return fmt.Errorf("unknown granularity %q", s.Granularity)
	}
	maxGap := s.Granularity.MaxGap()
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Date, s.Bars[i].Date
		if !cur.After(prev) {
			return fmt.Errorf("bars out of order at index %d: %s !> %s",
				i, cur.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
		if gap := cur.Sub(prev); gap > maxGap {
			return fmt.Errorf("gap of %s at index %d exceeds %s tolerance",
				gap, i, s.Granularity)
		}
	}
	return nil
}
