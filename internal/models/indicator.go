package models

import (
	"fmt"
	"math"
)

// Indicator name constants — the closed set the engine computes.
const (
	IndicatorSMA            = "sma"
	IndicatorEMA            = "ema"
	IndicatorRSI            = "rsi"
	IndicatorBollingerUpper = "bollinger_upper"
	IndicatorBollingerLower = "bollinger_lower"
)

// IndicatorSpec names an indicator and its numeric parameters.
type IndicatorSpec struct {
	Name   string  `json:"name"`
	Window int     `json:"window"`
	Width  float64 `json:"width,omitempty"` // band width in standard deviations, bollinger only
}

// Key returns a canonical string form used for cache keys and chart labels.
func (s IndicatorSpec) Key() string {
	if s.Width != 0 {
		return fmt.Sprintf("%s(%d,%g)", s.Name, s.Window, s.Width)
	}
	return fmt.Sprintf("%s(%d)", s.Name, s.Window)
}

// IndicatorResult holds computed values aligned index-for-index with the
// source series. Entries before the warm-up window are NaN.
type IndicatorResult struct {
	Spec   IndicatorSpec `json:"spec"`
	Values []float64     `json:"values"`
	Warmup int           `json:"warmup"`
}

// Len returns the number of values (equal to the source series length).
func (r *IndicatorResult) Len() int { return len(r.Values) }

// Defined reports whether the value at index i is past the warm-up window.
func (r *IndicatorResult) Defined(i int) bool {
	return i >= 0 && i < len(r.Values) && !math.IsNaN(r.Values[i])
}

// DefinedCount returns how many entries carry a numeric value.
func (r *IndicatorResult) DefinedCount() int {
	n := 0
	for i := range r.Values {
		if !math.IsNaN(r.Values[i]) {
			n++
		}
	}
	return n
}
