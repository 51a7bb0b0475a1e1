package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ChartStyle selects the visual treatment of a rendered chart.
type ChartStyle struct {
	Theme  string `json:"theme"` // "light" or "dark"
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Title  string `json:"title,omitempty"`
}

// Normalize fills zero-valued fields with defaults and lowercases the theme.
func (s ChartStyle) Normalize() ChartStyle {
	out := s
	out.Theme = strings.ToLower(out.Theme)
	if out.Theme != "dark" {
		out.Theme = "light"
	}
	if out.Width <= 0 {
		out.Width = 900
	}
	if out.Height <= 0 {
		out.Height = 400
	}
	return out
}

// ChartArtifact references a rendered chart persisted in the charts area.
// The hash is a pure function of the chart inputs, so identical inputs
// always address the same stored artifact.
type ChartArtifact struct {
	Hash      string    `json:"hash"`
	Path      string    `json:"path"`
	Symbol    string    `json:"symbol"`
	Overlays  []string  `json:"overlays,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryStats holds derived statistics included in a report.
type SummaryStats struct {
	Bars       int     `json:"bars"`
	LastClose  float64 `json:"last_close"`
	ChangePct  float64 `json:"change_pct"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	MeanVolume float64 `json:"mean_volume"`
	Volatility float64 `json:"volatility"` // annualized stddev of returns
}

// ReportStatusComplete is the status of every persisted report; partial
// pipeline output is never written.
const ReportStatusComplete = "complete"

// Report is a persisted bundle of chart artifacts and statistics,
// addressable by its identifier alone.
type Report struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Range       TimeRange       `json:"range"`
	Granularity Granularity     `json:"granularity"`
	Status      string          `json:"status"`
	Artifacts   []ChartArtifact `json:"artifacts"`
	Stats       SummaryStats    `json:"stats"`
	Profile     json.RawMessage `json:"profile,omitempty"` // requesting user's profile, if any
	GeneratedAt time.Time       `json:"generated_at"`
}

// ReportID derives a deterministic report identifier from the symbol, the
// content hashes of the included artifacts, and the statistics. Repeated
// assembly of the same logical report yields the same ID.
func ReportID(symbol string, artifactHashes []string, stats SummaryStats) string {
	hashes := append([]string(nil), artifactHashes...)
	sort.Strings(hashes)

	h := sha256.New()
	fmt.Fprintf(h, "symbol=%s\n", symbol)
	for _, ah := range hashes {
		fmt.Fprintf(h, "chart=%s\n", ah)
	}
	fmt.Fprintf(h, "stats=%d|%.8f|%.8f|%.8f|%.8f|%.8f|%.8f\n",
		stats.Bars, stats.LastClose, stats.ChangePct,
		stats.High, stats.Low, stats.MeanVolume, stats.Volatility)

	return "rpt-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// ReportRequest describes one end-to-end report generation request.
type ReportRequest struct {
	Symbol      string          `json:"symbol"`
	Range       TimeRange       `json:"range"`
	Granularity Granularity     `json:"granularity"`
	Indicators  []IndicatorSpec `json:"indicators"`
	Style       ChartStyle      `json:"style"`
	UserID      string          `json:"user_id,omitempty"`
}

// Validate checks the request fields the orchestrator cannot default.
func (r *ReportRequest) Validate() error {
	if r.Symbol == "" {
		return &ParameterError{Param: "symbol", Msg: "must not be empty"}
	}
	if !r.Granularity.Valid() {
		return &ParameterError{Param: "granularity", Msg: fmt.Sprintf("unknown granularity %q", r.Granularity)}
	}
	if err := r.Range.Validate(); err != nil {
		return &IngestionError{Reason: IngestInvalidRange, Symbol: r.Symbol, Err: err}
	}
	return nil
}

// Fingerprint returns a stable digest of the request's analytical content.
// Two requests with the same fingerprint converge on the same report.
func (r *ReportRequest) Fingerprint() string {
	style := r.Style.Normalize()

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s\n", r.Symbol, r.Granularity, r.Range)
	for _, spec := range r.Indicators {
		fmt.Fprintf(h, "ind=%s\n", spec.Key())
	}
	fmt.Fprintf(h, "style=%s|%d|%d|%s\n", style.Theme, style.Width, style.Height, style.Title)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
