package indicators

import (
	"math"
	"testing"

	"github.com/finlens/finlens/internal/models"
)

func TestSummarize_BasicStats(t *testing.T) {
	series := newTestSeries([]float64{100, 110, 105, 120})
	// newTestSeries derives High/Low as ±1% of close.
	stats := Summarize(series)

	if stats.Bars != 4 {
		t.Errorf("Bars = %d, want 4", stats.Bars)
	}
	if stats.LastClose != 120 {
		t.Errorf("LastClose = %f, want 120", stats.LastClose)
	}
	if math.Abs(stats.ChangePct-20) > 1e-9 {
		t.Errorf("ChangePct = %f, want 20", stats.ChangePct)
	}
	if math.Abs(stats.High-120*1.01) > 1e-9 {
		t.Errorf("High = %f, want %f", stats.High, 120*1.01)
	}
	if math.Abs(stats.Low-100*0.99) > 1e-9 {
		t.Errorf("Low = %f, want %f", stats.Low, 100*0.99)
	}
	if stats.MeanVolume != 1000 {
		t.Errorf("MeanVolume = %f, want 1000", stats.MeanVolume)
	}
	if stats.Volatility <= 0 {
		t.Errorf("Volatility = %f, want positive for a moving series", stats.Volatility)
	}
}

func TestSummarize_EmptySeries(t *testing.T) {
	series := &models.Series{Symbol: "TEST.US", Granularity: models.GranularityDaily}
	stats := Summarize(series)

	if stats.Bars != 0 {
		t.Errorf("Bars = %d, want 0", stats.Bars)
	}
	if stats.LastClose != 0 || stats.Volatility != 0 {
		t.Errorf("empty series stats not zero: %+v", stats)
	}
}

func TestSummarize_FlatSeriesZeroVolatility(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 42
	}
	stats := Summarize(newTestSeries(closes))

	if stats.Volatility != 0 {
		t.Errorf("Volatility = %f, want 0 for flat series", stats.Volatility)
	}
	if stats.ChangePct != 0 {
		t.Errorf("ChangePct = %f, want 0", stats.ChangePct)
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	series := newTestSeries([]float64{10, 12, 11, 14, 13, 16, 15, 18})

	a := Summarize(series)
	b := Summarize(series)
	if a != b {
		t.Errorf("Summarize not deterministic: %+v vs %+v", a, b)
	}
}
