package indicators

import (
	"math"

	"github.com/finlens/finlens/internal/models"
)

// periodsPerYear returns the annualization factor for a granularity.
func periodsPerYear(g models.Granularity) float64 {
	if g == models.GranularityWeekly {
		return 52
	}
	return 252
}

// Summarize derives the report summary statistics from a series.
// Deterministic for identical input.
func Summarize(series *models.Series) models.SummaryStats {
	stats := models.SummaryStats{Bars: series.Len()}
	if series.Len() == 0 {
		return stats
	}

	first := series.Bars[0]
	last := series.Bars[series.Len()-1]
	stats.LastClose = last.Close
	if first.Close != 0 {
		stats.ChangePct = (last.Close - first.Close) / first.Close * 100
	}

	high := math.Inf(-1)
	low := math.Inf(1)
	var volumeSum float64
	for _, b := range series.Bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		volumeSum += float64(b.Volume)
	}
	stats.High = high
	stats.Low = low
	stats.MeanVolume = volumeSum / float64(series.Len())
	stats.Volatility = annualizedVolatility(series)

	return stats
}

// annualizedVolatility is the stddev of log returns scaled to a year.
func annualizedVolatility(series *models.Series) float64 {
	closes := series.Closes()
	if len(closes) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(periodsPerYear(series.Granularity))
}
