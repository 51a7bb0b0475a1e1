// Package indicators provides technical indicator calculations
package indicators

import (
	"math"

	"github.com/finlens/finlens/internal/models"
)

// Compute evaluates an indicator spec against a series. The result is
// aligned index-for-index with the series; entries before the warm-up
// window are NaN. Compute is pure and deterministic.
func Compute(series *models.Series, spec models.IndicatorSpec) (*models.IndicatorResult, error) {
	if spec.Window <= 0 {
		return nil, &models.ParameterError{Param: "window", Msg: "must be positive"}
	}
	if spec.Width < 0 {
		return nil, &models.ParameterError{Param: "width", Msg: "must not be negative"}
	}

	closes := series.Closes()

	var values []float64
	var warmup int

	switch spec.Name {
	case models.IndicatorSMA:
		values, warmup = sma(closes, spec.Window)
	case models.IndicatorEMA:
		values, warmup = ema(closes, spec.Window)
	case models.IndicatorRSI:
		values, warmup = rsi(closes, spec.Window)
	case models.IndicatorBollingerUpper:
		values, warmup = bollinger(closes, spec.Window, bandWidth(spec), +1)
	case models.IndicatorBollingerLower:
		values, warmup = bollinger(closes, spec.Window, bandWidth(spec), -1)
	default:
		return nil, &models.ParameterError{Param: "name", Msg: "unknown indicator " + spec.Name}
	}

	return &models.IndicatorResult{
		Spec:   spec,
		Values: values,
		Warmup: warmup,
	}, nil
}

// bandWidth returns the configured band width, defaulting to 2 standard
// deviations.
func bandWidth(spec models.IndicatorSpec) float64 {
	if spec.Width == 0 {
		return 2.0
	}
	return spec.Width
}

// undefined fills a result slice with NaN.
func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// sma computes a simple moving average aligned with the input.
func sma(closes []float64, window int) ([]float64, int) {
	out := undefined(len(closes))
	warmup := window - 1

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= warmup {
			out[i] = sum / float64(window)
		}
	}
	return out, warmup
}

// ema computes an exponential moving average seeded with the SMA of the
// first window.
func ema(closes []float64, window int) ([]float64, int) {
	out := undefined(len(closes))
	warmup := window - 1
	if len(closes) < window {
		return out, warmup
	}

	seed := 0.0
	for i := 0; i < window; i++ {
		seed += closes[i]
	}
	seed /= float64(window)
	out[warmup] = seed

	multiplier := 2.0 / float64(window+1)
	prev := seed
	for i := window; i < len(closes); i++ {
		prev = (closes[i]-prev)*multiplier + prev
		out[i] = prev
	}
	return out, warmup
}

// rsi computes Wilder's Relative Strength Index. The first defined value
// needs window+1 prices, so warmup is window.
func rsi(closes []float64, window int) ([]float64, int) {
	out := undefined(len(closes))
	warmup := window
	if len(closes) <= window {
		return out, warmup
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)
	out[window] = rsiValue(avgGain, avgLoss)

	for i := window + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, warmup
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// bollinger computes one volatility band: SMA + sign*width*stddev over the
// window.
func bollinger(closes []float64, window int, width float64, sign float64) ([]float64, int) {
	out := undefined(len(closes))
	warmup := window - 1

	for i := warmup; i < len(closes); i++ {
		mean := 0.0
		for j := i - warmup; j <= i; j++ {
			mean += closes[j]
		}
		mean /= float64(window)

		variance := 0.0
		for j := i - warmup; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		variance /= float64(window)

		out[i] = mean + sign*width*math.Sqrt(variance)
	}
	return out, warmup
}
