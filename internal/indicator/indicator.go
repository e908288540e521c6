// Package indicator computes technical indicators over ordered daily close
// series. Every series is aligned to the input dates; leading entries are nil
// until enough history has accumulated for the rolling window.
package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/tickwise/tickwise/internal/domain"
)

// Default parameters, matching the request schema defaults.
const (
	DefaultPeriod       = 14
	DefaultFastPeriod   = 12
	DefaultSlowPeriod   = 26
	DefaultSignalPeriod = 9
	DefaultBandPeriod   = 20
	DefaultStdDev       = 2.0
)

// Params carries every tunable an indicator request can set. Unset fields
// keep their zero value; Compute applies per-indicator defaults.
type Params struct {
	Period       int
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
	StdDev       float64
}

// Point is one dated value of a single-series indicator. Value is nil while
// the rolling window is still filling.
type Point struct {
	Date  time.Time `json:"date"`
	Value *float64  `json:"value"`
}

// MACDPoint is one dated value of the MACD indicator.
type MACDPoint struct {
	Date      time.Time `json:"date"`
	MACD      *float64  `json:"macd"`
	Signal    *float64  `json:"signal"`
	Histogram *float64  `json:"histogram"`
}

// BandsPoint is one dated value of the Bollinger Bands indicator.
type BandsPoint struct {
	Date       time.Time `json:"date"`
	UpperBand  *float64  `json:"upper_band"`
	MiddleBand *float64  `json:"middle_band"`
	LowerBand  *float64  `json:"lower_band"`
}

// Parameter bounds enforced on every request.
const (
	minPeriod       = 2
	maxPeriod       = 200
	maxFastPeriod   = 50
	maxSlowPeriod   = 100
	maxSignalPeriod = 50
	minStdDev       = 0.5
	maxStdDev       = 5.0
)

// Resolve applies per-indicator defaults to p and validates the result
// against the parameter bounds. The returned map is the effective parameter
// set, which callers echo in responses and use as the cache key: requests
// that omit a parameter and requests that pass its default explicitly
// resolve to the same set.
func Resolve(kind domain.IndicatorKind, p Params) (Params, map[string]any, error) {
	const op = "indicator.resolve"

	switch kind {
	case domain.IndicatorSMA, domain.IndicatorEMA, domain.IndicatorRSI:
		p.Period = orDefault(p.Period, DefaultPeriod)
		if err := checkBounds(op, "period", p.Period, maxPeriod); err != nil {
			return p, nil, err
		}
		return p, map[string]any{"period": p.Period}, nil

	case domain.IndicatorMACD:
		p.FastPeriod = orDefault(p.FastPeriod, DefaultFastPeriod)
		p.SlowPeriod = orDefault(p.SlowPeriod, DefaultSlowPeriod)
		p.SignalPeriod = orDefault(p.SignalPeriod, DefaultSignalPeriod)
		if err := checkBounds(op, "fast_period", p.FastPeriod, maxFastPeriod); err != nil {
			return p, nil, err
		}
		if err := checkBounds(op, "slow_period", p.SlowPeriod, maxSlowPeriod); err != nil {
			return p, nil, err
		}
		if err := checkBounds(op, "signal_period", p.SignalPeriod, maxSignalPeriod); err != nil {
			return p, nil, err
		}
		return p, map[string]any{
			"fast_period":   p.FastPeriod,
			"slow_period":   p.SlowPeriod,
			"signal_period": p.SignalPeriod,
		}, nil

	case domain.IndicatorBollingerBands:
		p.Period = orDefault(p.Period, DefaultBandPeriod)
		if p.StdDev == 0 {
			p.StdDev = DefaultStdDev
		}
		if err := checkBounds(op, "period", p.Period, maxPeriod); err != nil {
			return p, nil, err
		}
		if p.StdDev < minStdDev || p.StdDev > maxStdDev {
			return p, nil, domain.Invalid(op, fmt.Sprintf("std_dev must be between %g and %g", minStdDev, maxStdDev))
		}
		return p, map[string]any{
			"period":  p.Period,
			"std_dev": p.StdDev,
		}, nil
	}

	return p, nil, domain.Invalid(op, "unsupported indicator: "+string(kind))
}

func checkBounds(op, name string, v, upper int) error {
	if v < minPeriod || v > upper {
		return domain.Invalid(op, fmt.Sprintf("%s must be between %d and %d", name, minPeriod, upper))
	}
	return nil
}

// Compute runs the requested indicator over the candle series, returning the
// aligned data points and the effective parameter set from Resolve.
func Compute(kind domain.IndicatorKind, candles []domain.Candle, p Params) (any, map[string]any, error) {
	p, effective, err := Resolve(kind, p)
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case domain.IndicatorSMA:
		return SMA(candles, p.Period), effective, nil
	case domain.IndicatorEMA:
		return EMA(candles, p.Period), effective, nil
	case domain.IndicatorRSI:
		return RSI(candles, p.Period), effective, nil
	case domain.IndicatorMACD:
		return MACD(candles, p.FastPeriod, p.SlowPeriod, p.SignalPeriod), effective, nil
	case domain.IndicatorBollingerBands:
		return BollingerBands(candles, p.Period, p.StdDev), effective, nil
	}
	return nil, nil, domain.Invalid("indicator.compute", "unsupported indicator: "+string(kind))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA computes the simple moving average of closes over period.
func SMA(candles []domain.Candle, period int) []Point {
	prices := closes(candles)
	points := make([]Point, len(candles))

	var sum float64
	for i, c := range candles {
		points[i] = Point{Date: c.Date}
		sum += prices[i]
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			v := sum / float64(period)
			points[i].Value = &v
		}
	}
	return points
}

// EMA computes the exponential moving average with alpha = 2/(period+1).
// Weights are normalized over the observed history, so early values are an
// unbiased average of the data seen so far rather than being anchored to the
// first close.
func EMA(candles []domain.Candle, period int) []Point {
	points := make([]Point, len(candles))
	alpha := 2.0 / (float64(period) + 1.0)

	var num, den float64
	for i, c := range candles {
		num = c.Close + (1-alpha)*num
		den = 1 + (1-alpha)*den
		v := num / den
		points[i] = Point{Date: c.Date, Value: &v}
	}
	return points
}

// emaSeries is EMA over a raw float series, for MACD internals.
func emaSeries(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	alpha := 2.0 / (float64(period) + 1.0)

	var num, den float64
	for i, p := range prices {
		num = p + (1-alpha)*num
		den = 1 + (1-alpha)*den
		out[i] = num / den
	}
	return out
}

// RSI computes the relative strength index using rolling-mean average gains
// and losses over period. When the average loss is zero the value saturates
// at 100.
func RSI(candles []domain.Candle, period int) []Point {
	prices := closes(candles)
	points := make([]Point, len(candles))
	for i, c := range candles {
		points[i] = Point{Date: c.Date}
	}

	if len(prices) < 2 {
		return points
	}

	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(prices); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}

		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)

		var rsi float64
		if avgLoss == 0 {
			rsi = 100.0
		} else {
			rsi = 100.0 - 100.0/(1.0+avgGain/avgLoss)
		}
		points[i].Value = &rsi
	}
	return points
}

// MACD computes the MACD line (fast EMA minus slow EMA), its signal line,
// and the histogram between them. EMA values exist from the first bar, so
// the series has no leading gap.
func MACD(candles []domain.Candle, fastPeriod, slowPeriod, signalPeriod int) []MACDPoint {
	prices := closes(candles)
	fast := emaSeries(prices, fastPeriod)
	slow := emaSeries(prices, slowPeriod)

	macdLine := make([]float64, len(prices))
	for i := range prices {
		macdLine[i] = fast[i] - slow[i]
	}
	signal := emaSeries(macdLine, signalPeriod)

	points := make([]MACDPoint, len(candles))
	for i, c := range candles {
		m, s := macdLine[i], signal[i]
		h := m - s
		points[i] = MACDPoint{Date: c.Date, MACD: &m, Signal: &s, Histogram: &h}
	}
	return points
}

// BollingerBands computes the middle band (SMA), and upper/lower bands at
// stdDev sample standard deviations from it.
func BollingerBands(candles []domain.Candle, period int, stdDev float64) []BandsPoint {
	prices := closes(candles)
	points := make([]BandsPoint, len(candles))

	for i, c := range candles {
		points[i] = BandsPoint{Date: c.Date}
		if i < period-1 {
			continue
		}

		window := prices[i-period+1 : i+1]
		var sum float64
		for _, p := range window {
			sum += p
		}
		mean := sum / float64(period)

		var sq float64
		for _, p := range window {
			d := p - mean
			sq += d * d
		}
		// Sample standard deviation (n-1 denominator).
		sd := math.Sqrt(sq / float64(period-1))

		upper := mean + sd*stdDev
		lower := mean - sd*stdDev
		points[i].MiddleBand = &mean
		points[i].UpperBand = &upper
		points[i].LowerBand = &lower
	}
	return points
}
