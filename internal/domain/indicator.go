package domain

import "time"

// IndicatorKind identifies a technical indicator.
type IndicatorKind string

const (
	IndicatorSMA            IndicatorKind = "sma"
	IndicatorEMA            IndicatorKind = "ema"
	IndicatorRSI            IndicatorKind = "rsi"
	IndicatorMACD           IndicatorKind = "macd"
	IndicatorBollingerBands IndicatorKind = "bollinger_bands"
)

// AllIndicators lists every supported indicator kind.
func AllIndicators() []IndicatorKind {
	return []IndicatorKind{
		IndicatorSMA,
		IndicatorEMA,
		IndicatorRSI,
		IndicatorMACD,
		IndicatorBollingerBands,
	}
}

// IsValidIndicator reports whether k names a supported indicator.
func IsValidIndicator(k IndicatorKind) bool {
	switch k {
	case IndicatorSMA, IndicatorEMA, IndicatorRSI, IndicatorMACD, IndicatorBollingerBands:
		return true
	}
	return false
}

// Candle is one daily OHLC row for a symbol.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
