package dataset

import (
	"math/rand"
	"time"

	"github.com/tickwise/tickwise/internal/domain"
)

// sampleRows generates three years of weekday OHLC bars for a handful of
// symbols. The generator is seeded per symbol so repeated startups produce
// the same series.
func sampleRows() map[string][]domain.Candle {
	symbols := []string{"AAPL", "AMZN", "GOOGL", "MSFT", "TSLA"}

	today := time.Now().UTC()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1095)

	var dates []time.Time
	for d := start; d.Before(today); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
	}

	out := make(map[string][]domain.Candle, len(symbols))
	for si, symbol := range symbols {
		rng := rand.New(rand.NewSource(int64(si + 1)))
		base := 50.0 + rng.Float64()*250.0

		rows := make([]domain.Candle, 0, len(dates))
		prevClose := base
		for i, date := range dates {
			open := prevClose
			change := (0.0001*float64(i) + (rng.Float64()*0.1 - 0.05)) * open
			closePrice := open + change
			if closePrice < 1.0 {
				closePrice = 1.0
			}

			high := max(open, closePrice) * (1.001 + rng.Float64()*0.049)
			low := min(open, closePrice) * (0.95 + rng.Float64()*0.049)
			volume := int64(100_000 + rng.Intn(9_900_000))

			rows = append(rows, domain.Candle{
				Date:   date,
				Open:   round2(open),
				High:   round2(high),
				Low:    round2(low),
				Close:  round2(closePrice),
				Volume: volume,
			})
			prevClose = closePrice
		}
		out[symbol] = rows
	}
	return out
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
