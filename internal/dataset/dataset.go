// Package dataset provides the historical OHLC data used by the API. Rows
// are loaded once at startup from a parquet file and served from memory,
// ordered by date per symbol.
package dataset

import (
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tickwise/tickwise/internal/domain"
)

// parquetRow mirrors the columnar layout of the OHLC parquet file.
type parquetRow struct {
	Date   time.Time `parquet:"date,date"`
	Symbol string    `parquet:"symbol"`
	Open   float64   `parquet:"open"`
	High   float64   `parquet:"high"`
	Low    float64   `parquet:"low"`
	Close  float64   `parquet:"close"`
	Volume int64     `parquet:"volume"`
}

// Service holds the loaded dataset. All reads after Load are lock-free; the
// maps are never mutated once loading completes.
type Service struct {
	logger   *slog.Logger
	bySymbol map[string][]domain.Candle
	symbols  []string
	loaded   bool
}

// New creates an unloaded dataset service. Call Load before serving.
func New(logger *slog.Logger) *Service {
	return &Service{
		logger:   logger,
		bySymbol: make(map[string][]domain.Candle),
	}
}

// Load reads the parquet file at path. When the file does not exist, a
// deterministic sample dataset is generated instead so development and tests
// work without the real data drop.
func (s *Service) Load(path string) error {
	const op = "dataset.load"

	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("parquet file not found, generating sample data", "path", path)
		s.index(sampleRows())
		return nil
	}

	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		return domain.Internal(err, op, "failed to read parquet file")
	}

	candles := make(map[string][]domain.Candle, 64)
	for _, r := range rows {
		candles[r.Symbol] = append(candles[r.Symbol], domain.Candle{
			Date:   r.Date.UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	s.index(candles)

	s.logger.Info("dataset loaded", "path", path, "symbols", len(s.symbols), "rows", len(rows))
	return nil
}

// index sorts each symbol's rows by date and finalizes the symbol list.
func (s *Service) index(candles map[string][]domain.Candle) {
	for symbol, rows := range candles {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		candles[symbol] = rows
	}

	symbols := make([]string, 0, len(candles))
	for symbol := range candles {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	s.bySymbol = candles
	s.symbols = symbols
	s.loaded = true
}

// Symbols returns the sorted list of available symbols.
func (s *Service) Symbols() ([]string, error) {
	if !s.loaded {
		return nil, domain.Errorf(domain.EUNAVAILABLE, "dataset.symbols", "stock data not loaded yet")
	}
	return s.symbols, nil
}

// Rows returns the candles for symbol between start and end inclusive,
// ordered by date.
func (s *Service) Rows(symbol string, start, end time.Time) ([]domain.Candle, error) {
	const op = "dataset.rows"

	if !s.loaded {
		return nil, domain.Errorf(domain.EUNAVAILABLE, op, "stock data not loaded yet")
	}

	rows, ok := s.bySymbol[symbol]
	if !ok {
		return nil, domain.NotFound(op, "Symbol "+symbol+" not found", domain.ReasonSymbolNotFound)
	}

	// Rows are date-sorted, so the range is a pair of binary searches.
	lo := sort.Search(len(rows), func(i int) bool { return !rows[i].Date.Before(start) })
	hi := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(end) })
	if lo >= hi {
		return []domain.Candle{}, nil
	}
	return rows[lo:hi], nil
}
