package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwise/tickwise/internal/auth"
	"github.com/tickwise/tickwise/internal/cache"
	"github.com/tickwise/tickwise/internal/dataset"
	"github.com/tickwise/tickwise/internal/domain"
	"github.com/tickwise/tickwise/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDataset(t *testing.T) *dataset.Service {
	t.Helper()
	svc := dataset.New(testLogger())
	require.NoError(t, svc.Load("/nonexistent/stocks.parquet"))
	return svc
}

func newMarketHandler(t *testing.T, store ratelimit.CounterStore) (*MarketHandler, cache.Cache) {
	t.Helper()
	c := cache.NewMemoryCache()
	limiter := ratelimit.NewLimiter(store, testLogger(), time.Second)
	return NewMarketHandler(testDataset(t), limiter, c, time.Minute, testLogger()), c
}

func authedRequest(method, target string, body io.Reader, tier domain.SubscriptionTier, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, body)
	user := &domain.User{ID: userID, Username: "trader", IsActive: true}
	sub := &domain.Subscription{ID: uuid.New(), UserID: userID, Tier: tier, IsActive: true}
	return req.WithContext(auth.WithIdentity(req.Context(), user, sub))
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "response should carry an error object: %s", rec.Body.String())
	return errObj
}

func TestSymbols_ReturnsSortedList(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	rec := httptest.NewRecorder()
	h.Symbols(rec, authedRequest("GET", "/api/indicators/symbols", nil, domain.TierFree, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp symbolsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"AAPL", "AMZN", "GOOGL", "MSFT", "TSLA"}, resp.Symbols)
	assert.Equal(t, 5, resp.Count)
}

func TestSymbols_DeniedWhenQuotaExhausted(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())
	userID := uuid.New()

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.Symbols(rec, authedRequest("GET", "/api/indicators/symbols", nil, domain.TierFree, userID))
		require.Equal(t, http.StatusOK, rec.Code, "request %d should be within quota", i+1)
	}

	rec := httptest.NewRecorder()
	h.Symbols(rec, authedRequest("GET", "/api/indicators/symbols", nil, domain.TierFree, userID))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	errObj := decodeErrorBody(t, rec)
	detail := errObj["detail"].(map[string]any)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", detail["reason"])
	assert.Equal(t, float64(50), detail["daily_limit"])
	assert.Equal(t, float64(51), detail["requests_made"])
	assert.Equal(t, float64(0), detail["remaining"])
	assert.NotZero(t, detail["reset_time"])
}

func TestQuota_CountersAreSeparatePerEndpoint(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())
	userID := uuid.New()

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.Symbols(rec, authedRequest("GET", "/api/indicators/symbols", nil, domain.TierFree, userID))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// symbols is exhausted but stock_data has its own counter
	start := time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout)
	end := time.Now().UTC().Format(dateLayout)
	target := fmt.Sprintf("/api/indicators/data/AAPL?start_date=%s&end_date=%s", start, end)

	req := authedRequest("GET", target, nil, domain.TierFree, userID)
	req.SetPathValue("symbol", "AAPL")
	rec := httptest.NewRecorder()
	h.StockData(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingStore struct{}

func (failingStore) IncrementAndGet(context.Context, uuid.UUID, string, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) Snapshot(context.Context, uuid.UUID, time.Time) (map[string]int64, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestSymbols_ServedWhenQuotaStoreIsDown(t *testing.T) {
	h, _ := newMarketHandler(t, failingStore{})

	rec := httptest.NewRecorder()
	h.Symbols(rec, authedRequest("GET", "/api/indicators/symbols", nil, domain.TierFree, uuid.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func stockDataRequest(tier domain.SubscriptionTier, symbol, start, end string) *http.Request {
	target := fmt.Sprintf("/api/indicators/data/%s?start_date=%s&end_date=%s", symbol, start, end)
	req := authedRequest("GET", target, nil, tier, uuid.New())
	req.SetPathValue("symbol", symbol)
	return req
}

func TestStockData_ReturnsOrderedRows(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	start := time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout)
	end := time.Now().UTC().Format(dateLayout)

	rec := httptest.NewRecorder()
	h.StockData(rec, stockDataRequest(domain.TierFree, "AAPL", start, end))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp stockDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Equal(t, len(resp.Data), resp.Count)
	require.NotEmpty(t, resp.Data)
	for i := 1; i < len(resp.Data); i++ {
		assert.True(t, resp.Data[i-1].Date.Before(resp.Data[i].Date))
	}
}

func TestStockData_HistoryWindowPerTier(t *testing.T) {
	start := time.Now().UTC().AddDate(0, 0, -1000).Format(dateLayout)
	end := time.Now().UTC().Format(dateLayout)

	tests := []struct {
		tier domain.SubscriptionTier
		want int
	}{
		{domain.TierFree, http.StatusForbidden},
		{domain.TierPro, http.StatusForbidden},
		{domain.TierPremium, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

			rec := httptest.NewRecorder()
			h.StockData(rec, stockDataRequest(tt.tier, "AAPL", start, end))

			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				errObj := decodeErrorBody(t, rec)
				detail := errObj["detail"].(map[string]any)
				assert.Equal(t, "DATE_RANGE_RESTRICTED", detail["reason"])
				assert.NotEmpty(t, detail["earliest_allowed"])
			}
		})
	}
}

func TestStockData_InvalidDates(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"missing", "", ""},
		{"malformed start", "01-02-2026", "2026-02-01"},
		{"end before start", "2026-02-01", "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.StockData(rec, stockDataRequest(domain.TierFree, "AAPL", tt.start, tt.end))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStockData_UnknownSymbol(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	start := time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout)
	end := time.Now().UTC().Format(dateLayout)

	rec := httptest.NewRecorder()
	h.StockData(rec, stockDataRequest(domain.TierFree, "NOPE", start, end))

	require.Equal(t, http.StatusNotFound, rec.Code)
	errObj := decodeErrorBody(t, rec)
	detail := errObj["detail"].(map[string]any)
	assert.Equal(t, "SYMBOL_NOT_FOUND", detail["reason"])
}

func calculateBody(t *testing.T, req calculateRequest) io.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return strings.NewReader(string(b))
}

func TestCalculate_SMAForFreeTier(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	body := calculateBody(t, calculateRequest{
		Symbol:    "AAPL",
		Indicator: "sma",
		StartDate: time.Now().UTC().AddDate(0, 0, -60).Format(dateLayout),
		EndDate:   time.Now().UTC().Format(dateLayout),
		Period:    10,
	})

	rec := httptest.NewRecorder()
	h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", body, domain.TierFree, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp calculateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sma", resp.Indicator)
	assert.Equal(t, map[string]any{"period": float64(10)}, resp.Parameters)
	assert.NotEmpty(t, resp.Data)
}

func TestCalculate_IndicatorAccessPerTier(t *testing.T) {
	tests := []struct {
		tier      domain.SubscriptionTier
		indicator string
		want      int
	}{
		{domain.TierFree, "rsi", http.StatusForbidden},
		{domain.TierFree, "ema", http.StatusOK},
		{domain.TierPro, "rsi", http.StatusOK},
		{domain.TierPro, "bollinger_bands", http.StatusForbidden},
		{domain.TierPremium, "bollinger_bands", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+"/"+tt.indicator, func(t *testing.T) {
			h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

			body := calculateBody(t, calculateRequest{
				Symbol:    "MSFT",
				Indicator: tt.indicator,
				StartDate: time.Now().UTC().AddDate(0, 0, -60).Format(dateLayout),
				EndDate:   time.Now().UTC().Format(dateLayout),
			})

			rec := httptest.NewRecorder()
			h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", body, tt.tier, uuid.New()))

			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusForbidden {
				errObj := decodeErrorBody(t, rec)
				detail := errObj["detail"].(map[string]any)
				assert.Equal(t, "INDICATOR_NOT_ALLOWED", detail["reason"])
				assert.Equal(t, tt.indicator, detail["indicator"])
				assert.Equal(t, string(tt.tier), detail["tier"])
			}
		})
	}
}

func TestCalculate_UnknownIndicator(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	body := calculateBody(t, calculateRequest{
		Symbol:    "AAPL",
		Indicator: "vwap",
		StartDate: "2026-01-01",
		EndDate:   "2026-02-01",
	})

	rec := httptest.NewRecorder()
	h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", body, domain.TierPremium, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculate_NoDataInRange(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	// Sample data only has weekday bars, so a weekend-only range is empty.
	var saturday time.Time
	for d := time.Now().UTC().AddDate(0, 0, -14); ; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday {
			saturday = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			break
		}
	}

	body := calculateBody(t, calculateRequest{
		Symbol:    "AAPL",
		Indicator: "sma",
		StartDate: saturday.Format(dateLayout),
		EndDate:   saturday.AddDate(0, 0, 1).Format(dateLayout),
	})

	rec := httptest.NewRecorder()
	h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", body, domain.TierFree, uuid.New()))

	require.Equal(t, http.StatusNotFound, rec.Code)
	errObj := decodeErrorBody(t, rec)
	detail := errObj["detail"].(map[string]any)
	assert.Equal(t, "NO_DATA_FOUND", detail["reason"])
}

func TestCalculate_SecondIdenticalRequestHitsCache(t *testing.T) {
	h, c := newMarketHandler(t, ratelimit.NewMemoryStore())

	makeBody := func() io.Reader {
		return calculateBody(t, calculateRequest{
			Symbol:    "TSLA",
			Indicator: "ema",
			StartDate: time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout),
			EndDate:   time.Now().UTC().Format(dateLayout),
			Period:    5,
		})
	}

	first := httptest.NewRecorder()
	h.Calculate(first, authedRequest("POST", "/api/indicators/calculate", makeBody(), domain.TierFree, uuid.New()))
	require.Equal(t, http.StatusOK, first.Code)

	// Poison the cached entry so a hit is distinguishable from a recompute.
	fp := cache.Fingerprint("indicator", map[string]any{
		"symbol":     "TSLA",
		"start_date": mustParseDate(t, time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout)),
		"end_date":   mustParseDate(t, time.Now().UTC().Format(dateLayout)),
		"indicator":  "ema",
		"parameters": map[string]any{"period": 5},
	})
	c.Set(context.Background(), fp, []byte(`{"cached":true}`), time.Minute)

	second := httptest.NewRecorder()
	h.Calculate(second, authedRequest("POST", "/api/indicators/calculate", makeBody(), domain.TierFree, uuid.New()))

	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, `{"cached":true}`, second.Body.String())
}

func TestCalculate_DefaultAndExplicitParamsShareCacheEntry(t *testing.T) {
	h, c := newMarketHandler(t, ratelimit.NewMemoryStore())

	start := time.Now().UTC().AddDate(0, 0, -60).Format(dateLayout)
	end := time.Now().UTC().Format(dateLayout)

	// First request omits the period entirely.
	first := httptest.NewRecorder()
	h.Calculate(first, authedRequest("POST", "/api/indicators/calculate", calculateBody(t, calculateRequest{
		Symbol:    "AAPL",
		Indicator: "rsi",
		StartDate: start,
		EndDate:   end,
	}), domain.TierPro, uuid.New()))
	require.Equal(t, http.StatusOK, first.Code)

	// Poison the sole cache entry, then request with the default spelled out.
	fp := cache.Fingerprint("indicator", map[string]any{
		"symbol":     "AAPL",
		"start_date": mustParseDate(t, start),
		"end_date":   mustParseDate(t, end),
		"indicator":  "rsi",
		"parameters": map[string]any{"period": 14},
	})
	c.Set(context.Background(), fp, []byte(`{"cached":true}`), time.Minute)

	second := httptest.NewRecorder()
	h.Calculate(second, authedRequest("POST", "/api/indicators/calculate", calculateBody(t, calculateRequest{
		Symbol:    "AAPL",
		Indicator: "rsi",
		StartDate: start,
		EndDate:   end,
		Period:    14,
	}), domain.TierPro, uuid.New()))

	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, `{"cached":true}`, second.Body.String())
}

func TestCalculate_ParameterBounds(t *testing.T) {
	start := time.Now().UTC().AddDate(0, 0, -60).Format(dateLayout)
	end := time.Now().UTC().Format(dateLayout)

	tests := []struct {
		name string
		req  calculateRequest
	}{
		{"period too small", calculateRequest{Indicator: "sma", Period: 1}},
		{"period too large", calculateRequest{Indicator: "sma", Period: 201}},
		{"fast period too large", calculateRequest{Indicator: "macd", FastPeriod: 51}},
		{"slow period too large", calculateRequest{Indicator: "macd", SlowPeriod: 101}},
		{"signal period too small", calculateRequest{Indicator: "macd", SignalPeriod: 1}},
		{"std dev too small", calculateRequest{Indicator: "bollinger_bands", StdDev: 0.4}},
		{"std dev too large", calculateRequest{Indicator: "bollinger_bands", StdDev: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

			tt.req.Symbol = "AAPL"
			tt.req.StartDate = start
			tt.req.EndDate = end

			rec := httptest.NewRecorder()
			h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", calculateBody(t, tt.req), domain.TierPremium, uuid.New()))

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCalculate_RejectsSingleDayRange(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	day := time.Now().UTC().AddDate(0, 0, -10).Format(dateLayout)
	body := calculateBody(t, calculateRequest{
		Symbol:    "AAPL",
		Indicator: "sma",
		StartDate: day,
		EndDate:   day,
	})

	rec := httptest.NewRecorder()
	h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", body, domain.TierFree, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockData_AllowsSingleDayRange(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())

	// Pick a recent weekday so the sample dataset has a bar for it.
	d := time.Now().UTC().AddDate(0, 0, -7)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	day := d.Format(dateLayout)

	rec := httptest.NewRecorder()
	h.StockData(rec, stockDataRequest(domain.TierFree, "AAPL", day, day))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp stockDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, s)
	require.NoError(t, err)
	return d
}

func TestCalculate_CacheHitStillChargesQuota(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h, _ := newMarketHandler(t, store)
	userID := uuid.New()

	makeBody := func() io.Reader {
		return calculateBody(t, calculateRequest{
			Symbol:    "AAPL",
			Indicator: "sma",
			StartDate: time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout),
			EndDate:   time.Now().UTC().Format(dateLayout),
		})
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Calculate(rec, authedRequest("POST", "/api/indicators/calculate", makeBody(), domain.TierFree, userID))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.RateLimitStatus(rec, authedRequest("GET", "/api/indicators/rate-limit-status", nil, domain.TierFree, userID))
	require.Equal(t, http.StatusOK, rec.Code)

	var status rateLimitStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(2), status.RequestsToday)
	assert.Equal(t, int64(2), status.Endpoints["calculate_indicator"])
}

func TestRateLimitStatus_AggregatesEndpoints(t *testing.T) {
	h, _ := newMarketHandler(t, ratelimit.NewMemoryStore())
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.Symbols(rec, authedRequest("GET", "/api/indicators/symbols", nil, domain.TierPro, userID))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.RateLimitStatus(rec, authedRequest("GET", "/api/indicators/rate-limit-status", nil, domain.TierPro, userID))

	require.Equal(t, http.StatusOK, rec.Code)

	var status rateLimitStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "pro", status.Tier)
	assert.Equal(t, int64(500), status.DailyLimit)
	assert.Equal(t, int64(3), status.RequestsToday)
	assert.Equal(t, int64(497), status.Remaining)
	assert.Equal(t, int64(3), status.Endpoints["symbols"])
}
