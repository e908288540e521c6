package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tickwise/tickwise/internal/auth"
	"github.com/tickwise/tickwise/internal/cache"
	"github.com/tickwise/tickwise/internal/dataset"
	"github.com/tickwise/tickwise/internal/domain"
	"github.com/tickwise/tickwise/internal/indicator"
	"github.com/tickwise/tickwise/internal/ratelimit"
)

// Endpoint names used as rate-limit counter keys. Every quota-charged route
// has its own counter; changing a name silently starts a fresh counter.
const (
	endpointSymbols   = "symbols"
	endpointStockData = "stock_data"
	endpointCalculate = "calculate_indicator"
)

const dateLayout = "2006-01-02"

// MarketHandler serves stock data and indicator calculations, enforcing the
// caller's tier policy and daily quota on each request.
//
// Routes handled:
//   - GET  /api/indicators/symbols           -> Symbols
//   - GET  /api/indicators/data/{symbol}     -> StockData
//   - POST /api/indicators/calculate         -> Calculate
//   - GET  /api/indicators/rate-limit-status -> RateLimitStatus
type MarketHandler struct {
	data    *dataset.Service
	limiter *ratelimit.Limiter
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger

	// now is replaceable in tests to pin the policy window.
	now func() time.Time
}

// NewMarketHandler creates a new MarketHandler. ttl bounds cached responses;
// zero means cache.DefaultTTL.
func NewMarketHandler(data *dataset.Service, limiter *ratelimit.Limiter, c cache.Cache, ttl time.Duration, logger *slog.Logger) *MarketHandler {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &MarketHandler{
		data:    data,
		limiter: limiter,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes registers market data routes on the provided mux.
func (h *MarketHandler) RegisterRoutes(mux *http.ServeMux, protected func(http.Handler) http.Handler) {
	mux.Handle("GET /api/indicators/symbols", protected(http.HandlerFunc(h.Symbols)))
	mux.Handle("GET /api/indicators/data/{symbol}", protected(http.HandlerFunc(h.StockData)))
	mux.Handle("POST /api/indicators/calculate", protected(http.HandlerFunc(h.Calculate)))
	mux.Handle("GET /api/indicators/rate-limit-status", protected(http.HandlerFunc(h.RateLimitStatus)))
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

type stockDataResponse struct {
	Symbol    string          `json:"symbol"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Count     int             `json:"count"`
	Data      []domain.Candle `json:"data"`
}

type calculateRequest struct {
	Symbol       string  `json:"symbol"`
	Indicator    string  `json:"indicator"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Period       int     `json:"period,omitempty"`
	FastPeriod   int     `json:"fast_period,omitempty"`
	SlowPeriod   int     `json:"slow_period,omitempty"`
	SignalPeriod int     `json:"signal_period,omitempty"`
	StdDev       float64 `json:"std_dev,omitempty"`
}

type calculateResponse struct {
	Symbol     string         `json:"symbol"`
	Indicator  string         `json:"indicator"`
	Parameters map[string]any `json:"parameters"`
	StartDate  string         `json:"start_date"`
	EndDate    string         `json:"end_date"`
	Data       any            `json:"data"`
}

type rateLimitStatusResponse struct {
	Tier          string           `json:"tier"`
	DailyLimit    int64            `json:"daily_limit"`
	RequestsToday int64            `json:"requests_today"`
	Remaining     int64            `json:"remaining"`
	ResetTime     int64            `json:"reset_time"`
	Endpoints     map[string]int64 `json:"endpoints"`
}

// checkQuota charges one request against the caller's daily quota and
// returns a structured rate-limit error when the quota is exhausted.
func (h *MarketHandler) checkQuota(r *http.Request, endpoint string) error {
	user := auth.GetUser(r.Context())
	sub := auth.GetSubscription(r.Context())

	tier := domain.TierFree
	if sub != nil {
		tier = sub.Tier
	}

	result := h.limiter.Check(r.Context(), user.ID, tier, endpoint)
	if result.Allowed {
		return nil
	}

	return domain.QuotaExceeded("handler."+endpoint, result.DailyLimit, result.RequestsMade, result.ResetAt)
}

// Symbols returns the list of symbols present in the dataset.
func (h *MarketHandler) Symbols(w http.ResponseWriter, r *http.Request) {
	if err := h.checkQuota(r, endpointSymbols); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	symbols, err := h.data.Symbols()
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, symbolsResponse{Symbols: symbols, Count: len(symbols)})
}

// StockData returns raw OHLC rows for a symbol over a date range, subject to
// the caller's historical-depth allowance.
func (h *MarketHandler) StockData(w http.ResponseWriter, r *http.Request) {
	if err := h.checkQuota(r, endpointStockData); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	symbol := r.PathValue("symbol")
	start, end, err := parseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub := auth.GetSubscription(r.Context())
	tier := domain.TierFree
	if sub != nil {
		tier = sub.Tier
	}

	if !domain.IsHistoryWindowAllowed(tier, start, h.now()) {
		earliest := domain.EarliestAllowedDate(tier, h.now())
		ErrorResponse(w, r, h.logger, domain.HistoryWindowExceeded("handler.stock_data", tier, earliest))
		return
	}

	fp := cache.Fingerprint("stock_data", map[string]any{
		"symbol":     symbol,
		"start_date": start,
		"end_date":   end,
	})
	if payload, ok := h.cache.Get(r.Context(), fp); ok {
		WriteJSONBytes(w, http.StatusOK, payload)
		return
	}

	rows, err := h.data.Rows(symbol, start, end)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := stockDataResponse{
		Symbol:    symbol,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Count:     len(rows),
		Data:      rows,
	}

	h.writeAndCache(w, r, fp, resp)
}

// Calculate computes a technical indicator for a symbol over a date range,
// subject to the caller's indicator and historical-depth allowances.
func (h *MarketHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	if err := h.checkQuota(r, endpointCalculate); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	kind := domain.IndicatorKind(req.Indicator)
	if !domain.IsValidIndicator(kind) {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.calculate", "Unknown indicator: "+req.Indicator))
		return
	}

	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Unlike the raw data route, a single-day indicator request is
	// meaningless, so the end date must be strictly later.
	if !end.After(start) {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.calculate", "end_date must be after start_date"))
		return
	}

	// Resolving applies defaults and bounds-checks every parameter, and the
	// resolved set keys the cache: omitting a parameter and passing its
	// default explicitly land on the same entry.
	params, effective, err := indicator.Resolve(kind, indicator.Params{
		Period:       req.Period,
		FastPeriod:   req.FastPeriod,
		SlowPeriod:   req.SlowPeriod,
		SignalPeriod: req.SignalPeriod,
		StdDev:       req.StdDev,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub := auth.GetSubscription(r.Context())
	tier := domain.TierFree
	if sub != nil {
		tier = sub.Tier
	}

	// Indicator access is checked before the history window so the caller
	// learns about the harder restriction first.
	if !domain.IsIndicatorAllowed(tier, kind) {
		ErrorResponse(w, r, h.logger, domain.IndicatorNotAllowed("handler.calculate", kind, tier))
		return
	}

	if !domain.IsHistoryWindowAllowed(tier, start, h.now()) {
		earliest := domain.EarliestAllowedDate(tier, h.now())
		ErrorResponse(w, r, h.logger, domain.HistoryWindowExceeded("handler.calculate", tier, earliest))
		return
	}

	fp := cache.Fingerprint("indicator", map[string]any{
		"symbol":     req.Symbol,
		"start_date": start,
		"end_date":   end,
		"indicator":  string(kind),
		"parameters": effective,
	})
	if payload, ok := h.cache.Get(r.Context(), fp); ok {
		WriteJSONBytes(w, http.StatusOK, payload)
		return
	}

	rows, err := h.data.Rows(req.Symbol, start, end)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if len(rows) == 0 {
		ErrorResponse(w, r, h.logger, domain.NotFound(
			"handler.calculate",
			"No data found for symbol "+req.Symbol+" in the specified date range",
			domain.ReasonNoDataInRange,
		))
		return
	}

	series, _, err := indicator.Compute(kind, rows, params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := calculateResponse{
		Symbol:     req.Symbol,
		Indicator:  string(kind),
		Parameters: effective,
		StartDate:  start.Format(dateLayout),
		EndDate:    end.Format(dateLayout),
		Data:       series,
	}

	h.writeAndCache(w, r, fp, resp)
}

// RateLimitStatus reports the caller's consumption against today's quota.
// This endpoint itself is not charged against the quota.
func (h *MarketHandler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	sub := auth.GetSubscription(r.Context())

	tier := domain.TierFree
	if sub != nil {
		tier = sub.Tier
	}

	status := h.limiter.StatusFor(r.Context(), user.ID, tier)

	WriteJSON(w, http.StatusOK, rateLimitStatusResponse{
		Tier:          string(status.Tier),
		DailyLimit:    status.DailyLimit,
		RequestsToday: status.RequestsToday,
		Remaining:     status.Remaining,
		ResetTime:     status.ResetAt.Unix(),
		Endpoints:     status.Endpoints,
	})
}

// writeAndCache serializes the response once, stores it under the
// fingerprint, and writes the same bytes to the client.
func (h *MarketHandler) writeAndCache(w http.ResponseWriter, r *http.Request, fp string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, "handler.encode", "Failed to encode response"))
		return
	}

	h.cache.Set(r.Context(), fp, payload, h.ttl)
	WriteJSONBytes(w, http.StatusOK, payload)
}

// parseDateRange parses and validates a start/end date pair in YYYY-MM-DD
// form. The end date must not precede the start date.
func parseDateRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr == "" || endStr == "" {
		return start, end, domain.Invalid("handler.dates", "start_date and end_date are required")
	}

	start, err = time.Parse(dateLayout, startStr)
	if err != nil {
		return start, end, domain.Invalid("handler.dates", "Invalid start_date, expected YYYY-MM-DD")
	}

	end, err = time.Parse(dateLayout, endStr)
	if err != nil {
		return start, end, domain.Invalid("handler.dates", "Invalid end_date, expected YYYY-MM-DD")
	}

	if end.Before(start) {
		return start, end, domain.Invalid("handler.dates", "end_date must not be before start_date")
	}

	return start, end, nil
}
