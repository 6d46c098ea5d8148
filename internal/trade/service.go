package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/cache"
	"github.com/traderisk/trade-engine/internal/ledger"
	"github.com/traderisk/trade-engine/internal/metrics"
	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/money"
	"github.com/traderisk/trade-engine/internal/store"
	"github.com/traderisk/trade-engine/internal/valuation"
)

// userIDHeader carries the authenticated caller's id, resolved by the
// identity service in front of this engine. The engine trusts it as-is.
const userIDHeader = "X-User-ID"

// --- Trade execution ---

// ExecuteTrade handles POST /api/v1/trades
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, "missing "+userIDHeader+" header", http.StatusUnauthorized)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.InstrumentID == "" {
		writeError(w, "instrument_id is required", http.StatusBadRequest)
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	start := time.Now()
	resp, err := s.Execute(r.Context(), userID, req)
	if err != nil {
		s.writeExecuteError(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues(req.Side).Inc()
	metrics.TradeLatency.WithLabelValues(req.Side).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Service) writeExecuteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.TradeRejections.WithLabelValues("not_found").Inc()
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrNoHolding), errors.Is(err, ledger.ErrInsufficientHolding):
		metrics.TradeRejections.WithLabelValues("validation").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, valuation.ErrConflict), errors.Is(err, store.ErrVersionConflict):
		metrics.TradeRejections.WithLabelValues("conflict").Inc()
		writeError(w, "concurrent update conflict, retry the trade", http.StatusConflict)
	default:
		writeError(w, "trade execution failed", http.StatusInternalServerError)
	}
}

// ListTrades handles GET /api/v1/trades
// Optional query params: instrument_id, start, end (RFC3339), limit, offset.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	f := store.TradeFilter{InstrumentID: r.URL.Query().Get("instrument_id")}
	f.Limit, f.Offset = parsePaging(r, 20)

	var ok bool
	if f.Start, ok = parseTimeParam(w, r, "start"); !ok {
		return
	}
	if f.End, ok = parseTimeParam(w, r, "end"); !ok {
		return
	}

	trades, err := s.st.ListTrades(r.Context(), f)
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// --- Instruments ---

// CreateInstrumentRequest is the JSON body for instrument creation.
type CreateInstrumentRequest struct {
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
}

// CreateInstrument handles POST /api/v1/instruments
func (s *Service) CreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req CreateInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" || req.Name == "" {
		writeError(w, "symbol and name are required", http.StatusBadRequest)
		return
	}
	if req.CurrentPrice != nil && req.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		writeError(w, "current_price must be positive when set", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	exists, err := s.st.InstrumentExistsBySymbol(ctx, req.Symbol)
	if err != nil {
		writeError(w, "failed to check symbol", http.StatusInternalServerError)
		return
	}
	if exists {
		writeError(w, "instrument with symbol "+req.Symbol+" already exists", http.StatusConflict)
		return
	}

	instrument := &model.Instrument{
		ID:     uuid.New().String(),
		Symbol: req.Symbol,
		Name:   req.Name,
	}
	if req.CurrentPrice != nil {
		price := money.Scale(*req.CurrentPrice)
		instrument.CurrentPrice = &price
	}

	if err := s.st.CreateInstrument(ctx, instrument); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, "instrument with symbol "+req.Symbol+" already exists", http.StatusConflict)
			return
		}
		writeError(w, "failed to create instrument", http.StatusInternalServerError)
		return
	}

	s.cache.EvictInstruments(ctx)
	writeJSON(w, http.StatusCreated, instrument)
}

// GetInstrument handles GET /api/v1/instruments/{instrumentID}
func (s *Service) GetInstrument(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")
	ctx := r.Context()

	var cached model.Instrument
	if s.cache.GetJSON(ctx, "instrument", cache.InstrumentKey(instrumentID), &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	instrument, err := s.st.GetInstrument(ctx, instrumentID)
	if err != nil {
		writeError(w, "instrument not found", http.StatusNotFound)
		return
	}

	s.cache.SetJSON(ctx, cache.InstrumentKey(instrumentID), instrument)
	writeJSON(w, http.StatusOK, instrument)
}

// ListInstruments handles GET /api/v1/instruments
func (s *Service) ListInstruments(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r, 20)
	ctx := r.Context()

	key := cache.InstrumentListKey(limit, offset)
	var cached []model.Instrument
	if s.cache.GetJSON(ctx, "instrument", key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	instruments, err := s.st.ListInstruments(ctx, limit, offset)
	if err != nil {
		writeError(w, "failed to list instruments", http.StatusInternalServerError)
		return
	}

	s.cache.SetJSON(ctx, key, instruments)
	writeJSON(w, http.StatusOK, instruments)
}

// --- Portfolios ---

// CreatePortfolioRequest is the JSON body for portfolio creation.
type CreatePortfolioRequest struct {
	UserID string `json:"user_id"`
}

// CreatePortfolio handles POST /api/v1/portfolios
// One portfolio per user; a second creation attempt conflicts.
func (s *Service) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.st.GetUser(ctx, req.UserID); err != nil {
		writeError(w, "user not found: "+req.UserID, http.StatusNotFound)
		return
	}

	portfolio := &model.Portfolio{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		TotalValue: decimal.Zero,
	}
	if err := s.st.CreatePortfolio(ctx, portfolio); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, "user already has a portfolio", http.StatusConflict)
			return
		}
		writeError(w, "failed to create portfolio", http.StatusInternalServerError)
		return
	}

	s.cache.EvictPortfolio(ctx, portfolio.ID)
	writeJSON(w, http.StatusCreated, portfolio)
}

// GetPortfolio handles GET /api/v1/portfolios/{portfolioID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	ctx := r.Context()

	var cached model.Portfolio
	if s.cache.GetJSON(ctx, "portfolio", cache.PortfolioKey(portfolioID), &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	portfolio, err := s.st.GetPortfolio(ctx, portfolioID)
	if err != nil {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}

	s.cache.SetJSON(ctx, cache.PortfolioKey(portfolioID), portfolio)
	writeJSON(w, http.StatusOK, portfolio)
}

// ListPortfolios handles GET /api/v1/portfolios
func (s *Service) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r, 20)
	portfolios, err := s.st.ListPortfolios(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "failed to list portfolios", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, portfolios)
}

// --- Helpers ---

func parsePaging(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, true
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, "invalid "+name+" time, want RFC3339", http.StatusBadRequest)
		return time.Time{}, false
	}
	return ts, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
