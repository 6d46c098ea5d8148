package risk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/traderisk/trade-engine/internal/cache"
	"github.com/traderisk/trade-engine/internal/store"
)

// Service exposes the risk HTTP endpoints. The GET path consults a
// short-TTL cache before invoking the engine; trade execution evicts the
// portfolio's entry so the next read recomputes.
type Service struct {
	engine *Engine
	st     store.Store
	cache  *cache.Cache // nil disables read caching
}

// NewService creates the risk HTTP service.
func NewService(engine *Engine, st store.Store, c *cache.Cache) *Service {
	return &Service{engine: engine, st: st, cache: c}
}

// GetRisk handles GET /api/v1/risk/{portfolioID}
func (s *Service) GetRisk(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	ctx := r.Context()

	var cached Response
	if s.cache.GetJSON(ctx, "risk", cache.RiskKey(portfolioID), &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	resp, err := s.engine.Calculate(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "portfolio not found: "+portfolioID, http.StatusNotFound)
			return
		}
		writeError(w, "risk calculation failed", http.StatusInternalServerError)
		return
	}

	s.cache.SetJSON(ctx, cache.RiskKey(portfolioID), resp)
	writeJSON(w, http.StatusOK, resp)
}

// GetRiskHistory handles GET /api/v1/risk/{portfolioID}/history
// Optional query params: limit, offset, start, end (RFC3339).
func (s *Service) GetRiskHistory(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	if _, err := s.st.GetPortfolio(r.Context(), portfolioID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "portfolio not found: "+portfolioID, http.StatusNotFound)
			return
		}
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	f := store.RiskFilter{Limit: 10}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	if v := r.URL.Query().Get("start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "invalid start time, want RFC3339", http.StatusBadRequest)
			return
		}
		f.Start = ts
	}
	if v := r.URL.Query().Get("end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "invalid end time, want RFC3339", http.StatusBadRequest)
			return
		}
		f.End = ts
	}

	snapshots, err := s.st.ListRiskMetrics(r.Context(), portfolioID, f)
	if err != nil {
		writeError(w, "failed to load risk history", http.StatusInternalServerError)
		return
	}

	history := make([]Response, 0, len(snapshots))
	for _, m := range snapshots {
		history = append(history, Response{
			PortfolioID:       m.PortfolioID,
			TotalExposure:     m.TotalExposure,
			ConcentrationRisk: m.ConcentrationRisk,
			RiskScore:         m.RiskScore,
			Timestamp:         m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, history)
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
