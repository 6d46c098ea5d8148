package risk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/audit"
	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/risk"
	"github.com/traderisk/trade-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a risk engine and HTTP service over an in-memory store.
func newTestEnv(t *testing.T) (*risk.Engine, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	engine := risk.NewEngine(ms, audit.NewRecorder(ms))
	svc := risk.NewService(engine, ms, nil)

	r := chi.NewRouter()
	r.Get("/api/v1/risk/{portfolioID}", svc.GetRisk)
	r.Get("/api/v1/risk/{portfolioID}/history", svc.GetRiskHistory)

	return engine, ms, r
}

// seedPortfolio creates a user and portfolio directly in the store.
func seedPortfolio(t *testing.T, ms *store.MemoryStore, userID string) *model.Portfolio {
	t.Helper()
	ctx := context.Background()
	if err := ms.CreateUser(ctx, &model.User{
		ID: userID, Username: userID, Role: model.RoleTrader, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	portfolio := &model.Portfolio{
		ID:         "portfolio-" + userID,
		UserID:     userID,
		TotalValue: decimal.Zero,
	}
	if err := ms.CreatePortfolio(ctx, portfolio); err != nil {
		t.Fatalf("failed to seed portfolio: %v", err)
	}
	return portfolio
}

// seedHolding creates an instrument and a position in one call. A negative
// market price seeds an instrument without one.
func seedHolding(t *testing.T, ms *store.MemoryStore, portfolioID, symbol string, qty int64, avgPrice, marketPrice float64) {
	t.Helper()
	ctx := context.Background()
	instrument := &model.Instrument{
		ID:     "inst-" + symbol,
		Symbol: symbol,
		Name:   symbol + " Test Corp",
	}
	if marketPrice >= 0 {
		p := d(marketPrice)
		instrument.CurrentPrice = &p
	}
	if err := ms.CreateInstrument(ctx, instrument); err != nil {
		t.Fatalf("failed to seed instrument: %v", err)
	}
	if err := ms.CreatePosition(ctx, &model.Position{
		ID:           "pos-" + portfolioID + "-" + symbol,
		PortfolioID:  portfolioID,
		InstrumentID: instrument.ID,
		Quantity:     qty,
		AvgPrice:     d(avgPrice),
	}); err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
}

// --- Engine tests ---

func TestCalculate_EmptyPortfolio(t *testing.T) {
	engine, ms, _ := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")

	resp, err := engine.Calculate(context.Background(), portfolio.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if !resp.TotalExposure.IsZero() {
		t.Errorf("expected zero exposure, got %s", resp.TotalExposure)
	}
	if !resp.ConcentrationRisk.IsZero() {
		t.Errorf("expected zero concentration, got %s", resp.ConcentrationRisk)
	}
	if !resp.RiskScore.IsZero() {
		t.Errorf("expected zero score, got %s", resp.RiskScore)
	}

	// The zero profile is still persisted as a snapshot row.
	snaps, _ := ms.ListRiskMetrics(context.Background(), portfolio.ID, store.RiskFilter{Limit: 10})
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if !snaps[0].TotalExposure.IsZero() {
		t.Errorf("snapshot exposure should be zero, got %s", snaps[0].TotalExposure)
	}
}

func TestCalculate_ConcentrationAndScore(t *testing.T) {
	engine, ms, _ := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")
	seedHolding(t, ms, portfolio.ID, "AAPL", 7, 95, 100) // 700 at market
	seedHolding(t, ms, portfolio.ID, "MSFT", 3, 90, 100) // 300 at market

	resp, err := engine.Calculate(context.Background(), portfolio.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if !resp.TotalExposure.Equal(d(1000)) {
		t.Errorf("expected exposure 1000, got %s", resp.TotalExposure)
	}
	// Largest holding is 700 of 1000 total.
	if !resp.ConcentrationRisk.Equal(d(0.7)) {
		t.Errorf("expected concentration 0.7, got %s", resp.ConcentrationRisk)
	}
	if !resp.RiskScore.Equal(d(70)) {
		t.Errorf("expected score 70, got %s", resp.RiskScore)
	}
}

func TestCalculate_FallsBackToAvgPrice(t *testing.T) {
	engine, ms, _ := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")
	seedHolding(t, ms, portfolio.ID, "PRIV", 10, 50, -1) // no market price

	resp, err := engine.Calculate(context.Background(), portfolio.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if !resp.TotalExposure.Equal(d(500)) {
		t.Errorf("expected exposure 500 from cost basis, got %s", resp.TotalExposure)
	}
	// Single holding: fully concentrated.
	if !resp.ConcentrationRisk.Equal(d(1)) {
		t.Errorf("expected concentration 1, got %s", resp.ConcentrationRisk)
	}
	if !resp.RiskScore.Equal(d(100)) {
		t.Errorf("expected score 100, got %s", resp.RiskScore)
	}
}

func TestCalculate_RepeatedRunsAppendSnapshots(t *testing.T) {
	engine, ms, _ := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")
	seedHolding(t, ms, portfolio.ID, "AAPL", 7, 95, 100)
	seedHolding(t, ms, portfolio.ID, "MSFT", 3, 90, 100)

	first, err := engine.Calculate(context.Background(), portfolio.ID)
	if err != nil {
		t.Fatalf("first calculate failed: %v", err)
	}
	second, err := engine.Calculate(context.Background(), portfolio.ID)
	if err != nil {
		t.Fatalf("second calculate failed: %v", err)
	}

	// Same positions, same numbers.
	if !first.TotalExposure.Equal(second.TotalExposure) ||
		!first.ConcentrationRisk.Equal(second.ConcentrationRisk) ||
		!first.RiskScore.Equal(second.RiskScore) {
		t.Errorf("repeated runs disagree: %+v vs %+v", first, second)
	}

	// Snapshots are listed newest first.
	snaps, _ := ms.ListRiskMetrics(context.Background(), portfolio.ID, store.RiskFilter{Limit: 10})
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Timestamp.Before(snaps[1].Timestamp) {
		t.Error("expected newest snapshot first")
	}
}

func TestCalculate_AuditLogWritten(t *testing.T) {
	engine, ms, _ := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")

	if _, err := engine.Calculate(context.Background(), portfolio.ID); err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	logs := ms.AuditLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(logs))
	}
	if logs[0].Action != audit.ActionRiskCalculated {
		t.Errorf("expected action RISK_CALCULATED, got %s", logs[0].Action)
	}
	if logs[0].UserID != "user1" {
		t.Errorf("expected user_id=user1, got %s", logs[0].UserID)
	}
}

func TestCalculate_PortfolioNotFound(t *testing.T) {
	engine, _, _ := newTestEnv(t)

	_, err := engine.Calculate(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for unknown portfolio")
	}
}

// --- HTTP tests ---

func TestGetRisk_OK(t *testing.T) {
	_, ms, router := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")
	seedHolding(t, ms, portfolio.ID, "AAPL", 7, 95, 100)
	seedHolding(t, ms, portfolio.ID, "MSFT", 3, 90, 100)

	req := httptest.NewRequest("GET", "/api/v1/risk/"+portfolio.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp risk.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.PortfolioID != portfolio.ID {
		t.Errorf("unexpected portfolio_id: %s", resp.PortfolioID)
	}
	if !resp.TotalExposure.Equal(d(1000)) {
		t.Errorf("expected exposure 1000, got %s", resp.TotalExposure)
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestGetRisk_PortfolioNotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/risk/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetRiskHistory_ReturnsSnapshots(t *testing.T) {
	engine, ms, router := newTestEnv(t)
	portfolio := seedPortfolio(t, ms, "user1")
	seedHolding(t, ms, portfolio.ID, "AAPL", 7, 95, 100)

	for i := 0; i < 3; i++ {
		if _, err := engine.Calculate(context.Background(), portfolio.ID); err != nil {
			t.Fatalf("calculate %d failed: %v", i, err)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/risk/"+portfolio.ID+"/history?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var history []risk.Response
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 2 {
		t.Fatalf("expected 2 entries with limit=2, got %d", len(history))
	}
}

func TestGetRiskHistory_PortfolioNotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/risk/nope/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
