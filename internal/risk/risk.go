// Package risk computes exposure, concentration, and score metrics from a
// portfolio's positions and persists an append-only snapshot per run.
//
// All monetary values use shopspring/decimal — never float64 for money.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/audit"
	"github.com/traderisk/trade-engine/internal/metrics"
	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/money"
	"github.com/traderisk/trade-engine/internal/store"
)

// Response describes one computed risk profile.
type Response struct {
	PortfolioID       string          `json:"portfolio_id"`
	TotalExposure     decimal.Decimal `json:"total_exposure"`
	ConcentrationRisk decimal.Decimal `json:"concentration_risk"`
	RiskScore         decimal.Decimal `json:"risk_score"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Engine computes risk profiles. It always computes fresh values when
// invoked — caching the result is the read path's concern, not the
// engine's.
type Engine struct {
	st       store.Store
	recorder *audit.Recorder
}

// NewEngine creates a risk engine over the given store.
func NewEngine(st store.Store, recorder *audit.Recorder) *Engine {
	return &Engine{st: st, recorder: recorder}
}

// Calculate computes the current risk profile for a portfolio and persists
// a snapshot row, zero-valued portfolios included. The positions are read
// in one store call, so the computation never mixes pre- and post-trade
// state of a concurrent trade.
func (e *Engine) Calculate(ctx context.Context, portfolioID string) (*Response, error) {
	portfolio, err := e.st.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	holdings, err := e.st.ListHoldings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	totalExposure := decimal.Zero
	maxValue := decimal.Zero
	for _, h := range holdings {
		value := h.MarketValue()
		totalExposure = totalExposure.Add(value)
		if value.GreaterThan(maxValue) {
			maxValue = value
		}
	}

	concentration := money.Ratio(maxValue, totalExposure)
	score := money.Scale(concentration.Mul(decimal.NewFromInt(100)))
	totalExposure = money.Scale(totalExposure)

	snapshot := &model.RiskMetric{
		ID:                uuid.New().String(),
		PortfolioID:       portfolioID,
		TotalExposure:     totalExposure,
		ConcentrationRisk: concentration,
		RiskScore:         score,
		Timestamp:         time.Now().UTC(),
	}
	if err := e.st.InsertRiskMetric(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist risk snapshot: %w", err)
	}

	e.recorder.Record(ctx, audit.ActionRiskCalculated, portfolio.UserID)
	metrics.RiskCalculations.Inc()

	slog.Info("risk calculated",
		"portfolio", portfolioID,
		"exposure", totalExposure.String(),
		"concentration", concentration.String(),
		"score", score.String(),
	)

	return &Response{
		PortfolioID:       portfolioID,
		TotalExposure:     totalExposure,
		ConcentrationRisk: concentration,
		RiskScore:         score,
		Timestamp:         snapshot.Timestamp,
	}, nil
}
