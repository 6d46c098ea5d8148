// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade statuses. PENDING transitions to EXECUTED exactly once; there are no
// other transitions. Failed trades never reach PENDING.
const (
	StatusPending  = "PENDING"
	StatusExecuted = "EXECUTED"
)

// User roles.
const (
	RoleAdmin  = "ADMIN"
	RoleTrader = "TRADER"
)

// User is an authenticated trader. Credentials live with the identity
// service; the engine only needs identity and role.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"` // "ADMIN" or "TRADER"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Instrument is a tradable security. CurrentPrice is nil until the market
// data process has published a price; valuation falls back to average cost.
type Instrument struct {
	ID           string           `json:"id" db:"id"`
	Symbol       string           `json:"symbol" db:"symbol"`
	Name         string           `json:"name" db:"name"`
	CurrentPrice *decimal.Decimal `json:"current_price" db:"current_price"`
}

// Portfolio holds a user's aggregate account value. One portfolio per user.
// Version is a monotonic counter bumped on every TotalValue write; stale
// concurrent writes are rejected by compare-and-swap.
type Portfolio struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	TotalValue decimal.Decimal `json:"total_value" db:"total_value"`
	Version    int64           `json:"version" db:"version"`
}

// Position is a trader's current holding of one instrument in one portfolio.
// At most one row exists per (portfolio, instrument); a position whose
// quantity reaches zero is deleted, never kept.
type Position struct {
	ID           string          `json:"id" db:"id"`
	PortfolioID  string          `json:"portfolio_id" db:"portfolio_id"`
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Quantity     int64           `json:"quantity" db:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price" db:"avg_price"`
	Version      int64           `json:"version" db:"version"`
}

// Holding is a position joined with its instrument, the read shape used by
// valuation and risk so one store call yields a consistent snapshot.
type Holding struct {
	Position
	Symbol       string           `json:"symbol"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
}

// MarketValue returns quantity × current price, falling back to the average
// cost when no market price is known.
func (h Holding) MarketValue() decimal.Decimal {
	price := h.AvgPrice
	if h.CurrentPrice != nil {
		price = *h.CurrentPrice
	}
	return price.Mul(decimal.NewFromInt(h.Quantity))
}

// Trade is a record of a single buy or sell. Immutable once EXECUTED except
// for the PENDING→EXECUTED status transition itself.
type Trade struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Quantity     int64           `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Side         string          `json:"side" db:"side"`     // "BUY" or "SELL"
	Status       string          `json:"status" db:"status"` // "PENDING" or "EXECUTED"
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// RiskMetric is an append-only risk snapshot for a portfolio. Rows are never
// updated or deleted; timestamps are non-decreasing in insertion order.
type RiskMetric struct {
	ID                string          `json:"id" db:"id"`
	PortfolioID       string          `json:"portfolio_id" db:"portfolio_id"`
	TotalExposure     decimal.Decimal `json:"total_exposure" db:"total_exposure"`
	ConcentrationRisk decimal.Decimal `json:"concentration_risk" db:"concentration_risk"`
	RiskScore         decimal.Decimal `json:"risk_score" db:"risk_score"`
	Timestamp         time.Time       `json:"timestamp" db:"timestamp"`
}

// AuditLog records a system action performed by a user. Best-effort: writes
// that fail are logged and dropped, never surfaced to the caller.
type AuditLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
