// Package trade provides the HTTP handlers and business logic for executing
// trades and managing portfolios and instruments.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/audit"
	"github.com/traderisk/trade-engine/internal/cache"
	"github.com/traderisk/trade-engine/internal/ledger"
	"github.com/traderisk/trade-engine/internal/locks"
	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/money"
	"github.com/traderisk/trade-engine/internal/store"
	"github.com/traderisk/trade-engine/internal/valuation"
)

// Service handles trade execution and the trade/portfolio/instrument HTTP
// surface. Trades on the same (portfolio, instrument) holding serialize on
// a keyed lock held for the whole read-compute-write sequence; trades on
// different holdings proceed independently.
type Service struct {
	st       store.Store
	locks    *locks.Keyed
	recorder *audit.Recorder
	cache    *cache.Cache // nil disables caching and eviction
	hub      *WSHub       // optional hub for executed-trade broadcasts
}

// NewService creates a new trade service.
// Pass nil for c and hub when caching or broadcasting is not needed.
func NewService(st store.Store, recorder *audit.Recorder, c *cache.Cache, hub *WSHub) *Service {
	return &Service{
		st:       st,
		locks:    locks.NewKeyed(),
		recorder: recorder,
		cache:    c,
		hub:      hub,
	}
}

// Request is the body of a trade submission.
type Request struct {
	InstrumentID string          `json:"instrument_id"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Side         string          `json:"side"` // "BUY" or "SELL"
}

// Response describes a finalized trade.
type Response struct {
	TradeID      string          `json:"trade_id"`
	UserID       string          `json:"user_id"`
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Side         string          `json:"side"`
	Status       string          `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Execute runs a trade through its full lifecycle: resolve instrument, user
// and portfolio; pre-validate sells; then, inside one store transaction,
// create the PENDING trade, apply the position change, recompute the
// portfolio value, and finalize the trade as EXECUTED. A failure anywhere
// rolls the whole sequence back — nothing partially applied is kept.
//
// Audit and cache side effects run after the transaction commits and are
// best-effort: their failure never aborts an executed trade.
func (s *Service) Execute(ctx context.Context, userID string, req Request) (*Response, error) {
	slog.Info("trade execution start",
		"user", userID,
		"instrument", req.InstrumentID,
		"side", req.Side,
		"qty", req.Quantity,
	)

	instrument, err := s.st.GetInstrument(ctx, req.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", req.InstrumentID, err)
	}
	user, err := s.st.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	portfolio, err := s.st.GetPortfolioByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio for user %s: %w", userID, err)
	}

	key := portfolio.ID + "|" + instrument.ID
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Pre-validate SELL before any trade record exists.
	if req.Side == model.SideSell {
		pos, err := s.st.GetPosition(ctx, portfolio.ID, instrument.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrNoHolding, instrument.Symbol)
		}
		if err != nil {
			return nil, fmt.Errorf("load position: %w", err)
		}
		if req.Quantity > pos.Quantity {
			return nil, fmt.Errorf("%w: available %d, requested %d",
				ledger.ErrInsufficientHolding, pos.Quantity, req.Quantity)
		}
	}

	trade := &model.Trade{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		InstrumentID: instrument.ID,
		Quantity:     req.Quantity,
		Price:        money.Scale(req.Price),
		Side:         req.Side,
		Status:       model.StatusPending,
		Timestamp:    time.Now().UTC(),
	}

	err = s.st.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		switch req.Side {
		case model.SideBuy:
			if err := ledger.ApplyBuy(ctx, tx, portfolio.ID, instrument.ID, req.Quantity, req.Price); err != nil {
				return err
			}
		default: // SELL, validated by the handler
			if err := ledger.ApplySell(ctx, tx, portfolio.ID, instrument.ID, req.Quantity); err != nil {
				return err
			}
		}

		if _, err := valuation.Recompute(ctx, tx, portfolio.ID); err != nil {
			return err
		}

		if err := tx.UpdateTradeStatus(ctx, trade.ID, model.StatusExecuted); err != nil {
			return fmt.Errorf("finalize trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	trade.Status = model.StatusExecuted

	// Side effects: best-effort only, after the commit.
	s.recorder.Record(ctx, audit.ActionTradeExecuted, user.ID)
	s.cache.EvictPortfolio(ctx, portfolio.ID)
	s.cache.EvictRisk(ctx, portfolio.ID)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:         "trade_executed",
			TradeID:      trade.ID,
			UserID:       user.ID,
			InstrumentID: instrument.ID,
			Symbol:       instrument.Symbol,
			Side:         trade.Side,
			Quantity:     trade.Quantity,
			Price:        trade.Price.String(),
		})
	}

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", user.ID,
		"symbol", instrument.Symbol,
		"side", trade.Side,
		"qty", trade.Quantity,
		"price", trade.Price.String(),
	)

	return &Response{
		TradeID:      trade.ID,
		UserID:       user.ID,
		InstrumentID: instrument.ID,
		Symbol:       instrument.Symbol,
		Quantity:     trade.Quantity,
		Price:        trade.Price,
		Side:         trade.Side,
		Status:       trade.Status,
		Timestamp:    trade.Timestamp,
	}, nil
}
