// Package seed loads development fixtures: an admin, a trader with a
// portfolio, and a sample instrument. Loading is idempotent — a store that
// already has users is left untouched.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/store"
)

// Load populates the store with development data unless users already exist.
func Load(ctx context.Context, st store.Store) error {
	n, err := st.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		slog.Info("seed skipped, store already has users", "count", n)
		return nil
	}

	now := time.Now().UTC()

	admin := &model.User{
		ID:        uuid.New().String(),
		Username:  "admin",
		Email:     "admin@example.com",
		Role:      model.RoleAdmin,
		CreatedAt: now,
	}
	trader := &model.User{
		ID:        uuid.New().String(),
		Username:  "trader",
		Email:     "trader@example.com",
		Role:      model.RoleTrader,
		CreatedAt: now,
	}
	for _, u := range []*model.User{admin, trader} {
		if err := st.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		if err := st.CreatePortfolio(ctx, &model.Portfolio{
			ID:         uuid.New().String(),
			UserID:     u.ID,
			TotalValue: decimal.Zero,
		}); err != nil {
			return fmt.Errorf("seed portfolio for %s: %w", u.Username, err)
		}
	}

	price := decimal.NewFromFloat(175.5000)
	if err := st.CreateInstrument(ctx, &model.Instrument{
		ID:           uuid.New().String(),
		Symbol:       "AAPL",
		Name:         "Apple Inc",
		CurrentPrice: &price,
	}); err != nil {
		return fmt.Errorf("seed instrument: %w", err)
	}

	slog.Info("seed data loaded",
		"admin", admin.Username,
		"trader", trader.Username,
		"instrument", "AAPL",
	)
	return nil
}
