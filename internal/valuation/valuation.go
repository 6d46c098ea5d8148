// Package valuation recomputes a portfolio's total value from its current
// positions. The recompute is a pure function of position state: idempotent
// and safe to re-run after any trade.
package valuation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/money"
	"github.com/traderisk/trade-engine/internal/store"
)

// ErrConflict is returned when a concurrent valuation of the same portfolio
// won both write attempts. Transient: the caller may retry the request.
var ErrConflict = errors.New("valuation: concurrent portfolio update conflict")

// Recompute sums quantity × current price (average cost when no market
// price is known) over the portfolio's positions and writes the result as
// the portfolio's total value.
//
// The write is version-checked against concurrent trades on other holdings
// of the same portfolio and retried once on conflict; a second conflict
// surfaces as ErrConflict.
func Recompute(ctx context.Context, st store.Store, portfolioID string) (decimal.Decimal, error) {
	for attempt := 0; attempt < 2; attempt++ {
		portfolio, err := st.GetPortfolio(ctx, portfolioID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load portfolio: %w", err)
		}

		holdings, err := st.ListHoldings(ctx, portfolioID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load holdings: %w", err)
		}

		total := decimal.Zero
		for _, h := range holdings {
			total = total.Add(h.MarketValue())
		}
		total = money.Scale(total)

		err = st.UpdatePortfolioValue(ctx, portfolioID, total, portfolio.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("write portfolio value: %w", err)
		}
		return total, nil
	}
	return decimal.Zero, ErrConflict
}
