// Package ledger owns the quantity/average-price update rule for a single
// (portfolio, instrument) holding. Buys blend the average cost; sells only
// reduce quantity and delete the position when it reaches zero.
//
// Callers must hold exclusive access to the targeted holding for the whole
// read-compute-write sequence (keyed lock plus a FOR UPDATE row lock in the
// SQL store); the ledger itself takes no locks.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/money"
	"github.com/traderisk/trade-engine/internal/store"
)

var (
	// ErrNoHolding is returned when a sell targets an instrument the
	// portfolio does not hold at all.
	ErrNoHolding = errors.New("ledger: no position held in instrument")

	// ErrInsufficientHolding is returned when a sell quantity exceeds the
	// held quantity.
	ErrInsufficientHolding = errors.New("ledger: insufficient position quantity")
)

// ApplyBuy records a purchase against the holding. A first buy creates the
// position at the trade price; subsequent buys blend the average:
//
//	newAvg = (oldQty×oldAvg + qty×price) / (oldQty + qty)
//
// rounded per the engine's money policy.
func ApplyBuy(ctx context.Context, st store.Store, portfolioID, instrumentID string, quantity int64, price decimal.Decimal) error {
	pos, err := st.GetPositionForUpdate(ctx, portfolioID, instrumentID)
	if errors.Is(err, store.ErrNotFound) {
		newPos := &model.Position{
			ID:           uuid.New().String(),
			PortfolioID:  portfolioID,
			InstrumentID: instrumentID,
			Quantity:     quantity,
			AvgPrice:     money.Scale(price),
		}
		if err := st.CreatePosition(ctx, newPos); err != nil {
			return fmt.Errorf("create position: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}

	oldCost := pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity))
	newCost := price.Mul(decimal.NewFromInt(quantity))
	totalQty := pos.Quantity + quantity

	pos.Quantity = totalQty
	pos.AvgPrice = money.DivPrice(oldCost.Add(newCost), decimal.NewFromInt(totalQty))

	if err := st.UpdatePosition(ctx, pos); err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}

// ApplySell records a sale against the holding. The average price is never
// touched; a sell that empties the position deletes it.
func ApplySell(ctx context.Context, st store.Store, portfolioID, instrumentID string, quantity int64) error {
	pos, err := st.GetPositionForUpdate(ctx, portfolioID, instrumentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoHolding
	}
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}

	if quantity > pos.Quantity {
		return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientHolding, pos.Quantity, quantity)
	}

	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		if err := st.DeletePosition(ctx, pos.ID); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		return nil
	}
	if err := st.UpdatePosition(ctx, pos); err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}
