package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/ledger"
	"github.com/traderisk/trade-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestApplyBuy_CreatesPosition(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ledger.ApplyBuy(ctx, ms, "p1", "i1", 10, d(100)); err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}

	pos, err := ms.GetPosition(ctx, "p1", "i1")
	if err != nil {
		t.Fatalf("position not created: %v", err)
	}
	if pos.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(100)) {
		t.Errorf("avg price = %s, want 100", pos.AvgPrice)
	}
}

func TestApplyBuy_BlendsAveragePrice(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	// BUY 10 @ 100, then BUY 10 @ 200 → 20 @ 150.
	if err := ledger.ApplyBuy(ctx, ms, "p1", "i1", 10, d(100)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if err := ledger.ApplyBuy(ctx, ms, "p1", "i1", 10, d(200)); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _ := ms.GetPosition(ctx, "p1", "i1")
	if pos.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(150)) {
		t.Errorf("avg price = %s, want 150", pos.AvgPrice)
	}
}

func TestApplyBuy_RoundsBlendedAverage(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	// 1 @ 100 + 2 @ 100.01 → 300.02/3 = 100.00666… → 100.0067 at scale 4.
	ledger.ApplyBuy(ctx, ms, "p1", "i1", 1, d(100))
	ledger.ApplyBuy(ctx, ms, "p1", "i1", 2, d(100.01))

	pos, _ := ms.GetPosition(ctx, "p1", "i1")
	want, _ := decimal.NewFromString("100.0067")
	if !pos.AvgPrice.Equal(want) {
		t.Errorf("avg price = %s, want %s", pos.AvgPrice, want)
	}
}

func TestApplySell_ReducesQuantityKeepsAverage(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ledger.ApplyBuy(ctx, ms, "p1", "i1", 10, d(150))
	if err := ledger.ApplySell(ctx, ms, "p1", "i1", 4); err != nil {
		t.Fatalf("ApplySell: %v", err)
	}

	pos, _ := ms.GetPosition(ctx, "p1", "i1")
	if pos.Quantity != 6 {
		t.Errorf("quantity = %d, want 6", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(150)) {
		t.Errorf("sell must not change avg price, got %s", pos.AvgPrice)
	}
}

func TestApplySell_FullQuantityDeletesPosition(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ledger.ApplyBuy(ctx, ms, "p1", "i1", 10, d(150))
	if err := ledger.ApplySell(ctx, ms, "p1", "i1", 10); err != nil {
		t.Fatalf("ApplySell: %v", err)
	}

	if _, err := ms.GetPosition(ctx, "p1", "i1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("position should be deleted, got err=%v", err)
	}
}

func TestApplySell_InsufficientHolding(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ledger.ApplyBuy(ctx, ms, "p1", "i1", 10, d(150))
	err := ledger.ApplySell(ctx, ms, "p1", "i1", 15)
	if !errors.Is(err, ledger.ErrInsufficientHolding) {
		t.Fatalf("expected ErrInsufficientHolding, got %v", err)
	}

	// No state changed.
	pos, _ := ms.GetPosition(ctx, "p1", "i1")
	if pos.Quantity != 10 {
		t.Errorf("quantity = %d, want 10 (unchanged)", pos.Quantity)
	}
}

func TestApplySell_NoHolding(t *testing.T) {
	ms := store.NewMemoryStore()

	err := ledger.ApplySell(context.Background(), ms, "p1", "i1", 5)
	if !errors.Is(err, ledger.ErrNoHolding) {
		t.Fatalf("expected ErrNoHolding, got %v", err)
	}
}
