package store

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNextStockDelta(t *testing.T) {
	next, shortfall, err := NextStock(dec("10.5"), domain.StockChange{Quantity: dec("-2.25")}, false)
	if err != nil {
		t.Fatalf("next stock: %v", err)
	}
	if !next.Equal(dec("8.25")) || !shortfall.IsZero() {
		t.Fatalf("expected 8.25 with no shortfall, got %s / %s", next, shortfall)
	}
}

func TestNextStockRejectsNegativeWithoutClamp(t *testing.T) {
	_, _, err := NextStock(dec("1"), domain.StockChange{Quantity: dec("-3")}, false)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestNextStockClampsAtZero(t *testing.T) {
	next, shortfall, err := NextStock(dec("1"), domain.StockChange{Quantity: dec("-3")}, true)
	if err != nil {
		t.Fatalf("next stock: %v", err)
	}
	if !next.IsZero() || !shortfall.Equal(dec("2")) {
		t.Fatalf("expected 0 with shortfall 2, got %s / %s", next, shortfall)
	}
}

func TestNextStockAbsolute(t *testing.T) {
	next, _, err := NextStock(dec("40"), domain.StockChange{Quantity: dec("12"), Absolute: true}, false)
	if err != nil || !next.Equal(dec("12")) {
		t.Fatalf("expected 12, got %s (%v)", next, err)
	}
	if _, _, err := NextStock(dec("40"), domain.StockChange{Quantity: dec("-1"), Absolute: true}, false); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected negative count to be rejected, got %v", err)
	}
}

func TestWeightedCost(t *testing.T) {
	got := WeightedCost(dec("100"), dec("10"), dec("130"), dec("20"))
	if !got.Equal(dec("120")) {
		t.Fatalf("expected weighted cost 120, got %s", got)
	}
	if got := WeightedCost(dec("0"), dec("0"), dec("55"), dec("5")); !got.Equal(dec("55")) {
		t.Fatalf("expected incoming cost when empty, got %s", got)
	}
}
