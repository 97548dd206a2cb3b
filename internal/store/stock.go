package store

import (
	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
)

// NextStock computes the stock level after change is applied to current.
// With clamp set, a result below zero is floored at zero and the missing
// amount is returned as shortfall; otherwise ErrInsufficientStock is returned.
func NextStock(current decimal.Decimal, change domain.StockChange, clamp bool) (next decimal.Decimal, shortfall decimal.Decimal, err error) {
	if change.Absolute {
		if change.Quantity.IsNegative() {
			return decimal.Zero, decimal.Zero, ErrInvalidTransaction
		}
		return change.Quantity, decimal.Zero, nil
	}

	next = current.Add(change.Quantity)
	if !next.IsNegative() {
		return next, decimal.Zero, nil
	}
	if !clamp {
		return decimal.Zero, decimal.Zero, ErrInsufficientStock
	}
	return decimal.Zero, next.Neg(), nil
}

// WeightedCost blends the current unit cost with an incoming receipt.
func WeightedCost(oldCost, oldQty, incomingCost, incomingQty decimal.Decimal) decimal.Decimal {
	if !incomingQty.IsPositive() || !incomingCost.IsPositive() {
		return oldCost
	}
	if !oldQty.IsPositive() || !oldCost.IsPositive() {
		return incomingCost
	}
	totalValue := oldCost.Mul(oldQty).Add(incomingCost.Mul(incomingQty))
	return totalValue.Div(oldQty.Add(incomingQty)).Round(4)
}
