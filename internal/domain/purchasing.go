package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	POStatusPending   = "pending"
	POStatusApproved  = "approved"
	POStatusRejected  = "rejected"
	POStatusReceived  = "received"
	POStatusCancelled = "cancelled"
)

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type PurchaseOrderItem struct {
	InventoryItemID  string          `json:"inventory_item_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCostCents    decimal.Decimal `json:"unit_cost_cents"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	PONumber   string              `json:"po_number"`
	StoreID    string              `json:"store_id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"`
	TotalCents int64               `json:"total_cents"`
	Notes      string              `json:"notes,omitempty"`
	CreatedBy  string              `json:"created_by"`
	ApprovedBy string              `json:"approved_by,omitempty"`
	ApprovedAt *time.Time          `json:"approved_at,omitempty"`
	ReceivedBy string              `json:"received_by,omitempty"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	Items      []PurchaseOrderItem `json:"items"`
}

// ComputeTotal sums quantity times unit cost over the order lines.
func (po PurchaseOrder) ComputeTotal() int64 {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.Quantity.Mul(item.UnitCostCents))
	}
	return total.Round(0).IntPart()
}

type PurchaseOrderCreateRequest struct {
	StoreID    string              `json:"store_id"`
	SupplierID string              `json:"supplier_id"`
	Notes      string              `json:"notes"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderDecisionRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type ReorderSuggestion struct {
	InventoryItemID        string          `json:"inventory_item_id"`
	Name                   string          `json:"name"`
	Unit                   string          `json:"unit"`
	CurrentStock           decimal.Decimal `json:"current_stock"`
	ReorderPoint           decimal.Decimal `json:"reorder_point"`
	RecommendedQty         decimal.Decimal `json:"recommended_qty"`
	CostPerUnitCents       decimal.Decimal `json:"cost_per_unit_cents"`
	EstimatedPurchaseCents int64           `json:"estimated_purchase_cents"`
}

type ReorderSuggestionResponse struct {
	StoreID     string              `json:"store_id"`
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type Expense struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	ExpenseDate time.Time `json:"expense_date"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	StoreID     string `json:"store_id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	ExpenseDate string `json:"expense_date"`
}
