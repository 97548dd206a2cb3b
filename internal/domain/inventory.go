package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MovementSale        = "sale"
	MovementVoidReturn  = "void_return"
	MovementPurchase    = "purchase"
	MovementAdjustment  = "adjustment"
	MovementCount       = "count"
	MovementTransferIn  = "transfer_in"
	MovementTransferOut = "transfer_out"

	ReferenceTransaction   = "transaction"
	ReferencePurchaseOrder = "purchase_order"
	ReferenceConversion    = "commissary_conversion"
	ReferenceManual        = "manual"
)

// DefaultLowStockThreshold applies when an inventory item has no minimum threshold set.
var DefaultLowStockThreshold = decimal.NewFromInt(10)

// InventoryItem is one ingredient or supply stocked by a store.
type InventoryItem struct {
	ID               string          `json:"id"`
	StoreID          string          `json:"store_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	Stock            decimal.Decimal `json:"stock"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	CostPerUnitCents decimal.Decimal `json:"cost_per_unit_cents"`
	Active           bool            `json:"active"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LowStockThreshold returns the item's threshold, or the default when unset.
func (i InventoryItem) LowStockThreshold() decimal.Decimal {
	if i.MinimumThreshold.IsPositive() {
		return i.MinimumThreshold
	}
	return DefaultLowStockThreshold
}

func (i InventoryItem) IsLowStock() bool {
	return i.Stock.LessThanOrEqual(i.LowStockThreshold())
}

type InventoryItemCreateRequest struct {
	StoreID          string          `json:"store_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	InitialStock     decimal.Decimal `json:"initial_stock"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	CostPerUnitCents decimal.Decimal `json:"cost_per_unit_cents"`
}

type InventoryItemUpdateRequest struct {
	Name             *string          `json:"name,omitempty"`
	MinimumThreshold *decimal.Decimal `json:"minimum_threshold,omitempty"`
	CostPerUnitCents *decimal.Decimal `json:"cost_per_unit_cents,omitempty"`
	Active           *bool            `json:"active,omitempty"`
}

// InventoryMovement is an immutable ledger row for one stock change.
type InventoryMovement struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"store_id"`
	InventoryItemID string          `json:"inventory_item_id"`
	MovementType    string          `json:"movement_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	PreviousStock   decimal.Decimal `json:"previous_stock"`
	NewStock        decimal.Decimal `json:"new_stock"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	UnitCostCents   decimal.Decimal `json:"unit_cost_cents"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type MovementFilter struct {
	StoreID         string
	InventoryItemID string
	MovementType    string
	ReferenceType   string
	ReferenceID     string
	From            time.Time
	To              time.Time
	Limit           int
}

// StockChange is one line of a StockChangeBatch. Quantity is a signed delta
// unless Absolute is set, in which case it is the new stock level.
type StockChange struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Absolute        bool            `json:"absolute,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// StockChangeBatch is applied atomically by the repository.
type StockChangeBatch struct {
	StoreID       string
	MovementType  string
	ReferenceType string
	ReferenceID   string
	CreatedBy     string
	// ClampAtZero floors the resulting stock at zero and records the shortfall
	// instead of failing with ErrInsufficientStock.
	ClampAtZero bool
	// OncePerReference rejects the batch with ErrConflict when a movement of
	// the same type already exists for the reference.
	OncePerReference bool
	Changes          []StockChange
	At               time.Time
}

type StockAdjustRequest struct {
	StoreID string        `json:"store_id"`
	Reason  string        `json:"reason"`
	Changes []StockChange `json:"changes"`
}

type StockCountLine struct {
	InventoryItemID string          `json:"inventory_item_id"`
	CountedQty      decimal.Decimal `json:"counted_qty"`
}

type StockCountRequest struct {
	StoreID string           `json:"store_id"`
	Notes   string           `json:"notes"`
	Items   []StockCountLine `json:"items"`
}

type StockCountVariance struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	SystemQty       decimal.Decimal `json:"system_qty"`
	CountedQty      decimal.Decimal `json:"counted_qty"`
	Variance        decimal.Decimal `json:"variance"`
}

type StockCountResponse struct {
	CountID   string               `json:"count_id"`
	StoreID   string               `json:"store_id"`
	Notes     string               `json:"notes"`
	Variances []StockCountVariance `json:"variances"`
	CreatedAt string               `json:"created_at"`
}

type CommissaryItem struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	Stock            decimal.Decimal `json:"stock"`
	CostPerUnitCents decimal.Decimal `json:"cost_per_unit_cents"`
	Active           bool            `json:"active"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type CommissaryItemCreateRequest struct {
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	InitialStock     decimal.Decimal `json:"initial_stock"`
	CostPerUnitCents decimal.Decimal `json:"cost_per_unit_cents"`
}

type CommissaryRestockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Notes    string          `json:"notes"`
}

// CommissaryConversion moves commissary stock into a store's inventory.
type CommissaryConversion struct {
	ID               string          `json:"id"`
	CommissaryItemID string          `json:"commissary_item_id"`
	StoreID          string          `json:"store_id"`
	InventoryItemID  string          `json:"inventory_item_id"`
	TargetName       string          `json:"target_name"`
	TargetUnit       string          `json:"target_unit"`
	Quantity         decimal.Decimal `json:"quantity"`
	ConversionRatio  decimal.Decimal `json:"conversion_ratio"`
	ProducedQuantity decimal.Decimal `json:"produced_quantity"`
	Notes            string          `json:"notes,omitempty"`
	ConvertedBy      string          `json:"converted_by"`
	CreatedAt        time.Time       `json:"created_at"`
}

type CommissaryConversionRequest struct {
	CommissaryItemID string          `json:"commissary_item_id"`
	StoreID          string          `json:"store_id"`
	InventoryItemID  string          `json:"inventory_item_id"`
	TargetName       string          `json:"target_name"`
	TargetUnit       string          `json:"target_unit"`
	Quantity         decimal.Decimal `json:"quantity"`
	ConversionRatio  decimal.Decimal `json:"conversion_ratio"`
	Notes            string          `json:"notes"`
}

const (
	DeductionPending  = "pending"
	DeductionComplete = "complete"
	DeductionPartial  = "partial"
	DeductionSkipped  = "skipped"
	DeductionFailed   = "failed"
)

// IngredientDeduction is the per-ingredient outcome of a deduction run.
type IngredientDeduction struct {
	InventoryItemID string          `json:"inventory_item_id"`
	IngredientName  string          `json:"ingredient_name"`
	Unit            string          `json:"unit"`
	Required        decimal.Decimal `json:"required"`
	Deducted        decimal.Decimal `json:"deducted"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	PreviousStock   decimal.Decimal `json:"previous_stock"`
	NewStock        decimal.Decimal `json:"new_stock"`
}

type DeductionResult struct {
	TransactionID   string                `json:"transaction_id"`
	StoreID         string                `json:"store_id"`
	Status          string                `json:"status"`
	AlreadyDeducted bool                  `json:"already_deducted,omitempty"`
	Deductions      []IngredientDeduction `json:"deductions"`
	Warnings        []string              `json:"warnings"`
	Errors          []string              `json:"errors"`
}

func (r DeductionResult) Success() bool {
	return len(r.Errors) == 0
}

type InsufficientIngredient struct {
	InventoryItemID string          `json:"inventory_item_id"`
	IngredientName  string          `json:"ingredient_name"`
	Unit            string          `json:"unit"`
	Required        decimal.Decimal `json:"required"`
	Available       decimal.Decimal `json:"available"`
}

type StockValidationResult struct {
	Valid        bool                     `json:"valid"`
	Insufficient []InsufficientIngredient `json:"insufficient"`
	Errors       []string                 `json:"errors"`
}

type StockValidationRequest struct {
	StoreID   string     `json:"store_id"`
	CartItems []CartItem `json:"cart_items"`
}

type ReconciliationReport struct {
	StoreID           string   `json:"store_id"`
	Date              string   `json:"date"`
	TotalTransactions int      `json:"total_transactions"`
	Processed         int      `json:"processed"`
	Failed            int      `json:"failed"`
	AlreadyComplete   int      `json:"already_complete"`
	Deductions        int      `json:"deductions"`
	Errors            []string `json:"errors"`
	Summary           string   `json:"summary"`
}

type StockLevelIssue struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	Stock           decimal.Decimal `json:"stock"`
	Threshold       decimal.Decimal `json:"threshold"`
}

type InventoryHealthReport struct {
	StoreID       string            `json:"store_id"`
	CheckedItems  int               `json:"checked_items"`
	NegativeStock []StockLevelIssue `json:"negative_stock"`
	LowStock      []StockLevelIssue `json:"low_stock"`
	Healthy       bool              `json:"healthy"`
	CheckedAt     string            `json:"checked_at"`
}

const (
	RetryPending    = "pending"
	RetryProcessing = "processing"
	RetryCompleted  = "completed"
	RetryFailed     = "failed"
)

// RetryJob tracks a failed inventory deduction awaiting another attempt.
type RetryJob struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	StoreID       string    `json:"store_id"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
