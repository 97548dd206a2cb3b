package domain

import "time"

type PaymentBreakdown struct {
	PaymentMethod string `json:"payment_method"`
	Transactions  int64  `json:"transactions"`
	TotalCents    int64  `json:"total_cents"`
}

type GroupTotal struct {
	Key          string `json:"key"`
	Transactions int64  `json:"transactions"`
	TotalCents   int64  `json:"total_cents"`
}

type ProductSales struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Qty        int64  `json:"qty"`
	TotalCents int64  `json:"total_cents"`
}

type SalesReport struct {
	StoreID           string             `json:"store_id"`
	From              string             `json:"from"`
	To                string             `json:"to"`
	Transactions      int64              `json:"transactions"`
	GrossSalesCents   int64              `json:"gross_sales_cents"`
	DiscountCents     int64              `json:"discount_cents"`
	VATableSalesCents int64              `json:"vatable_sales_cents"`
	VATCents          int64              `json:"vat_cents"`
	VATExemptCents    int64              `json:"vat_exempt_cents"`
	NetSalesCents     int64              `json:"net_sales_cents"`
	RefundCents       int64              `json:"refund_cents"`
	VoidCount         int64              `json:"void_count"`
	VoidCents         int64              `json:"void_cents"`
	ByPayment         []PaymentBreakdown `json:"by_payment"`
	ByOrderType       []GroupTotal       `json:"by_order_type"`
	ByCashier         []GroupTotal       `json:"by_cashier"`
	TopProducts       []ProductSales     `json:"top_products"`
}

type InventoryReportLine struct {
	InventoryItem
	IsLow      bool  `json:"is_low"`
	ValueCents int64 `json:"value_cents"`
}

type InventoryReport struct {
	StoreID         string                `json:"store_id"`
	GeneratedAt     string                `json:"generated_at"`
	Items           []InventoryReportLine `json:"items"`
	TotalValueCents int64                 `json:"total_value_cents"`
	LowStockCount   int                   `json:"low_stock_count"`
}

type ProfitLossReport struct {
	StoreID            string       `json:"store_id"`
	From               string       `json:"from"`
	To                 string       `json:"to"`
	GrossSalesCents    int64        `json:"gross_sales_cents"`
	VATCents           int64        `json:"vat_cents"`
	RefundCents        int64        `json:"refund_cents"`
	RevenueCents       int64        `json:"revenue_cents"`
	COGSCents          int64        `json:"cogs_cents"`
	GrossProfitCents   int64        `json:"gross_profit_cents"`
	ExpensesCents      int64        `json:"expenses_cents"`
	ExpensesByCategory []GroupTotal `json:"expenses_by_category"`
	NetProfitCents     int64        `json:"net_profit_cents"`
	GrossMarginPercent float64      `json:"gross_margin_percent"`
}

// DiscountBreakdown buckets discounts the way BIR readings report them.
type DiscountBreakdown struct {
	SeniorCents     int64 `json:"senior_cents"`
	PWDCents        int64 `json:"pwd_cents"`
	NAACCents       int64 `json:"naac_cents"`
	SoloParentCents int64 `json:"solo_parent_cents"`
	EmployeeCents   int64 `json:"employee_cents"`
	OtherCents      int64 `json:"other_cents"`
}

func (d DiscountBreakdown) Total() int64 {
	return d.SeniorCents + d.PWDCents + d.NAACCents + d.SoloParentCents + d.EmployeeCents + d.OtherCents
}

// ReadingSummary is the body shared by X and Z readings.
type ReadingSummary struct {
	Kind              string             `json:"kind"`
	StoreID           string             `json:"store_id"`
	StoreName         string             `json:"store_name"`
	TIN               string             `json:"tin"`
	MachineSerial     string             `json:"machine_serial"`
	PermitNumber      string             `json:"permit_number"`
	TerminalID        string             `json:"terminal_id,omitempty"`
	ShiftID           string             `json:"shift_id,omitempty"`
	CashierUsername   string             `json:"cashier_username,omitempty"`
	From              time.Time          `json:"from"`
	To                time.Time          `json:"to"`
	BeginningReceipt  string             `json:"beginning_receipt"`
	EndingReceipt     string             `json:"ending_receipt"`
	TransactionCount  int64              `json:"transaction_count"`
	GrossSalesCents   int64              `json:"gross_sales_cents"`
	VATableSalesCents int64              `json:"vatable_sales_cents"`
	VATCents          int64              `json:"vat_cents"`
	VATExemptCents    int64              `json:"vat_exempt_cents"`
	ZeroRatedCents    int64              `json:"zero_rated_cents"`
	Discounts         DiscountBreakdown  `json:"discounts"`
	VoidCount         int64              `json:"void_count"`
	VoidCents         int64              `json:"void_cents"`
	RefundCount       int64              `json:"refund_count"`
	RefundCents       int64              `json:"refund_cents"`
	RefundVATCents    int64              `json:"refund_vat_cents"`
	NetSalesCents     int64              `json:"net_sales_cents"`
	ByPayment         []PaymentBreakdown `json:"by_payment"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// ZReading is the persisted end-of-day reading. ResetCounter increments per
// terminal; grand totals accumulate across readings.
type ZReading struct {
	ID                       string         `json:"id"`
	StoreID                  string         `json:"store_id"`
	TerminalID               string         `json:"terminal_id"`
	BusinessDate             string         `json:"business_date"`
	ResetCounter             int            `json:"reset_counter"`
	BeginningGrandTotalCents int64          `json:"beginning_grand_total_cents"`
	EndingGrandTotalCents    int64          `json:"ending_grand_total_cents"`
	Summary                  ReadingSummary `json:"summary"`
	CreatedBy                string         `json:"created_by"`
	CreatedAt                time.Time      `json:"created_at"`
}
