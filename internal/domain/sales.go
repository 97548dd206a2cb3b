package domain

import "time"

const (
	TxStatusPaid     = "paid"
	TxStatusVoided   = "voided"
	TxStatusRefunded = "refunded"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	OrderDineIn         = "dine_in"
	OrderTakeout        = "takeout"
	OrderOnlineDelivery = "online_delivery"
)

const (
	DiscountNone       = ""
	DiscountSenior     = "senior"
	DiscountPWD        = "pwd"
	DiscountNAAC       = "naac"
	DiscountSoloParent = "solo_parent"
	DiscountEmployee   = "employee"
	DiscountPromo      = "promo"
	DiscountOther      = "other"
)

type CartItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type PaymentSplit struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

// DiscountInput describes the discount requested at checkout. VAT-exempt
// discounts (senior, pwd, naac) apply to DiscountPax of TotalPax diners.
type DiscountInput struct {
	Type         string  `json:"type"`
	Percent      float64 `json:"percent,omitempty"`
	AmountCents  int64   `json:"amount_cents,omitempty"`
	DiscountPax  int     `json:"discount_pax,omitempty"`
	TotalPax     int     `json:"total_pax,omitempty"`
	IDNumber     string  `json:"id_number,omitempty"`
	CustomerName string  `json:"customer_name,omitempty"`
}

type CheckoutRequest struct {
	StoreID           string         `json:"store_id"`
	TerminalID        string         `json:"terminal_id"`
	IdempotencyKey    string         `json:"idempotency_key"`
	OrderType         string         `json:"order_type"`
	DeliveryPlatform  string         `json:"delivery_platform,omitempty"`
	PaymentMethod     string         `json:"payment_method"`
	PaymentReference  string         `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit `json:"payment_splits,omitempty"`
	CashReceivedCents int64          `json:"cash_received_cents"`
	Discount          DiscountInput  `json:"discount"`
	StrictStock       bool           `json:"strict_stock"`
	CartItems         []CartItem     `json:"cart_items"`
}

type CheckoutResponse struct {
	TransactionID     string         `json:"transaction_id"`
	ReceiptNumber     string         `json:"receipt_number"`
	Status            string         `json:"status"`
	OrderType         string         `json:"order_type"`
	PaymentMethod     string         `json:"payment_method"`
	PaymentSplits     []PaymentSplit `json:"payment_splits,omitempty"`
	GrossCents        int64          `json:"gross_cents"`
	DiscountType      string         `json:"discount_type,omitempty"`
	DiscountCents     int64          `json:"discount_cents"`
	VATableSalesCents int64          `json:"vatable_sales_cents"`
	VATCents          int64          `json:"vat_cents"`
	VATExemptCents    int64          `json:"vat_exempt_cents"`
	ZeroRatedCents    int64          `json:"zero_rated_cents"`
	TotalCents        int64          `json:"total_cents"`
	CashReceived      int64          `json:"cash_received_cents"`
	ChangeCents       int64          `json:"change_cents"`
	ItemCount         int            `json:"item_count"`
	ShiftID           string         `json:"shift_id,omitempty"`
	DeductionStatus   string         `json:"deduction_status"`
	Warnings          []string       `json:"warnings,omitempty"`
	Duplicate         bool           `json:"duplicate"`
	CreatedAt         string         `json:"created_at"`
}

type CheckoutLookupResponse struct {
	Found    bool              `json:"found"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type TransactionLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// Transaction is a completed sale. Amounts are centavos and VAT-inclusive.
type Transaction struct {
	ID                string            `json:"id"`
	StoreID           string            `json:"store_id"`
	TerminalID        string            `json:"terminal_id"`
	ShiftID           string            `json:"shift_id"`
	ReceiptNumber     string            `json:"receipt_number"`
	IdempotencyKey    string            `json:"idempotency_key"`
	CashierUsername   string            `json:"cashier_username"`
	OrderType         string            `json:"order_type"`
	DeliveryPlatform  string            `json:"delivery_platform,omitempty"`
	PaymentMethod     string            `json:"payment_method"`
	PaymentReference  string            `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit    `json:"payment_splits,omitempty"`
	GrossCents        int64             `json:"gross_cents"`
	DiscountType      string            `json:"discount_type,omitempty"`
	DiscountCents     int64             `json:"discount_cents"`
	DiscountIDNumber  string            `json:"discount_id_number,omitempty"`
	VATableSalesCents int64             `json:"vatable_sales_cents"`
	VATCents          int64             `json:"vat_cents"`
	VATExemptCents    int64             `json:"vat_exempt_cents"`
	ZeroRatedCents    int64             `json:"zero_rated_cents"`
	TotalCents        int64             `json:"total_cents"`
	CashReceivedCents int64             `json:"cash_received_cents"`
	ChangeCents       int64             `json:"change_cents"`
	RefundedCents     int64             `json:"refunded_cents"`
	Status            string            `json:"status"`
	DeductionStatus   string            `json:"deduction_status"`
	DeductionNote     string            `json:"deduction_note,omitempty"`
	VoidReason        string            `json:"void_reason,omitempty"`
	VoidedAt          *time.Time        `json:"voided_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []TransactionLine `json:"items"`
}

type TransactionFilter struct {
	StoreID         string
	TerminalID      string
	ShiftID         string
	Status          string
	DeductionStatus string
	From            time.Time
	To              time.Time
	Limit           int
}

type OfflineTransaction struct {
	ClientTransactionID string          `json:"client_transaction_id"`
	Checkout            CheckoutRequest `json:"checkout"`
}

type OfflineSyncRequest struct {
	StoreID      string               `json:"store_id"`
	TerminalID   string               `json:"terminal_id"`
	EnvelopeID   string               `json:"envelope_id"`
	Transactions []OfflineTransaction `json:"transactions"`
}

type OfflineSyncStatus struct {
	ClientTransactionID string `json:"client_transaction_id"`
	Status              string `json:"status"`
	Reason              string `json:"reason,omitempty"`
	TransactionID       string `json:"transaction_id,omitempty"`
}

type OfflineSyncResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Statuses   []OfflineSyncStatus `json:"statuses"`
}

type Shift struct {
	ID                string     `json:"id"`
	StoreID           string     `json:"store_id"`
	TerminalID        string     `json:"terminal_id"`
	CashierUsername   string     `json:"cashier_username"`
	OpeningFloatCents int64      `json:"opening_float_cents"`
	ClosingCashCents  int64      `json:"closing_cash_cents,omitempty"`
	ExpectedCashCents int64      `json:"expected_cash_cents,omitempty"`
	VarianceCents     int64      `json:"variance_cents,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	Status            string     `json:"status"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	StoreID           string `json:"store_id"`
	TerminalID        string `json:"terminal_id"`
	OpeningFloatCents int64  `json:"opening_float_cents"`
}

type ShiftCloseRequest struct {
	StoreID          string `json:"store_id"`
	TerminalID       string `json:"terminal_id"`
	ClosingCashCents int64  `json:"closing_cash_cents"`
	Notes            string `json:"notes"`
}

type ShiftClose struct {
	ClosingCashCents  int64
	ExpectedCashCents int64
	Notes             string
	ClosedAt          time.Time
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type VoidTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
	ManagerPIN    string `json:"manager_pin"`
}

type VoidTransactionResponse struct {
	TransactionID string   `json:"transaction_id"`
	Status        string   `json:"status"`
	VoidedAt      string   `json:"voided_at"`
	Restored      int      `json:"restored_ingredients"`
	Warnings      []string `json:"warnings,omitempty"`
}

type RefundRequest struct {
	OriginalTransactionID string `json:"original_transaction_id"`
	Reason                string `json:"reason"`
	AmountCents           int64  `json:"amount_cents"`
	PaymentMethod         string `json:"payment_method"`
	ManagerPIN            string `json:"manager_pin"`
}

type Refund struct {
	ID                    string    `json:"id"`
	StoreID               string    `json:"store_id"`
	OriginalTransactionID string    `json:"original_transaction_id"`
	Reason                string    `json:"reason"`
	AmountCents           int64     `json:"amount_cents"`
	VATCents              int64     `json:"vat_cents"`
	PaymentMethod         string    `json:"payment_method"`
	ShiftID               string    `json:"shift_id,omitempty"`
	CreatedBy             string    `json:"created_by"`
	CreatedAt             time.Time `json:"created_at"`
}

type RefundResponse struct {
	Refund      Refund `json:"refund"`
	Transaction string `json:"transaction_status"`
}

type HardwareReceiptRequest struct {
	TransactionID string `json:"transaction_id"`
}

type HardwareReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

type CashDrawerOpenRequest struct {
	TerminalID string `json:"terminal_id"`
}

type CashDrawerOpenResponse struct {
	TerminalID    string `json:"terminal_id"`
	CommandBase64 string `json:"command_base64"`
	Note          string `json:"note"`
}
