package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"crofflepos/internal/bir"
	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

const (
	SyncAccepted  = "accepted"
	SyncDuplicate = "duplicate"
	SyncRejected  = "rejected"
)

var cashierRoles = []string{domain.RoleCashier, domain.RoleManager, domain.RoleOwner}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, cashierRoles...)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if req.TerminalID == "" || req.OpeningFloatCents < 0 {
		return domain.ShiftResponse{}, store.ErrInvalidTransaction
	}

	saved, err := s.repo.CreateShift(ctx, domain.Shift{
		ID:                xid.New("shift"),
		StoreID:           req.StoreID,
		TerminalID:        req.TerminalID,
		CashierUsername:   actor.Username,
		OpeningFloatCents: req.OpeningFloatCents,
		Status:            domain.ShiftStatusOpen,
		OpenedAt:          s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.ShiftResponse{}, fmt.Errorf("shift already open on terminal %s: %w", req.TerminalID, err)
		}
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "shift_open", "shift", saved.ID, fmt.Sprintf("terminal=%s,float=%d", saved.TerminalID, saved.OpeningFloatCents))
	return domain.ShiftResponse{Shift: *saved}, nil
}

// CloseShift closes the terminal's open shift. Expected cash is the opening
// float plus cash taken on sales that were not voided, less cash refunds
// paid out during the shift.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftResponse, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	if _, err := s.authorize(ctx, req.StoreID, cashierRoles...); err != nil {
		return domain.ShiftResponse{}, err
	}
	if strings.TrimSpace(req.TerminalID) == "" || req.ClosingCashCents < 0 {
		return domain.ShiftResponse{}, store.ErrInvalidTransaction
	}

	active, err := s.repo.GetActiveShift(ctx, req.StoreID, req.TerminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	expected, err := s.expectedCash(ctx, *active)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	closed, err := s.repo.CloseActiveShift(ctx, req.StoreID, req.TerminalID, domain.ShiftClose{
		ClosingCashCents:  req.ClosingCashCents,
		ExpectedCashCents: expected,
		Notes:             strings.TrimSpace(req.Notes),
		ClosedAt:          s.now(),
	})
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "shift_close", "shift", closed.ID, fmt.Sprintf("closing_cash=%d,expected=%d,variance=%d", closed.ClosingCashCents, closed.ExpectedCashCents, closed.VarianceCents))
	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) expectedCash(ctx context.Context, shift domain.Shift) (int64, error) {
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{StoreID: shift.StoreID, ShiftID: shift.ID})
	if err != nil {
		return 0, err
	}
	expected := shift.OpeningFloatCents
	for _, tx := range txs {
		if tx.Status == domain.TxStatusVoided {
			continue
		}
		expected += cashPortion(tx)
	}

	refunds, err := s.repo.ListRefunds(ctx, shift.StoreID, shift.OpenedAt, time.Time{})
	if err != nil {
		return 0, err
	}
	for _, refund := range refunds {
		if refund.ShiftID == shift.ID && refund.PaymentMethod == "cash" {
			expected -= refund.AmountCents
		}
	}
	return expected, nil
}

// cashPortion is the cash a sale left in the drawer, net of change.
func cashPortion(tx domain.Transaction) int64 {
	switch tx.PaymentMethod {
	case "cash":
		return tx.TotalCents
	case "split":
		var cash int64
		for _, split := range tx.PaymentSplits {
			if split.Method == "cash" {
				cash += split.AmountCents
			}
		}
		return cash
	default:
		return 0
	}
}

func (s *Service) GetActiveShift(ctx context.Context, storeID string, terminalID string) (domain.ShiftResponse, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return domain.ShiftResponse{}, err
	}
	if strings.TrimSpace(terminalID) == "" {
		return domain.ShiftResponse{}, store.ErrInvalidTransaction
	}

	shift, err := s.repo.GetActiveShift(ctx, storeID, terminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// Checkout prices a cart, books the sale and deducts its ingredients. A
// failed deduction is queued for retry and never fails the sale.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, cashierRoles...)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	req.PaymentSplits = normalizePaymentSplits(req.PaymentSplits)
	if len(req.PaymentSplits) > 0 {
		req.PaymentMethod = "split"
	}
	req.PaymentMethod = strings.ToLower(defaultString(strings.TrimSpace(req.PaymentMethod), "cash"))
	req.OrderType = defaultString(strings.TrimSpace(req.OrderType), domain.OrderDineIn)
	req.DeliveryPlatform = strings.TrimSpace(req.DeliveryPlatform)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidTransaction, req.PaymentMethod)
	}
	switch req.OrderType {
	case domain.OrderDineIn, domain.OrderTakeout:
	case domain.OrderOnlineDelivery:
		if req.DeliveryPlatform == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: delivery platform required", store.ErrInvalidTransaction)
		}
	default:
		return domain.CheckoutResponse{}, fmt.Errorf("%w: unsupported order type %q", store.ErrInvalidTransaction, req.OrderType)
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return toCheckoutResponse(existing, true), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	shift, err := s.repo.GetActiveShift(ctx, req.StoreID, strings.TrimSpace(req.TerminalID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: active shift required", store.ErrInvalidTransaction)
		}
		return domain.CheckoutResponse{}, err
	}

	st, err := s.repo.GetStore(ctx, req.StoreID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if !st.Active {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: store %s is inactive", store.ErrInvalidTransaction, st.ID)
	}

	lines, gross, err := s.priceCart(ctx, req.StoreID, req.CartItems)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if req.StrictStock {
		check, err := s.deductor.ValidateTransaction(ctx, req.StoreID, lines)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		if len(check.Insufficient) > 0 {
			names := make([]string, 0, len(check.Insufficient))
			for _, ing := range check.Insufficient {
				names = append(names, fmt.Sprintf("%s (need %s %s, have %s)", ing.IngredientName, ing.Required, ing.Unit, ing.Available))
			}
			return domain.CheckoutResponse{}, fmt.Errorf("%w: %s", store.ErrInsufficientStock, strings.Join(names, "; "))
		}
	}

	breakdown, err := bir.Compute(gross, req.Discount, st.VATRegistered, s.vatRate)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	total := breakdown.TotalCents

	var change int64
	switch req.PaymentMethod {
	case "cash":
		if req.CashReceivedCents < total {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: cash received is less than total", store.ErrInvalidTransaction)
		}
		change = req.CashReceivedCents - total
	case "split":
		if len(req.PaymentSplits) < 2 {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: split payment needs at least two splits", store.ErrInvalidTransaction)
		}
		var splitTotal int64
		for _, split := range req.PaymentSplits {
			if !isSplitMethodSupported(split.Method) {
				return domain.CheckoutResponse{}, fmt.Errorf("%w: unsupported split method %q", store.ErrInvalidTransaction, split.Method)
			}
			if split.Method != "cash" && split.Reference == "" {
				return domain.CheckoutResponse{}, fmt.Errorf("%w: %s split needs a reference", store.ErrInvalidTransaction, split.Method)
			}
			splitTotal += split.AmountCents
		}
		if splitTotal != total {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: splits sum to %d, total is %d", store.ErrInvalidTransaction, splitTotal, total)
		}
		req.CashReceivedCents = splitTotal
	default:
		if strings.TrimSpace(req.PaymentReference) == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: payment reference required", store.ErrInvalidTransaction)
		}
		req.CashReceivedCents = total
	}

	now := s.now()
	dayStart, _, _ := s.businessDay(now.In(s.loc).Format("2006-01-02"))

	tx := domain.Transaction{
		ID:                xid.New("tx"),
		StoreID:           req.StoreID,
		TerminalID:        shift.TerminalID,
		ShiftID:           shift.ID,
		IdempotencyKey:    req.IdempotencyKey,
		CashierUsername:   actor.Username,
		OrderType:         req.OrderType,
		DeliveryPlatform:  req.DeliveryPlatform,
		PaymentMethod:     req.PaymentMethod,
		PaymentReference:  strings.TrimSpace(req.PaymentReference),
		PaymentSplits:     req.PaymentSplits,
		GrossCents:        breakdown.GrossCents,
		DiscountType:      req.Discount.Type,
		DiscountCents:     breakdown.DiscountCents,
		DiscountIDNumber:  strings.TrimSpace(req.Discount.IDNumber),
		VATableSalesCents: breakdown.VATableSalesCents,
		VATCents:          breakdown.VATCents,
		VATExemptCents:    breakdown.VATExemptCents,
		ZeroRatedCents:    breakdown.ZeroRatedCents,
		TotalCents:        total,
		CashReceivedCents: req.CashReceivedCents,
		ChangeCents:       change,
		Status:            domain.TxStatusPaid,
		DeductionStatus:   domain.DeductionPending,
		CreatedAt:         now,
		Items:             lines,
	}
	if breakdown.DiscountCents == 0 {
		tx.DiscountType = domain.DiscountNone
	}

	created, err := s.repo.CreateNumberedTransaction(ctx, tx, store.ReceiptNumbering{
		BusinessDay: dayStart,
		Format: func(seq int) string {
			return bir.ReceiptNumber(now.In(s.loc), seq)
		},
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if created.ID != tx.ID {
		// Lost a race on the idempotency key.
		return toCheckoutResponse(created, true), nil
	}

	resp := toCheckoutResponse(created, false)
	result, err := s.deductor.DeductTransaction(ctx, *created)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"transaction_id": created.ID, "store_id": created.StoreID}).Warn("inventory deduction failed")
		if s.retry != nil {
			if _, qErr := s.retry.Enqueue(ctx, *created, err); qErr != nil {
				s.log.WithError(qErr).WithField("transaction_id", created.ID).Error("failed to queue deduction retry")
			}
		}
		resp.DeductionStatus = domain.DeductionFailed
		resp.Warnings = append(resp.Warnings, "inventory deduction queued for retry")
	} else {
		resp.DeductionStatus = result.Status
		resp.Warnings = append(resp.Warnings, result.Warnings...)
		resp.Warnings = append(resp.Warnings, result.Errors...)
	}

	s.logAudit(ctx, req.StoreID, "checkout", "transaction", created.ID, fmt.Sprintf(
		"receipt=%s,total=%d,payment=%s,discount=%s:%d,deduction=%s",
		created.ReceiptNumber, created.TotalCents, created.PaymentMethod, created.DiscountType, created.DiscountCents, resp.DeductionStatus,
	))
	return resp, nil
}

// priceCart merges duplicate lines and prices them from the store catalog.
func (s *Service) priceCart(ctx context.Context, storeID string, items []domain.CartItem) ([]domain.TransactionLine, int64, error) {
	normalized := normalizeItems(items)
	if len(normalized) == 0 {
		return nil, 0, fmt.Errorf("%w: cart is empty", store.ErrInvalidTransaction)
	}
	ids := make([]string, 0, len(normalized))
	for _, item := range normalized {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	lines := make([]domain.TransactionLine, 0, len(normalized))
	var gross int64
	for _, item := range normalized {
		product, ok := products[item.ProductID]
		if !ok || product.StoreID != storeID || !product.Active {
			return nil, 0, fmt.Errorf("%w: product %s is not sold in this store", store.ErrInvalidTransaction, item.ProductID)
		}
		lineTotal := int64(item.Qty) * product.PriceCents
		lines = append(lines, domain.TransactionLine{
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceCents: product.PriceCents,
			LineTotalCents: lineTotal,
		})
		gross += lineTotal
	}
	return lines, gross, nil
}

func (s *Service) LookupCheckoutByIdempotency(ctx context.Context, idempotencyKey string) (domain.CheckoutLookupResponse, error) {
	if idempotencyKey == "" {
		return domain.CheckoutLookupResponse{}, store.ErrInvalidTransaction
	}

	tx, err := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutLookupResponse{Found: false}, nil
		}
		return domain.CheckoutLookupResponse{}, err
	}
	if _, err := s.authorize(ctx, tx.StoreID); err != nil {
		return domain.CheckoutLookupResponse{}, err
	}
	checkout := toCheckoutResponse(tx, false)
	return domain.CheckoutLookupResponse{Found: true, Checkout: &checkout}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.authorize(ctx, tx.StoreID); err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	filter.StoreID = s.storeOrDefault(filter.StoreID)
	if _, err := s.authorize(ctx, filter.StoreID); err != nil {
		return nil, err
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListTransactions(ctx, filter)
}

// VoidTransaction cancels a paid sale and returns its ingredients to stock.
func (s *Service) VoidTransaction(ctx context.Context, req domain.VoidTransactionRequest) (domain.VoidTransactionResponse, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return domain.VoidTransactionResponse{}, store.ErrInvalidTransaction
	}
	existing, err := s.repo.FindTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.VoidTransactionResponse{}, err
	}
	actor, err := s.authorize(ctx, existing.StoreID, cashierRoles...)
	if err != nil {
		return domain.VoidTransactionResponse{}, err
	}
	if err := s.managerApproval(actor, req.ManagerPIN); err != nil {
		return domain.VoidTransactionResponse{}, err
	}
	req.Reason = defaultString(strings.TrimSpace(req.Reason), "unspecified")

	voidedAt := s.now()
	tx, err := s.repo.VoidTransaction(ctx, req.TransactionID, req.Reason, voidedAt)
	if err != nil {
		return domain.VoidTransactionResponse{}, err
	}

	resp := domain.VoidTransactionResponse{
		TransactionID: tx.ID,
		Status:        tx.Status,
		VoidedAt:      voidedAt.Format(time.RFC3339),
	}
	restored, err := s.deductor.RollbackTransaction(ctx, *tx)
	if err != nil {
		s.log.WithError(err).WithField("transaction_id", tx.ID).Error("inventory rollback failed")
		resp.Warnings = append(resp.Warnings, "inventory rollback failed: "+err.Error())
	}
	resp.Restored = restored

	s.logAudit(ctx, tx.StoreID, "void_transaction", "transaction", tx.ID, fmt.Sprintf("reason=%s,restored=%d", req.Reason, restored))
	return resp, nil
}

// Refund pays back part or all of a sale. The refunded VAT is carved out of
// the amount at the configured rate.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	req.OriginalTransactionID = strings.TrimSpace(req.OriginalTransactionID)
	if req.OriginalTransactionID == "" || req.AmountCents <= 0 {
		return domain.RefundResponse{}, store.ErrInvalidTransaction
	}

	tx, err := s.repo.FindTransactionByID(ctx, req.OriginalTransactionID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	actor, err := s.authorize(ctx, tx.StoreID, cashierRoles...)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if err := s.managerApproval(actor, req.ManagerPIN); err != nil {
		return domain.RefundResponse{}, err
	}
	if tx.Status == domain.TxStatusVoided {
		return domain.RefundResponse{}, fmt.Errorf("%w: voided transaction cannot be refunded", store.ErrInvalidTransaction)
	}
	if tx.Status == domain.TxStatusRefunded {
		return domain.RefundResponse{}, fmt.Errorf("%w: transaction already fully refunded", store.ErrInvalidTransaction)
	}
	if tx.RefundedCents+req.AmountCents > tx.TotalCents {
		return domain.RefundResponse{}, fmt.Errorf("%w: refunds would exceed the sale total", store.ErrInvalidTransaction)
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = tx.PaymentMethod
		if method == "split" {
			method = "cash"
		}
	}
	if !isSplitMethodSupported(method) {
		return domain.RefundResponse{}, fmt.Errorf("%w: unsupported refund method %q", store.ErrInvalidTransaction, method)
	}

	var vat int64
	if tx.VATCents > 0 {
		vat = bir.RefundVAT(req.AmountCents, s.vatRate)
	}
	refund := domain.Refund{
		ID:                    xid.New("refund"),
		StoreID:               tx.StoreID,
		OriginalTransactionID: tx.ID,
		Reason:                defaultString(strings.TrimSpace(req.Reason), "unspecified"),
		AmountCents:           req.AmountCents,
		VATCents:              vat,
		PaymentMethod:         method,
		CreatedBy:             actor.Username,
		CreatedAt:             s.now(),
	}
	if shift, err := s.repo.GetActiveShift(ctx, tx.StoreID, tx.TerminalID); err == nil {
		refund.ShiftID = shift.ID
	}

	created, updated, err := s.repo.CreateRefund(ctx, refund)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	s.logAudit(ctx, tx.StoreID, "refund_transaction", "transaction", tx.ID, fmt.Sprintf("amount=%d,vat=%d,method=%s,reason=%s", created.AmountCents, created.VATCents, created.PaymentMethod, created.Reason))
	return domain.RefundResponse{Refund: *created, Transaction: updated.Status}, nil
}

// SyncOffline replays sales captured while a terminal was offline. Each one
// is accepted, reported as a duplicate, or rejected with a reason.
func (s *Service) SyncOffline(ctx context.Context, req domain.OfflineSyncRequest) (domain.OfflineSyncResponse, error) {
	resp := domain.OfflineSyncResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.OfflineSyncStatus, 0, len(req.Transactions)),
	}

	for _, tx := range req.Transactions {
		checkoutReq := tx.Checkout
		if checkoutReq.StoreID == "" {
			checkoutReq.StoreID = req.StoreID
		}
		if checkoutReq.TerminalID == "" {
			checkoutReq.TerminalID = req.TerminalID
		}
		if checkoutReq.IdempotencyKey == "" {
			checkoutReq.IdempotencyKey = tx.ClientTransactionID
		}

		status := domain.OfflineSyncStatus{ClientTransactionID: tx.ClientTransactionID}
		checkoutResp, err := s.Checkout(ctx, checkoutReq)
		if err != nil {
			status.Status = SyncRejected
			status.Reason = err.Error()
			resp.Statuses = append(resp.Statuses, status)
			continue
		}
		status.Status = SyncAccepted
		if checkoutResp.Duplicate {
			status.Status = SyncDuplicate
		}
		status.TransactionID = checkoutResp.TransactionID
		resp.Statuses = append(resp.Statuses, status)
	}

	return resp, nil
}

// BuildHardwareReceipt renders a sale as ESC/POS bytes plus a plain-text
// preview carrying the BIR VAT breakdown.
func (s *Service) BuildHardwareReceipt(ctx context.Context, req domain.HardwareReceiptRequest) (domain.HardwareReceiptResponse, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return domain.HardwareReceiptResponse{}, store.ErrInvalidTransaction
	}
	tx, err := s.repo.FindTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.HardwareReceiptResponse{}, err
	}
	if _, err := s.authorize(ctx, tx.StoreID); err != nil {
		return domain.HardwareReceiptResponse{}, err
	}
	st, err := s.repo.GetStore(ctx, tx.StoreID)
	if err != nil {
		return domain.HardwareReceiptResponse{}, err
	}

	peso := bir.FormatPesos
	lines := []string{
		st.Name,
		st.Address,
		"VAT REG TIN: " + st.TIN,
		"MIN: " + st.MachineSerial,
		"PERMIT: " + st.PermitNumber,
		"================================",
		"OR#: " + tx.ReceiptNumber,
		"Date: " + tx.CreatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
		"Terminal: " + tx.TerminalID,
		"Cashier: " + tx.CashierUsername,
		"Order: " + tx.OrderType,
		"--------------------------------",
	}
	if !st.VATRegistered {
		lines[2] = "NON-VAT REG TIN: " + st.TIN
	}
	for _, item := range tx.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Qty))
		lines = append(lines, fmt.Sprintf("  %s", peso(item.LineTotalCents)))
	}
	lines = append(lines,
		"--------------------------------",
		"Gross        : "+peso(tx.GrossCents),
	)
	if tx.DiscountCents > 0 {
		lines = append(lines, fmt.Sprintf("Less %-8s: %s", strings.ToUpper(tx.DiscountType), peso(tx.DiscountCents)))
		if tx.DiscountIDNumber != "" {
			lines = append(lines, "  ID No.: "+tx.DiscountIDNumber)
		}
	}
	lines = append(lines,
		"TOTAL        : "+peso(tx.TotalCents),
		fmt.Sprintf("%-13s: %s", strings.ToUpper(tx.PaymentMethod), peso(tx.CashReceivedCents)),
		"Change       : "+peso(tx.ChangeCents),
		"--------------------------------",
		"VATable Sales: "+peso(tx.VATableSalesCents),
		fmt.Sprintf("VAT (%d%%)    : %s", s.vatRate, peso(tx.VATCents)),
		"VAT-Exempt   : "+peso(tx.VATExemptCents),
		"Zero-Rated   : "+peso(tx.ZeroRatedCents),
		"================================",
	)
	if tx.Status == domain.TxStatusVoided {
		lines = append(lines, "*** VOIDED ***")
	}
	lines = append(lines, "THIS SERVES AS AN OFFICIAL RECEIPT", "Thank you!", "")

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.HardwareReceiptResponse{
		TransactionID: tx.ID,
		EscposBase64:  base64.StdEncoding.EncodeToString(escpos),
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", tx.ReceiptNumber),
	}, nil
}

func (s *Service) OpenCashDrawer(_ context.Context, req domain.CashDrawerOpenRequest) (domain.CashDrawerOpenResponse, error) {
	terminalID := defaultString(strings.TrimSpace(req.TerminalID), "main-terminal")
	// ESC p 0: pulse drawer kick pin 2.
	command := []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
	return domain.CashDrawerOpenResponse{
		TerminalID:    terminalID,
		CommandBase64: base64.StdEncoding.EncodeToString(command),
		Note:          "Send this ESC/POS pulse command via the local printer bridge to open the cash drawer.",
	}, nil
}

func toCheckoutResponse(tx *domain.Transaction, duplicate bool) domain.CheckoutResponse {
	itemCount := 0
	for _, item := range tx.Items {
		itemCount += item.Qty
	}

	return domain.CheckoutResponse{
		TransactionID:     tx.ID,
		ReceiptNumber:     tx.ReceiptNumber,
		Status:            tx.Status,
		OrderType:         tx.OrderType,
		PaymentMethod:     tx.PaymentMethod,
		PaymentSplits:     tx.PaymentSplits,
		GrossCents:        tx.GrossCents,
		DiscountType:      tx.DiscountType,
		DiscountCents:     tx.DiscountCents,
		VATableSalesCents: tx.VATableSalesCents,
		VATCents:          tx.VATCents,
		VATExemptCents:    tx.VATExemptCents,
		ZeroRatedCents:    tx.ZeroRatedCents,
		TotalCents:        tx.TotalCents,
		CashReceived:      tx.CashReceivedCents,
		ChangeCents:       tx.ChangeCents,
		ItemCount:         itemCount,
		ShiftID:           tx.ShiftID,
		DeductionStatus:   tx.DeductionStatus,
		Duplicate:         duplicate,
		CreatedAt:         tx.CreatedAt.Format(time.RFC3339),
	}
}

// normalizeItems merges lines for the same product, keeping first-seen order.
func normalizeItems(items []domain.CartItem) []domain.CartItem {
	normalized := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || item.Qty < 1 {
			continue
		}
		if i, ok := index[id]; ok {
			normalized[i].Qty += item.Qty
			continue
		}
		index[id] = len(normalized)
		normalized = append(normalized, domain.CartItem{ProductID: id, Qty: item.Qty})
	}
	return normalized
}

func normalizePaymentSplits(splits []domain.PaymentSplit) []domain.PaymentSplit {
	normalized := make([]domain.PaymentSplit, 0, len(splits))
	for _, split := range splits {
		method := strings.ToLower(strings.TrimSpace(split.Method))
		if method == "" || split.AmountCents < 1 {
			continue
		}
		normalized = append(normalized, domain.PaymentSplit{
			Method:      method,
			AmountCents: split.AmountCents,
			Reference:   strings.TrimSpace(split.Reference),
		})
	}
	return normalized
}

var splitMethods = []string{"cash", "card", "gcash", "maya"}

func isSplitMethodSupported(method string) bool {
	return slices.Contains(splitMethods, method)
}

func isSupportedPaymentMethod(method string) bool {
	return method == "split" || isSplitMethodSupported(method)
}
