package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApplyStockChangesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	_, err := s.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:      "main-store",
		MovementType: domain.MovementAdjustment,
		Changes: []domain.StockChange{
			{InventoryItemID: "inv-main-cream", Quantity: dec("-100")},
			{InventoryItemID: "inv-main-croissant", Quantity: dec("-1000")},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	cream, _ := s.GetInventoryItem(ctx, "inv-main-cream")
	if !cream.Stock.Equal(dec("2000")) {
		t.Fatalf("expected cream untouched at 2000, got %s", cream.Stock)
	}
	movements, _ := s.ListMovements(ctx, domain.MovementFilter{StoreID: "main-store"})
	if len(movements) != 0 {
		t.Fatalf("expected no movements after failed batch, got %d", len(movements))
	}
}

func TestApplyStockChangesClampsAndRecordsShortfall(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	movements, err := s.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:       "main-store",
		MovementType:  domain.MovementSale,
		ReferenceType: domain.ReferenceTransaction,
		ReferenceID:   "tx-1",
		ClampAtZero:   true,
		Changes: []domain.StockChange{
			{InventoryItemID: "inv-main-strawberry", Quantity: dec("-525")},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected one movement, got %d", len(movements))
	}
	mv := movements[0]
	if !mv.NewStock.IsZero() || !mv.Shortfall.Equal(dec("25")) || !mv.Quantity.Equal(dec("-500")) {
		t.Fatalf("unexpected movement: new=%s shortfall=%s qty=%s", mv.NewStock, mv.Shortfall, mv.Quantity)
	}
}

func TestApplyStockChangesRejectsOtherStoreItem(t *testing.T) {
	_, err := NewSeeded().ApplyStockChanges(context.Background(), domain.StockChangeBatch{
		StoreID:      "mall-kiosk",
		MovementType: domain.MovementAdjustment,
		Changes:      []domain.StockChange{{InventoryItemID: "inv-main-cream", Quantity: dec("1")}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConvertCommissaryStockCreatesTargetItem(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	conv, err := s.ConvertCommissaryStock(ctx, domain.CommissaryConversion{
		CommissaryItemID: "com-cream-tub",
		StoreID:          "mall-kiosk",
		TargetName:       "Whipping Cream",
		TargetUnit:       "grams",
		Quantity:         dec("2"),
		ConversionRatio:  dec("1000"),
		ConvertedBy:      "admin",
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !conv.ProducedQuantity.Equal(dec("2000")) || conv.TargetUnit != "g" {
		t.Fatalf("unexpected conversion: %+v", conv)
	}
	item, err := s.GetInventoryItem(ctx, conv.InventoryItemID)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if !item.Stock.Equal(dec("2000")) || item.StoreID != "mall-kiosk" {
		t.Fatalf("unexpected target item: %+v", item)
	}
	source, _ := s.GetCommissaryItem(ctx, "com-cream-tub")
	if !source.Stock.Equal(dec("10")) {
		t.Fatalf("expected commissary stock 10, got %s", source.Stock)
	}

	if _, err := s.ConvertCommissaryStock(ctx, domain.CommissaryConversion{
		CommissaryItemID: "com-cream-tub",
		StoreID:          "mall-kiosk",
		InventoryItemID:  conv.InventoryItemID,
		Quantity:         dec("11"),
		ConversionRatio:  dec("1000"),
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestReceivePurchaseOrderRequiresApprovalAndBooksStock(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		StoreID:    "main-store",
		SupplierID: "sup-bakery",
		Items: []domain.PurchaseOrderItem{
			{InventoryItemID: "inv-main-croissant", Quantity: dec("100"), UnitCostCents: dec("2700")},
		},
	})
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	if po.Status != domain.POStatusPending || po.TotalCents != 270000 {
		t.Fatalf("unexpected po: %+v", po)
	}
	if _, err := s.ReceivePurchaseOrder(ctx, po.ID, "manager", time.Time{}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected receive before approval to fail, got %v", err)
	}
	if _, err := s.DecidePurchaseOrder(ctx, po.ID, domain.POStatusApproved, "manager", time.Time{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	received, err := s.ReceivePurchaseOrder(ctx, po.ID, "manager", time.Time{})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Status != domain.POStatusReceived {
		t.Fatalf("expected received, got %s", received.Status)
	}

	item, _ := s.GetInventoryItem(ctx, "inv-main-croissant")
	if !item.Stock.Equal(dec("200")) {
		t.Fatalf("expected stock 200, got %s", item.Stock)
	}
	if !item.CostPerUnitCents.Equal(dec("2600")) {
		t.Fatalf("expected weighted cost 2600, got %s", item.CostPerUnitCents)
	}
	movements, _ := s.ListMovements(ctx, domain.MovementFilter{ReferenceID: po.ID})
	if len(movements) != 1 || movements[0].MovementType != domain.MovementPurchase {
		t.Fatalf("expected one purchase movement, got %+v", movements)
	}
}

func TestCreateTransactionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	tx := domain.Transaction{
		StoreID:        "main-store",
		IdempotencyKey: "idem-1",
		TotalCents:     12500,
		Items:          []domain.TransactionLine{{ProductID: "prod-main-nutella", Qty: 1, UnitPriceCents: 12500, LineTotalCents: 12500}},
	}
	first, err := s.CreateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same transaction, got %s and %s", first.ID, second.ID)
	}
	if first.DeductionStatus != domain.DeductionPending {
		t.Fatalf("expected pending deduction, got %s", first.DeductionStatus)
	}
}

func TestRefundsCannotExceedTotal(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	tx, err := s.CreateTransaction(ctx, domain.Transaction{
		StoreID:        "main-store",
		IdempotencyKey: "idem-refund",
		TotalCents:     10000,
		Items:          []domain.TransactionLine{{ProductID: "prod-main-latte", Qty: 1, UnitPriceCents: 10000, LineTotalCents: 10000}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, updated, err := s.CreateRefund(ctx, domain.Refund{OriginalTransactionID: tx.ID, AmountCents: 4000}); err != nil || updated.Status != domain.TxStatusPaid {
		t.Fatalf("partial refund: %v", err)
	}
	if _, _, err := s.CreateRefund(ctx, domain.Refund{OriginalTransactionID: tx.ID, AmountCents: 7000}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected over-refund rejection, got %v", err)
	}
	_, updated, err := s.CreateRefund(ctx, domain.Refund{OriginalTransactionID: tx.ID, AmountCents: 6000})
	if err != nil {
		t.Fatalf("final refund: %v", err)
	}
	if updated.Status != domain.TxStatusRefunded || updated.RefundedCents != 10000 {
		t.Fatalf("expected fully refunded transaction, got %+v", updated)
	}
}

func TestCreateNumberedTransactionSequencePerStoreAndDay(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	numbering := func(day time.Time) store.ReceiptNumbering {
		return store.ReceiptNumbering{BusinessDay: day, Format: func(seq int) string {
			return fmt.Sprintf("%s-%04d", day.Format("20060102"), seq)
		}}
	}
	sale := func(storeID string, key string, items ...domain.TransactionLine) domain.Transaction {
		return domain.Transaction{StoreID: storeID, IdempotencyKey: key, TotalCents: 12500, Items: items}
	}
	nutella := domain.TransactionLine{ProductID: "prod-main-nutella", Qty: 1, UnitPriceCents: 12500, LineTotalCents: 12500}

	cases := []struct {
		tx   domain.Transaction
		day  time.Time
		want string
	}{
		{sale("main-store", "a", nutella), day, "20260301-0001"},
		{sale("main-store", "a", nutella), day, "20260301-0001"},
		{sale("main-store", "b", nutella), day, "20260301-0002"},
		{sale("mall-kiosk", "c", nutella), day, "20260301-0001"},
		{sale("main-store", "d", nutella), day.AddDate(0, 0, 1), "20260302-0001"},
	}
	for _, tc := range cases {
		got, err := s.CreateNumberedTransaction(ctx, tc.tx, numbering(tc.day))
		if err != nil {
			t.Fatalf("create %s: %v", tc.tx.IdempotencyKey, err)
		}
		if got.ReceiptNumber != tc.want {
			t.Fatalf("%s: expected receipt %s, got %s", tc.tx.IdempotencyKey, tc.want, got.ReceiptNumber)
		}
	}

	if _, err := s.CreateNumberedTransaction(ctx, sale("main-store", "empty"), numbering(day)); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected an empty sale rejected, got %v", err)
	}
	next, err := s.CreateNumberedTransaction(ctx, sale("main-store", "e", nutella), numbering(day))
	if err != nil {
		t.Fatalf("create e: %v", err)
	}
	if next.ReceiptNumber != "20260301-0003" {
		t.Fatalf("expected a rejected sale to leave no gap, got %s", next.ReceiptNumber)
	}
}

func TestShiftLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: "main-store", TerminalID: "T1", OpeningFloatCents: 100000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: "main-store", TerminalID: "T1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second open to conflict, got %v", err)
	}
	closed, err := s.CloseActiveShift(ctx, "main-store", "T1", domain.ShiftClose{ClosingCashCents: 149000, ExpectedCashCents: 150000})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.VarianceCents != -1000 || closed.Status != domain.ShiftStatusClosed {
		t.Fatalf("unexpected closed shift: %+v", closed)
	}
	if _, err := s.GetActiveShift(ctx, "main-store", "T1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no active shift, got %v", err)
	}
}

func TestZReadingUniquePerDay(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	reading := domain.ZReading{StoreID: "main-store", TerminalID: "T1", BusinessDate: "2026-03-01", ResetCounter: 1}
	if _, err := s.CreateZReading(ctx, reading); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateZReading(ctx, reading); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	last, err := s.GetLastZReading(ctx, "main-store", "T1")
	if err != nil || last.ResetCounter != 1 {
		t.Fatalf("unexpected last reading %+v (%v)", last, err)
	}
}

func TestSaveRetryJobUpsertsByTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, _ := s.SaveRetryJob(ctx, domain.RetryJob{TransactionID: "tx-1", Status: domain.RetryPending, Attempts: 1})
	second, _ := s.SaveRetryJob(ctx, domain.RetryJob{TransactionID: "tx-1", Status: domain.RetryPending, Attempts: 2})
	if first.ID != second.ID {
		t.Fatalf("expected same job id, got %s and %s", first.ID, second.ID)
	}
	jobs, _ := s.ListRetryJobs(ctx, domain.RetryPending, time.Time{}, 0)
	if len(jobs) != 1 || jobs[0].Attempts != 2 {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}
