package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"crofflepos/internal/availability"
	"crofflepos/internal/cache"
	"crofflepos/internal/domain"
	"crofflepos/internal/inventory"
	"crofflepos/internal/recipes"
	"crofflepos/internal/store"
	"crofflepos/internal/store/memory"
)

const (
	mainStore  = "main-store"
	kioskStore = "mall-kiosk"
	terminal   = "terminal-1"
)

var (
	adminActor   = domain.Actor{Username: "admin", Role: domain.RoleAdmin}
	ownerActor   = domain.Actor{Username: "owner", Role: domain.RoleOwner}
	managerActor = domain.Actor{Username: "manager", Role: domain.RoleManager, StoreIDs: []string{mainStore}}
	cashierActor = domain.Actor{Username: "cashier", Role: domain.RoleCashier, StoreIDs: []string{mainStore}}
)

type staticPIN string

func (p staticPIN) ValidateManagerPIN(pin string) bool { return pin == string(p) }

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	return newServiceFor(t, repo), repo
}

func newServiceFor(t *testing.T, repo store.Repository) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	deductor := inventory.NewDeductor(repo, logger)
	retry := inventory.NewRetryQueue(repo, deductor, 3, time.Minute, logger)
	avail := availability.NewEngine(repo, cache.NoopAvailabilityCache{}, time.Minute, logger)
	manager := recipes.NewManager(repo, 2, logger)
	return New(repo, deductor, retry, avail, manager, Options{DefaultStoreID: mainStore}, logger)
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

func openShift(t *testing.T, svc *Service, float int64) domain.Shift {
	t.Helper()
	resp, err := svc.OpenShift(as(cashierActor), domain.ShiftOpenRequest{StoreID: mainStore, TerminalID: terminal, OpeningFloatCents: float})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	return resp.Shift
}

func cashSale(t *testing.T, svc *Service, key string, productID string, qty int, received int64) domain.CheckoutResponse {
	t.Helper()
	resp, err := svc.Checkout(as(cashierActor), domain.CheckoutRequest{
		StoreID:           mainStore,
		TerminalID:        terminal,
		IdempotencyKey:    key,
		PaymentMethod:     "cash",
		CashReceivedCents: received,
		CartItems:         []domain.CartItem{{ProductID: productID, Qty: qty}},
	})
	if err != nil {
		t.Fatalf("checkout %s: %v", key, err)
	}
	return resp
}

func stockOf(t *testing.T, repo *memory.Store, id string) decimal.Decimal {
	t.Helper()
	item, err := repo.GetInventoryItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return item.Stock
}

// staleIdempotencyRepo misses every idempotency lookup, as a checkout racing
// another with the same key would.
type staleIdempotencyRepo struct {
	*memory.Store
}

func (staleIdempotencyRepo) FindTransactionByIdempotency(context.Context, string) (*domain.Transaction, error) {
	return nil, store.ErrNotFound
}

func TestCheckoutLostIdempotencyRaceConsumesNoReceiptNumber(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newServiceFor(t, staleIdempotencyRepo{Store: repo})
	openShift(t, svc, 100000)

	first := cashSale(t, svc, "idem-race", "prod-main-nutella", 1, 20000)
	again := cashSale(t, svc, "idem-race", "prod-main-nutella", 1, 20000)
	if !again.Duplicate || again.TransactionID != first.TransactionID || again.ReceiptNumber != first.ReceiptNumber {
		t.Fatalf("expected the stored sale back, got %+v", again)
	}

	next := cashSale(t, svc, "idem-next", "prod-main-nutella", 1, 20000)
	if !strings.Contains(next.ReceiptNumber, "-0002-") {
		t.Fatalf("expected the next receipt to be 0002, got %s", next.ReceiptNumber)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("expected two sales deducted, got %s croissants", got)
	}
}

func TestCheckoutRequiresActiveShift(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(as(cashierActor), domain.CheckoutRequest{
		StoreID:           mainStore,
		TerminalID:        terminal,
		PaymentMethod:     "cash",
		CashReceivedCents: 20000,
		CartItems:         []domain.CartItem{{ProductID: "prod-main-nutella", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction without a shift, got %v", err)
	}
}

func TestCheckoutComputesVATAndDeductsInventory(t *testing.T) {
	svc, repo := newTestService(t)
	openShift(t, svc, 100000)

	resp := cashSale(t, svc, "idem-vat", "prod-main-nutella", 2, 30000)
	if resp.GrossCents != 25000 || resp.VATableSalesCents != 22321 || resp.VATCents != 2679 || resp.TotalCents != 25000 {
		t.Fatalf("unexpected VAT breakdown: %+v", resp)
	}
	if resp.ChangeCents != 5000 || resp.ItemCount != 2 {
		t.Fatalf("unexpected change or item count: %+v", resp)
	}
	if resp.DeductionStatus != domain.DeductionComplete {
		t.Fatalf("expected complete deduction, got %s (%v)", resp.DeductionStatus, resp.Warnings)
	}
	if !strings.Contains(resp.ReceiptNumber, "-0001-") {
		t.Fatalf("expected first receipt of the day, got %s", resp.ReceiptNumber)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("expected 98 croissants left, got %s", got)
	}
	if got := stockOf(t, repo, "inv-main-nutella"); !got.Equal(decimal.NewFromInt(940)) {
		t.Fatalf("expected 940 g nutella left, got %s", got)
	}
}

func TestCheckoutIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	openShift(t, svc, 0)

	first := cashSale(t, svc, "idem-repeat", "prod-main-nutella", 1, 12500)
	second := cashSale(t, svc, "idem-repeat", "prod-main-nutella", 1, 12500)
	if !second.Duplicate || second.TransactionID != first.TransactionID {
		t.Fatalf("expected duplicate of %s, got %+v", first.TransactionID, second)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("expected a single deduction, croissant stock %s", got)
	}

	lookup, err := svc.LookupCheckoutByIdempotency(as(cashierActor), "idem-repeat")
	if err != nil || !lookup.Found || lookup.Checkout.TransactionID != first.TransactionID {
		t.Fatalf("unexpected lookup result %+v, err %v", lookup, err)
	}
}

func TestCheckoutSplitPayment(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 0)
	ctx := as(cashierActor)

	base := domain.CheckoutRequest{
		StoreID:    mainStore,
		TerminalID: terminal,
		CartItems:  []domain.CartItem{{ProductID: "prod-main-nutella", Qty: 1}},
	}

	missingRef := base
	missingRef.IdempotencyKey = "split-noref"
	missingRef.PaymentSplits = []domain.PaymentSplit{{Method: "cash", AmountCents: 5000}, {Method: "gcash", AmountCents: 7500}}
	if _, err := svc.Checkout(ctx, missingRef); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected missing gcash reference to fail, got %v", err)
	}

	short := base
	short.IdempotencyKey = "split-short"
	short.PaymentSplits = []domain.PaymentSplit{{Method: "cash", AmountCents: 5000}, {Method: "card", AmountCents: 7000, Reference: "CARD-1"}}
	if _, err := svc.Checkout(ctx, short); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected split total mismatch to fail, got %v", err)
	}

	ok := base
	ok.IdempotencyKey = "split-ok"
	ok.PaymentSplits = []domain.PaymentSplit{{Method: "cash", AmountCents: 5000}, {Method: "GCash", AmountCents: 7500, Reference: "GC-77"}}
	resp, err := svc.Checkout(ctx, ok)
	if err != nil {
		t.Fatalf("split checkout: %v", err)
	}
	if resp.PaymentMethod != "split" || len(resp.PaymentSplits) != 2 || resp.PaymentSplits[1].Method != "gcash" {
		t.Fatalf("unexpected split response: %+v", resp)
	}
}

func TestCheckoutSeniorDiscountIsVATExempt(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 0)

	resp, err := svc.Checkout(as(cashierActor), domain.CheckoutRequest{
		StoreID:           mainStore,
		TerminalID:        terminal,
		PaymentMethod:     "cash",
		CashReceivedCents: 10000,
		Discount:          domain.DiscountInput{Type: domain.DiscountSenior, IDNumber: "SC-1234"},
		CartItems:         []domain.CartItem{{ProductID: "prod-main-nutella", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if resp.VATCents != 0 || resp.VATExemptCents != 11161 || resp.DiscountCents != 2232 || resp.TotalCents != 8929 {
		t.Fatalf("unexpected senior breakdown: %+v", resp)
	}
	if resp.ChangeCents != 1071 {
		t.Fatalf("expected 1071 change, got %d", resp.ChangeCents)
	}
}

func TestCheckoutStrictStock(t *testing.T) {
	svc, repo := newTestService(t)
	openShift(t, svc, 0)

	if _, err := svc.CountStock(as(managerActor), domain.StockCountRequest{
		StoreID: mainStore,
		Items:   []domain.StockCountLine{{InventoryItemID: "inv-main-nutella", CountedQty: decimal.NewFromInt(10)}},
	}); err != nil {
		t.Fatalf("count: %v", err)
	}

	req := domain.CheckoutRequest{
		StoreID:           mainStore,
		TerminalID:        terminal,
		IdempotencyKey:    "strict",
		PaymentMethod:     "cash",
		CashReceivedCents: 12500,
		StrictStock:       true,
		CartItems:         []domain.CartItem{{ProductID: "prod-main-nutella", Qty: 1}},
	}
	_, err := svc.Checkout(as(cashierActor), req)
	if !errors.Is(err, store.ErrInsufficientStock) || !strings.Contains(err.Error(), "Nutella") {
		t.Fatalf("expected insufficient Nutella, got %v", err)
	}

	req.StrictStock = false
	req.IdempotencyKey = "lenient"
	resp, err := svc.Checkout(as(cashierActor), req)
	if err != nil {
		t.Fatalf("lenient checkout: %v", err)
	}
	if len(resp.Warnings) == 0 {
		t.Fatalf("expected a shortfall warning")
	}
	if got := stockOf(t, repo, "inv-main-nutella"); !got.IsZero() {
		t.Fatalf("expected nutella floored at zero, got %s", got)
	}
}

func TestVoidRequiresManagerApprovalAndRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	openShift(t, svc, 0)
	sale := cashSale(t, svc, "void-me", "prod-main-nutella", 1, 12500)

	req := domain.VoidTransactionRequest{TransactionID: sale.TransactionID, Reason: "wrong order"}
	if _, err := svc.VoidTransaction(as(cashierActor), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier void without PIN to be forbidden, got %v", err)
	}

	svc.SetPINVerifier(staticPIN("739154"))
	req.ManagerPIN = "000000"
	if _, err := svc.VoidTransaction(as(cashierActor), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected wrong PIN to be forbidden, got %v", err)
	}
	req.ManagerPIN = "739154"
	resp, err := svc.VoidTransaction(as(cashierActor), req)
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if resp.Status != domain.TxStatusVoided || resp.Restored != 3 {
		t.Fatalf("unexpected void response: %+v", resp)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected croissant stock restored, got %s", got)
	}

	if _, err := svc.VoidTransaction(as(managerActor), req); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected second void to fail, got %v", err)
	}
}

func TestRefundCapsCumulativeAmount(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 0)
	sale := cashSale(t, svc, "refund-me", "prod-main-nutella", 1, 12500)
	ctx := as(managerActor)

	first, err := svc.Refund(ctx, domain.RefundRequest{OriginalTransactionID: sale.TransactionID, AmountCents: 5000, Reason: "cold"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if first.Refund.VATCents != 536 || first.Refund.PaymentMethod != "cash" || first.Transaction != domain.TxStatusPaid {
		t.Fatalf("unexpected partial refund: %+v", first)
	}

	if _, err := svc.Refund(ctx, domain.RefundRequest{OriginalTransactionID: sale.TransactionID, AmountCents: 8000}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected over-refund to fail, got %v", err)
	}

	rest, err := svc.Refund(ctx, domain.RefundRequest{OriginalTransactionID: sale.TransactionID, AmountCents: 7500})
	if err != nil {
		t.Fatalf("final refund: %v", err)
	}
	if rest.Transaction != domain.TxStatusRefunded {
		t.Fatalf("expected fully refunded, got %s", rest.Transaction)
	}

	if _, err := svc.VoidTransaction(ctx, domain.VoidTransactionRequest{TransactionID: sale.TransactionID}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected refunded sale to be unvoidable, got %v", err)
	}
}

func TestCloseShiftComputesExpectedCash(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 100000)
	ctx := as(cashierActor)

	cash := cashSale(t, svc, "shift-cash", "prod-main-nutella", 1, 20000)
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		StoreID: mainStore, TerminalID: terminal, IdempotencyKey: "shift-gcash",
		PaymentMethod: "gcash", PaymentReference: "GC-1",
		CartItems: []domain.CartItem{{ProductID: "prod-main-biscoff", Qty: 1}},
	}); err != nil {
		t.Fatalf("gcash checkout: %v", err)
	}
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		StoreID: mainStore, TerminalID: terminal, IdempotencyKey: "shift-split",
		PaymentSplits: []domain.PaymentSplit{{Method: "cash", AmountCents: 5000}, {Method: "card", AmountCents: 6500, Reference: "C-9"}},
		CartItems:     []domain.CartItem{{ProductID: "prod-main-strawberry", Qty: 1}},
	}); err != nil {
		t.Fatalf("split checkout: %v", err)
	}
	if _, err := svc.Refund(as(managerActor), domain.RefundRequest{OriginalTransactionID: cash.TransactionID, AmountCents: 2000}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	resp, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{StoreID: mainStore, TerminalID: terminal, ClosingCashCents: 115000})
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if resp.Shift.ExpectedCashCents != 115500 || resp.Shift.VarianceCents != -500 || resp.Shift.Status != domain.ShiftStatusClosed {
		t.Fatalf("unexpected closed shift: %+v", resp.Shift)
	}
}

func TestAuthorizationRules(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ListProducts(context.Background(), mainStore, true); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected anonymous access to be forbidden, got %v", err)
	}
	if _, err := svc.CreateProduct(as(cashierActor), domain.ProductCreateRequest{StoreID: mainStore, Name: "Ube Croffle", PriceCents: 13000}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier product create to be forbidden, got %v", err)
	}
	if _, err := svc.OpenShift(as(managerActor), domain.ShiftOpenRequest{StoreID: kioskStore, TerminalID: terminal}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected manager of another store to be forbidden, got %v", err)
	}
	if _, err := svc.CreateUser(as(ownerActor), domain.UserCreateRequest{Username: "boss2", Password: "longenough", Role: domain.RoleAdmin}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected owner creating admin to be forbidden, got %v", err)
	}

	stores, err := svc.ListStores(as(cashierActor))
	if err != nil || len(stores) != 1 || stores[0].ID != mainStore {
		t.Fatalf("expected cashier to see only main store, got %+v (%v)", stores, err)
	}
	product, err := svc.CreateProduct(as(managerActor), domain.ProductCreateRequest{StoreID: mainStore, Name: "Ube Croffle", PriceCents: 13000, CategoryID: "cat-main-classic"})
	if err != nil || !product.Active {
		t.Fatalf("expected manager product create to succeed, got %+v (%v)", product, err)
	}
}

func TestCreateUserStoresBcryptHash(t *testing.T) {
	svc, repo := newTestService(t)

	view, err := svc.CreateUser(as(adminActor), domain.UserCreateRequest{
		Username: "Kiosk.Cashier", Password: "croffle-pass", Role: domain.RoleCashier, StoreIDs: []string{kioskStore},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if view.Username != "kiosk.cashier" || view.StoreIDs[0] != kioskStore {
		t.Fatalf("unexpected view: %+v", view)
	}
	users, _ := repo.ListUsers(context.Background())
	for _, u := range users {
		if u.Username == "kiosk.cashier" {
			if u.Password == "croffle-pass" || !strings.HasPrefix(u.Password, "$2") {
				t.Fatalf("expected bcrypt hash, got %q", u.Password)
			}
			return
		}
	}
	t.Fatalf("created user not found")
}

func TestPurchaseOrderLifecycleAndReorderSuggestions(t *testing.T) {
	svc, repo := newTestService(t)

	created, err := svc.CreatePurchaseOrder(as(managerActor), domain.PurchaseOrderCreateRequest{
		StoreID:    mainStore,
		SupplierID: "sup-bakery",
		Items: []domain.PurchaseOrderItem{
			{InventoryItemID: "inv-main-cup", Quantity: decimal.NewFromInt(100), UnitCostCents: decimal.NewFromInt(500)},
		},
	})
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	po := created.PurchaseOrder
	if po.Status != domain.POStatusPending || po.TotalCents != 50000 {
		t.Fatalf("unexpected po: %+v", po)
	}

	if _, err := svc.ReceivePurchaseOrder(as(managerActor), po.ID); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected receiving a pending po to fail, got %v", err)
	}
	if _, err := svc.DecidePurchaseOrder(as(managerActor), po.ID, domain.PurchaseOrderDecisionRequest{Approve: true}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected manager approval to be forbidden, got %v", err)
	}
	if _, err := svc.DecidePurchaseOrder(as(ownerActor), po.ID, domain.PurchaseOrderDecisionRequest{Approve: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	received, err := svc.ReceivePurchaseOrder(as(managerActor), po.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.PurchaseOrder.Status != domain.POStatusReceived {
		t.Fatalf("expected received status, got %s", received.PurchaseOrder.Status)
	}
	cup, _ := repo.GetInventoryItem(context.Background(), "inv-main-cup")
	if !cup.Stock.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected 300 cups, got %s", cup.Stock)
	}
	if want := decimal.RequireFromString("466.6667"); !cup.CostPerUnitCents.Equal(want) {
		t.Fatalf("expected weighted cost %s, got %s", want, cup.CostPerUnitCents)
	}

	if _, err := svc.CountStock(as(managerActor), domain.StockCountRequest{
		StoreID: mainStore,
		Items:   []domain.StockCountLine{{InventoryItemID: "inv-main-nutella", CountedQty: decimal.NewFromInt(100)}},
	}); err != nil {
		t.Fatalf("count: %v", err)
	}
	suggestions, err := svc.ReorderSuggestions(as(managerActor), mainStore)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(suggestions.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %+v", suggestions.Suggestions)
	}
	got := suggestions.Suggestions[0]
	if got.InventoryItemID != "inv-main-nutella" || !got.RecommendedQty.Equal(decimal.NewFromInt(200)) || got.EstimatedPurchaseCents != 240 {
		t.Fatalf("unexpected suggestion: %+v", got)
	}
}

func TestReportsAndProfitLoss(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 0)

	cashSale(t, svc, "report-keep", "prod-main-nutella", 1, 12500)
	voided := cashSale(t, svc, "report-void", "prod-main-nutella", 1, 12500)
	if _, err := svc.VoidTransaction(as(managerActor), domain.VoidTransactionRequest{TransactionID: voided.TransactionID}); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := svc.CreateExpense(as(managerActor), domain.ExpenseCreateRequest{StoreID: mainStore, Category: "Utilities", AmountCents: 1000}); err != nil {
		t.Fatalf("expense: %v", err)
	}

	sales, err := svc.SalesReport(as(managerActor), mainStore, "", "")
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if sales.Transactions != 1 || sales.VoidCount != 1 || sales.NetSalesCents != 12500 {
		t.Fatalf("unexpected sales report: %+v", sales)
	}
	if len(sales.TopProducts) != 1 || sales.TopProducts[0].Qty != 1 || sales.ByCashier[0].Key != "cashier" {
		t.Fatalf("unexpected breakdowns: %+v", sales)
	}

	pl, err := svc.ProfitLoss(as(managerActor), mainStore, "", "")
	if err != nil {
		t.Fatalf("profit and loss: %v", err)
	}
	// One croffle: dough 2500 + cream 20 g x 0.5 + nutella 30 g x 1.2.
	if pl.RevenueCents != 11161 || pl.COGSCents != 2546 || pl.GrossProfitCents != 8615 || pl.NetProfitCents != 7615 {
		t.Fatalf("unexpected P&L: %+v", pl)
	}

	if _, err := svc.SalesReport(as(cashierActor), mainStore, "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be denied reports, got %v", err)
	}
}

func TestZReadingChainsPerTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	shift := openShift(t, svc, 0)
	cashSale(t, svc, "z-1", "prod-main-nutella", 2, 25000)

	x, err := svc.XReading(as(cashierActor), XReadingRequest{StoreID: mainStore, ShiftID: shift.ID})
	if err != nil {
		t.Fatalf("x reading: %v", err)
	}
	if x.Kind != "X" || x.TransactionCount != 1 || x.VATCents != 2679 || x.CashierUsername != "cashier" {
		t.Fatalf("unexpected x reading: %+v", x)
	}

	z, err := svc.CreateZReading(as(managerActor), mainStore, terminal, "")
	if err != nil {
		t.Fatalf("z reading: %v", err)
	}
	if z.ResetCounter != 1 || z.BeginningGrandTotalCents != 0 || z.EndingGrandTotalCents != 25000 {
		t.Fatalf("unexpected z reading: %+v", z)
	}
	if _, err := svc.CreateZReading(as(managerActor), mainStore, terminal, ""); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second z reading for the day to conflict, got %v", err)
	}

	found, err := svc.GetZReading(as(managerActor), mainStore, z.ID)
	if err != nil || found.ID != z.ID {
		t.Fatalf("get z reading: %+v (%v)", found, err)
	}
}

func TestConvertCommissaryUsesPackSize(t *testing.T) {
	svc, repo := newTestService(t)

	conv, err := svc.ConvertCommissary(as(ownerActor), domain.CommissaryConversionRequest{
		CommissaryItemID: "com-dough-batch",
		StoreID:          mainStore,
		InventoryItemID:  "inv-main-croissant",
		Quantity:         decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !conv.ConversionRatio.Equal(decimal.NewFromInt(24)) || !conv.ProducedQuantity.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("unexpected conversion: %+v", conv)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(decimal.NewFromInt(148)) {
		t.Fatalf("expected 148 croissants, got %s", got)
	}
	source, _ := repo.GetCommissaryItem(context.Background(), "com-dough-batch")
	if !source.Stock.Equal(decimal.NewFromInt(28)) {
		t.Fatalf("expected 28 batches left, got %s", source.Stock)
	}

	if _, err := svc.ConvertCommissary(as(managerActor), domain.CommissaryConversionRequest{CommissaryItemID: "com-dough-batch", StoreID: mainStore, Quantity: decimal.NewFromInt(1)}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected manager conversion to be forbidden, got %v", err)
	}
}

func TestCreateRecipeMatchesInventoryAndDeducts(t *testing.T) {
	svc, repo := newTestService(t)

	recipe, err := svc.CreateRecipe(as(managerActor), domain.RecipeCreateRequest{
		StoreID:   mainStore,
		Name:      "Bottled Water Service",
		ProductID: "prod-main-water",
		Ingredients: []domain.RecipeIngredient{
			{IngredientName: "paper cup 16oz", Quantity: decimal.NewFromInt(1), Unit: "pcs"},
		},
	})
	if err != nil {
		t.Fatalf("create recipe: %v", err)
	}
	if recipe.Ingredients[0].InventoryItemID != "inv-main-cup" || recipe.CostCents != 450 {
		t.Fatalf("unexpected recipe: %+v", recipe)
	}

	openShift(t, svc, 0)
	cashSale(t, svc, "water", "prod-main-water", 2, 7000)
	if got := stockOf(t, repo, "inv-main-cup"); !got.Equal(decimal.NewFromInt(198)) {
		t.Fatalf("expected 198 cups, got %s", got)
	}
}

func TestAdjustStockRequiresReasonAndRejectsNegative(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := as(managerActor)

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{StoreID: mainStore, Changes: []domain.StockChange{{InventoryItemID: "inv-main-milk", Quantity: decimal.NewFromInt(-1)}}}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected missing reason to fail, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{StoreID: mainStore, Reason: "spilled", Changes: []domain.StockChange{{InventoryItemID: "inv-main-milk", Quantity: decimal.NewFromInt(-50)}}}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected negative stock to be rejected, got %v", err)
	}
	moves, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{StoreID: mainStore, Reason: "spilled", Changes: []domain.StockChange{{InventoryItemID: "inv-main-milk", Quantity: decimal.RequireFromString("-1.5")}}})
	if err != nil || len(moves) != 1 {
		t.Fatalf("adjust: %+v (%v)", moves, err)
	}
	if got := stockOf(t, repo, "inv-main-milk"); !got.Equal(decimal.RequireFromString("8.5")) {
		t.Fatalf("expected 8.5 liters, got %s", got)
	}
}

func TestOfflineSyncReportsEachTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 0)

	item := domain.CheckoutRequest{PaymentMethod: "cash", CashReceivedCents: 12500, CartItems: []domain.CartItem{{ProductID: "prod-main-nutella", Qty: 1}}}
	bad := item
	bad.CashReceivedCents = 100

	resp, err := svc.SyncOffline(as(cashierActor), domain.OfflineSyncRequest{
		StoreID:    mainStore,
		TerminalID: terminal,
		EnvelopeID: "env-1",
		Transactions: []domain.OfflineTransaction{
			{ClientTransactionID: "c-1", Checkout: item},
			{ClientTransactionID: "c-1", Checkout: item},
			{ClientTransactionID: "c-2", Checkout: bad},
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	want := []string{SyncAccepted, SyncDuplicate, SyncRejected}
	for i, status := range resp.Statuses {
		if status.Status != want[i] {
			t.Fatalf("status %d: expected %s, got %+v", i, want[i], status)
		}
	}
}

func TestHardwareReceiptCarriesBIRFields(t *testing.T) {
	svc, _ := newTestService(t)
	openShift(t, svc, 0)
	sale := cashSale(t, svc, "receipt", "prod-main-nutella", 1, 20000)

	receipt, err := svc.BuildHardwareReceipt(as(cashierActor), domain.HardwareReceiptRequest{TransactionID: sale.TransactionID})
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	for _, want := range []string{"VAT REG TIN: 123-456-789-000", "MIN: MIN-0001", "OR#: " + sale.ReceiptNumber, "THIS SERVES AS AN OFFICIAL RECEIPT"} {
		if !strings.Contains(receipt.PreviewText, want) {
			t.Fatalf("receipt missing %q:\n%s", want, receipt.PreviewText)
		}
	}
	if receipt.EscposBase64 == "" {
		t.Fatalf("expected escpos payload")
	}
}
