package inventory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/store/memory"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(productID string, qty int) domain.TransactionLine {
	return domain.TransactionLine{ProductID: productID, Name: productID, Qty: qty}
}

func newSale(t *testing.T, repo *memory.Store, key string, lines ...domain.TransactionLine) domain.Transaction {
	t.Helper()
	tx, err := repo.CreateTransaction(context.Background(), domain.Transaction{
		StoreID:         "main-store",
		TerminalID:      "T1",
		ReceiptNumber:   key,
		IdempotencyKey:  key,
		CashierUsername: "cashier",
		PaymentMethod:   "cash",
		Items:           lines,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return *tx
}

func stockOf(t *testing.T, repo *memory.Store, id string) decimal.Decimal {
	t.Helper()
	item, err := repo.GetInventoryItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return item.Stock
}

func TestDeductTransactionPartialWhenLineHasNoRecipe(t *testing.T) {
	repo := memory.NewSeeded()
	deductor := NewDeductor(repo, nil)
	var invalidated []string
	deductor.OnStockChange(func(_ context.Context, storeID string) {
		invalidated = append(invalidated, storeID)
	})
	tx := newSale(t, repo, "R-1", line("prod-main-nutella", 2), line("prod-main-water", 1))

	result, err := deductor.DeductTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if result.Status != domain.DeductionPartial {
		t.Fatalf("expected partial, got %s", result.Status)
	}
	if len(result.Deductions) != 3 {
		t.Fatalf("expected 3 ingredient deductions, got %d", len(result.Deductions))
	}
	for id, want := range map[string]string{
		"inv-main-croissant": "98",
		"inv-main-cream":     "1960",
		"inv-main-nutella":   "940",
	} {
		if got := stockOf(t, repo, id); !got.Equal(dec(want)) {
			t.Fatalf("%s: expected %s, got %s", id, want, got)
		}
	}
	if len(invalidated) != 1 || invalidated[0] != "main-store" {
		t.Fatalf("expected one stock change notification, got %v", invalidated)
	}

	stored, _ := repo.FindTransactionByID(context.Background(), tx.ID)
	if stored.DeductionStatus != domain.DeductionPartial {
		t.Fatalf("expected stored status partial, got %s", stored.DeductionStatus)
	}
}

func TestDeductTransactionIsIdempotent(t *testing.T) {
	repo := memory.NewSeeded()
	deductor := NewDeductor(repo, nil)
	ctx := context.Background()
	tx := newSale(t, repo, "R-1", line("prod-main-nutella", 1))

	if _, err := deductor.DeductTransaction(ctx, tx); err != nil {
		t.Fatalf("first deduct: %v", err)
	}
	again, err := deductor.DeductTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("second deduct: %v", err)
	}
	if !again.AlreadyDeducted {
		t.Fatalf("expected already deducted flag")
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(dec("99")) {
		t.Fatalf("expected dough deducted once to 99, got %s", got)
	}
}

// gatedRepo holds every sale lookup until both callers have seen no movements.
type gatedRepo struct {
	*memory.Store
	arrived *sync.WaitGroup
}

func (g gatedRepo) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	movements, err := g.Store.ListMovements(ctx, filter)
	if filter.MovementType == domain.MovementSale {
		g.arrived.Done()
		g.arrived.Wait()
	}
	return movements, err
}

func TestDeductTransactionConcurrentCallersDeductOnce(t *testing.T) {
	repo := memory.NewSeeded()
	tx := newSale(t, repo, "R-1", line("prod-main-nutella", 1))

	var arrived sync.WaitGroup
	arrived.Add(2)
	deductor := NewDeductor(gatedRepo{Store: repo, arrived: &arrived}, nil)

	results := make([]domain.DeductionResult, 2)
	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range 2 {
		done.Add(1)
		go func() {
			defer done.Done()
			results[i], errs[i] = deductor.DeductTransaction(context.Background(), tx)
		}()
	}
	done.Wait()

	already := 0
	for i := range 2 {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].AlreadyDeducted {
			already++
		}
	}
	if already != 1 {
		t.Fatalf("expected exactly one caller to see the sale already deducted, got %d", already)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(dec("99")) {
		t.Fatalf("expected dough deducted once to 99, got %s", got)
	}
	movements, _ := repo.ListMovements(context.Background(), domain.MovementFilter{
		MovementType: domain.MovementSale,
		ReferenceID:  tx.ID,
	})
	if len(movements) != 3 {
		t.Fatalf("expected 3 sale movements, got %d", len(movements))
	}
	stored, _ := repo.FindTransactionByID(context.Background(), tx.ID)
	if stored.DeductionStatus != domain.DeductionComplete {
		t.Fatalf("expected stored status complete, got %s", stored.DeductionStatus)
	}
}

func TestApplyStockChangesOncePerReferenceConflicts(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	batch := domain.StockChangeBatch{
		StoreID:          "main-store",
		MovementType:     domain.MovementSale,
		ReferenceType:    domain.ReferenceTransaction,
		ReferenceID:      "tx-1",
		OncePerReference: true,
		ClampAtZero:      true,
		Changes:          []domain.StockChange{{InventoryItemID: "inv-main-croissant", Quantity: dec("-1")}},
	}
	if _, err := repo.ApplyStockChanges(ctx, batch); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if _, err := repo.ApplyStockChanges(ctx, batch); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second batch, got %v", err)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(dec("99")) {
		t.Fatalf("expected dough at 99, got %s", got)
	}
}

func TestDeductTransactionFloorsStockAtZero(t *testing.T) {
	repo := memory.NewSeeded()
	deductor := NewDeductor(repo, nil)
	tx := newSale(t, repo, "R-1", line("prod-main-strawberry", 21))

	result, err := deductor.DeductTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if result.Status != domain.DeductionComplete {
		t.Fatalf("expected complete, got %s", result.Status)
	}
	if got := stockOf(t, repo, "inv-main-strawberry"); !got.IsZero() {
		t.Fatalf("expected jam floored at zero, got %s", got)
	}
	var jam domain.IngredientDeduction
	for _, d := range result.Deductions {
		if d.InventoryItemID == "inv-main-strawberry" {
			jam = d
		}
	}
	if !jam.Shortfall.Equal(dec("25")) || !jam.Deducted.Equal(dec("500")) || !jam.Required.Equal(dec("525")) {
		t.Fatalf("unexpected jam deduction: %+v", jam)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Strawberry Jam: short by 25") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected shortfall warning, got %v", result.Warnings)
	}
}

func TestDeductTransactionSkippedWithoutRecipes(t *testing.T) {
	repo := memory.NewSeeded()
	tx := newSale(t, repo, "R-1", line("prod-main-water", 3))

	result, err := NewDeductor(repo, nil).DeductTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if result.Status != domain.DeductionSkipped {
		t.Fatalf("expected skipped, got %s", result.Status)
	}
	movements, _ := repo.ListMovements(context.Background(), domain.MovementFilter{ReferenceID: tx.ID})
	if len(movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(movements))
	}
}

func TestBuildPlanRejectsUnitMismatchForWholeLine(t *testing.T) {
	products := map[string]domain.Product{
		"p1": {ID: "p1", Name: "Croffle", RecipeID: "r1"},
	}
	recipes := map[string]domain.Recipe{
		"r1": {ID: "r1", Ingredients: []domain.RecipeIngredient{
			{InventoryItemID: "dough", IngredientName: "Dough", Quantity: dec("1"), Unit: "pieces"},
			{InventoryItemID: "cream", IngredientName: "Cream", Quantity: dec("2"), Unit: "pieces"},
		}},
	}
	items := map[string]domain.InventoryItem{
		"dough": {ID: "dough", Name: "Dough", Unit: "pieces", Stock: dec("10")},
		"cream": {ID: "cream", Name: "Cream", Unit: "kg", Stock: dec("1")},
	}

	plan := BuildPlan([]domain.TransactionLine{line("p1", 2)}, products, recipes, items)
	if len(plan.Errors) != 1 || plan.MappedLines != 0 || len(plan.Requirements) != 0 {
		t.Fatalf("expected the line dropped with one error, got %+v", plan)
	}
}

func TestBuildPlanConvertsAndAggregates(t *testing.T) {
	products := map[string]domain.Product{
		"p1": {ID: "p1", Name: "Latte", RecipeID: "r1"},
		"p2": {ID: "p2", Name: "Mocha", RecipeID: "r2"},
	}
	recipes := map[string]domain.Recipe{
		"r1": {ID: "r1", Ingredients: []domain.RecipeIngredient{{InventoryItemID: "milk", IngredientName: "Milk", Quantity: dec("200"), Unit: "ml"}}},
		"r2": {ID: "r2", Ingredients: []domain.RecipeIngredient{{InventoryItemID: "milk", IngredientName: "Milk", Quantity: dec("150"), Unit: "ml"}}},
	}
	items := map[string]domain.InventoryItem{
		"milk": {ID: "milk", Name: "Milk", Unit: "liters", Stock: dec("5")},
	}

	plan := BuildPlan([]domain.TransactionLine{line("p1", 2), line("p2", 1)}, products, recipes, items)
	if len(plan.Requirements) != 1 {
		t.Fatalf("expected one aggregated requirement, got %d", len(plan.Requirements))
	}
	if got := plan.Requirements[0].Required; !got.Equal(dec("0.55")) {
		t.Fatalf("expected 0.55 liters, got %s", got)
	}
}

func TestValidateTransactionReportsInsufficientIngredients(t *testing.T) {
	repo := memory.NewSeeded()
	deductor := NewDeductor(repo, nil)

	result, err := deductor.ValidateTransaction(context.Background(), "main-store", []domain.TransactionLine{line("prod-main-strawberry", 21)})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid || len(result.Insufficient) != 1 {
		t.Fatalf("expected one insufficient ingredient, got %+v", result)
	}
	got := result.Insufficient[0]
	if got.InventoryItemID != "inv-main-strawberry" || !got.Required.Equal(dec("525")) || !got.Available.Equal(dec("500")) || got.Unit != "g" {
		t.Fatalf("unexpected insufficient entry: %+v", got)
	}

	ok, err := deductor.ValidateTransaction(context.Background(), "main-store", []domain.TransactionLine{line("prod-main-strawberry", 20)})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok.Valid {
		t.Fatalf("expected 20 strawberry croffles to validate, got %+v", ok)
	}
	if got := stockOf(t, repo, "inv-main-strawberry"); !got.Equal(dec("500")) {
		t.Fatalf("validation must not write stock, got %s", got)
	}
}

func TestRollbackTransactionRestoresDeductedStock(t *testing.T) {
	repo := memory.NewSeeded()
	deductor := NewDeductor(repo, nil)
	ctx := context.Background()
	tx := newSale(t, repo, "R-1", line("prod-main-strawberry", 21))

	if _, err := deductor.DeductTransaction(ctx, tx); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	restored, err := deductor.RollbackTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if restored != 2 {
		t.Fatalf("expected 2 ingredients restored, got %d", restored)
	}
	// Only what was actually taken comes back, not the shortfall.
	if got := stockOf(t, repo, "inv-main-strawberry"); !got.Equal(dec("500")) {
		t.Fatalf("expected jam back at 500, got %s", got)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(dec("100")) {
		t.Fatalf("expected dough back at 100, got %s", got)
	}

	again, err := deductor.RollbackTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("second rollback: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected second rollback to restore nothing, got %d", again)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(dec("100")) {
		t.Fatalf("expected dough unchanged at 100, got %s", got)
	}
}

func TestReconcileDayDeductsOutstandingTransactions(t *testing.T) {
	repo := memory.NewSeeded()
	deductor := NewDeductor(repo, nil)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i, key := range []string{"R-1", "R-2"} {
		tx, err := repo.CreateTransaction(ctx, domain.Transaction{
			StoreID:        "main-store",
			ReceiptNumber:  key,
			IdempotencyKey: key,
			Items:          []domain.TransactionLine{line("prod-main-nutella", 1)},
			CreatedAt:      day.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
		if i == 0 {
			if _, err := deductor.DeductTransaction(ctx, *tx); err != nil {
				t.Fatalf("deduct %s: %v", key, err)
			}
		}
	}

	report, err := NewReconciler(repo, deductor, nil).ReconcileDay(ctx, "main-store", day)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.TotalTransactions != 2 || report.AlreadyComplete != 1 || report.Processed != 1 || report.Deductions != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Summary != "Processed 1/1 transactions, 3 inventory deductions" {
		t.Fatalf("unexpected summary %q", report.Summary)
	}
	if got := stockOf(t, repo, "inv-main-croissant"); !got.Equal(dec("98")) {
		t.Fatalf("expected both sales deducted, got dough %s", got)
	}
}

func TestCheckLevelsFlagsLowStock(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	reconciler := NewReconciler(repo, NewDeductor(repo, nil), nil)

	healthy, err := reconciler.CheckLevels(ctx, "main-store")
	if err != nil {
		t.Fatalf("check levels: %v", err)
	}
	if !healthy.Healthy || healthy.CheckedItems != 8 {
		t.Fatalf("expected healthy seed store with 8 items, got %+v", healthy)
	}

	if _, err := repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:      "main-store",
		MovementType: domain.MovementCount,
		Changes:      []domain.StockChange{{InventoryItemID: "inv-main-strawberry", Quantity: dec("100"), Absolute: true}},
	}); err != nil {
		t.Fatalf("count: %v", err)
	}
	report, err := reconciler.CheckLevels(ctx, "main-store")
	if err != nil {
		t.Fatalf("check levels: %v", err)
	}
	if report.Healthy || len(report.LowStock) != 1 || report.LowStock[0].InventoryItemID != "inv-main-strawberry" {
		t.Fatalf("expected strawberry jam flagged low at its threshold, got %+v", report)
	}
}
