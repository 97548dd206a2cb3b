package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/cache"
	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/store/memory"
)

type countingCache struct {
	entries map[string]domain.AvailabilitySnapshot
	gets    int
	deletes int
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string]domain.AvailabilitySnapshot{}}
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.AvailabilitySnapshot, bool, error) {
	c.gets++
	snap, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.AvailabilitySnapshot, _ time.Duration) error {
	c.entries[key] = *value
	return nil
}

func (c *countingCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.deletes++
		delete(c.entries, key)
	}
	return nil
}

func findProduct(t *testing.T, snap domain.AvailabilitySnapshot, productID string) domain.ProductAvailability {
	t.Helper()
	for _, p := range snap.Products {
		if p.ProductID == productID {
			return p
		}
	}
	t.Fatalf("product %s not in snapshot", productID)
	return domain.ProductAvailability{}
}

func TestSnapshotComputesMaxQuantities(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil, time.Minute, nil)

	snap, err := engine.Snapshot(context.Background(), "main-store")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	cases := []struct {
		productID string
		available bool
		maxQty    int
		reason    string
	}{
		{"prod-main-nutella", true, 33, domain.AvailabilityOK},
		{"prod-main-biscoff", true, 26, domain.AvailabilityOK},
		{"prod-main-strawberry", true, 20, domain.AvailabilityOK},
		{"prod-main-latte", true, 50, domain.AvailabilityOK},
		{"prod-main-water", false, 0, domain.AvailabilityNoRecipe},
	}
	for _, tc := range cases {
		got := findProduct(t, snap, tc.productID)
		if got.IsAvailable != tc.available || got.MaxQuantity != tc.maxQty || got.Reason != tc.reason {
			t.Fatalf("%s: expected available=%t max=%d reason=%s, got %+v", tc.productID, tc.available, tc.maxQty, tc.reason, got)
		}
	}
	if water := findProduct(t, snap, "prod-main-water"); water.EstimatedRestock != RestockRequiresSetup {
		t.Fatalf("expected restock estimate %q, got %q", RestockRequiresSetup, water.EstimatedRestock)
	}
}

func TestEvaluateReasons(t *testing.T) {
	items := map[string]domain.InventoryItem{
		"dough": {ID: "dough", Name: "Dough", Unit: "pieces", Stock: decimal.NewFromInt(0), MinimumThreshold: decimal.NewFromInt(5), Active: true},
		"cream": {ID: "cream", Name: "Cream", Unit: "kg", Stock: decimal.RequireFromString("0.5"), MinimumThreshold: decimal.NewFromInt(1), Active: true},
	}
	product := domain.Product{ID: "p1", Name: "Croffle"}

	missing := &domain.Recipe{Ingredients: []domain.RecipeIngredient{
		{InventoryItemID: "dough", IngredientName: "Dough", Quantity: decimal.NewFromInt(1), Unit: "pieces"},
		{IngredientName: "Sprinkles", Quantity: decimal.NewFromInt(2), Unit: "g"},
	}}
	got := Evaluate(product, missing, items)
	if got.IsAvailable || got.Reason != domain.AvailabilityMissingIngredients || got.EstimatedRestock != RestockNextDelivery {
		t.Fatalf("expected missing_ingredients, got %+v", got)
	}
	if len(got.MissingIngredients) != 1 || got.MissingIngredients[0] != "Sprinkles" {
		t.Fatalf("expected Sprinkles missing, got %v", got.MissingIngredients)
	}

	empty := &domain.Recipe{Ingredients: []domain.RecipeIngredient{
		{InventoryItemID: "dough", IngredientName: "Dough", Quantity: decimal.NewFromInt(1), Unit: "pcs"},
	}}
	got = Evaluate(product, empty, items)
	if got.IsAvailable || got.Reason != domain.AvailabilityInsufficientStock || got.EstimatedRestock != RestockWithinDay {
		t.Fatalf("expected insufficient_stock, got %+v", got)
	}

	creamOnly := &domain.Recipe{Ingredients: []domain.RecipeIngredient{
		{InventoryItemID: "cream", IngredientName: "Cream", Quantity: decimal.NewFromInt(20), Unit: "g"},
	}}
	got = Evaluate(product, creamOnly, items)
	if !got.IsAvailable || got.MaxQuantity != 25 {
		t.Fatalf("expected 25 servings from 0.5kg at 20g, got %+v", got)
	}
	if len(got.LowIngredients) != 1 || got.LowIngredients[0] != "Cream" {
		t.Fatalf("expected Cream flagged low, got %v", got.LowIngredients)
	}

	mismatch := &domain.Recipe{Ingredients: []domain.RecipeIngredient{
		{InventoryItemID: "cream", IngredientName: "Cream", Quantity: decimal.NewFromInt(1), Unit: "pieces"},
	}}
	if got := Evaluate(product, mismatch, items); got.Reason != domain.AvailabilityMissingIngredients {
		t.Fatalf("expected unit mismatch to count as missing, got %+v", got)
	}
}

func TestSnapshotUsesCacheUntilInvalidated(t *testing.T) {
	repo := memory.NewSeeded()
	c := newCountingCache()
	engine := NewEngine(repo, c, time.Minute, nil)
	ctx := context.Background()

	if _, err := engine.Snapshot(ctx, "main-store"); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if _, ok := c.entries[cache.AvailabilityKey("main-store")]; !ok {
		t.Fatalf("expected snapshot cached")
	}

	if _, err := repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:      "main-store",
		MovementType: domain.MovementAdjustment,
		Changes:      []domain.StockChange{{InventoryItemID: "inv-main-strawberry", Quantity: decimal.Zero, Absolute: true}},
	}); err != nil {
		t.Fatalf("zero strawberry jam: %v", err)
	}

	cached, err := engine.Snapshot(ctx, "main-store")
	if err != nil {
		t.Fatalf("cached snapshot: %v", err)
	}
	if !findProduct(t, cached, "prod-main-strawberry").IsAvailable {
		t.Fatalf("expected stale cached snapshot before invalidation")
	}

	engine.Invalidate(ctx, "main-store")
	fresh, err := engine.Snapshot(ctx, "main-store")
	if err != nil {
		t.Fatalf("fresh snapshot: %v", err)
	}
	if got := findProduct(t, fresh, "prod-main-strawberry"); got.IsAvailable || got.Reason != domain.AvailabilityInsufficientStock {
		t.Fatalf("expected strawberry unavailable after invalidation, got %+v", got)
	}
	if c.deletes != 1 {
		t.Fatalf("expected one cache delete, got %d", c.deletes)
	}
}

// stockHookRepo runs onList while the engine reads inventory.
type stockHookRepo struct {
	*memory.Store
	onList func()
}

func (r *stockHookRepo) ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error) {
	items, err := r.Store.ListInventoryItems(ctx, storeID)
	if r.onList != nil {
		r.onList()
		r.onList = nil
	}
	return items, err
}

func TestSnapshotNotCachedWhenInvalidatedDuringCompute(t *testing.T) {
	repo := &stockHookRepo{Store: memory.NewSeeded()}
	c := newCountingCache()
	engine := NewEngine(repo, c, time.Minute, nil)
	ctx := context.Background()

	repo.onList = func() {
		if _, err := repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
			StoreID:      "main-store",
			MovementType: domain.MovementAdjustment,
			Changes:      []domain.StockChange{{InventoryItemID: "inv-main-strawberry", Quantity: decimal.Zero, Absolute: true}},
		}); err != nil {
			t.Errorf("zero strawberry jam: %v", err)
		}
		engine.Invalidate(ctx, "main-store")
	}

	if _, err := engine.Snapshot(ctx, "main-store"); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if _, ok := c.entries[cache.AvailabilityKey("main-store")]; ok {
		t.Fatalf("expected the outdated snapshot to stay out of the cache")
	}

	fresh, err := engine.Snapshot(ctx, "main-store")
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if findProduct(t, fresh, "prod-main-strawberry").IsAvailable {
		t.Fatalf("expected strawberry unavailable after the concurrent stock change")
	}
	if _, ok := c.entries[cache.AvailabilityKey("main-store")]; !ok {
		t.Fatalf("expected the current snapshot cached")
	}
}

func TestProductUnknownIsNotFound(t *testing.T) {
	engine := NewEngine(memory.NewSeeded(), nil, time.Minute, nil)

	_, err := engine.Product(context.Background(), "main-store", "prod-does-not-exist")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSyncPersistsChangedAvailability(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil, time.Minute, nil)
	ctx := context.Background()

	res, err := engine.Sync(ctx, "main-store")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.TotalProducts != 5 || res.AvailabilityChanged != 1 || res.NowUnavailable != 1 {
		t.Fatalf("expected water flipped unavailable, got %+v", res)
	}
	water, err := repo.GetProduct(ctx, "prod-main-water")
	if err != nil {
		t.Fatalf("get water: %v", err)
	}
	if water.IsAvailable {
		t.Fatalf("expected water persisted unavailable")
	}

	again, err := engine.Sync(ctx, "main-store")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if again.AvailabilityChanged != 0 {
		t.Fatalf("expected no changes on second sync, got %+v", again)
	}
}

func TestSyncAllCoversEveryActiveStore(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil, time.Minute, nil)

	results, err := engine.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 store results, got %d", len(results))
	}
	for _, res := range results {
		if res.Error != "" {
			t.Fatalf("unexpected error for %s: %s", res.StoreID, res.Error)
		}
	}
}
