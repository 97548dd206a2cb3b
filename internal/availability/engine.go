package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"crofflepos/internal/cache"
	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/units"
)

const (
	RestockRequiresSetup = "Requires setup"
	RestockNextDelivery  = "Next delivery (1-2 days)"
	RestockWithinDay     = "Within 24 hours"
)

// Repository is the slice of store.Repository the engine reads and writes.
type Repository interface {
	ListStores(ctx context.Context, activeOnly bool) ([]domain.Store, error)
	ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error)
	GetRecipesByIDs(ctx context.Context, ids []string) (map[string]domain.Recipe, error)
	ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error)
	SetProductAvailability(ctx context.Context, productID string, available bool) error
}

type Engine struct {
	repo        Repository
	cache       cache.AvailabilityCache
	cacheTTL    time.Duration
	concurrency int
	log         logrus.FieldLogger

	// generations counts invalidations per store. A snapshot computed before
	// an invalidation is never written back to the cache.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewEngine(repo Repository, cacheStore cache.AvailabilityCache, cacheTTL time.Duration, logger logrus.FieldLogger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopAvailabilityCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		repo:        repo,
		cache:       cacheStore,
		cacheTTL:    cacheTTL,
		concurrency: 4,
		log:         logger.WithField("component", "availability"),
		generations: make(map[string]uint64),
	}
}

// Snapshot returns the availability of every active product in the store,
// served from cache when a fresh copy exists.
func (e *Engine) Snapshot(ctx context.Context, storeID string) (domain.AvailabilitySnapshot, error) {
	key := cache.AvailabilityKey(storeID)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		e.log.WithError(err).WithField("store_id", storeID).Warn("availability cache read failed")
	}

	gen := e.generation(storeID)
	snap, err := e.compute(ctx, storeID)
	if err != nil {
		return domain.AvailabilitySnapshot{}, err
	}
	e.cacheIfCurrent(ctx, storeID, gen, &snap)
	return snap, nil
}

// Product returns the availability of a single product.
func (e *Engine) Product(ctx context.Context, storeID string, productID string) (domain.ProductAvailability, error) {
	snap, err := e.Snapshot(ctx, storeID)
	if err != nil {
		return domain.ProductAvailability{}, err
	}
	for _, p := range snap.Products {
		if p.ProductID == productID {
			return p, nil
		}
	}
	return domain.ProductAvailability{}, fmt.Errorf("product %s not in store %s availability: %w", productID, storeID, store.ErrNotFound)
}

// Invalidate drops the cached snapshot of a store. Callers run it after any
// stock change.
func (e *Engine) Invalidate(ctx context.Context, storeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generations[storeID]++
	if err := e.cache.Delete(ctx, cache.AvailabilityKey(storeID)); err != nil {
		e.log.WithError(err).WithField("store_id", storeID).Warn("availability cache invalidate failed")
	}
}

func (e *Engine) generation(storeID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generations[storeID]
}

// cacheIfCurrent caches snap unless the store was invalidated after gen was read.
// Invalidations from other processes sharing the cache are only bounded by
// the TTL.
func (e *Engine) cacheIfCurrent(ctx context.Context, storeID string, gen uint64, snap *domain.AvailabilitySnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generations[storeID] != gen {
		e.log.WithField("store_id", storeID).Debug("availability snapshot outdated, not cached")
		return
	}
	if err := e.cache.Set(ctx, cache.AvailabilityKey(storeID), snap, e.cacheTTL); err != nil {
		e.log.WithError(err).WithField("store_id", storeID).Warn("availability cache write failed")
	}
}

// Sync recomputes availability and persists is_available on products whose
// state changed.
func (e *Engine) Sync(ctx context.Context, storeID string) (domain.AvailabilitySyncResult, error) {
	result := domain.AvailabilitySyncResult{StoreID: storeID}

	products, err := e.repo.ListProducts(ctx, storeID, true)
	if err != nil {
		return result, err
	}
	gen := e.generation(storeID)
	snap, err := e.compute(ctx, storeID)
	if err != nil {
		return result, err
	}

	current := make(map[string]bool, len(products))
	for _, p := range products {
		current[p.ID] = p.IsAvailable
	}

	result.TotalProducts = len(snap.Products)
	for _, pa := range snap.Products {
		if current[pa.ProductID] == pa.IsAvailable {
			continue
		}
		if err := e.repo.SetProductAvailability(ctx, pa.ProductID, pa.IsAvailable); err != nil {
			return result, fmt.Errorf("set availability of %s: %w", pa.ProductID, err)
		}
		result.AvailabilityChanged++
		if pa.IsAvailable {
			result.NowAvailable++
		} else {
			result.NowUnavailable++
		}
	}

	e.cacheIfCurrent(ctx, storeID, gen, &snap)
	e.log.WithFields(logrus.Fields{
		"store_id": storeID,
		"total":    result.TotalProducts,
		"changed":  result.AvailabilityChanged,
	}).Info("availability synced")
	return result, nil
}

// SyncAll syncs every active store. A failing store is reported in its
// result and does not stop the others.
func (e *Engine) SyncAll(ctx context.Context) ([]domain.AvailabilitySyncResult, error) {
	stores, err := e.repo.ListStores(ctx, true)
	if err != nil {
		return nil, err
	}

	results := make([]domain.AvailabilitySyncResult, len(stores))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, st := range stores {
		g.Go(func() error {
			res, err := e.Sync(gctx, st.ID)
			if err != nil {
				res.StoreID = st.ID
				res.Error = err.Error()
				e.log.WithError(err).WithField("store_id", st.ID).Warn("availability sync failed")
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) compute(ctx context.Context, storeID string) (domain.AvailabilitySnapshot, error) {
	products, err := e.repo.ListProducts(ctx, storeID, true)
	if err != nil {
		return domain.AvailabilitySnapshot{}, err
	}
	recipeIDs := make([]string, 0, len(products))
	for _, p := range products {
		if p.RecipeID != "" {
			recipeIDs = append(recipeIDs, p.RecipeID)
		}
	}
	recipes, err := e.repo.GetRecipesByIDs(ctx, recipeIDs)
	if err != nil {
		return domain.AvailabilitySnapshot{}, err
	}
	items, err := e.repo.ListInventoryItems(ctx, storeID)
	if err != nil {
		return domain.AvailabilitySnapshot{}, err
	}
	byID := make(map[string]domain.InventoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	snap := domain.AvailabilitySnapshot{
		StoreID:     storeID,
		GeneratedAt: time.Now().UTC(),
		Products:    make([]domain.ProductAvailability, 0, len(products)),
	}
	for _, p := range products {
		var recipe *domain.Recipe
		if r, ok := recipes[p.RecipeID]; ok {
			recipe = &r
		}
		snap.Products = append(snap.Products, Evaluate(p, recipe, byID))
	}
	return snap, nil
}

// Evaluate computes how many units of product the store can make from its
// current stock.
func Evaluate(product domain.Product, recipe *domain.Recipe, items map[string]domain.InventoryItem) domain.ProductAvailability {
	pa := domain.ProductAvailability{
		ProductID:   product.ID,
		ProductName: product.Name,
	}
	if recipe == nil || len(recipe.Ingredients) == 0 {
		pa.Reason = domain.AvailabilityNoRecipe
		pa.EstimatedRestock = RestockRequiresSetup
		return pa
	}

	maxQty := -1
	for _, ing := range recipe.Ingredients {
		item, ok := items[ing.InventoryItemID]
		if ing.InventoryItemID == "" || !ok || !item.Active {
			pa.MissingIngredients = append(pa.MissingIngredients, ing.IngredientName)
			continue
		}
		required, err := units.Convert(ing.Quantity, ing.Unit, item.Unit)
		if err != nil || !required.IsPositive() {
			pa.MissingIngredients = append(pa.MissingIngredients, ing.IngredientName)
			continue
		}

		possible := int(item.Stock.Div(required).Floor().IntPart())
		if possible < 0 {
			possible = 0
		}
		if maxQty < 0 || possible < maxQty {
			maxQty = possible
		}
		if item.Stock.LessThanOrEqual(item.LowStockThreshold()) {
			pa.LowIngredients = append(pa.LowIngredients, ing.IngredientName)
		}
	}

	switch {
	case len(pa.MissingIngredients) > 0:
		pa.Reason = domain.AvailabilityMissingIngredients
		pa.EstimatedRestock = RestockNextDelivery
	case maxQty <= 0:
		pa.Reason = domain.AvailabilityInsufficientStock
		pa.EstimatedRestock = RestockWithinDay
	default:
		pa.IsAvailable = true
		pa.MaxQuantity = maxQty
		pa.Reason = domain.AvailabilityOK
	}
	return pa
}
