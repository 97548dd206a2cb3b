// Package recipes manages chain-wide recipe templates and deploys them to
// stores as recipes with linked catalog products.
package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"crofflepos/internal/domain"
	"crofflepos/internal/inventory"
	"crofflepos/internal/store"
	"crofflepos/internal/units"
)

const DefaultDeployConcurrency = 4

// Repository is the storage the recipe manager needs.
type Repository interface {
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	CreateRecipeTemplate(ctx context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error)
	UpdateRecipeTemplate(ctx context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error)
	GetRecipeTemplate(ctx context.Context, id string) (*domain.RecipeTemplate, error)
	ListRecipeTemplates(ctx context.Context, activeOnly bool) ([]domain.RecipeTemplate, error)
	CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error)
	FindRecipeByName(ctx context.Context, storeID string, name string) (*domain.Recipe, error)
	ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context, storeID string) ([]domain.Category, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type Manager struct {
	repo        Repository
	concurrency int
	log         logrus.FieldLogger
}

func NewManager(repo Repository, concurrency int, logger logrus.FieldLogger) *Manager {
	if concurrency <= 0 {
		concurrency = DefaultDeployConcurrency
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		repo:        repo,
		concurrency: concurrency,
		log:         logger.WithField("component", "recipes"),
	}
}

// ValidateTemplate normalizes a template request in place.
func ValidateTemplate(req *domain.RecipeTemplateRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return fmt.Errorf("template name is required: %w", store.ErrInvalidTransaction)
	}
	if req.SuggestedPriceCents < 0 {
		return fmt.Errorf("suggested price must not be negative: %w", store.ErrInvalidTransaction)
	}
	if len(req.Ingredients) == 0 {
		return fmt.Errorf("template %q needs at least one ingredient: %w", req.Name, store.ErrInvalidTransaction)
	}
	for i := range req.Ingredients {
		ing := &req.Ingredients[i]
		ing.IngredientName = strings.TrimSpace(ing.IngredientName)
		ing.Unit = units.Normalize(ing.Unit)
		if ing.IngredientName == "" || ing.Unit == "" {
			return fmt.Errorf("ingredient %d of %q needs a name and unit: %w", i+1, req.Name, store.ErrInvalidTransaction)
		}
		if !ing.Quantity.IsPositive() {
			return fmt.Errorf("ingredient %s of %q needs a positive quantity: %w", ing.IngredientName, req.Name, store.ErrInvalidTransaction)
		}
		if ing.CostPerUnitCents.IsNegative() {
			return fmt.Errorf("ingredient %s of %q has a negative cost: %w", ing.IngredientName, req.Name, store.ErrInvalidTransaction)
		}
	}
	return nil
}

func (m *Manager) CreateTemplate(ctx context.Context, req domain.RecipeTemplateRequest, actor string) (*domain.RecipeTemplate, error) {
	if err := ValidateTemplate(&req); err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return m.repo.CreateRecipeTemplate(ctx, domain.RecipeTemplate{
		Name:                req.Name,
		Description:         strings.TrimSpace(req.Description),
		Category:            req.Category,
		SuggestedPriceCents: req.SuggestedPriceCents,
		Ingredients:         req.Ingredients,
		Active:              active,
		CreatedBy:           actor,
	})
}

func (m *Manager) UpdateTemplate(ctx context.Context, id string, req domain.RecipeTemplateRequest) (*domain.RecipeTemplate, error) {
	if err := ValidateTemplate(&req); err != nil {
		return nil, err
	}
	current, err := m.repo.GetRecipeTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	current.Name = req.Name
	current.Description = strings.TrimSpace(req.Description)
	current.Category = req.Category
	current.SuggestedPriceCents = req.SuggestedPriceCents
	current.Ingredients = req.Ingredients
	if req.Active != nil {
		current.Active = *req.Active
	}
	return m.repo.UpdateRecipeTemplate(ctx, *current)
}

func (m *Manager) ListTemplates(ctx context.Context, activeOnly bool) ([]domain.RecipeTemplate, error) {
	return m.repo.ListRecipeTemplates(ctx, activeOnly)
}

// PriceFor picks the selling price of a deployed template: the explicit
// override, the template's suggested price, or cost plus 50% rounded up to
// the whole peso.
func PriceFor(tpl domain.RecipeTemplate, override int64) int64 {
	if override > 0 {
		return override
	}
	if tpl.SuggestedPriceCents > 0 {
		return tpl.SuggestedPriceCents
	}
	marked := decimal.NewFromInt(tpl.CostCents()).Mul(decimal.RequireFromString("1.5"))
	pesos := marked.Div(decimal.NewFromInt(100)).Ceil().IntPart()
	if pesos < 1 {
		pesos = 1
	}
	return pesos * 100
}

// Deploy creates the template's recipe and product in every requested store.
// Stores are processed concurrently and a failing store never aborts the rest.
func (m *Manager) Deploy(ctx context.Context, req domain.DeployRequest) (domain.DeployResponse, error) {
	tpl, err := m.repo.GetRecipeTemplate(ctx, req.TemplateID)
	if err != nil {
		return domain.DeployResponse{}, err
	}
	if !tpl.Active {
		return domain.DeployResponse{}, fmt.Errorf("template %q is inactive: %w", tpl.Name, store.ErrInvalidTransaction)
	}
	storeIDs := dedupe(req.StoreIDs)
	if len(storeIDs) == 0 {
		return domain.DeployResponse{}, fmt.Errorf("at least one store is required: %w", store.ErrInvalidTransaction)
	}

	resp := domain.DeployResponse{
		TemplateID: tpl.ID,
		Results:    make([]domain.StoreDeployment, len(storeIDs)),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, storeID := range storeIDs {
		g.Go(func() error {
			result, err := m.deployToStore(gctx, *tpl, storeID, req)
			if err != nil {
				result.StoreID = storeID
				result.Success = false
				result.Error = err.Error()
			}
			resp.Results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resp, err
	}

	for _, r := range resp.Results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	m.log.WithFields(logrus.Fields{
		"template":  tpl.Name,
		"succeeded": resp.Succeeded,
		"failed":    resp.Failed,
	}).Info("recipe template deployed")
	return resp, nil
}

func (m *Manager) deployToStore(ctx context.Context, tpl domain.RecipeTemplate, storeID string, req domain.DeployRequest) (domain.StoreDeployment, error) {
	result := domain.StoreDeployment{StoreID: storeID}

	if _, err := m.repo.GetStore(ctx, storeID); err != nil {
		return result, fmt.Errorf("store %s: %w", storeID, err)
	}
	if _, err := m.repo.FindRecipeByName(ctx, storeID, tpl.Name); err == nil {
		return result, fmt.Errorf("recipe %q already exists in this store: %w", tpl.Name, store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return result, err
	}

	items, err := m.repo.ListInventoryItems(ctx, storeID)
	if err != nil {
		return result, err
	}
	ingredients := make([]domain.RecipeIngredient, 0, len(tpl.Ingredients))
	for _, ing := range tpl.Ingredients {
		line := domain.RecipeIngredient{
			IngredientName: ing.IngredientName,
			Quantity:       ing.Quantity,
			Unit:           ing.Unit,
		}
		if item, ok := inventory.Match(ing.IngredientName, ing.Unit, items); ok {
			line.InventoryItemID = item.ID
			result.MatchedIngredients++
		} else {
			result.MissingIngredients = append(result.MissingIngredients, ing.IngredientName)
			result.Warnings = append(result.Warnings, fmt.Sprintf("no inventory item for %s (%s)", ing.IngredientName, ing.Unit))
		}
		ingredients = append(ingredients, line)
	}

	categoryID, err := m.ensureCategory(ctx, storeID, firstNonEmpty(req.CategoryName, tpl.Category))
	if err != nil {
		return result, err
	}
	product, err := m.repo.CreateProduct(ctx, domain.Product{
		StoreID:     storeID,
		Name:        tpl.Name,
		CategoryID:  categoryID,
		PriceCents:  PriceFor(tpl, req.PriceCents),
		IsAvailable: len(result.MissingIngredients) == 0,
	})
	if err != nil {
		return result, fmt.Errorf("create product: %w", err)
	}
	recipe, err := m.repo.CreateRecipe(ctx, domain.Recipe{
		StoreID:     storeID,
		TemplateID:  tpl.ID,
		Name:        tpl.Name,
		ProductID:   product.ID,
		Status:      domain.RecipeStatusApproved,
		CostCents:   tpl.CostCents(),
		Ingredients: ingredients,
	})
	if err != nil {
		product.Active = false
		product.IsAvailable = false
		if _, uerr := m.repo.UpdateProduct(ctx, *product); uerr != nil {
			m.log.WithError(uerr).WithField("product_id", product.ID).Warn("failed to deactivate orphaned product")
		}
		return result, fmt.Errorf("create recipe: %w", err)
	}

	result.Success = true
	result.RecipeID = recipe.ID
	result.ProductID = product.ID
	result.PriceCents = product.PriceCents
	return result, nil
}

func (m *Manager) ensureCategory(ctx context.Context, storeID string, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	if id, err := m.findCategory(ctx, storeID, name); err != nil || id != "" {
		return id, err
	}
	created, err := m.repo.CreateCategory(ctx, domain.Category{StoreID: storeID, Name: name})
	if errors.Is(err, store.ErrConflict) {
		return m.findCategory(ctx, storeID, name)
	}
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (m *Manager) findCategory(ctx context.Context, storeID string, name string) (string, error) {
	categories, err := m.repo.ListCategories(ctx, storeID)
	if err != nil {
		return "", err
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c.ID, nil
		}
	}
	return "", nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
