package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/inventory"
	"crofflepos/internal/recipes"
	"crofflepos/internal/store"
	"crofflepos/internal/units"
	"crofflepos/internal/xid"
)

func (s *Service) CreateRecipeTemplate(ctx context.Context, req domain.RecipeTemplateRequest) (domain.RecipeTemplate, error) {
	actor, err := s.authorize(ctx, "", domain.RoleOwner)
	if err != nil {
		return domain.RecipeTemplate{}, err
	}
	tpl, err := s.recipes.CreateTemplate(ctx, req, actor.Username)
	if err != nil {
		return domain.RecipeTemplate{}, err
	}
	s.logAudit(ctx, "", "recipe_template_create", "recipe_template", tpl.ID, tpl.Name)
	return *tpl, nil
}

func (s *Service) UpdateRecipeTemplate(ctx context.Context, id string, req domain.RecipeTemplateRequest) (domain.RecipeTemplate, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return domain.RecipeTemplate{}, err
	}
	tpl, err := s.recipes.UpdateTemplate(ctx, id, req)
	if err != nil {
		return domain.RecipeTemplate{}, err
	}
	s.logAudit(ctx, "", "recipe_template_update", "recipe_template", tpl.ID, fmt.Sprintf("version=%d", tpl.Version))
	return *tpl, nil
}

func (s *Service) ListRecipeTemplates(ctx context.Context, activeOnly bool) ([]domain.RecipeTemplate, error) {
	if _, err := s.authorize(ctx, "", managerRoles...); err != nil {
		return nil, err
	}
	return s.recipes.ListTemplates(ctx, activeOnly)
}

// DeployTemplate rolls a template out to stores. Per-store failures are
// reported in the response rather than returned.
func (s *Service) DeployTemplate(ctx context.Context, req domain.DeployRequest) (domain.DeployResponse, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return domain.DeployResponse{}, err
	}
	resp, err := s.recipes.Deploy(ctx, req)
	if err != nil {
		return resp, err
	}
	for _, result := range resp.Results {
		if result.Success {
			s.stockChanged(ctx, result.StoreID)
		}
	}
	s.logAudit(ctx, "", "recipe_template_deploy", "recipe_template", resp.TemplateID, fmt.Sprintf("succeeded=%d,failed=%d", resp.Succeeded, resp.Failed))
	return resp, nil
}

func (s *Service) ExportRecipeTemplates(ctx context.Context, w io.Writer) (int, error) {
	if _, err := s.authorize(ctx, "", managerRoles...); err != nil {
		return 0, err
	}
	return s.recipes.Export(ctx, w)
}

func (s *Service) ImportRecipeTemplates(ctx context.Context, r io.Reader) (recipes.ImportResult, error) {
	actor, err := s.authorize(ctx, "", domain.RoleOwner)
	if err != nil {
		return recipes.ImportResult{}, err
	}
	result, err := s.recipes.Import(ctx, r, actor.Username)
	if err != nil {
		return result, err
	}
	s.logAudit(ctx, "", "recipe_template_import", "recipe_template", "", fmt.Sprintf("created=%d,updated=%d,errors=%d", len(result.Created), len(result.Updated), len(result.Errors)))
	return result, nil
}

func (s *Service) ListRecipes(ctx context.Context, storeID string) ([]domain.Recipe, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListRecipes(ctx, storeID)
}

// CreateRecipe adds a store-specific recipe. Ingredients without an explicit
// inventory item are matched against the store's inventory by name and unit.
func (s *Service) CreateRecipe(ctx context.Context, req domain.RecipeCreateRequest) (domain.Recipe, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	if _, err := s.authorize(ctx, req.StoreID, managerRoles...); err != nil {
		return domain.Recipe{}, err
	}
	if len(req.Ingredients) == 0 {
		return domain.Recipe{}, fmt.Errorf("%w: recipe needs ingredients", store.ErrInvalidTransaction)
	}
	items, err := s.repo.ListInventoryItems(ctx, req.StoreID)
	if err != nil {
		return domain.Recipe{}, err
	}
	byID := make(map[string]domain.InventoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	cost := decimal.Zero
	ingredients := make([]domain.RecipeIngredient, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		ing.IngredientName = strings.TrimSpace(ing.IngredientName)
		ing.Unit = units.Normalize(ing.Unit)
		if !ing.Quantity.IsPositive() {
			return domain.Recipe{}, fmt.Errorf("%w: %s quantity must be positive", store.ErrInvalidTransaction, ing.IngredientName)
		}

		var item domain.InventoryItem
		var ok bool
		if ing.InventoryItemID != "" {
			item, ok = byID[ing.InventoryItemID]
			if !ok {
				return domain.Recipe{}, fmt.Errorf("%w: inventory item %s is not in store %s", store.ErrInvalidTransaction, ing.InventoryItemID, req.StoreID)
			}
		} else {
			item, ok = inventory.Match(ing.IngredientName, ing.Unit, items)
			if ok {
				ing.InventoryItemID = item.ID
			}
		}
		if ing.IngredientName == "" {
			ing.IngredientName = item.Name
		}
		if ok {
			if qty, err := units.Convert(ing.Quantity, ing.Unit, item.Unit); err == nil {
				cost = cost.Add(qty.Mul(item.CostPerUnitCents))
			}
		}
		ingredients = append(ingredients, ing)
	}

	recipe, err := s.repo.CreateRecipe(ctx, domain.Recipe{
		ID:          xid.New("rcp"),
		StoreID:     req.StoreID,
		Name:        req.Name,
		ProductID:   strings.TrimSpace(req.ProductID),
		Status:      domain.RecipeStatusApproved,
		CostCents:   cost.Round(0).IntPart(),
		Ingredients: ingredients,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Recipe{}, err
	}

	s.stockChanged(ctx, recipe.StoreID)
	s.logAudit(ctx, recipe.StoreID, "recipe_create", "recipe", recipe.ID, fmt.Sprintf("name=%s,product=%s,cost=%d", recipe.Name, recipe.ProductID, recipe.CostCents))
	return *recipe, nil
}
