package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

func (s *Store) CreateRecipeTemplate(_ context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" || len(tpl.Ingredients) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.templates {
		if strings.EqualFold(existing.Name, tpl.Name) {
			return nil, store.ErrConflict
		}
	}
	if tpl.ID == "" {
		tpl.ID = xid.New("tpl")
	}
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	tpl.Version = 1
	s.templates[tpl.ID] = cloneTemplate(tpl)
	created := cloneTemplate(tpl)
	return &created, nil
}

func (s *Store) UpdateRecipeTemplate(_ context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[tpl.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(tpl.Name) == "" || len(tpl.Ingredients) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	tpl.CreatedAt = existing.CreatedAt
	tpl.CreatedBy = existing.CreatedBy
	tpl.Version = existing.Version + 1
	tpl.UpdatedAt = time.Now().UTC()
	s.templates[tpl.ID] = cloneTemplate(tpl)
	updated := cloneTemplate(tpl)
	return &updated, nil
}

func (s *Store) GetRecipeTemplate(_ context.Context, id string) (*domain.RecipeTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneTemplate(tpl)
	return &dup, nil
}

func (s *Store) ListRecipeTemplates(_ context.Context, activeOnly bool) ([]domain.RecipeTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RecipeTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		if activeOnly && !tpl.Active {
			continue
		}
		result = append(result, cloneTemplate(tpl))
	}
	slices.SortFunc(result, func(a, b domain.RecipeTemplate) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateRecipe(_ context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipe.Name = strings.TrimSpace(recipe.Name)
	if recipe.StoreID == "" || recipe.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.stores[recipe.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.recipes {
		if existing.StoreID == recipe.StoreID && strings.EqualFold(existing.Name, recipe.Name) {
			return nil, store.ErrConflict
		}
	}
	for _, ing := range recipe.Ingredients {
		if !ing.Quantity.IsPositive() {
			return nil, store.ErrInvalidTransaction
		}
		if ing.InventoryItemID == "" {
			continue
		}
		item, ok := s.inventory[ing.InventoryItemID]
		if !ok || item.StoreID != recipe.StoreID {
			return nil, store.ErrInvalidTransaction
		}
	}
	if recipe.ID == "" {
		recipe.ID = xid.New("rcp")
	}
	if recipe.Status == "" {
		recipe.Status = domain.RecipeStatusDraft
	}
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = time.Now().UTC()
	}
	if recipe.ProductID != "" {
		product, ok := s.products[recipe.ProductID]
		if !ok || product.StoreID != recipe.StoreID {
			return nil, store.ErrInvalidTransaction
		}
		product.RecipeID = recipe.ID
		product.UpdatedAt = recipe.CreatedAt
		s.products[product.ID] = product
	}
	s.recipes[recipe.ID] = cloneRecipe(recipe)
	created := cloneRecipe(recipe)
	return &created, nil
}

func (s *Store) GetRecipe(_ context.Context, id string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipe, ok := s.recipes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneRecipe(recipe)
	return &dup, nil
}

func (s *Store) FindRecipeByName(_ context.Context, storeID string, name string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name = strings.TrimSpace(name)
	for _, recipe := range s.recipes {
		if recipe.StoreID == storeID && strings.EqualFold(recipe.Name, name) {
			dup := cloneRecipe(recipe)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListRecipes(_ context.Context, storeID string) ([]domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Recipe, 0, len(s.recipes))
	for _, recipe := range s.recipes {
		if storeID != "" && recipe.StoreID != storeID {
			continue
		}
		result = append(result, cloneRecipe(recipe))
	}
	slices.SortFunc(result, func(a, b domain.Recipe) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetRecipesByIDs(_ context.Context, ids []string) (map[string]domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Recipe, len(ids))
	for _, id := range ids {
		if recipe, ok := s.recipes[id]; ok {
			result[id] = cloneRecipe(recipe)
		}
	}
	return result, nil
}

func cloneTemplate(src domain.RecipeTemplate) domain.RecipeTemplate {
	dup := src
	dup.Ingredients = slices.Clone(src.Ingredients)
	return dup
}

func cloneRecipe(src domain.Recipe) domain.Recipe {
	dup := src
	dup.Ingredients = slices.Clone(src.Ingredients)
	return dup
}
