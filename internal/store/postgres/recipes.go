package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

const templateColumns = `id, name, description, category, suggested_price_cents, ingredients, active, version, created_by, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (domain.RecipeTemplate, error) {
	var tpl domain.RecipeTemplate
	var raw []byte
	if err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Category, &tpl.SuggestedPriceCents, &raw, &tpl.Active, &tpl.Version, &tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return tpl, err
	}
	if err := json.Unmarshal(raw, &tpl.Ingredients); err != nil {
		return tpl, err
	}
	return tpl, nil
}

func (s *Store) CreateRecipeTemplate(ctx context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" || len(tpl.Ingredients) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tpl.ID == "" {
		tpl.ID = xid.New("tpl")
	}
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	tpl.Version = 1
	raw, err := json.Marshal(tpl.Ingredients)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipe_templates (`+templateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tpl.ID, tpl.Name, tpl.Description, tpl.Category, tpl.SuggestedPriceCents, raw, tpl.Active, tpl.Version, tpl.CreatedBy, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &tpl, nil
}

func (s *Store) UpdateRecipeTemplate(ctx context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error) {
	if strings.TrimSpace(tpl.Name) == "" || len(tpl.Ingredients) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	raw, err := json.Marshal(tpl.Ingredients)
	if err != nil {
		return nil, err
	}
	updated, err := scanTemplate(s.db.QueryRowContext(ctx, `
		UPDATE recipe_templates
		SET name = $2, description = $3, category = $4, suggested_price_cents = $5, ingredients = $6,
			active = $7, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+templateColumns,
		tpl.ID, tpl.Name, tpl.Description, tpl.Category, tpl.SuggestedPriceCents, raw, tpl.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetRecipeTemplate(ctx context.Context, id string) (*domain.RecipeTemplate, error) {
	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM recipe_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

func (s *Store) ListRecipeTemplates(ctx context.Context, activeOnly bool) ([]domain.RecipeTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM recipe_templates
		WHERE ($1 = false OR active = true)
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.RecipeTemplate, 0, 32)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	return result, rows.Err()
}

const recipeColumns = `id, store_id, COALESCE(template_id,''), name, COALESCE(product_id,''), status, cost_cents, ingredients, created_at`

func scanRecipe(row interface{ Scan(...any) error }) (domain.Recipe, error) {
	var recipe domain.Recipe
	var raw []byte
	if err := row.Scan(&recipe.ID, &recipe.StoreID, &recipe.TemplateID, &recipe.Name, &recipe.ProductID, &recipe.Status, &recipe.CostCents, &raw, &recipe.CreatedAt); err != nil {
		return recipe, err
	}
	if err := json.Unmarshal(raw, &recipe.Ingredients); err != nil {
		return recipe, err
	}
	return recipe, nil
}

// CreateRecipe stores the recipe and links its product in one transaction.
func (s *Store) CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	recipe.Name = strings.TrimSpace(recipe.Name)
	if recipe.StoreID == "" || recipe.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, ing := range recipe.Ingredients {
		if !ing.Quantity.IsPositive() {
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
	raw, err := json.Marshal(recipe.Ingredients)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, ing := range recipe.Ingredients {
		if ing.InventoryItemID == "" {
			continue
		}
		var itemStore string
		err := pgTx.QueryRowContext(ctx, `SELECT store_id FROM inventory_items WHERE id = $1`, ing.InventoryItemID).Scan(&itemStore)
		if err != nil || itemStore != recipe.StoreID {
			return nil, store.ErrInvalidTransaction
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO recipes (id, store_id, template_id, name, product_id, status, cost_cents, ingredients, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, recipe.ID, recipe.StoreID, nullIfEmpty(recipe.TemplateID), recipe.Name, nullIfEmpty(recipe.ProductID),
		recipe.Status, recipe.CostCents, raw, recipe.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if recipe.ProductID != "" {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products SET recipe_id = $2, updated_at = now() WHERE id = $1 AND store_id = $3
		`, recipe.ProductID, recipe.ID, recipe.StoreID)
		if err != nil {
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, store.ErrInvalidTransaction
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (s *Store) GetRecipe(ctx context.Context, id string) (*domain.Recipe, error) {
	recipe, err := scanRecipe(s.db.QueryRowContext(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &recipe, nil
}

func (s *Store) FindRecipeByName(ctx context.Context, storeID string, name string) (*domain.Recipe, error) {
	recipe, err := scanRecipe(s.db.QueryRowContext(ctx, `
		SELECT `+recipeColumns+`
		FROM recipes
		WHERE store_id = $1 AND lower(name) = lower($2)
	`, storeID, strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &recipe, nil
}

func (s *Store) ListRecipes(ctx context.Context, storeID string) ([]domain.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recipeColumns+`
		FROM recipes
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Recipe, 0, 32)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, recipe)
	}
	return result, rows.Err()
}

func (s *Store) GetRecipesByIDs(ctx context.Context, ids []string) (map[string]domain.Recipe, error) {
	result := make(map[string]domain.Recipe, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		result[recipe.ID] = recipe
	}
	return result, rows.Err()
}
