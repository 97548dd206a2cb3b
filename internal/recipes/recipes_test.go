package recipes

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store/memory"
)

func TestPriceFor(t *testing.T) {
	tpl := domain.RecipeTemplate{Ingredients: []domain.TemplateIngredient{
		{IngredientName: "Croissant Dough", Quantity: decimal.NewFromInt(1), Unit: "pieces", CostPerUnitCents: decimal.NewFromInt(2500)},
		{IngredientName: "Strawberry Jam", Quantity: decimal.NewFromInt(25), Unit: "g", CostPerUnitCents: decimal.RequireFromString("0.8")},
	}}
	if got := PriceFor(tpl, 0); got != 3800 {
		t.Fatalf("expected cost 25.20 marked up and rounded to 38.00, got %d", got)
	}
	if got := PriceFor(tpl, 9900); got != 9900 {
		t.Fatalf("expected override price, got %d", got)
	}
	tpl.SuggestedPriceCents = 11500
	if got := PriceFor(tpl, 0); got != 11500 {
		t.Fatalf("expected suggested price, got %d", got)
	}
}

func TestDeployIsolatesStoreFailures(t *testing.T) {
	repo := memory.NewSeeded()
	manager := NewManager(repo, 2, nil)
	ctx := context.Background()

	resp, err := manager.Deploy(ctx, domain.DeployRequest{
		TemplateID: "tpl-nutella-croffle",
		StoreIDs:   []string{"mall-kiosk", "main-store", "missing-store", "mall-kiosk"},
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if len(resp.Results) != 3 || resp.Succeeded != 1 || resp.Failed != 2 {
		t.Fatalf("unexpected deploy response: %+v", resp)
	}

	kiosk := resp.Results[0]
	if !kiosk.Success || kiosk.MatchedIngredients != 3 || kiosk.PriceCents != 12500 {
		t.Fatalf("unexpected kiosk result: %+v", kiosk)
	}
	if main := resp.Results[1]; main.Success || !strings.Contains(main.Error, "already exists") {
		t.Fatalf("expected duplicate recipe rejection, got %+v", main)
	}

	product, err := repo.GetProduct(ctx, kiosk.ProductID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.RecipeID != kiosk.RecipeID || product.CategoryID == "" {
		t.Fatalf("expected product linked to recipe and category, got %+v", product)
	}
	recipe, err := repo.GetRecipe(ctx, kiosk.RecipeID)
	if err != nil {
		t.Fatalf("get recipe: %v", err)
	}
	if recipe.Status != domain.RecipeStatusApproved || recipe.Ingredients[2].InventoryItemID != "inv-kiosk-nutella" {
		t.Fatalf("unexpected recipe: %+v", recipe)
	}
}

func TestDeployWarnsOnMissingIngredients(t *testing.T) {
	repo := memory.NewSeeded()
	resp, err := NewManager(repo, 0, nil).Deploy(context.Background(), domain.DeployRequest{
		TemplateID:   "tpl-biscoff-croffle",
		StoreIDs:     []string{"mall-kiosk"},
		CategoryName: "Kiosk Specials",
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	got := resp.Results[0]
	if !got.Success || got.MatchedIngredients != 2 {
		t.Fatalf("expected success with 2 matched ingredients, got %+v", got)
	}
	if len(got.MissingIngredients) != 1 || got.MissingIngredients[0] != "Biscoff Spread" || len(got.Warnings) != 1 {
		t.Fatalf("expected Biscoff Spread reported missing, got %+v", got)
	}
	product, _ := repo.GetProduct(context.Background(), got.ProductID)
	if product.IsAvailable {
		t.Fatalf("expected product with missing ingredients to start unavailable")
	}
}

func TestValidateTemplateNormalizesUnits(t *testing.T) {
	req := domain.RecipeTemplateRequest{
		Name: "  Matcha Croffle ",
		Ingredients: []domain.TemplateIngredient{
			{IngredientName: "Matcha Powder", Quantity: decimal.NewFromInt(5), Unit: "Grams"},
		},
	}
	if err := ValidateTemplate(&req); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if req.Name != "Matcha Croffle" || req.Ingredients[0].Unit != "g" {
		t.Fatalf("expected trimmed name and normalized unit, got %+v", req)
	}

	req.Ingredients[0].Quantity = decimal.Zero
	if err := ValidateTemplate(&req); err == nil {
		t.Fatalf("expected zero quantity to be rejected")
	}
}

func TestExportThenImportTemplates(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	n, err := NewManager(memory.NewSeeded(), 0, nil).Export(ctx, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 4 || !strings.HasPrefix(buf.String(), "templates:") {
		t.Fatalf("unexpected export (%d templates):\n%s", n, buf.String())
	}

	target := memory.New()
	manager := NewManager(target, 0, nil)
	first, err := manager.Import(ctx, bytes.NewReader(buf.Bytes()), "admin")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(first.Created) != 4 || len(first.Errors) != 0 {
		t.Fatalf("expected 4 created, got %+v", first)
	}
	second, err := manager.Import(ctx, bytes.NewReader(buf.Bytes()), "admin")
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(second.Updated) != 4 || len(second.Created) != 0 {
		t.Fatalf("expected 4 updated on re-import, got %+v", second)
	}

	templates, _ := target.ListRecipeTemplates(ctx, true)
	for _, tpl := range templates {
		if tpl.Name != "Classic Nutella Croffle" {
			continue
		}
		if tpl.Version != 2 || !tpl.Ingredients[1].Quantity.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("unexpected imported template: %+v", tpl)
		}
		return
	}
	t.Fatalf("imported nutella template not found")
}

func TestImportReportsInvalidEntries(t *testing.T) {
	doc := `templates:
  - name: Ube Croffle
    suggested_price_cents: 13500
    ingredients:
      - ingredient_name: Ube Halaya
        quantity: 40
        unit: grams
        cost_per_unit_cents: 0.9
  - name: ""
    ingredients: []
`
	result, err := NewManager(memory.New(), 0, nil).Import(context.Background(), strings.NewReader(doc), "admin")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(result.Created) != 1 || result.Created[0] != "Ube Croffle" || len(result.Errors) != 1 {
		t.Fatalf("expected one created and one error, got %+v", result)
	}
}
