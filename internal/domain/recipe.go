package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RecipeStatusDraft    = "draft"
	RecipeStatusApproved = "approved"
)

type TemplateIngredient struct {
	IngredientName   string          `json:"ingredient_name" yaml:"ingredient_name"`
	Quantity         decimal.Decimal `json:"quantity" yaml:"quantity"`
	Unit             string          `json:"unit" yaml:"unit"`
	CostPerUnitCents decimal.Decimal `json:"cost_per_unit_cents" yaml:"cost_per_unit_cents"`
}

// RecipeTemplate is the chain-wide definition of a sellable item.
type RecipeTemplate struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	Category            string               `json:"category"`
	SuggestedPriceCents int64                `json:"suggested_price_cents"`
	Ingredients         []TemplateIngredient `json:"ingredients"`
	Active              bool                 `json:"active"`
	Version             int                  `json:"version"`
	CreatedBy           string               `json:"created_by"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// CostCents sums ingredient quantity times cost per unit, rounded to centavos.
func (t RecipeTemplate) CostCents() int64 {
	total := decimal.Zero
	for _, ing := range t.Ingredients {
		total = total.Add(ing.Quantity.Mul(ing.CostPerUnitCents))
	}
	return total.Round(0).IntPart()
}

type RecipeTemplateRequest struct {
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	Category            string               `json:"category"`
	SuggestedPriceCents int64                `json:"suggested_price_cents"`
	Ingredients         []TemplateIngredient `json:"ingredients"`
	Active              *bool                `json:"active,omitempty"`
}

// RecipeIngredient links a store recipe line to the store inventory item it consumes.
type RecipeIngredient struct {
	InventoryItemID string          `json:"inventory_item_id,omitempty"`
	IngredientName  string          `json:"ingredient_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
}

// Recipe is a template deployed to one store.
type Recipe struct {
	ID          string             `json:"id"`
	StoreID     string             `json:"store_id"`
	TemplateID  string             `json:"template_id,omitempty"`
	Name        string             `json:"name"`
	ProductID   string             `json:"product_id,omitempty"`
	Status      string             `json:"status"`
	CostCents   int64              `json:"cost_cents"`
	Ingredients []RecipeIngredient `json:"ingredients"`
	CreatedAt   time.Time          `json:"created_at"`
}

type RecipeCreateRequest struct {
	StoreID     string             `json:"store_id"`
	Name        string             `json:"name"`
	ProductID   string             `json:"product_id"`
	Ingredients []RecipeIngredient `json:"ingredients"`
}

type DeployRequest struct {
	TemplateID   string   `json:"template_id"`
	StoreIDs     []string `json:"store_ids"`
	PriceCents   int64    `json:"price_cents"`
	CategoryName string   `json:"category_name"`
}

type StoreDeployment struct {
	StoreID            string   `json:"store_id"`
	Success            bool     `json:"success"`
	RecipeID           string   `json:"recipe_id,omitempty"`
	ProductID          string   `json:"product_id,omitempty"`
	PriceCents         int64    `json:"price_cents,omitempty"`
	MatchedIngredients int      `json:"matched_ingredients"`
	MissingIngredients []string `json:"missing_ingredients,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	Error              string   `json:"error,omitempty"`
}

type DeployResponse struct {
	TemplateID string            `json:"template_id"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Results    []StoreDeployment `json:"results"`
}

const (
	AvailabilityOK                 = "ok"
	AvailabilityNoRecipe           = "no_recipe"
	AvailabilityMissingIngredients = "missing_ingredients"
	AvailabilityInsufficientStock  = "insufficient_stock"
)

type ProductAvailability struct {
	ProductID          string   `json:"product_id"`
	ProductName        string   `json:"product_name"`
	IsAvailable        bool     `json:"is_available"`
	MaxQuantity        int      `json:"max_quantity"`
	Reason             string   `json:"reason"`
	MissingIngredients []string `json:"missing_ingredients,omitempty"`
	LowIngredients     []string `json:"low_ingredients,omitempty"`
	EstimatedRestock   string   `json:"estimated_restock,omitempty"`
}

type AvailabilitySnapshot struct {
	StoreID     string                `json:"store_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Products    []ProductAvailability `json:"products"`
}

type AvailabilitySyncResult struct {
	StoreID             string `json:"store_id"`
	TotalProducts       int    `json:"total_products"`
	AvailabilityChanged int    `json:"availability_changed"`
	NowAvailable        int    `json:"now_available"`
	NowUnavailable      int    `json:"now_unavailable"`
	Error               string `json:"error,omitempty"`
}
