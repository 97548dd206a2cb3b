package memory

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"crofflepos/internal/domain"
)

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD, falling back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		stores   []string
	}{
		{"admin", adminPwd, domain.RoleAdmin, nil},
		{"manager", managerPwd, domain.RoleManager, []string{seedMainStore}},
		{"cashier", cashierPwd, domain.RoleCashier, []string{seedMainStore}},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).Fatalf("failed to hash seed password for %s", u.username)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StoreIDs:  u.stores,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

const (
	seedMainStore  = "main-store"
	seedKioskStore = "mall-kiosk"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// NewSeeded returns a store preloaded with two branches, a small croffle menu
// with recipes for the main branch, and commissary stock.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.stores[seedMainStore] = domain.Store{
		ID: seedMainStore, Code: "MAIN", Name: "Croffle Main Branch", Address: "Cebu City",
		TIN: "123-456-789-000", MachineSerial: "MIN-0001", PermitNumber: "FP-2024-0001",
		VATRegistered: true, Active: true, CreatedAt: now,
	}
	s.stores[seedKioskStore] = domain.Store{
		ID: seedKioskStore, Code: "KIOSK", Name: "Croffle Mall Kiosk", Address: "SM Seaside",
		TIN: "123-456-789-001", MachineSerial: "MIN-0002", PermitNumber: "FP-2024-0002",
		VATRegistered: true, Active: true, CreatedAt: now,
	}

	for _, c := range []domain.Category{
		{ID: "cat-main-classic", StoreID: seedMainStore, Name: "Classic"},
		{ID: "cat-main-premium", StoreID: seedMainStore, Name: "Premium"},
		{ID: "cat-main-drinks", StoreID: seedMainStore, Name: "Beverages"},
	} {
		c.Active = true
		c.CreatedAt = now
		s.categories[c.ID] = c
	}

	items := []domain.InventoryItem{
		{ID: "inv-main-croissant", StoreID: seedMainStore, Name: "Croissant Dough", Unit: "pieces", Stock: d("100"), MinimumThreshold: d("20"), CostPerUnitCents: d("2500")},
		{ID: "inv-main-cream", StoreID: seedMainStore, Name: "Whipped Cream", Unit: "g", Stock: d("2000"), MinimumThreshold: d("300"), CostPerUnitCents: d("0.5")},
		{ID: "inv-main-nutella", StoreID: seedMainStore, Name: "Nutella", Unit: "g", Stock: d("1000"), MinimumThreshold: d("150"), CostPerUnitCents: d("1.2")},
		{ID: "inv-main-biscoff", StoreID: seedMainStore, Name: "Biscoff Spread", Unit: "g", Stock: d("800"), MinimumThreshold: d("150"), CostPerUnitCents: d("1.5")},
		{ID: "inv-main-strawberry", StoreID: seedMainStore, Name: "Strawberry Jam", Unit: "g", Stock: d("500"), MinimumThreshold: d("100"), CostPerUnitCents: d("0.8")},
		{ID: "inv-main-espresso", StoreID: seedMainStore, Name: "Espresso Beans", Unit: "kg", Stock: d("1.5"), MinimumThreshold: d("0.3"), CostPerUnitCents: d("90000")},
		{ID: "inv-main-milk", StoreID: seedMainStore, Name: "Fresh Milk", Unit: "liters", Stock: d("10"), MinimumThreshold: d("2"), CostPerUnitCents: d("9500")},
		{ID: "inv-main-cup", StoreID: seedMainStore, Name: "Paper Cup 16oz", Unit: "pieces", Stock: d("200"), MinimumThreshold: d("50"), CostPerUnitCents: d("450")},
		{ID: "inv-kiosk-croissant", StoreID: seedKioskStore, Name: "Croissant Dough", Unit: "pieces", Stock: d("40"), MinimumThreshold: d("10"), CostPerUnitCents: d("2500")},
		{ID: "inv-kiosk-cream", StoreID: seedKioskStore, Name: "Whipped Cream", Unit: "g", Stock: d("1000"), MinimumThreshold: d("200"), CostPerUnitCents: d("0.5")},
		{ID: "inv-kiosk-nutella", StoreID: seedKioskStore, Name: "Nutella", Unit: "g", Stock: d("500"), MinimumThreshold: d("100"), CostPerUnitCents: d("1.2")},
	}
	for _, item := range items {
		item.Active = true
		item.UpdatedAt = now
		s.inventory[item.ID] = item
	}

	templates := []domain.RecipeTemplate{
		{
			ID: "tpl-nutella-croffle", Name: "Classic Nutella Croffle", Category: "Classic", SuggestedPriceCents: 12500,
			Ingredients: []domain.TemplateIngredient{
				{IngredientName: "Croissant Dough", Quantity: d("1"), Unit: "pieces", CostPerUnitCents: d("2500")},
				{IngredientName: "Whipped Cream", Quantity: d("20"), Unit: "g", CostPerUnitCents: d("0.5")},
				{IngredientName: "Nutella", Quantity: d("30"), Unit: "g", CostPerUnitCents: d("1.2")},
			},
		},
		{
			ID: "tpl-biscoff-croffle", Name: "Biscoff Croffle", Category: "Premium", SuggestedPriceCents: 14500,
			Ingredients: []domain.TemplateIngredient{
				{IngredientName: "Croissant Dough", Quantity: d("1"), Unit: "pieces", CostPerUnitCents: d("2500")},
				{IngredientName: "Whipped Cream", Quantity: d("20"), Unit: "g", CostPerUnitCents: d("0.5")},
				{IngredientName: "Biscoff Spread", Quantity: d("30"), Unit: "g", CostPerUnitCents: d("1.5")},
			},
		},
		{
			ID: "tpl-strawberry-croffle", Name: "Strawberry Croffle", Category: "Classic",
			Ingredients: []domain.TemplateIngredient{
				{IngredientName: "Croissant Dough", Quantity: d("1"), Unit: "pieces", CostPerUnitCents: d("2500")},
				{IngredientName: "Strawberry Jam", Quantity: d("25"), Unit: "g", CostPerUnitCents: d("0.8")},
			},
		},
		{
			ID: "tpl-iced-latte", Name: "Iced Latte", Category: "Beverages", SuggestedPriceCents: 11000,
			Ingredients: []domain.TemplateIngredient{
				{IngredientName: "Espresso Beans", Quantity: d("18"), Unit: "g", CostPerUnitCents: d("90")},
				{IngredientName: "Fresh Milk", Quantity: d("200"), Unit: "ml", CostPerUnitCents: d("9.5")},
				{IngredientName: "Paper Cup 16oz", Quantity: d("1"), Unit: "pieces", CostPerUnitCents: d("450")},
			},
		},
	}
	for _, tpl := range templates {
		tpl.Active = true
		tpl.Version = 1
		tpl.CreatedBy = "seed"
		tpl.CreatedAt = now
		tpl.UpdatedAt = now
		s.templates[tpl.ID] = tpl
	}

	// Main branch menu: three croffles and a latte, each wired to a recipe.
	menu := []struct {
		productID, recipeID, templateID, sku, category string
		price                                          int64
		ingredients                                    []domain.RecipeIngredient
	}{
		{"prod-main-nutella", "rcp-main-nutella", "tpl-nutella-croffle", "CRF-NUT", "cat-main-classic", 12500, []domain.RecipeIngredient{
			{InventoryItemID: "inv-main-croissant", IngredientName: "Croissant Dough", Quantity: d("1"), Unit: "pieces"},
			{InventoryItemID: "inv-main-cream", IngredientName: "Whipped Cream", Quantity: d("20"), Unit: "g"},
			{InventoryItemID: "inv-main-nutella", IngredientName: "Nutella", Quantity: d("30"), Unit: "g"},
		}},
		{"prod-main-biscoff", "rcp-main-biscoff", "tpl-biscoff-croffle", "CRF-BIS", "cat-main-premium", 14500, []domain.RecipeIngredient{
			{InventoryItemID: "inv-main-croissant", IngredientName: "Croissant Dough", Quantity: d("1"), Unit: "pieces"},
			{InventoryItemID: "inv-main-cream", IngredientName: "Whipped Cream", Quantity: d("20"), Unit: "g"},
			{InventoryItemID: "inv-main-biscoff", IngredientName: "Biscoff Spread", Quantity: d("30"), Unit: "g"},
		}},
		{"prod-main-strawberry", "rcp-main-strawberry", "tpl-strawberry-croffle", "CRF-STR", "cat-main-classic", 11500, []domain.RecipeIngredient{
			{InventoryItemID: "inv-main-croissant", IngredientName: "Croissant Dough", Quantity: d("1"), Unit: "pieces"},
			{InventoryItemID: "inv-main-strawberry", IngredientName: "Strawberry Jam", Quantity: d("25"), Unit: "g"},
		}},
		{"prod-main-latte", "rcp-main-latte", "tpl-iced-latte", "BEV-LAT", "cat-main-drinks", 11000, []domain.RecipeIngredient{
			{InventoryItemID: "inv-main-espresso", IngredientName: "Espresso Beans", Quantity: d("18"), Unit: "g"},
			{InventoryItemID: "inv-main-milk", IngredientName: "Fresh Milk", Quantity: d("200"), Unit: "ml"},
			{InventoryItemID: "inv-main-cup", IngredientName: "Paper Cup 16oz", Quantity: d("1"), Unit: "pieces"},
		}},
	}
	for _, m := range menu {
		tpl := s.templates[m.templateID]
		s.recipes[m.recipeID] = domain.Recipe{
			ID: m.recipeID, StoreID: seedMainStore, TemplateID: m.templateID, Name: tpl.Name,
			ProductID: m.productID, Status: domain.RecipeStatusApproved, CostCents: tpl.CostCents(),
			Ingredients: m.ingredients, CreatedAt: now,
		}
		s.products[m.productID] = domain.Product{
			ID: m.productID, StoreID: seedMainStore, SKU: m.sku, Name: tpl.Name, CategoryID: m.category,
			PriceCents: m.price, RecipeID: m.recipeID, Active: true, IsAvailable: true,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	// Bottled water is resold as-is and has no recipe.
	s.products["prod-main-water"] = domain.Product{
		ID: "prod-main-water", StoreID: seedMainStore, SKU: "BEV-H2O", Name: "Bottled Water", CategoryID: "cat-main-drinks",
		PriceCents: 3500, Active: true, IsAvailable: true, CreatedAt: now, UpdatedAt: now,
	}

	for _, c := range []domain.CommissaryItem{
		{ID: "com-dough-batch", Name: "Croissant Dough Batch (pack of 24)", Unit: "pack", Stock: d("30"), CostPerUnitCents: d("60000")},
		{ID: "com-cream-tub", Name: "Whipping Cream Tub", Unit: "kg", Stock: d("12"), CostPerUnitCents: d("48000")},
	} {
		c.Active = true
		c.UpdatedAt = now
		s.commissary[c.ID] = c
	}

	s.suppliers["sup-bakery"] = domain.Supplier{ID: "sup-bakery", Name: "Visayas Bakery Supply", Contact: "Ana", Phone: "0917-000-0000", Active: true, CreatedAt: now}

	s.users = seedUsers()
	return s
}
