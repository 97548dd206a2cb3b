package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/units"
)

// Repository is what the deduction engine needs from storage.
type Repository interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetRecipesByIDs(ctx context.Context, ids []string) (map[string]domain.Recipe, error)
	ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error)
	ApplyStockChanges(ctx context.Context, batch domain.StockChangeBatch) ([]domain.InventoryMovement, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)
	UpdateDeductionStatus(ctx context.Context, transactionID string, status string, note string) error
}

// Requirement is the total amount of one inventory item a sale consumes,
// expressed in the item's unit.
type Requirement struct {
	InventoryItemID string
	IngredientName  string
	Unit            string
	Required        decimal.Decimal
}

// Plan is the outcome of mapping sale lines onto inventory.
type Plan struct {
	Requirements  []Requirement
	Warnings      []string
	Errors        []string
	MappedLines   int
	NoRecipeLines int
}

type Deductor struct {
	repo          Repository
	onStockChange func(ctx context.Context, storeID string)
	log           logrus.FieldLogger
}

func NewDeductor(repo Repository, logger logrus.FieldLogger) *Deductor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Deductor{
		repo: repo,
		log:  logger.WithField("component", "inventory"),
	}
}

// OnStockChange registers a hook run after the deductor changes stock.
func (d *Deductor) OnStockChange(fn func(ctx context.Context, storeID string)) {
	d.onStockChange = fn
}

// BuildPlan maps sale lines to per-item requirements. Lines for products
// without a recipe are warnings; unlinked ingredients and unit mismatches
// drop the whole line with an error.
func BuildPlan(lines []domain.TransactionLine, products map[string]domain.Product, recipes map[string]domain.Recipe, items map[string]domain.InventoryItem) Plan {
	var plan Plan
	index := make(map[string]int)

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			plan.Errors = append(plan.Errors, fmt.Sprintf("product %s not found", line.ProductID))
			continue
		}
		recipe, ok := recipes[product.RecipeID]
		if product.RecipeID == "" || !ok || len(recipe.Ingredients) == 0 {
			plan.NoRecipeLines++
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("%s: no recipe, inventory not deducted", product.Name))
			continue
		}

		lineReqs := make([]Requirement, 0, len(recipe.Ingredients))
		lineErr := ""
		for _, ing := range recipe.Ingredients {
			item, ok := items[ing.InventoryItemID]
			if ing.InventoryItemID == "" || !ok {
				lineErr = fmt.Sprintf("%s: ingredient %s is not linked to inventory", product.Name, ing.IngredientName)
				break
			}
			perUnit, err := units.Convert(ing.Quantity, ing.Unit, item.Unit)
			if err != nil {
				lineErr = fmt.Sprintf("%s: ingredient %s: %v", product.Name, ing.IngredientName, err)
				break
			}
			lineReqs = append(lineReqs, Requirement{
				InventoryItemID: item.ID,
				IngredientName:  ing.IngredientName,
				Unit:            item.Unit,
				Required:        perUnit.Mul(decimal.NewFromInt(int64(line.Qty))).Round(4),
			})
		}
		if lineErr != "" {
			plan.Errors = append(plan.Errors, lineErr)
			continue
		}

		plan.MappedLines++
		for _, req := range lineReqs {
			if idx, seen := index[req.InventoryItemID]; seen {
				plan.Requirements[idx].Required = plan.Requirements[idx].Required.Add(req.Required)
				continue
			}
			index[req.InventoryItemID] = len(plan.Requirements)
			plan.Requirements = append(plan.Requirements, req)
		}
	}
	return plan
}

// Plan loads catalog and stock for storeID and builds the deduction plan.
func (d *Deductor) Plan(ctx context.Context, storeID string, lines []domain.TransactionLine) (Plan, map[string]domain.InventoryItem, error) {
	productIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := d.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return Plan{}, nil, err
	}
	recipeIDs := make([]string, 0, len(products))
	for _, p := range products {
		if p.StoreID != storeID {
			delete(products, p.ID)
			continue
		}
		if p.RecipeID != "" {
			recipeIDs = append(recipeIDs, p.RecipeID)
		}
	}
	recipes, err := d.repo.GetRecipesByIDs(ctx, recipeIDs)
	if err != nil {
		return Plan{}, nil, err
	}
	list, err := d.repo.ListInventoryItems(ctx, storeID)
	if err != nil {
		return Plan{}, nil, err
	}
	items := make(map[string]domain.InventoryItem, len(list))
	for _, item := range list {
		items[item.ID] = item
	}
	return BuildPlan(lines, products, recipes, items), items, nil
}

// ValidateTransaction checks stock for lines without writing anything.
func (d *Deductor) ValidateTransaction(ctx context.Context, storeID string, lines []domain.TransactionLine) (domain.StockValidationResult, error) {
	plan, items, err := d.Plan(ctx, storeID, lines)
	if err != nil {
		return domain.StockValidationResult{}, err
	}

	result := domain.StockValidationResult{
		Insufficient: []domain.InsufficientIngredient{},
		Errors:       plan.Errors,
	}
	for _, req := range plan.Requirements {
		available := items[req.InventoryItemID].Stock
		if req.Required.GreaterThan(available) {
			result.Insufficient = append(result.Insufficient, domain.InsufficientIngredient{
				InventoryItemID: req.InventoryItemID,
				IngredientName:  req.IngredientName,
				Unit:            req.Unit,
				Required:        req.Required,
				Available:       available,
			})
		}
	}
	result.Valid = len(result.Insufficient) == 0 && len(result.Errors) == 0
	return result, nil
}

// DeductTransaction consumes the ingredients of a paid sale. Stock is floored
// at zero and any shortfall is reported. The returned error is non-nil only
// when storage failed; the caller decides whether to retry.
func (d *Deductor) DeductTransaction(ctx context.Context, tx domain.Transaction) (domain.DeductionResult, error) {
	result := domain.DeductionResult{
		TransactionID: tx.ID,
		StoreID:       tx.StoreID,
		Deductions:    []domain.IngredientDeduction{},
		Warnings:      []string{},
		Errors:        []string{},
	}
	logger := d.log.WithFields(logrus.Fields{"store_id": tx.StoreID, "transaction_id": tx.ID})

	existing, err := d.repo.ListMovements(ctx, domain.MovementFilter{
		MovementType:  domain.MovementSale,
		ReferenceType: domain.ReferenceTransaction,
		ReferenceID:   tx.ID,
	})
	if err != nil {
		return d.fail(ctx, result, err)
	}
	if len(existing) > 0 {
		return d.alreadyDeducted(ctx, logger, tx, result), nil
	}

	plan, _, err := d.Plan(ctx, tx.StoreID, tx.Items)
	if err != nil {
		return d.fail(ctx, result, err)
	}
	result.Warnings = append(result.Warnings, plan.Warnings...)
	result.Errors = append(result.Errors, plan.Errors...)

	if len(plan.Requirements) == 0 {
		result.Status = domain.DeductionSkipped
		if len(plan.Errors) > 0 {
			result.Status = domain.DeductionFailed
		}
		d.updateStatus(ctx, logger, result)
		return result, nil
	}

	changes := make([]domain.StockChange, 0, len(plan.Requirements))
	for _, req := range plan.Requirements {
		changes = append(changes, domain.StockChange{
			InventoryItemID: req.InventoryItemID,
			Quantity:        req.Required.Neg(),
			Notes:           req.IngredientName,
		})
	}
	createdBy := tx.CashierUsername
	if createdBy == "" {
		createdBy = "system"
	}
	movements, err := d.repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:          tx.StoreID,
		MovementType:     domain.MovementSale,
		ReferenceType:    domain.ReferenceTransaction,
		ReferenceID:      tx.ID,
		CreatedBy:        createdBy,
		ClampAtZero:      true,
		OncePerReference: true,
		Changes:          changes,
		At:               time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		// A concurrent caller recorded the sale movements first.
		return d.alreadyDeducted(ctx, logger, tx, result), nil
	}
	if err != nil {
		return d.fail(ctx, result, err)
	}

	for i, mv := range movements {
		req := plan.Requirements[i]
		result.Deductions = append(result.Deductions, domain.IngredientDeduction{
			InventoryItemID: mv.InventoryItemID,
			IngredientName:  req.IngredientName,
			Unit:            req.Unit,
			Required:        req.Required,
			Deducted:        mv.Quantity.Neg(),
			Shortfall:       mv.Shortfall,
			PreviousStock:   mv.PreviousStock,
			NewStock:        mv.NewStock,
		})
		if mv.Shortfall.IsPositive() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: short by %s %s, stock floored at zero", req.IngredientName, mv.Shortfall.String(), req.Unit))
		}
	}

	result.Status = domain.DeductionComplete
	if len(plan.Errors) > 0 || plan.NoRecipeLines > 0 {
		result.Status = domain.DeductionPartial
	}
	d.updateStatus(ctx, logger, result)
	d.stockChanged(ctx, tx.StoreID)

	logger.WithFields(logrus.Fields{
		"status":      result.Status,
		"ingredients": len(result.Deductions),
	}).Debug("inventory deducted")
	return result, nil
}

// RollbackTransaction restores exactly what the sale movements of tx took.
// It returns the number of ingredients restored.
func (d *Deductor) RollbackTransaction(ctx context.Context, tx domain.Transaction) (int, error) {
	filter := domain.MovementFilter{ReferenceType: domain.ReferenceTransaction, ReferenceID: tx.ID}
	movements, err := d.repo.ListMovements(ctx, filter)
	if err != nil {
		return 0, err
	}

	changes := make([]domain.StockChange, 0, len(movements))
	for _, mv := range movements {
		if mv.MovementType == domain.MovementVoidReturn {
			return 0, nil
		}
		if mv.MovementType != domain.MovementSale || mv.Quantity.IsZero() {
			continue
		}
		changes = append(changes, domain.StockChange{
			InventoryItemID: mv.InventoryItemID,
			Quantity:        mv.Quantity.Neg(),
			Notes:           mv.Notes,
		})
	}
	if len(changes) == 0 {
		return 0, nil
	}

	_, err = d.repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:          tx.StoreID,
		MovementType:     domain.MovementVoidReturn,
		ReferenceType:    domain.ReferenceTransaction,
		ReferenceID:      tx.ID,
		CreatedBy:        "system",
		OncePerReference: true,
		Changes:          changes,
		At:               time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	d.stockChanged(ctx, tx.StoreID)
	return len(changes), nil
}

func (d *Deductor) alreadyDeducted(ctx context.Context, logger *logrus.Entry, tx domain.Transaction, result domain.DeductionResult) domain.DeductionResult {
	result.AlreadyDeducted = true
	result.Status = tx.DeductionStatus
	if result.Status == domain.DeductionPending || result.Status == domain.DeductionFailed || result.Status == "" {
		result.Status = domain.DeductionComplete
		if err := d.repo.UpdateDeductionStatus(ctx, tx.ID, result.Status, "inventory already deducted"); err != nil {
			logger.WithError(err).Warn("failed to update deduction status")
		}
	}
	result.Warnings = append(result.Warnings, "inventory already deducted for this transaction")
	return result
}

func (d *Deductor) fail(ctx context.Context, result domain.DeductionResult, cause error) (domain.DeductionResult, error) {
	result.Status = domain.DeductionFailed
	result.Errors = append(result.Errors, cause.Error())
	if err := d.repo.UpdateDeductionStatus(ctx, result.TransactionID, result.Status, cause.Error()); err != nil {
		d.log.WithError(err).WithField("transaction_id", result.TransactionID).Warn("failed to update deduction status")
	}
	return result, cause
}

func (d *Deductor) updateStatus(ctx context.Context, logger logrus.FieldLogger, result domain.DeductionResult) {
	note := ""
	if len(result.Errors) > 0 {
		note = result.Errors[0]
	} else if len(result.Warnings) > 0 {
		note = result.Warnings[0]
	}
	if err := d.repo.UpdateDeductionStatus(ctx, result.TransactionID, result.Status, note); err != nil {
		logger.WithError(err).Warn("failed to update deduction status")
	}
}

func (d *Deductor) stockChanged(ctx context.Context, storeID string) {
	if d.onStockChange != nil {
		d.onStockChange(ctx, storeID)
	}
}
