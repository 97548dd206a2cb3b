package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/units"
	"crofflepos/internal/xid"
)

// CreateInventoryItem registers a store ingredient. A non-zero initial stock
// is booked as an adjustment movement so the ledger explains every unit.
func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryItemCreateRequest) (domain.InventoryItem, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, managerRoles...)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if units.Normalize(req.Unit) == "" {
		return domain.InventoryItem{}, fmt.Errorf("%w: unit required", store.ErrInvalidTransaction)
	}
	if req.InitialStock.IsNegative() || req.MinimumThreshold.IsNegative() || req.CostPerUnitCents.IsNegative() {
		return domain.InventoryItem{}, fmt.Errorf("%w: quantities must not be negative", store.ErrInvalidTransaction)
	}

	created, err := s.repo.CreateInventoryItem(ctx, domain.InventoryItem{
		StoreID:          req.StoreID,
		Name:             req.Name,
		Unit:             req.Unit,
		Stock:            decimal.Zero,
		MinimumThreshold: req.MinimumThreshold,
		CostPerUnitCents: req.CostPerUnitCents,
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}

	if req.InitialStock.IsPositive() {
		if _, err := s.repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
			StoreID:       created.StoreID,
			MovementType:  domain.MovementAdjustment,
			ReferenceType: domain.ReferenceManual,
			ReferenceID:   created.ID,
			CreatedBy:     actor.Username,
			Changes: []domain.StockChange{{
				InventoryItemID: created.ID,
				Quantity:        req.InitialStock,
				Notes:           "initial stock",
			}},
			At: s.now(),
		}); err != nil {
			return domain.InventoryItem{}, err
		}
		if created, err = s.repo.GetInventoryItem(ctx, created.ID); err != nil {
			return domain.InventoryItem{}, err
		}
	}

	s.stockChanged(ctx, created.StoreID)
	s.logAudit(ctx, created.StoreID, "inventory_item_create", "inventory_item", created.ID, fmt.Sprintf("name=%s,unit=%s,stock=%s", created.Name, created.Unit, created.Stock))
	return *created, nil
}

func (s *Service) UpdateInventoryItem(ctx context.Context, id string, req domain.InventoryItemUpdateRequest) (domain.InventoryItem, error) {
	item, err := s.repo.GetInventoryItem(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if _, err := s.authorize(ctx, item.StoreID, managerRoles...); err != nil {
		return domain.InventoryItem{}, err
	}
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.MinimumThreshold != nil {
		item.MinimumThreshold = *req.MinimumThreshold
	}
	if req.CostPerUnitCents != nil {
		item.CostPerUnitCents = *req.CostPerUnitCents
	}
	if req.Active != nil {
		item.Active = *req.Active
	}

	updated, err := s.repo.UpdateInventoryItem(ctx, *item)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.stockChanged(ctx, updated.StoreID)
	s.logAudit(ctx, updated.StoreID, "inventory_item_update", "inventory_item", updated.ID, fmt.Sprintf("threshold=%s,cost=%s,active=%t", updated.MinimumThreshold, updated.CostPerUnitCents, updated.Active))
	return *updated, nil
}

func (s *Service) ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListInventoryItems(ctx, storeID)
}

// AdjustStock applies signed corrections such as spoilage or found stock.
// The whole batch fails if any line would drive stock below zero.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) ([]domain.InventoryMovement, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, managerRoles...)
	if err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: adjustment reason required", store.ErrInvalidTransaction)
	}
	changes := make([]domain.StockChange, 0, len(req.Changes))
	for _, change := range req.Changes {
		if change.Quantity.IsZero() {
			continue
		}
		change.Absolute = false
		change.Notes = defaultString(strings.TrimSpace(change.Notes), req.Reason)
		changes = append(changes, change)
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no stock changes", store.ErrInvalidTransaction)
	}

	reference := xid.New("adj")
	movements, err := s.repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:       req.StoreID,
		MovementType:  domain.MovementAdjustment,
		ReferenceType: domain.ReferenceManual,
		ReferenceID:   reference,
		CreatedBy:     actor.Username,
		Changes:       changes,
		At:            s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.stockChanged(ctx, req.StoreID)
	s.logAudit(ctx, req.StoreID, "stock_adjust", "adjustment", reference, fmt.Sprintf("reason=%s,lines=%d", req.Reason, len(movements)))
	return movements, nil
}

// CountStock records a physical count. Counted quantities replace the system
// figures and the differences are returned as variances.
func (s *Service) CountStock(ctx context.Context, req domain.StockCountRequest) (domain.StockCountResponse, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, cashierRoles...)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.StockCountResponse{}, fmt.Errorf("%w: count has no lines", store.ErrInvalidTransaction)
	}

	changes := make([]domain.StockChange, 0, len(req.Items))
	for _, line := range req.Items {
		if line.CountedQty.IsNegative() {
			return domain.StockCountResponse{}, fmt.Errorf("%w: counted quantity must not be negative", store.ErrInvalidTransaction)
		}
		changes = append(changes, domain.StockChange{
			InventoryItemID: line.InventoryItemID,
			Quantity:        line.CountedQty,
			Absolute:        true,
			Notes:           strings.TrimSpace(req.Notes),
		})
	}

	countID := xid.New("count")
	now := s.now()
	movements, err := s.repo.ApplyStockChanges(ctx, domain.StockChangeBatch{
		StoreID:       req.StoreID,
		MovementType:  domain.MovementCount,
		ReferenceType: domain.ReferenceManual,
		ReferenceID:   countID,
		CreatedBy:     actor.Username,
		Changes:       changes,
		At:            now,
	})
	if err != nil {
		return domain.StockCountResponse{}, err
	}

	items, err := s.repo.ListInventoryItems(ctx, req.StoreID)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	byID := make(map[string]domain.InventoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	resp := domain.StockCountResponse{
		CountID:   countID,
		StoreID:   req.StoreID,
		Notes:     strings.TrimSpace(req.Notes),
		Variances: make([]domain.StockCountVariance, 0, len(movements)),
		CreatedAt: now.Format(time.RFC3339),
	}
	for _, mv := range movements {
		item := byID[mv.InventoryItemID]
		resp.Variances = append(resp.Variances, domain.StockCountVariance{
			InventoryItemID: mv.InventoryItemID,
			Name:            item.Name,
			Unit:            item.Unit,
			SystemQty:       mv.PreviousStock,
			CountedQty:      mv.NewStock,
			Variance:        mv.Quantity,
		})
	}

	s.stockChanged(ctx, req.StoreID)
	s.logAudit(ctx, req.StoreID, "stock_count", "count", countID, fmt.Sprintf("lines=%d", len(movements)))
	return resp, nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	filter.StoreID = s.storeOrDefault(filter.StoreID)
	if _, err := s.authorize(ctx, filter.StoreID, managerRoles...); err != nil {
		return nil, err
	}
	if filter.Limit < 1 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}

// ValidateStock checks a cart against current stock without booking anything.
func (s *Service) ValidateStock(ctx context.Context, req domain.StockValidationRequest) (domain.StockValidationResult, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	if _, err := s.authorize(ctx, req.StoreID); err != nil {
		return domain.StockValidationResult{}, err
	}
	lines, _, err := s.priceCart(ctx, req.StoreID, req.CartItems)
	if err != nil {
		return domain.StockValidationResult{}, err
	}
	return s.deductor.ValidateTransaction(ctx, req.StoreID, lines)
}

func (s *Service) ReconcileDay(ctx context.Context, storeID string, date string) (domain.ReconciliationReport, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.ReconciliationReport{}, err
	}
	day, _, err := s.businessDay(date)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	report, err := s.reconciler.ReconcileDay(ctx, storeID, day)
	if err != nil {
		return report, err
	}
	s.logAudit(ctx, storeID, "reconcile_day", "store", storeID, report.Summary)
	return report, nil
}

func (s *Service) CheckInventoryHealth(ctx context.Context, storeID string) (domain.InventoryHealthReport, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.InventoryHealthReport{}, err
	}
	return s.reconciler.CheckLevels(ctx, storeID)
}

func (s *Service) RetryDeduction(ctx context.Context, transactionID string) (domain.RetryJob, error) {
	tx, err := s.repo.FindTransactionByID(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return domain.RetryJob{}, err
	}
	if _, err := s.authorize(ctx, tx.StoreID, managerRoles...); err != nil {
		return domain.RetryJob{}, err
	}
	if s.retry == nil {
		return domain.RetryJob{}, fmt.Errorf("%w: retry queue disabled", store.ErrInvalidTransaction)
	}
	job, err := s.retry.RetryNow(ctx, tx.ID)
	if err != nil {
		return domain.RetryJob{}, err
	}
	return *job, nil
}

func (s *Service) ListRetryJobs(ctx context.Context, status string, limit int) ([]domain.RetryJob, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListRetryJobs(ctx, strings.TrimSpace(status), time.Time{}, limit)
}

func (s *Service) Availability(ctx context.Context, storeID string) (domain.AvailabilitySnapshot, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return domain.AvailabilitySnapshot{}, err
	}
	return s.availability.Snapshot(ctx, storeID)
}

func (s *Service) ProductAvailability(ctx context.Context, storeID string, productID string) (domain.ProductAvailability, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return domain.ProductAvailability{}, err
	}
	return s.availability.Product(ctx, storeID, productID)
}

func (s *Service) SyncAvailability(ctx context.Context, storeID string) (domain.AvailabilitySyncResult, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.AvailabilitySyncResult{}, err
	}
	return s.availability.Sync(ctx, storeID)
}

func (s *Service) SyncAllAvailability(ctx context.Context) ([]domain.AvailabilitySyncResult, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return nil, err
	}
	return s.availability.SyncAll(ctx)
}
