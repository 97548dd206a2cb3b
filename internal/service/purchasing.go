package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := s.authorize(ctx, "", managerRoles...); err != nil {
		return domain.Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:      req.Name,
		Contact:   strings.TrimSpace(req.Contact),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "", "supplier_create", "supplier", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if _, err := s.authorize(ctx, "", managerRoles...); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, managerRoles...)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if strings.TrimSpace(req.SupplierID) == "" || len(req.Items) == 0 {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: supplier and items required", store.ErrInvalidTransaction)
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if !item.Quantity.IsPositive() || item.UnitCostCents.IsNegative() {
			return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: invalid purchase order line for %s", store.ErrInvalidTransaction, item.InventoryItemID)
		}
		items = append(items, domain.PurchaseOrderItem{
			InventoryItemID:  strings.TrimSpace(item.InventoryItemID),
			Quantity:         item.Quantity,
			UnitCostCents:    item.UnitCostCents,
			ReceivedQuantity: decimal.Zero,
		})
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		StoreID:    req.StoreID,
		SupplierID: strings.TrimSpace(req.SupplierID),
		Notes:      strings.TrimSpace(req.Notes),
		CreatedBy:  actor.Username,
		CreatedAt:  s.now(),
		Items:      items,
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, created.StoreID, "purchase_order_create", "purchase_order", created.ID, fmt.Sprintf("po=%s,total=%d", created.PONumber, created.TotalCents))
	return domain.PurchaseOrderResponse{PurchaseOrder: *created}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) (domain.PurchaseOrderListResponse, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	if limit < 1 {
		limit = 50
	}
	orders, err := s.repo.ListPurchaseOrders(ctx, storeID, status, limit)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if _, err := s.authorize(ctx, po.StoreID, managerRoles...); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

// DecidePurchaseOrder approves or rejects a pending order. Only the owner
// signs off on spend.
func (s *Service) DecidePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderDecisionRequest) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	actor, err := s.authorize(ctx, po.StoreID, domain.RoleOwner)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	status := domain.POStatusRejected
	if req.Approve {
		status = domain.POStatusApproved
	}
	decided, err := s.repo.DecidePurchaseOrder(ctx, po.ID, status, actor.Username, s.now())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: purchase order %s is %s", store.ErrInvalidTransaction, po.PONumber, po.Status)
		}
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, decided.StoreID, "purchase_order_"+status, "purchase_order", decided.ID, defaultString(strings.TrimSpace(req.Notes), decided.PONumber))
	return domain.PurchaseOrderResponse{PurchaseOrder: *decided}, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	actor, err := s.authorize(ctx, po.StoreID, managerRoles...)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	cancelled, err := s.repo.DecidePurchaseOrder(ctx, po.ID, domain.POStatusCancelled, actor.Username, s.now())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	s.logAudit(ctx, cancelled.StoreID, "purchase_order_cancelled", "purchase_order", cancelled.ID, cancelled.PONumber)
	return domain.PurchaseOrderResponse{PurchaseOrder: *cancelled}, nil
}

// ReceivePurchaseOrder books an approved order into store stock.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	actor, err := s.authorize(ctx, po.StoreID, managerRoles...)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	received, err := s.repo.ReceivePurchaseOrder(ctx, po.ID, actor.Username, s.now())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) && po.Status != domain.POStatusApproved {
			return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: purchase order %s must be approved before receiving", store.ErrInvalidTransaction, po.PONumber)
		}
		return domain.PurchaseOrderResponse{}, err
	}

	s.stockChanged(ctx, received.StoreID)
	s.logAudit(ctx, received.StoreID, "purchase_order_received", "purchase_order", received.ID, fmt.Sprintf("po=%s,lines=%d", received.PONumber, len(received.Items)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *received}, nil
}

// ReorderSuggestions lists active items at or below their threshold with a
// quantity that brings each back to twice its threshold.
func (s *Service) ReorderSuggestions(ctx context.Context, storeID string) (domain.ReorderSuggestionResponse, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	items, err := s.repo.ListInventoryItems(ctx, storeID)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	two := decimal.NewFromInt(2)
	suggestions := make([]domain.ReorderSuggestion, 0)
	for _, item := range items {
		if !item.Active || !item.IsLowStock() {
			continue
		}
		threshold := item.LowStockThreshold()
		qty := threshold.Mul(two).Sub(item.Stock)
		if !qty.IsPositive() {
			continue
		}
		suggestions = append(suggestions, domain.ReorderSuggestion{
			InventoryItemID:        item.ID,
			Name:                   item.Name,
			Unit:                   item.Unit,
			CurrentStock:           item.Stock,
			ReorderPoint:           threshold,
			RecommendedQty:         qty,
			CostPerUnitCents:       item.CostPerUnitCents,
			EstimatedPurchaseCents: qty.Mul(item.CostPerUnitCents).Round(0).IntPart(),
		})
	}
	// Most depleted first, relative to the reorder point.
	slices.SortFunc(suggestions, func(a, b domain.ReorderSuggestion) int {
		ra := a.CurrentStock.Div(a.ReorderPoint)
		rb := b.CurrentStock.Div(b.ReorderPoint)
		if c := ra.Cmp(rb); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	return domain.ReorderSuggestionResponse{
		StoreID:     storeID,
		GeneratedAt: s.now().Format(time.RFC3339),
		Suggestions: suggestions,
	}, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, managerRoles...)
	if err != nil {
		return domain.Expense{}, err
	}
	if req.AmountCents < 1 {
		return domain.Expense{}, fmt.Errorf("%w: expense amount must be positive", store.ErrInvalidTransaction)
	}
	day, _, err := s.businessDay(req.ExpenseDate)
	if err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		StoreID:     req.StoreID,
		Category:    strings.ToLower(strings.TrimSpace(req.Category)),
		Description: strings.TrimSpace(req.Description),
		AmountCents: req.AmountCents,
		ExpenseDate: day,
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, created.StoreID, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%d", created.Category, created.AmountCents))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, storeID string, fromDate string, toDate string) ([]domain.Expense, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return nil, err
	}
	from, to, err := s.dateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, storeID, from, to)
}
