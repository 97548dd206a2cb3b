package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.Active = true

	s.suppliers[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.StoreID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.suppliers[po.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, item := range po.Items {
		if !item.Quantity.IsPositive() || item.UnitCostCents.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		inv, ok := s.inventory[item.InventoryItemID]
		if !ok || inv.StoreID != po.StoreID {
			return nil, store.ErrInvalidTransaction
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	s.poSeq++
	po.PONumber = fmt.Sprintf("PO-%s-%04d", po.CreatedAt.Format("20060102"), s.poSeq)
	po.Status = domain.POStatusPending
	po.TotalCents = po.ComputeTotal()

	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if storeID != "" && po.StoreID != storeID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DecidePurchaseOrder moves a pending order to approved, rejected or cancelled.
func (s *Store) DecidePurchaseOrder(_ context.Context, purchaseOrderID string, status string, actor string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	switch status {
	case domain.POStatusApproved, domain.POStatusRejected:
		if po.Status != domain.POStatusPending {
			return nil, store.ErrInvalidTransaction
		}
	case domain.POStatusCancelled:
		if po.Status != domain.POStatusPending && po.Status != domain.POStatusApproved {
			return nil, store.ErrInvalidTransaction
		}
	default:
		return nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	po.Status = status
	po.ApprovedBy = actor
	po.ApprovedAt = &at
	s.purchaseOrdersByID[purchaseOrderID] = po
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusApproved {
		return nil, store.ErrInvalidTransaction
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	staged := make(map[string]domain.InventoryItem, len(po.Items))
	movements := make([]domain.InventoryMovement, 0, len(po.Items))
	items := clonePurchaseOrder(po).Items
	for idx, line := range items {
		item, ok := staged[line.InventoryItemID]
		if !ok {
			item, ok = s.inventory[line.InventoryItemID]
			if !ok || item.StoreID != po.StoreID {
				return nil, store.ErrInvalidTransaction
			}
		}
		next := item.Stock.Add(line.Quantity)
		movements = append(movements, domain.InventoryMovement{
			ID:              xid.New("mov"),
			StoreID:         po.StoreID,
			InventoryItemID: item.ID,
			MovementType:    domain.MovementPurchase,
			Quantity:        line.Quantity,
			PreviousStock:   item.Stock,
			NewStock:        next,
			Shortfall:       decimal.Zero,
			UnitCostCents:   line.UnitCostCents,
			ReferenceType:   domain.ReferencePurchaseOrder,
			ReferenceID:     po.ID,
			Notes:           po.PONumber,
			CreatedBy:       receivedBy,
			CreatedAt:       receivedAt,
		})
		item.CostPerUnitCents = store.WeightedCost(item.CostPerUnitCents, item.Stock, line.UnitCostCents, line.Quantity)
		item.Stock = next
		item.UpdatedAt = receivedAt
		staged[item.ID] = item
		items[idx].ReceivedQuantity = line.Quantity
	}

	for id, item := range staged {
		s.inventory[id] = item
	}
	s.movements = append(s.movements, movements...)

	po.Items = items
	po.Status = domain.POStatusReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	s.purchaseOrdersByID[purchaseOrderID] = po
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense.Category = strings.TrimSpace(expense.Category)
	if expense.StoreID == "" || expense.Category == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.stores[expense.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = expense.CreatedAt
	}
	s.expenses = append(s.expenses, expense)
	saved := expense
	return &saved, nil
}

func (s *Store) ListExpenses(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if storeID != "" && expense.StoreID != storeID {
			continue
		}
		if !inRange(expense.ExpenseDate, from, to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return newestFirst(a.ExpenseDate, b.ExpenseDate, a.ID, b.ID)
	})
	return result, nil
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}
