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
	"crofflepos/internal/units"
	"crofflepos/internal/xid"
)

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createInventoryItemLocked(item)
}

func (s *Store) createInventoryItemLocked(item domain.InventoryItem) (*domain.InventoryItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.Unit = units.Normalize(item.Unit)
	if item.StoreID == "" || item.Name == "" || item.Unit == "" || item.Stock.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.stores[item.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.inventory {
		if existing.StoreID == item.StoreID && strings.EqualFold(existing.Name, item.Name) && existing.Unit == item.Unit {
			return nil, store.ErrConflict
		}
	}
	if item.ID == "" {
		item.ID = xid.New("inv")
	}
	item.Active = true
	item.UpdatedAt = time.Now().UTC()
	s.inventory[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) UpdateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.inventory[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(item.Name) == "" || item.MinimumThreshold.IsNegative() || item.CostPerUnitCents.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	// Stock only moves through ApplyStockChanges.
	item.StoreID = existing.StoreID
	item.Unit = existing.Unit
	item.Stock = existing.Stock
	item.UpdatedAt = time.Now().UTC()
	s.inventory[item.ID] = item
	updated := item
	return &updated, nil
}

func (s *Store) GetInventoryItem(_ context.Context, id string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.inventory[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListInventoryItems(_ context.Context, storeID string) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		if storeID != "" && item.StoreID != storeID {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		return cmpString(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) ApplyStockChanges(_ context.Context, batch domain.StockChangeBatch) ([]domain.InventoryMovement, error) {
	if batch.StoreID == "" || batch.MovementType == "" || len(batch.Changes) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	at := batch.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.OncePerReference {
		for _, mv := range s.movements {
			if mv.MovementType == batch.MovementType && mv.ReferenceType == batch.ReferenceType && mv.ReferenceID == batch.ReferenceID {
				return nil, fmt.Errorf("%s movements for %s %s: %w", batch.MovementType, batch.ReferenceType, batch.ReferenceID, store.ErrConflict)
			}
		}
	}

	staged := make(map[string]domain.InventoryItem, len(batch.Changes))
	movements := make([]domain.InventoryMovement, 0, len(batch.Changes))
	for _, change := range batch.Changes {
		item, ok := staged[change.InventoryItemID]
		if !ok {
			item, ok = s.inventory[change.InventoryItemID]
			if !ok || item.StoreID != batch.StoreID {
				return nil, fmt.Errorf("inventory item %s: %w", change.InventoryItemID, store.ErrNotFound)
			}
		}
		next, shortfall, err := store.NextStock(item.Stock, change, batch.ClampAtZero)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", item.Name, err)
		}
		movements = append(movements, domain.InventoryMovement{
			ID:              xid.New("mov"),
			StoreID:         batch.StoreID,
			InventoryItemID: item.ID,
			MovementType:    batch.MovementType,
			Quantity:        next.Sub(item.Stock),
			PreviousStock:   item.Stock,
			NewStock:        next,
			Shortfall:       shortfall,
			UnitCostCents:   item.CostPerUnitCents,
			ReferenceType:   batch.ReferenceType,
			ReferenceID:     batch.ReferenceID,
			Notes:           change.Notes,
			CreatedBy:       batch.CreatedBy,
			CreatedAt:       at,
		})
		item.Stock = next
		item.UpdatedAt = at
		staged[item.ID] = item
	}

	for id, item := range staged {
		s.inventory[id] = item
	}
	s.movements = append(s.movements, movements...)
	return slices.Clone(movements), nil
}

func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0, 64)
	for _, mv := range s.movements {
		if filter.StoreID != "" && mv.StoreID != filter.StoreID {
			continue
		}
		if filter.InventoryItemID != "" && mv.InventoryItemID != filter.InventoryItemID {
			continue
		}
		if filter.MovementType != "" && mv.MovementType != filter.MovementType {
			continue
		}
		if filter.ReferenceType != "" && mv.ReferenceType != filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != "" && mv.ReferenceID != filter.ReferenceID {
			continue
		}
		if !inRange(mv.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, mv)
	}
	slices.SortStableFunc(result, func(a, b domain.InventoryMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return 0
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateCommissaryItem(_ context.Context, item domain.CommissaryItem) (*domain.CommissaryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.Name = strings.TrimSpace(item.Name)
	item.Unit = units.Normalize(item.Unit)
	if item.Name == "" || item.Unit == "" || item.Stock.IsNegative() || item.CostPerUnitCents.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.commissary {
		if strings.EqualFold(existing.Name, item.Name) {
			return nil, store.ErrConflict
		}
	}
	if item.ID == "" {
		item.ID = xid.New("com")
	}
	item.Active = true
	item.UpdatedAt = time.Now().UTC()
	s.commissary[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) GetCommissaryItem(_ context.Context, id string) (*domain.CommissaryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.commissary[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListCommissaryItems(_ context.Context) ([]domain.CommissaryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.CommissaryItem, 0, len(s.commissary))
	for _, item := range s.commissary {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.CommissaryItem) int {
		return cmpString(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) AdjustCommissaryStock(_ context.Context, id string, delta domain.StockChange) (*domain.CommissaryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.commissary[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next, _, err := store.NextStock(item.Stock, delta, false)
	if err != nil {
		return nil, err
	}
	item.Stock = next
	item.UpdatedAt = time.Now().UTC()
	s.commissary[id] = item
	updated := item
	return &updated, nil
}

func (s *Store) ConvertCommissaryStock(_ context.Context, conv domain.CommissaryConversion) (*domain.CommissaryConversion, error) {
	if !conv.Quantity.IsPositive() || !conv.ConversionRatio.IsPositive() || conv.StoreID == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.commissary[conv.CommissaryItemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if source.Stock.LessThan(conv.Quantity) {
		return nil, store.ErrInsufficientStock
	}

	target, err := s.conversionTargetLocked(conv)
	if err != nil {
		return nil, err
	}

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.ID == "" {
		conv.ID = xid.New("conv")
	}
	produced := conv.Quantity.Mul(conv.ConversionRatio)
	conv.ProducedQuantity = produced
	conv.InventoryItemID = target.ID
	conv.TargetName = target.Name
	conv.TargetUnit = target.Unit

	// Unit cost of produced stock is the commissary cost spread over the ratio.
	incomingCost := source.CostPerUnitCents.Div(conv.ConversionRatio).Round(4)
	target.CostPerUnitCents = store.WeightedCost(target.CostPerUnitCents, target.Stock, incomingCost, produced)

	mv := domain.InventoryMovement{
		ID:              xid.New("mov"),
		StoreID:         target.StoreID,
		InventoryItemID: target.ID,
		MovementType:    domain.MovementTransferIn,
		Quantity:        produced,
		PreviousStock:   target.Stock,
		NewStock:        target.Stock.Add(produced),
		Shortfall:       decimal.Zero,
		UnitCostCents:   incomingCost,
		ReferenceType:   domain.ReferenceConversion,
		ReferenceID:     conv.ID,
		Notes:           conv.Notes,
		CreatedBy:       conv.ConvertedBy,
		CreatedAt:       conv.CreatedAt,
	}
	target.Stock = mv.NewStock
	target.UpdatedAt = conv.CreatedAt
	source.Stock = source.Stock.Sub(conv.Quantity)
	source.UpdatedAt = conv.CreatedAt

	s.commissary[source.ID] = source
	s.inventory[target.ID] = target
	s.movements = append(s.movements, mv)
	s.conversions = append(s.conversions, conv)
	saved := conv
	return &saved, nil
}

// conversionTargetLocked resolves the store item a conversion credits: the
// explicit id, or the item matching name and unit, created when absent.
func (s *Store) conversionTargetLocked(conv domain.CommissaryConversion) (domain.InventoryItem, error) {
	if conv.InventoryItemID != "" {
		item, ok := s.inventory[conv.InventoryItemID]
		if !ok || item.StoreID != conv.StoreID {
			return domain.InventoryItem{}, store.ErrNotFound
		}
		return item, nil
	}
	name := strings.TrimSpace(conv.TargetName)
	unit := units.Normalize(conv.TargetUnit)
	if name == "" || unit == "" {
		return domain.InventoryItem{}, store.ErrInvalidTransaction
	}
	for _, item := range s.inventory {
		if item.StoreID == conv.StoreID && strings.EqualFold(item.Name, name) && item.Unit == unit {
			return item, nil
		}
	}
	created, err := s.createInventoryItemLocked(domain.InventoryItem{StoreID: conv.StoreID, Name: name, Unit: unit})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return *created, nil
}

func (s *Store) ListCommissaryConversions(_ context.Context, storeID string, limit int) ([]domain.CommissaryConversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CommissaryConversion, 0, len(s.conversions))
	for _, conv := range s.conversions {
		if storeID != "" && conv.StoreID != storeID {
			continue
		}
		result = append(result, conv)
	}
	slices.SortFunc(result, func(a, b domain.CommissaryConversion) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
