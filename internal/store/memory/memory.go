package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

// Store is an in-process Repository used in dev mode and tests. Every method
// holds the mutex for its whole body, so multi-row writes are atomic.
type Store struct {
	mu                 sync.RWMutex
	stores             map[string]domain.Store
	categories         map[string]domain.Category
	products           map[string]domain.Product
	inventory          map[string]domain.InventoryItem
	movements          []domain.InventoryMovement
	templates          map[string]domain.RecipeTemplate
	recipes            map[string]domain.Recipe
	commissary         map[string]domain.CommissaryItem
	conversions        []domain.CommissaryConversion
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]*domain.Transaction
	receiptSeq         map[string]int
	refundsByID        map[string]domain.Refund
	shiftsByID         map[string]domain.Shift
	activeShiftByKey   map[string]string
	suppliers          map[string]domain.Supplier
	purchaseOrdersByID map[string]domain.PurchaseOrder
	poSeq              int
	expenses           []domain.Expense
	zReadings          []domain.ZReading
	retryJobsByTx      map[string]domain.RetryJob
	auditLogs          []domain.AuditLog
	users              map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store without seed data or users.
func New() *Store {
	return &Store{
		stores:             make(map[string]domain.Store),
		categories:         make(map[string]domain.Category),
		products:           make(map[string]domain.Product),
		inventory:          make(map[string]domain.InventoryItem),
		movements:          make([]domain.InventoryMovement, 0, 256),
		templates:          make(map[string]domain.RecipeTemplate),
		recipes:            make(map[string]domain.Recipe),
		commissary:         make(map[string]domain.CommissaryItem),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]*domain.Transaction),
		receiptSeq:         make(map[string]int),
		refundsByID:        make(map[string]domain.Refund),
		shiftsByID:         make(map[string]domain.Shift),
		activeShiftByKey:   make(map[string]string),
		suppliers:          make(map[string]domain.Supplier),
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
		retryJobsByTx:      make(map[string]domain.RetryJob),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		users:              make(map[string]domain.UserAccount),
	}
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Name = strings.TrimSpace(st.Name)
	st.Code = strings.ToUpper(strings.TrimSpace(st.Code))
	if st.Name == "" || st.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.stores {
		if existing.Code == st.Code {
			return nil, store.ErrConflict
		}
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	st.Active = true
	s.stores[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stores[st.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(st.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	st.Code = existing.Code
	st.CreatedAt = existing.CreatedAt
	s.stores[st.ID] = st
	updated := st
	return &updated, nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) ListStores(_ context.Context, activeOnly bool) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		if activeOnly && !st.Active {
			continue
		}
		result = append(result, st)
	}
	slices.SortFunc(result, func(a, b domain.Store) int {
		return cmpString(a.Code, b.Code)
	})
	return result, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.StoreID == "" || category.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.stores[category.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.categories {
		if existing.StoreID == category.StoreID && strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Active = true
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context, storeID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if storeID != "" && c.StoreID != storeID {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.StoreID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.stores[product.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.products {
		if existing.StoreID != product.StoreID {
			continue
		}
		if strings.EqualFold(existing.Name, product.Name) || (product.SKU != "" && existing.SKU == product.SKU) {
			return nil, store.ErrConflict
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	product.StoreID = existing.StoreID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CategoryID == b.CategoryID {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.CategoryID, b.CategoryID)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) SetProductAvailability(_ context.Context, productID string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	product.IsAvailable = available
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return nil
}

func shiftMapKey(storeID string, terminalID string) string {
	return storeID + "::" + terminalID
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

// newestFirst orders by time descending, then id descending.
func newestFirst(aAt, bAt time.Time, aID, bID string) int {
	if aAt.Equal(bAt) {
		return cmpString(bID, aID)
	}
	if aAt.After(bAt) {
		return -1
	}
	return 1
}

func inRange(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}
