package store

import (
	"context"
	"errors"
	"time"

	"crofflepos/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
)

type StoreRepository interface {
	CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	ListStores(ctx context.Context, activeOnly bool) ([]domain.Store, error)
}

type CatalogRepository interface {
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context, storeID string) ([]domain.Category, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	SetProductAvailability(ctx context.Context, productID string, available bool) error
}

type InventoryRepository interface {
	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error)
	// ApplyStockChanges applies every change in the batch or none of them.
	ApplyStockChanges(ctx context.Context, batch domain.StockChangeBatch) ([]domain.InventoryMovement, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)
}

type RecipeRepository interface {
	CreateRecipeTemplate(ctx context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error)
	UpdateRecipeTemplate(ctx context.Context, tpl domain.RecipeTemplate) (*domain.RecipeTemplate, error)
	GetRecipeTemplate(ctx context.Context, id string) (*domain.RecipeTemplate, error)
	ListRecipeTemplates(ctx context.Context, activeOnly bool) ([]domain.RecipeTemplate, error)
	CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error)
	GetRecipe(ctx context.Context, id string) (*domain.Recipe, error)
	FindRecipeByName(ctx context.Context, storeID string, name string) (*domain.Recipe, error)
	ListRecipes(ctx context.Context, storeID string) ([]domain.Recipe, error)
	GetRecipesByIDs(ctx context.Context, ids []string) (map[string]domain.Recipe, error)
}

type CommissaryRepository interface {
	CreateCommissaryItem(ctx context.Context, item domain.CommissaryItem) (*domain.CommissaryItem, error)
	GetCommissaryItem(ctx context.Context, id string) (*domain.CommissaryItem, error)
	ListCommissaryItems(ctx context.Context) ([]domain.CommissaryItem, error)
	AdjustCommissaryStock(ctx context.Context, id string, delta domain.StockChange) (*domain.CommissaryItem, error)
	// ConvertCommissaryStock deducts commissary stock and credits the store item atomically.
	ConvertCommissaryStock(ctx context.Context, conv domain.CommissaryConversion) (*domain.CommissaryConversion, error)
	ListCommissaryConversions(ctx context.Context, storeID string, limit int) ([]domain.CommissaryConversion, error)
}

// ReceiptNumbering sets a sale's receipt number from the store's sequence for
// BusinessDay.
type ReceiptNumbering struct {
	BusinessDay time.Time
	Format      func(sequence int) string
}

type SalesRepository interface {
	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// CreateNumberedTransaction draws the next receipt sequence in the same
	// write as the sale. A sale that is not stored, including a repeated
	// idempotency key, consumes no number.
	CreateNumberedTransaction(ctx context.Context, tx domain.Transaction, numbering ReceiptNumbering) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	UpdateDeductionStatus(ctx context.Context, transactionID string, status string, note string) error
	VoidTransaction(ctx context.Context, id string, reason string, at time.Time) (*domain.Transaction, error)
	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, *domain.Transaction, error)
	ListRefunds(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Refund, error)
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, storeID string, terminalID string, closing domain.ShiftClose) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
}

type PurchasingRepository interface {
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error)
	DecidePurchaseOrder(ctx context.Context, purchaseOrderID string, status string, actor string, at time.Time) (*domain.PurchaseOrder, error)
	// ReceivePurchaseOrder marks an approved order received and books its stock.
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Expense, error)
}

type ReadingRepository interface {
	GetLastZReading(ctx context.Context, storeID string, terminalID string) (*domain.ZReading, error)
	CreateZReading(ctx context.Context, reading domain.ZReading) (*domain.ZReading, error)
	ListZReadings(ctx context.Context, storeID string, limit int) ([]domain.ZReading, error)
}

type RetryRepository interface {
	SaveRetryJob(ctx context.Context, job domain.RetryJob) (*domain.RetryJob, error)
	GetRetryJobByTransaction(ctx context.Context, transactionID string) (*domain.RetryJob, error)
	ListRetryJobs(ctx context.Context, status string, dueBefore time.Time, limit int) ([]domain.RetryJob, error)
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	StoreRepository
	CatalogRepository
	InventoryRepository
	RecipeRepository
	CommissaryRepository
	SalesRepository
	PurchasingRepository
	ReadingRepository
	RetryRepository
	AuditRepository
	UserRepository
}
