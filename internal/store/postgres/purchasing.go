package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, phone, email, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email, supplier.Active, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, phone, email, active, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Phone, &sup.Email, &sup.Active, &sup.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sup)
	}
	return result, rows.Err()
}

const purchaseOrderColumns = `id, po_number, store_id, supplier_id, status, total_cents, notes, created_by,
	approved_by, approved_at, received_by, received_at, created_at`

func scanPurchaseOrder(row interface{ Scan(...any) error }) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var approvedAt, receivedAt sql.NullTime
	err := row.Scan(&po.ID, &po.PONumber, &po.StoreID, &po.SupplierID, &po.Status, &po.TotalCents, &po.Notes, &po.CreatedBy,
		&po.ApprovedBy, &approvedAt, &po.ReceivedBy, &receivedAt, &po.CreatedAt)
	po.ApprovedAt = timePtr(approvedAt)
	po.ReceivedAt = timePtr(receivedAt)
	po.CreatedAt = po.CreatedAt.UTC()
	return po, err
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.StoreID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, item := range po.Items {
		if !item.Quantity.IsPositive() || item.UnitCostCents.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.POStatusPending
	po.TotalCents = po.ComputeTotal()

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var supplierExists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, po.SupplierID).Scan(&supplierExists); err != nil {
		return nil, err
	}
	if !supplierExists {
		return nil, store.ErrNotFound
	}
	for _, item := range po.Items {
		var itemStore string
		err := pgTx.QueryRowContext(ctx, `SELECT store_id FROM inventory_items WHERE id = $1`, item.InventoryItemID).Scan(&itemStore)
		if err != nil || itemStore != po.StoreID {
			return nil, store.ErrInvalidTransaction
		}
	}

	var seq int64
	if err := pgTx.QueryRowContext(ctx, `SELECT nextval('purchase_order_number_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	po.PONumber = fmt.Sprintf("PO-%s-%04d", po.CreatedAt.Format("20060102"), seq)

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, po_number, store_id, supplier_id, status, total_cents, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, po.ID, po.PONumber, po.StoreID, po.SupplierID, po.Status, po.TotalCents, po.Notes, po.CreatedBy, po.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	for _, item := range po.Items {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, inventory_item_id, quantity, unit_cost_cents)
			VALUES ($1,$2,$3,$4)
		`, po.ID, item.InventoryItemID, item.Quantity, item.UnitCostCents); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) loadPurchaseOrderItems(ctx context.Context, ids []string) (map[string][]domain.PurchaseOrderItem, error) {
	result := make(map[string][]domain.PurchaseOrderItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT purchase_order_id, inventory_item_id, quantity, unit_cost_cents, received_quantity
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var poID string
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&poID, &item.InventoryItemID, &item.Quantity, &item.UnitCostCents, &item.ReceivedQuantity); err != nil {
			return nil, err
		}
		result[poID] = append(result[poID], item)
	}
	return result, rows.Err()
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1
	`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadPurchaseOrderItems(ctx, []string{po.ID})
	if err != nil {
		return nil, err
	}
	po.Items = items[po.ID]
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE ($1 = '' OR store_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, strings.ToLower(strings.TrimSpace(status)), limit)
	if err != nil {
		return nil, err
	}

	result := make([]domain.PurchaseOrder, 0, 16)
	ids := make([]string, 0, 16)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	items, err := s.loadPurchaseOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

func (s *Store) DecidePurchaseOrder(ctx context.Context, purchaseOrderID string, status string, actor string, at time.Time) (*domain.PurchaseOrder, error) {
	var allowedFrom []string
	switch status {
	case domain.POStatusApproved, domain.POStatusRejected:
		allowedFrom = []string{domain.POStatusPending}
	case domain.POStatusCancelled:
		allowedFrom = []string{domain.POStatusPending, domain.POStatusApproved}
	default:
		return nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND status = ANY($5)
	`, purchaseOrderID, status, actor, at, allowedFrom)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := s.GetPurchaseOrderByID(ctx, purchaseOrderID); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidTransaction
	}
	return s.GetPurchaseOrderByID(ctx, purchaseOrderID)
}

// ReceivePurchaseOrder books every line as a purchase movement and updates
// weighted average costs inside one serializable transaction.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	po, err := scanPurchaseOrder(pgTx.QueryRowContext(ctx, `
		SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE
	`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if po.Status != domain.POStatusApproved {
		return nil, store.ErrInvalidTransaction
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, inventory_item_id, quantity, unit_cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, po.ID)
	if err != nil {
		return nil, err
	}
	type line struct {
		rowID    int64
		itemID   string
		qty      decimal.Decimal
		unitCost decimal.Decimal
	}
	lines := make([]line, 0, 8)
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.rowID, &l.itemID, &l.qty, &l.unitCost); err != nil {
			_ = rows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	staged := make(map[string]domain.InventoryItem, len(lines))
	for _, l := range lines {
		item, ok := staged[l.itemID]
		if !ok {
			item, err = lockInventoryItem(ctx, pgTx, l.itemID)
			if err != nil {
				return nil, err
			}
			if item.StoreID != po.StoreID {
				return nil, store.ErrInvalidTransaction
			}
		}
		next := item.Stock.Add(l.qty)
		mv := domain.InventoryMovement{
			ID:              xid.New("mov"),
			StoreID:         po.StoreID,
			InventoryItemID: item.ID,
			MovementType:    domain.MovementPurchase,
			Quantity:        l.qty,
			PreviousStock:   item.Stock,
			NewStock:        next,
			Shortfall:       decimal.Zero,
			UnitCostCents:   l.unitCost,
			ReferenceType:   domain.ReferencePurchaseOrder,
			ReferenceID:     po.ID,
			Notes:           po.PONumber,
			CreatedBy:       receivedBy,
			CreatedAt:       receivedAt,
		}
		if err := insertMovement(ctx, pgTx, mv); err != nil {
			return nil, err
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_order_items SET received_quantity = quantity WHERE id = $1
		`, l.rowID); err != nil {
			return nil, err
		}
		item.CostPerUnitCents = store.WeightedCost(item.CostPerUnitCents, item.Stock, l.unitCost, l.qty)
		item.Stock = next
		staged[item.ID] = item
	}

	for _, item := range staged {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE inventory_items SET stock = $2, cost_per_unit_cents = $3, updated_at = $4 WHERE id = $1
		`, item.ID, item.Stock, item.CostPerUnitCents, receivedAt); err != nil {
			return nil, err
		}
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, received_by = $3, received_at = $4 WHERE id = $1
	`, po.ID, domain.POStatusReceived, receivedBy, receivedAt); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseOrderByID(ctx, po.ID)
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	expense.Category = strings.TrimSpace(expense.Category)
	if expense.StoreID == "" || expense.Category == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, store_id, category, description, amount_cents, expense_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, expense.ID, expense.StoreID, expense.Category, expense.Description, expense.AmountCents, expense.ExpenseDate, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, category, description, amount_cents, expense_date, created_by, created_at
		FROM expenses
		WHERE ($1 = '' OR store_id = $1)
			AND ($2::timestamptz IS NULL OR expense_date >= $2)
			AND ($3::timestamptz IS NULL OR expense_date < $3)
		ORDER BY expense_date DESC, id DESC
	`, storeID, optionalTime(from), optionalTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.StoreID, &e.Category, &e.Description, &e.AmountCents, &e.ExpenseDate, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ExpenseDate = e.ExpenseDate.UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

// optionalTime maps a zero bound to NULL so range filters stay open.
func optionalTime(at time.Time) any {
	if at.IsZero() {
		return nil
	}
	return at
}
