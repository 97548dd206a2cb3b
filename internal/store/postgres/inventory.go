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
	"crofflepos/internal/units"
	"crofflepos/internal/xid"
)

const inventoryColumns = `id, store_id, name, unit, stock, minimum_threshold, cost_per_unit_cents, active, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func referenceRecorded(ctx context.Context, q queryRower, batch domain.StockChangeBatch) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inventory_movements
			WHERE movement_type = $1 AND reference_type = $2 AND reference_id = $3
		)
	`, batch.MovementType, batch.ReferenceType, batch.ReferenceID).Scan(&exists)
	return exists, err
}

func referenceConflict(batch domain.StockChangeBatch) error {
	return fmt.Errorf("%s movements for %s %s: %w", batch.MovementType, batch.ReferenceType, batch.ReferenceID, store.ErrConflict)
}

func scanInventoryItem(row interface{ Scan(...any) error }) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := row.Scan(&item.ID, &item.StoreID, &item.Name, &item.Unit, &item.Stock, &item.MinimumThreshold, &item.CostPerUnitCents, &item.Active, &item.UpdatedAt)
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, err
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	return createInventoryItem(ctx, s.db, item)
}

func createInventoryItem(ctx context.Context, db execer, item domain.InventoryItem) (*domain.InventoryItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.Unit = units.Normalize(item.Unit)
	if item.StoreID == "" || item.Name == "" || item.Unit == "" || item.Stock.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("inv")
	}
	item.Active = true
	item.UpdatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_items (`+inventoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, item.ID, item.StoreID, item.Name, item.Unit, item.Stock, item.MinimumThreshold, item.CostPerUnitCents, item.Active, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" || item.MinimumThreshold.IsNegative() || item.CostPerUnitCents.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET name = $2, minimum_threshold = $3, cost_per_unit_cents = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+inventoryColumns,
		item.ID, item.Name, item.MinimumThreshold, item.CostPerUnitCents, item.Active)
	updated, err := scanInventoryItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// lockInventoryItem reads an item row with FOR UPDATE inside pgTx.
func lockInventoryItem(ctx context.Context, pgTx *sql.Tx, id string) (domain.InventoryItem, error) {
	item, err := scanInventoryItem(pgTx.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, fmt.Errorf("inventory item %s: %w", id, store.ErrNotFound)
		}
		return item, err
	}
	return item, nil
}

func insertMovement(ctx context.Context, db execer, mv domain.InventoryMovement) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_movements (
			id, store_id, inventory_item_id, movement_type, quantity, previous_stock, new_stock,
			shortfall, unit_cost_cents, reference_type, reference_id, notes, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, mv.ID, mv.StoreID, mv.InventoryItemID, mv.MovementType, mv.Quantity, mv.PreviousStock, mv.NewStock,
		mv.Shortfall, mv.UnitCostCents, mv.ReferenceType, mv.ReferenceID, mv.Notes, mv.CreatedBy, mv.CreatedAt)
	return err
}

// ApplyStockChanges writes a batch in one serializable transaction. When a
// OncePerReference batch loses to a concurrent writer of the same reference
// (unique index hit or serialization failure), it reports ErrConflict.
func (s *Store) ApplyStockChanges(ctx context.Context, batch domain.StockChangeBatch) ([]domain.InventoryMovement, error) {
	movements, err := s.applyStockChanges(ctx, batch)
	if err != nil && batch.OncePerReference && !errors.Is(err, store.ErrConflict) {
		if recorded, checkErr := referenceRecorded(ctx, s.db, batch); checkErr == nil && recorded {
			return nil, referenceConflict(batch)
		}
	}
	return movements, err
}

func (s *Store) applyStockChanges(ctx context.Context, batch domain.StockChangeBatch) ([]domain.InventoryMovement, error) {
	if batch.StoreID == "" || batch.MovementType == "" || len(batch.Changes) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	at := batch.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if batch.OncePerReference {
		recorded, err := referenceRecorded(ctx, pgTx, batch)
		if err != nil {
			return nil, err
		}
		if recorded {
			return nil, referenceConflict(batch)
		}
	}

	staged := make(map[string]domain.InventoryItem, len(batch.Changes))
	movements := make([]domain.InventoryMovement, 0, len(batch.Changes))
	for _, change := range batch.Changes {
		item, ok := staged[change.InventoryItemID]
		if !ok {
			item, err = lockInventoryItem(ctx, pgTx, change.InventoryItemID)
			if err != nil {
				return nil, err
			}
			if item.StoreID != batch.StoreID {
				return nil, fmt.Errorf("inventory item %s: %w", change.InventoryItemID, store.ErrNotFound)
			}
		}
		next, shortfall, err := store.NextStock(item.Stock, change, batch.ClampAtZero)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", item.Name, err)
		}
		mv := domain.InventoryMovement{
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
		}
		if err := insertMovement(ctx, pgTx, mv); err != nil {
			if isUniqueViolation(err) {
				return nil, referenceConflict(batch)
			}
			return nil, err
		}
		movements = append(movements, mv)
		item.Stock = next
		staged[item.ID] = item
	}

	for _, item := range staged {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE inventory_items SET stock = $2, updated_at = $3 WHERE id = $1
		`, item.ID, item.Stock, at); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.StoreID != "" {
		add("store_id = $%d", filter.StoreID)
	}
	if filter.InventoryItemID != "" {
		add("inventory_item_id = $%d", filter.InventoryItemID)
	}
	if filter.MovementType != "" {
		add("movement_type = $%d", filter.MovementType)
	}
	if filter.ReferenceType != "" {
		add("reference_type = $%d", filter.ReferenceType)
	}
	if filter.ReferenceID != "" {
		add("reference_id = $%d", filter.ReferenceID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	query := `
		SELECT id, store_id, inventory_item_id, movement_type, quantity, previous_stock, new_stock,
			shortfall, unit_cost_cents, reference_type, reference_id, notes, created_by, created_at
		FROM inventory_movements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryMovement, 0, 64)
	for rows.Next() {
		var mv domain.InventoryMovement
		if err := rows.Scan(&mv.ID, &mv.StoreID, &mv.InventoryItemID, &mv.MovementType, &mv.Quantity, &mv.PreviousStock, &mv.NewStock,
			&mv.Shortfall, &mv.UnitCostCents, &mv.ReferenceType, &mv.ReferenceID, &mv.Notes, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.CreatedAt = mv.CreatedAt.UTC()
		result = append(result, mv)
	}
	return result, rows.Err()
}

const commissaryColumns = `id, name, unit, stock, cost_per_unit_cents, active, updated_at`

func scanCommissaryItem(row interface{ Scan(...any) error }) (domain.CommissaryItem, error) {
	var item domain.CommissaryItem
	err := row.Scan(&item.ID, &item.Name, &item.Unit, &item.Stock, &item.CostPerUnitCents, &item.Active, &item.UpdatedAt)
	return item, err
}

func (s *Store) CreateCommissaryItem(ctx context.Context, item domain.CommissaryItem) (*domain.CommissaryItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.Unit = units.Normalize(item.Unit)
	if item.Name == "" || item.Unit == "" || item.Stock.IsNegative() || item.CostPerUnitCents.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("com")
	}
	item.Active = true
	item.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commissary_items (`+commissaryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.Name, item.Unit, item.Stock, item.CostPerUnitCents, item.Active, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetCommissaryItem(ctx context.Context, id string) (*domain.CommissaryItem, error) {
	item, err := scanCommissaryItem(s.db.QueryRowContext(ctx, `SELECT `+commissaryColumns+` FROM commissary_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListCommissaryItems(ctx context.Context) ([]domain.CommissaryItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commissaryColumns+` FROM commissary_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CommissaryItem, 0, 32)
	for rows.Next() {
		item, err := scanCommissaryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) AdjustCommissaryStock(ctx context.Context, id string, delta domain.StockChange) (*domain.CommissaryItem, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	item, err := scanCommissaryItem(pgTx.QueryRowContext(ctx, `SELECT `+commissaryColumns+` FROM commissary_items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	next, _, err := store.NextStock(item.Stock, delta, false)
	if err != nil {
		return nil, err
	}
	item.Stock = next
	item.UpdatedAt = time.Now().UTC()
	if _, err := pgTx.ExecContext(ctx, `UPDATE commissary_items SET stock = $2, updated_at = $3 WHERE id = $1`, id, item.Stock, item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ConvertCommissaryStock(ctx context.Context, conv domain.CommissaryConversion) (*domain.CommissaryConversion, error) {
	if !conv.Quantity.IsPositive() || !conv.ConversionRatio.IsPositive() || conv.StoreID == "" {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	source, err := scanCommissaryItem(pgTx.QueryRowContext(ctx, `SELECT `+commissaryColumns+` FROM commissary_items WHERE id = $1 FOR UPDATE`, conv.CommissaryItemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if source.Stock.LessThan(conv.Quantity) {
		return nil, store.ErrInsufficientStock
	}

	target, err := conversionTarget(ctx, pgTx, conv)
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

	incomingCost := source.CostPerUnitCents.Div(conv.ConversionRatio).Round(4)
	newCost := store.WeightedCost(target.CostPerUnitCents, target.Stock, incomingCost, produced)
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

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE commissary_items SET stock = stock - $2, updated_at = $3 WHERE id = $1
	`, source.ID, conv.Quantity, conv.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE inventory_items SET stock = $2, cost_per_unit_cents = $3, updated_at = $4 WHERE id = $1
	`, target.ID, mv.NewStock, newCost, conv.CreatedAt); err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, pgTx, mv); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO commissary_conversions (
			id, commissary_item_id, store_id, inventory_item_id, quantity, conversion_ratio,
			produced_quantity, notes, converted_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, conv.ID, conv.CommissaryItemID, conv.StoreID, conv.InventoryItemID, conv.Quantity, conv.ConversionRatio,
		conv.ProducedQuantity, conv.Notes, conv.ConvertedBy, conv.CreatedAt); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &conv, nil
}

func conversionTarget(ctx context.Context, pgTx *sql.Tx, conv domain.CommissaryConversion) (domain.InventoryItem, error) {
	if conv.InventoryItemID != "" {
		item, err := lockInventoryItem(ctx, pgTx, conv.InventoryItemID)
		if err != nil {
			return item, err
		}
		if item.StoreID != conv.StoreID {
			return item, store.ErrNotFound
		}
		return item, nil
	}
	name := strings.TrimSpace(conv.TargetName)
	unit := units.Normalize(conv.TargetUnit)
	if name == "" || unit == "" {
		return domain.InventoryItem{}, store.ErrInvalidTransaction
	}
	item, err := scanInventoryItem(pgTx.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE store_id = $1 AND lower(name) = lower($2) AND unit = $3
		FOR UPDATE
	`, conv.StoreID, name, unit))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return item, err
	}
	created, err := createInventoryItem(ctx, pgTx, domain.InventoryItem{StoreID: conv.StoreID, Name: name, Unit: unit})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return *created, nil
}

func (s *Store) ListCommissaryConversions(ctx context.Context, storeID string, limit int) ([]domain.CommissaryConversion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.commissary_item_id, c.store_id, c.inventory_item_id, i.name, i.unit,
			c.quantity, c.conversion_ratio, c.produced_quantity, c.notes, c.converted_by, c.created_at
		FROM commissary_conversions c
		JOIN inventory_items i ON i.id = c.inventory_item_id
		WHERE ($1 = '' OR c.store_id = $1)
		ORDER BY c.created_at DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CommissaryConversion, 0, 16)
	for rows.Next() {
		var conv domain.CommissaryConversion
		if err := rows.Scan(&conv.ID, &conv.CommissaryItemID, &conv.StoreID, &conv.InventoryItemID, &conv.TargetName, &conv.TargetUnit,
			&conv.Quantity, &conv.ConversionRatio, &conv.ProducedQuantity, &conv.Notes, &conv.ConvertedBy, &conv.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}
