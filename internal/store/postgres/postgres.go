package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

const storeColumns = `id, code, name, address, tin, machine_serial, permit_number, vat_registered, active, created_at`

func scanStore(row interface{ Scan(...any) error }) (domain.Store, error) {
	var st domain.Store
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Address, &st.TIN, &st.MachineSerial, &st.PermitNumber, &st.VATRegistered, &st.Active, &st.CreatedAt)
	st.CreatedAt = st.CreatedAt.UTC()
	return st, err
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	st.Name = strings.TrimSpace(st.Name)
	st.Code = strings.ToUpper(strings.TrimSpace(st.Code))
	if st.Name == "" || st.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	st.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (`+storeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, st.ID, st.Code, st.Name, st.Address, st.TIN, st.MachineSerial, st.PermitNumber, st.VATRegistered, st.Active, st.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if strings.TrimSpace(st.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE stores
		SET name = $2, address = $3, tin = $4, machine_serial = $5, permit_number = $6, vat_registered = $7, active = $8
		WHERE id = $1
		RETURNING `+storeColumns,
		st.ID, st.Name, st.Address, st.TIN, st.MachineSerial, st.PermitNumber, st.VATRegistered, st.Active)
	updated, err := scanStore(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	st, err := scanStore(s.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListStores(ctx context.Context, activeOnly bool) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+storeColumns+`
		FROM stores
		WHERE ($1 = false OR active = true)
		ORDER BY code
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Store, 0, 8)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.StoreID == "" || category.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, store_id, name, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, category.ID, category.StoreID, category.Name, category.Active, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context, storeID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, active, created_at
		FROM categories
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.StoreID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const productColumns = `id, store_id, sku, name, COALESCE(category_id,''), price_cents, COALESCE(recipe_id,''), active, is_available, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.SKU, &p.Name, &p.CategoryID, &p.PriceCents, &p.RecipeID, &p.Active, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.StoreID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidTransaction
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, sku, name, category_id, price_cents, recipe_id, active, is_available, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.StoreID, product.SKU, product.Name, nullIfEmpty(product.CategoryID), product.PriceCents,
		nullIfEmpty(product.RecipeID), product.Active, product.IsAvailable, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, price_cents = $4, recipe_id = $5, active = $6, is_available = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, nullIfEmpty(product.CategoryID), product.PriceCents, nullIfEmpty(product.RecipeID), product.Active, product.IsAvailable)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR store_id = $1) AND ($2 = false OR active = true)
		ORDER BY category_id NULLS FIRST, name
	`, storeID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) SetProductAvailability(ctx context.Context, productID string, available bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET is_available = $2, updated_at = now() WHERE id = $1
	`, productID, available)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	at := val.Time.UTC()
	return &at
}
