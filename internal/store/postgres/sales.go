package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

const transactionColumns = `
	id, store_id, terminal_id, COALESCE(shift_id,''), receipt_number, idempotency_key, cashier_username,
	order_type, delivery_platform, payment_method, payment_reference, payment_splits,
	gross_cents, discount_type, discount_cents, discount_id_number,
	vatable_sales_cents, vat_cents, vat_exempt_cents, zero_rated_cents, total_cents,
	cash_received_cents, change_cents, refunded_cents, status, deduction_status, deduction_note,
	void_reason, voided_at, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var tx domain.Transaction
	var splits []byte
	var voidedAt sql.NullTime
	err := row.Scan(
		&tx.ID, &tx.StoreID, &tx.TerminalID, &tx.ShiftID, &tx.ReceiptNumber, &tx.IdempotencyKey, &tx.CashierUsername,
		&tx.OrderType, &tx.DeliveryPlatform, &tx.PaymentMethod, &tx.PaymentReference, &splits,
		&tx.GrossCents, &tx.DiscountType, &tx.DiscountCents, &tx.DiscountIDNumber,
		&tx.VATableSalesCents, &tx.VATCents, &tx.VATExemptCents, &tx.ZeroRatedCents, &tx.TotalCents,
		&tx.CashReceivedCents, &tx.ChangeCents, &tx.RefundedCents, &tx.Status, &tx.DeductionStatus, &tx.DeductionNote,
		&tx.VoidReason, &voidedAt, &tx.CreatedAt,
	)
	if err != nil {
		return tx, err
	}
	if len(splits) > 0 {
		if err := json.Unmarshal(splits, &tx.PaymentSplits); err != nil {
			return tx, err
		}
	}
	tx.VoidedAt = timePtr(voidedAt)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "idempotency_key", key)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", id)
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s = $1`, transactionColumns, column)
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadTransactionItems(ctx, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = items[tx.ID]
	return &tx, nil
}

func (s *Store) loadTransactionItems(ctx context.Context, ids []string) (map[string][]domain.TransactionLine, error) {
	result := make(map[string][]domain.TransactionLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, name, qty, unit_price_cents, line_total_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var item domain.TransactionLine
		if err := rows.Scan(&txID, &item.ProductID, &item.Name, &item.Qty, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		result[txID] = append(result[txID], item)
	}
	return result, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	return s.createTransaction(ctx, tx, nil)
}

func (s *Store) CreateNumberedTransaction(ctx context.Context, tx domain.Transaction, numbering store.ReceiptNumbering) (*domain.Transaction, error) {
	if numbering.Format == nil {
		return nil, store.ErrInvalidTransaction
	}
	return s.createTransaction(ctx, tx, &numbering)
}

// createTransaction runs read committed so concurrent checkouts queue on the
// receipt_sequences row instead of failing serialization. A rollback returns
// the drawn sequence.
func (s *Store) createTransaction(ctx context.Context, tx domain.Transaction, numbering *store.ReceiptNumbering) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || tx.StoreID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if len(tx.Items) == 0 || tx.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPaid
	}
	if tx.DeductionStatus == "" {
		tx.DeductionStatus = domain.DeductionPending
	}
	splits, err := json.Marshal(tx.PaymentSplits)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if numbering != nil {
		var seq int
		if err := pgTx.QueryRowContext(ctx, `
			INSERT INTO receipt_sequences (store_id, business_date, last_value)
			VALUES ($1, $2, 1)
			ON CONFLICT (store_id, business_date)
			DO UPDATE SET last_value = receipt_sequences.last_value + 1
			RETURNING last_value
		`, tx.StoreID, numbering.BusinessDay.Format("2006-01-02")).Scan(&seq); err != nil {
			return nil, err
		}
		tx.ReceiptNumber = numbering.Format(seq)
	}

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, terminal_id, shift_id, receipt_number, idempotency_key, cashier_username,
			order_type, delivery_platform, payment_method, payment_reference, payment_splits,
			gross_cents, discount_type, discount_cents, discount_id_number,
			vatable_sales_cents, vat_cents, vat_exempt_cents, zero_rated_cents, total_cents,
			cash_received_cents, change_cents, refunded_cents, status, deduction_status, deduction_note, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,0,$24,$25,'',$26)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, tx.ID, tx.StoreID, tx.TerminalID, nullIfEmpty(tx.ShiftID), tx.ReceiptNumber, tx.IdempotencyKey, tx.CashierUsername,
		tx.OrderType, tx.DeliveryPlatform, tx.PaymentMethod, tx.PaymentReference, splits,
		tx.GrossCents, tx.DiscountType, tx.DiscountCents, tx.DiscountIDNumber,
		tx.VATableSalesCents, tx.VATCents, tx.VATExemptCents, tx.ZeroRatedCents, tx.TotalCents,
		tx.CashReceivedCents, tx.ChangeCents, tx.Status, tx.DeductionStatus, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Lost the race on the idempotency key; the stored sale wins.
		_ = pgTx.Rollback()
		return s.FindTransactionByIdempotency(ctx, tx.IdempotencyKey)
	}

	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, item.ProductID, item.Name, item.Qty, item.UnitPriceCents, item.LineTotalCents); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
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
	if filter.TerminalID != "" {
		add("terminal_id = $%d", filter.TerminalID)
	}
	if filter.ShiftID != "" {
		add("shift_id = $%d", filter.ShiftID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.DeductionStatus != "" {
		add("deduction_status = $%d", filter.DeductionStatus)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, receipt_number ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Transaction, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	items, err := s.loadTransactionItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

func (s *Store) UpdateDeductionStatus(ctx context.Context, transactionID string, status string, note string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET deduction_status = $2, deduction_note = $3 WHERE id = $1
	`, transactionID, status, note)
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

func (s *Store) VoidTransaction(ctx context.Context, id string, reason string, at time.Time) (*domain.Transaction, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	var refunded int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, refunded_cents FROM transactions WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &refunded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.TxStatusPaid || refunded > 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions SET status = $2, void_reason = $3, voided_at = $4 WHERE id = $1
	`, id, domain.TxStatusVoided, strings.TrimSpace(reason), at); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.FindTransactionByID(ctx, id)
}

func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, *domain.Transaction, error) {
	if refund.AmountCents < 1 {
		return nil, nil, store.ErrInvalidTransaction
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	var total, refunded int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id, status, total_cents, refunded_cents
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, refund.OriginalTransactionID).Scan(&refund.StoreID, &status, &total, &refunded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if status != domain.TxStatusPaid || refunded+refund.AmountCents > total {
		return nil, nil, store.ErrInvalidTransaction
	}

	newStatus := domain.TxStatusPaid
	if refunded+refund.AmountCents >= total {
		newStatus = domain.TxStatusRefunded
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions SET refunded_cents = refunded_cents + $2, status = $3 WHERE id = $1
	`, refund.OriginalTransactionID, refund.AmountCents, newStatus); err != nil {
		return nil, nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, store_id, original_transaction_id, reason, amount_cents, vat_cents, payment_method, shift_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, refund.ID, refund.StoreID, refund.OriginalTransactionID, refund.Reason, refund.AmountCents, refund.VATCents,
		refund.PaymentMethod, nullIfEmpty(refund.ShiftID), refund.CreatedBy, refund.CreatedAt); err != nil {
		return nil, nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	tx, err := s.FindTransactionByID(ctx, refund.OriginalTransactionID)
	if err != nil {
		return nil, nil, err
	}
	return &refund, tx, nil
}

func (s *Store) ListRefunds(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Refund, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, original_transaction_id, reason, amount_cents, vat_cents, payment_method,
			COALESCE(shift_id,''), created_by, created_at
		FROM refunds
		WHERE ($1 = '' OR store_id = $1)
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC
	`, storeID, optionalTime(from), optionalTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Refund, 0, 16)
	for rows.Next() {
		var r domain.Refund
		if err := rows.Scan(&r.ID, &r.StoreID, &r.OriginalTransactionID, &r.Reason, &r.AmountCents, &r.VATCents, &r.PaymentMethod,
			&r.ShiftID, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}

const shiftColumns = `id, store_id, terminal_id, cashier_username, opening_float_cents, closing_cash_cents,
	expected_cash_cents, variance_cents, notes, status, opened_at, closed_at`

func scanShift(row interface{ Scan(...any) error }) (domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.StoreID, &shift.TerminalID, &shift.CashierUsername, &shift.OpeningFloatCents, &shift.ClosingCashCents,
		&shift.ExpectedCashCents, &shift.VarianceCents, &shift.Notes, &shift.Status, &shift.OpenedAt, &closedAt)
	shift.OpenedAt = shift.OpenedAt.UTC()
	shift.ClosedAt = timePtr(closedAt)
	return shift, err
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.TerminalID) == "" || shift.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, store_id, terminal_id, cashier_username, opening_float_cents, status, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, shift.ID, shift.StoreID, shift.TerminalID, shift.CashierUsername, shift.OpeningFloatCents, shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, storeID string, terminalID string, closing domain.ShiftClose) (*domain.Shift, error) {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(terminalID) == "" || closing.ClosingCashCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	closedAt := closing.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET status = $3, closing_cash_cents = $4, expected_cash_cents = $5, variance_cents = $4 - $5,
			notes = $6, closed_at = $7
		WHERE store_id = $1 AND terminal_id = $2 AND status = 'open'
		RETURNING `+shiftColumns,
		storeID, terminalID, domain.ShiftStatusClosed, closing.ClosingCashCents, closing.ExpectedCashCents, closing.Notes, closedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE store_id = $1 AND terminal_id = $2 AND status = 'open'
	`, storeID, terminalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}
