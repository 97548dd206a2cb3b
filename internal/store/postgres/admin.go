package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

const zReadingColumns = `id, store_id, terminal_id, business_date, reset_counter,
	beginning_grand_total_cents, ending_grand_total_cents, summary, created_by, created_at`

func scanZReading(row interface{ Scan(...any) error }) (domain.ZReading, error) {
	var r domain.ZReading
	var raw []byte
	if err := row.Scan(&r.ID, &r.StoreID, &r.TerminalID, &r.BusinessDate, &r.ResetCounter,
		&r.BeginningGrandTotalCents, &r.EndingGrandTotalCents, &raw, &r.CreatedBy, &r.CreatedAt); err != nil {
		return r, err
	}
	if err := json.Unmarshal(raw, &r.Summary); err != nil {
		return r, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *Store) GetLastZReading(ctx context.Context, storeID string, terminalID string) (*domain.ZReading, error) {
	r, err := scanZReading(s.db.QueryRowContext(ctx, `
		SELECT `+zReadingColumns+`
		FROM z_readings
		WHERE store_id = $1 AND terminal_id = $2
		ORDER BY reset_counter DESC
		LIMIT 1
	`, storeID, terminalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateZReading(ctx context.Context, reading domain.ZReading) (*domain.ZReading, error) {
	if reading.StoreID == "" || reading.BusinessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	if reading.ID == "" {
		reading.ID = xid.New("zread")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(reading.Summary)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO z_readings (`+zReadingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, reading.ID, reading.StoreID, reading.TerminalID, reading.BusinessDate, reading.ResetCounter,
		reading.BeginningGrandTotalCents, reading.EndingGrandTotalCents, raw, reading.CreatedBy, reading.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &reading, nil
}

func (s *Store) ListZReadings(ctx context.Context, storeID string, limit int) ([]domain.ZReading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+zReadingColumns+`
		FROM z_readings
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ZReading, 0, 16)
	for rows.Next() {
		r, err := scanZReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

const retryJobColumns = `id, transaction_id, store_id, status, attempts, last_error, next_attempt_at, created_at, updated_at`

func scanRetryJob(row interface{ Scan(...any) error }) (domain.RetryJob, error) {
	var job domain.RetryJob
	err := row.Scan(&job.ID, &job.TransactionID, &job.StoreID, &job.Status, &job.Attempts, &job.LastError,
		&job.NextAttemptAt, &job.CreatedAt, &job.UpdatedAt)
	job.NextAttemptAt = job.NextAttemptAt.UTC()
	return job, err
}

// SaveRetryJob upserts by transaction; the first insert keeps its id.
func (s *Store) SaveRetryJob(ctx context.Context, job domain.RetryJob) (*domain.RetryJob, error) {
	if job.TransactionID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if job.ID == "" {
		job.ID = xid.New("retry")
	}
	saved, err := scanRetryJob(s.db.QueryRowContext(ctx, `
		INSERT INTO deduction_retry_jobs (id, transaction_id, store_id, status, attempts, last_error, next_attempt_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		ON CONFLICT (transaction_id) DO UPDATE
		SET status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			next_attempt_at = EXCLUDED.next_attempt_at,
			updated_at = now()
		RETURNING `+retryJobColumns,
		job.ID, job.TransactionID, job.StoreID, job.Status, job.Attempts, job.LastError, job.NextAttemptAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetRetryJobByTransaction(ctx context.Context, transactionID string) (*domain.RetryJob, error) {
	job, err := scanRetryJob(s.db.QueryRowContext(ctx, `
		SELECT `+retryJobColumns+` FROM deduction_retry_jobs WHERE transaction_id = $1
	`, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *Store) ListRetryJobs(ctx context.Context, status string, dueBefore time.Time, limit int) ([]domain.RetryJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+retryJobColumns+`
		FROM deduction_retry_jobs
		WHERE ($1 = '' OR status = $1) AND ($2::timestamptz IS NULL OR next_attempt_at <= $2)
		ORDER BY next_attempt_at ASC, id ASC
		LIMIT $3
	`, status, optionalTime(dueBefore), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.RetryJob, 0, 16)
	for rows.Next() {
		job, err := scanRetryJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, optionalTime(from), optionalTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.StoreID, &e.ActorUsername, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.StoreIDs == nil {
		user.StoreIDs = []string{}
	}
	storeIDs, err := json.Marshal(user.StoreIDs)
	if err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, store_ids, active, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, username, user.Password, user.Role, storeIDs, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, store_ids, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var raw []byte
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &raw, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &user.StoreIDs); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password_hash = $2 WHERE username = $1`, username, password)
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
