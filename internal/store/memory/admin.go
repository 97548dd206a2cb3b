package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

func (s *Store) GetLastZReading(_ context.Context, storeID string, terminalID string) (*domain.ZReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.ZReading
	for i := range s.zReadings {
		r := &s.zReadings[i]
		if r.StoreID != storeID || r.TerminalID != terminalID {
			continue
		}
		if last == nil || r.ResetCounter > last.ResetCounter {
			last = r
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	dup := cloneZReading(*last)
	return &dup, nil
}

// CreateZReading persists an end-of-day reading. Only one reading per
// store, terminal and business date is allowed.
func (s *Store) CreateZReading(_ context.Context, reading domain.ZReading) (*domain.ZReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reading.StoreID == "" || reading.BusinessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.zReadings {
		if existing.StoreID == reading.StoreID && existing.TerminalID == reading.TerminalID && existing.BusinessDate == reading.BusinessDate {
			return nil, store.ErrConflict
		}
	}
	if reading.ID == "" {
		reading.ID = xid.New("zread")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	s.zReadings = append(s.zReadings, cloneZReading(reading))
	saved := cloneZReading(reading)
	return &saved, nil
}

func (s *Store) ListZReadings(_ context.Context, storeID string, limit int) ([]domain.ZReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ZReading, 0, len(s.zReadings))
	for _, r := range s.zReadings {
		if storeID != "" && r.StoreID != storeID {
			continue
		}
		result = append(result, cloneZReading(r))
	}
	slices.SortFunc(result, func(a, b domain.ZReading) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SaveRetryJob inserts or replaces the retry job of a transaction.
func (s *Store) SaveRetryJob(_ context.Context, job domain.RetryJob) (*domain.RetryJob, error) {
	if job.TransactionID == "" {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.retryJobsByTx[job.TransactionID]; ok {
		job.ID = existing.ID
		job.CreatedAt = existing.CreatedAt
	}
	if job.ID == "" {
		job.ID = xid.New("retry")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.retryJobsByTx[job.TransactionID] = job
	saved := job
	return &saved, nil
}

func (s *Store) GetRetryJobByTransaction(_ context.Context, transactionID string) (*domain.RetryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.retryJobsByTx[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &job, nil
}

// ListRetryJobs returns jobs with status due at or before dueBefore, oldest
// due first. A zero dueBefore disables the due filter.
func (s *Store) ListRetryJobs(_ context.Context, status string, dueBefore time.Time, limit int) ([]domain.RetryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RetryJob, 0, len(s.retryJobsByTx))
	for _, job := range s.retryJobsByTx {
		if status != "" && job.Status != status {
			continue
		}
		if !dueBefore.IsZero() && job.NextAttemptAt.After(dueBefore) {
			continue
		}
		result = append(result, job)
	}
	slices.SortFunc(result, func(a, b domain.RetryJob) int {
		if a.NextAttemptAt.Equal(b.NextAttemptAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.NextAttemptAt.Before(b.NextAttemptAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.users[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	user.StoreIDs = slices.Clone(user.StoreIDs)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		user.StoreIDs = slices.Clone(user.StoreIDs)
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func cloneZReading(src domain.ZReading) domain.ZReading {
	dup := src
	dup.Summary.ByPayment = slices.Clone(src.Summary.ByPayment)
	return dup
}
