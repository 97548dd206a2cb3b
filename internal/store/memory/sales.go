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

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// CreateTransaction stores a priced sale. A repeated idempotency key returns
// the stored transaction instead of creating a second one.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	return s.createTransaction(tx, nil)
}

func (s *Store) CreateNumberedTransaction(_ context.Context, tx domain.Transaction, numbering store.ReceiptNumbering) (*domain.Transaction, error) {
	if numbering.Format == nil {
		return nil, store.ErrInvalidTransaction
	}
	return s.createTransaction(tx, &numbering)
}

func (s *Store) createTransaction(tx domain.Transaction, numbering *store.ReceiptNumbering) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.IdempotencyKey == "" || tx.StoreID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if existing, ok := s.transactionsByIdem[tx.IdempotencyKey]; ok {
		return cloneTransaction(existing), nil
	}
	if len(tx.Items) == 0 || tx.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.stores[tx.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	seqKey, seq := "", 0
	if numbering != nil {
		seqKey = tx.StoreID + "::" + numbering.BusinessDay.Format("20060102")
		seq = s.receiptSeq[seqKey] + 1
		tx.ReceiptNumber = numbering.Format(seq)
	}
	for _, existing := range s.transactionsByID {
		if tx.ReceiptNumber != "" && existing.StoreID == tx.StoreID && existing.ReceiptNumber == tx.ReceiptNumber {
			return nil, store.ErrConflict
		}
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

	if seqKey != "" {
		s.receiptSeq[seqKey] = seq
	}
	txCopy := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = txCopy
	s.transactionsByIdem[tx.IdempotencyKey] = txCopy
	return cloneTransaction(txCopy), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if filter.StoreID != "" && tx.StoreID != filter.StoreID {
			continue
		}
		if filter.TerminalID != "" && tx.TerminalID != filter.TerminalID {
			continue
		}
		if filter.ShiftID != "" && tx.ShiftID != filter.ShiftID {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.DeductionStatus != "" && tx.DeductionStatus != filter.DeductionStatus {
			continue
		}
		if !inRange(tx.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	// Oldest first so receipt ranges read naturally.
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ReceiptNumber, b.ReceiptNumber)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateDeductionStatus(_ context.Context, transactionID string, status string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[transactionID]
	if !ok {
		return store.ErrNotFound
	}
	tx.DeductionStatus = status
	tx.DeductionNote = note
	return nil
}

func (s *Store) VoidTransaction(_ context.Context, id string, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPaid || tx.RefundedCents > 0 {
		return nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tx.Status = domain.TxStatusVoided
	tx.VoidReason = strings.TrimSpace(reason)
	tx.VoidedAt = &at
	return cloneTransaction(tx), nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund) (*domain.Refund, *domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refund.AmountCents < 1 {
		return nil, nil, store.ErrInvalidTransaction
	}
	tx, ok := s.transactionsByID[refund.OriginalTransactionID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPaid {
		return nil, nil, store.ErrInvalidTransaction
	}
	if tx.RefundedCents+refund.AmountCents > tx.TotalCents {
		return nil, nil, store.ErrInvalidTransaction
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	refund.StoreID = tx.StoreID

	tx.RefundedCents += refund.AmountCents
	if tx.RefundedCents >= tx.TotalCents {
		tx.Status = domain.TxStatusRefunded
	}
	s.refundsByID[refund.ID] = refund
	saved := refund
	return &saved, cloneTransaction(tx), nil
}

func (s *Store) ListRefunds(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Refund, 0, len(s.refundsByID))
	for _, refund := range s.refundsByID {
		if storeID != "" && refund.StoreID != storeID {
			continue
		}
		if !inRange(refund.CreatedAt, from, to) {
			continue
		}
		result = append(result, refund)
	}
	slices.SortFunc(result, func(a, b domain.Refund) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.TerminalID) == "" || shift.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.StoreID, shift.TerminalID)
	if _, exists := s.activeShiftByKey[key]; exists {
		return nil, store.ErrConflict
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.ClosingCashCents = 0
	shift.ExpectedCashCents = 0
	shift.VarianceCents = 0

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseActiveShift(_ context.Context, storeID string, terminalID string, closing domain.ShiftClose) (*domain.Shift, error) {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(terminalID) == "" || closing.ClosingCashCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(storeID, terminalID)
	shiftID, exists := s.activeShiftByKey[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	closedAt := closing.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.ClosingCashCents = closing.ClosingCashCents
	shift.ExpectedCashCents = closing.ExpectedCashCents
	shift.VarianceCents = closing.ClosingCashCents - closing.ExpectedCashCents
	shift.Notes = closing.Notes
	shift.ClosedAt = &closedAt

	delete(s.activeShiftByKey, key)
	s.shiftsByID[shiftID] = shift
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByKey[shiftMapKey(storeID, terminalID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	dup.PaymentSplits = slices.Clone(src.PaymentSplits)
	if src.VoidedAt != nil {
		voided := *src.VoidedAt
		dup.VoidedAt = &voided
	}
	return &dup
}
