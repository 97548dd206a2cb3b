package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

const (
	DefaultMaxAttempts  = 5
	DefaultPollInterval = 5 * time.Second
	retryBaseDelay      = 2 * time.Second
	retryMaxDelay       = 5 * time.Minute
	// retryLease is how long a job may sit in processing before another poll
	// takes it over.
	retryLease = 2 * time.Minute
)

// RetryRepository persists retry jobs and resolves their transactions.
type RetryRepository interface {
	SaveRetryJob(ctx context.Context, job domain.RetryJob) (*domain.RetryJob, error)
	GetRetryJobByTransaction(ctx context.Context, transactionID string) (*domain.RetryJob, error)
	ListRetryJobs(ctx context.Context, status string, dueBefore time.Time, limit int) ([]domain.RetryJob, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

// Backoff is the wait before attempt n (1-based): 2s doubled per attempt,
// capped at five minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

type RetryQueue struct {
	repo        RetryRepository
	deductor    *Deductor
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewRetryQueue(repo RetryRepository, deductor *Deductor, maxAttempts int, interval time.Duration, logger logrus.FieldLogger) *RetryQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RetryQueue{
		repo:        repo,
		deductor:    deductor,
		maxAttempts: maxAttempts,
		interval:    interval,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.WithField("component", "deduction-retry"),
	}
}

// Enqueue schedules a failed deduction for its first retry.
func (q *RetryQueue) Enqueue(ctx context.Context, tx domain.Transaction, cause error) (*domain.RetryJob, error) {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	job, err := q.repo.SaveRetryJob(ctx, domain.RetryJob{
		TransactionID: tx.ID,
		StoreID:       tx.StoreID,
		Status:        domain.RetryPending,
		LastError:     lastError,
		NextAttemptAt: q.now().Add(Backoff(1)),
	})
	if err != nil {
		return nil, err
	}
	q.log.WithFields(logrus.Fields{"transaction_id": tx.ID, "store_id": tx.StoreID}).Warn("inventory deduction queued for retry")
	return job, nil
}

// RetryNow re-queues the job of a transaction for immediate processing,
// resetting its attempt count.
func (q *RetryQueue) RetryNow(ctx context.Context, transactionID string) (*domain.RetryJob, error) {
	job, err := q.repo.GetRetryJobByTransaction(ctx, transactionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		tx, txErr := q.repo.FindTransactionByID(ctx, transactionID)
		if txErr != nil {
			return nil, txErr
		}
		job = &domain.RetryJob{TransactionID: tx.ID, StoreID: tx.StoreID}
	}
	if job.Status == domain.RetryCompleted {
		return job, nil
	}
	job.Status = domain.RetryPending
	job.Attempts = 0
	job.NextAttemptAt = q.now()
	return q.repo.SaveRetryJob(ctx, *job)
}

// RunOnce processes every due job, including processing jobs whose lease
// expired, and returns how many were attempted.
func (q *RetryQueue) RunOnce(ctx context.Context) (int, error) {
	now := q.now()
	jobs, err := q.repo.ListRetryJobs(ctx, domain.RetryPending, now, 50)
	if err != nil {
		return 0, err
	}
	stale, err := q.repo.ListRetryJobs(ctx, domain.RetryProcessing, now, 50)
	if err != nil {
		return 0, err
	}
	for _, job := range stale {
		q.log.WithField("transaction_id", job.TransactionID).Warn("retry job lease expired, taking over")
	}
	jobs = append(jobs, stale...)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := q.process(ctx, job); err != nil {
			q.log.WithError(err).WithField("transaction_id", job.TransactionID).Warn("retry job bookkeeping failed")
		}
	}
	return len(jobs), nil
}

func (q *RetryQueue) process(ctx context.Context, job domain.RetryJob) error {
	logger := q.log.WithFields(logrus.Fields{"transaction_id": job.TransactionID, "store_id": job.StoreID})

	// While processing, NextAttemptAt is the lease deadline.
	job.Status = domain.RetryProcessing
	job.NextAttemptAt = q.now().Add(retryLease)
	if _, err := q.repo.SaveRetryJob(ctx, job); err != nil {
		return err
	}

	tx, err := q.repo.FindTransactionByID(ctx, job.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			job.Status = domain.RetryFailed
			job.LastError = "transaction not found"
			_, err = q.repo.SaveRetryJob(ctx, job)
			return err
		}
		return q.reschedule(ctx, logger, job, fmt.Errorf("load transaction: %w", err))
	}
	if tx.Status == domain.TxStatusVoided {
		job.Status = domain.RetryCompleted
		job.LastError = "transaction voided"
		_, err = q.repo.SaveRetryJob(ctx, job)
		return err
	}

	result, deductErr := q.deductor.DeductTransaction(ctx, *tx)
	if deductErr != nil {
		return q.reschedule(ctx, logger, job, deductErr)
	}
	job.Attempts++
	if result.Status == domain.DeductionFailed {
		// Mapping errors will not fix themselves on another attempt.
		job.Status = domain.RetryFailed
		job.LastError = firstOr(result.Errors, "deduction failed")
		q.audit(ctx, job)
	} else {
		job.Status = domain.RetryCompleted
		job.LastError = ""
		logger.WithField("attempts", job.Attempts).Info("inventory deduction retry succeeded")
	}
	_, err = q.repo.SaveRetryJob(ctx, job)
	return err
}

// reschedule counts a failed attempt and either backs off or gives up.
func (q *RetryQueue) reschedule(ctx context.Context, logger logrus.FieldLogger, job domain.RetryJob, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()
	if job.Attempts >= q.maxAttempts {
		job.Status = domain.RetryFailed
		logger.WithError(cause).Error("inventory deduction retries exhausted")
		q.audit(ctx, job)
	} else {
		job.Status = domain.RetryPending
		job.NextAttemptAt = q.now().Add(Backoff(job.Attempts + 1))
		logger.WithError(cause).WithField("attempts", job.Attempts).Warn("inventory deduction retry failed")
	}
	_, err := q.repo.SaveRetryJob(ctx, job)
	return err
}

func (q *RetryQueue) audit(ctx context.Context, job domain.RetryJob) {
	entry := domain.AuditLog{
		StoreID:       job.StoreID,
		ActorUsername: "system",
		ActorRole:     "system",
		Action:        "inventory.deduction_failed",
		EntityType:    "transaction",
		EntityID:      job.TransactionID,
		Detail:        fmt.Sprintf("attempts=%d error=%s", job.Attempts, job.LastError),
	}
	if err := q.repo.CreateAuditLog(ctx, entry); err != nil {
		q.log.WithError(err).Warn("failed to write audit log")
	}
}

// Start polls for due jobs until ctx is cancelled.
func (q *RetryQueue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	q.log.WithField("interval", q.interval.String()).Info("deduction retry worker started")
	for {
		select {
		case <-ctx.Done():
			q.log.Info("deduction retry worker stopped")
			return
		case <-ticker.C:
			if _, err := q.RunOnce(ctx); err != nil && ctx.Err() == nil {
				q.log.WithError(err).Warn("deduction retry poll failed")
			}
		}
	}
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
