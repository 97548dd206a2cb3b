package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"crofflepos/internal/domain"
)

// SalesReader lists the transactions a reconciliation walks.
type SalesReader interface {
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	ListInventoryItems(ctx context.Context, storeID string) ([]domain.InventoryItem, error)
}

type Reconciler struct {
	sales    SalesReader
	deductor *Deductor
	log      logrus.FieldLogger
}

func NewReconciler(sales SalesReader, deductor *Deductor, logger logrus.FieldLogger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{
		sales:    sales,
		deductor: deductor,
		log:      logger.WithField("component", "reconciler"),
	}
}

// BusinessDay returns the [start, end) bounds of the calendar day holding
// date, in date's location.
func BusinessDay(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// ReconcileDay re-runs deduction for every paid transaction of the day whose
// deduction never completed.
func (r *Reconciler) ReconcileDay(ctx context.Context, storeID string, date time.Time) (domain.ReconciliationReport, error) {
	from, to := BusinessDay(date)
	report := domain.ReconciliationReport{
		StoreID: storeID,
		Date:    from.Format("2006-01-02"),
		Errors:  []string{},
	}

	txs, err := r.sales.ListTransactions(ctx, domain.TransactionFilter{
		StoreID: storeID,
		Status:  domain.TxStatusPaid,
		From:    from,
		To:      to,
	})
	if err != nil {
		return report, err
	}
	report.TotalTransactions = len(txs)

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if tx.DeductionStatus == domain.DeductionComplete {
			report.AlreadyComplete++
			continue
		}
		result, err := r.deductor.DeductTransaction(ctx, tx)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", tx.ReceiptNumber, err))
			continue
		}
		if result.Status == domain.DeductionFailed {
			report.Failed++
			for _, msg := range result.Errors {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", tx.ReceiptNumber, msg))
			}
			continue
		}
		report.Processed++
		report.Deductions += len(result.Deductions)
	}

	report.Summary = fmt.Sprintf("Processed %d/%d transactions, %d inventory deductions",
		report.Processed, report.TotalTransactions-report.AlreadyComplete, report.Deductions)
	r.log.WithFields(logrus.Fields{
		"store_id": storeID,
		"date":     report.Date,
		"failed":   report.Failed,
	}).Info(report.Summary)
	return report, nil
}

// CheckLevels reports items with negative stock and items at or below their
// low-stock threshold.
func (r *Reconciler) CheckLevels(ctx context.Context, storeID string) (domain.InventoryHealthReport, error) {
	items, err := r.sales.ListInventoryItems(ctx, storeID)
	if err != nil {
		return domain.InventoryHealthReport{}, err
	}

	report := domain.InventoryHealthReport{
		StoreID:       storeID,
		NegativeStock: []domain.StockLevelIssue{},
		LowStock:      []domain.StockLevelIssue{},
		CheckedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	for _, item := range items {
		if !item.Active {
			continue
		}
		report.CheckedItems++
		issue := domain.StockLevelIssue{
			InventoryItemID: item.ID,
			Name:            item.Name,
			Unit:            item.Unit,
			Stock:           item.Stock,
			Threshold:       item.LowStockThreshold(),
		}
		switch {
		case item.Stock.IsNegative():
			report.NegativeStock = append(report.NegativeStock, issue)
		case item.IsLowStock():
			report.LowStock = append(report.LowStock, issue)
		}
	}
	if len(report.NegativeStock) > 0 {
		r.log.WithFields(logrus.Fields{"store_id": storeID, "items": len(report.NegativeStock)}).Error("negative inventory stock detected")
	}
	report.Healthy = len(report.NegativeStock) == 0 && len(report.LowStock) == 0
	return report, nil
}
