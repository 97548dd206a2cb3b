package bir

import (
	"slices"
	"time"

	"crofflepos/internal/domain"
)

const (
	KindX = "X"
	KindZ = "Z"
)

// ReadingScope names what a reading covers.
type ReadingScope struct {
	Kind            string
	TerminalID      string
	ShiftID         string
	CashierUsername string
	From            time.Time
	To              time.Time
}

// BuildReading summarizes transactions and refunds for a store. Voided
// sales are counted separately and excluded from the sales totals.
func BuildReading(st domain.Store, scope ReadingScope, txs []domain.Transaction, refunds []domain.Refund, now time.Time) domain.ReadingSummary {
	summary := domain.ReadingSummary{
		Kind:            scope.Kind,
		StoreID:         st.ID,
		StoreName:       st.Name,
		TIN:             st.TIN,
		MachineSerial:   st.MachineSerial,
		PermitNumber:    st.PermitNumber,
		TerminalID:      scope.TerminalID,
		ShiftID:         scope.ShiftID,
		CashierUsername: scope.CashierUsername,
		From:            scope.From,
		To:              scope.To,
		ByPayment:       []domain.PaymentBreakdown{},
		GeneratedAt:     now,
	}

	ordered := slices.Clone(txs)
	slices.SortFunc(ordered, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			switch {
			case a.ReceiptNumber < b.ReceiptNumber:
				return -1
			case a.ReceiptNumber > b.ReceiptNumber:
				return 1
			}
			return 0
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(ordered) > 0 {
		summary.BeginningReceipt = ordered[0].ReceiptNumber
		summary.EndingReceipt = ordered[len(ordered)-1].ReceiptNumber
	}

	payments := map[string]*domain.PaymentBreakdown{}
	var paymentOrder []string
	addPayment := func(method string, cents int64) {
		p, ok := payments[method]
		if !ok {
			p = &domain.PaymentBreakdown{PaymentMethod: method}
			payments[method] = p
			paymentOrder = append(paymentOrder, method)
		}
		p.Transactions++
		p.TotalCents += cents
	}

	var salesTotal int64
	for _, tx := range ordered {
		if tx.Status == domain.TxStatusVoided {
			summary.VoidCount++
			summary.VoidCents += tx.TotalCents
			continue
		}
		summary.TransactionCount++
		summary.GrossSalesCents += tx.GrossCents
		summary.VATableSalesCents += tx.VATableSalesCents
		summary.VATCents += tx.VATCents
		summary.VATExemptCents += tx.VATExemptCents
		summary.ZeroRatedCents += tx.ZeroRatedCents
		addDiscount(&summary.Discounts, tx.DiscountType, tx.DiscountCents)
		salesTotal += tx.TotalCents

		if len(tx.PaymentSplits) > 0 {
			for _, split := range tx.PaymentSplits {
				addPayment(split.Method, split.AmountCents)
			}
		} else {
			addPayment(tx.PaymentMethod, tx.TotalCents)
		}
	}
	for _, method := range paymentOrder {
		summary.ByPayment = append(summary.ByPayment, *payments[method])
	}

	for _, r := range refunds {
		summary.RefundCount++
		summary.RefundCents += r.AmountCents
		summary.RefundVATCents += r.VATCents
	}
	summary.NetSalesCents = salesTotal - summary.RefundCents
	return summary
}

func addDiscount(d *domain.DiscountBreakdown, discountType string, cents int64) {
	if cents == 0 {
		return
	}
	switch discountType {
	case domain.DiscountSenior:
		d.SeniorCents += cents
	case domain.DiscountPWD:
		d.PWDCents += cents
	case domain.DiscountNAAC:
		d.NAACCents += cents
	case domain.DiscountSoloParent:
		d.SoloParentCents += cents
	case domain.DiscountEmployee:
		d.EmployeeCents += cents
	default:
		d.OtherCents += cents
	}
}

// NextZReading chains a new Z reading onto the previous one of the same
// terminal: the reset counter increments and the grand total carries over.
func NextZReading(prev *domain.ZReading, summary domain.ReadingSummary, businessDate string, createdBy string) domain.ZReading {
	z := domain.ZReading{
		StoreID:      summary.StoreID,
		TerminalID:   summary.TerminalID,
		BusinessDate: businessDate,
		ResetCounter: 1,
		Summary:      summary,
		CreatedBy:    createdBy,
		CreatedAt:    summary.GeneratedAt,
	}
	if prev != nil {
		z.ResetCounter = prev.ResetCounter + 1
		z.BeginningGrandTotalCents = prev.EndingGrandTotalCents
	}
	z.EndingGrandTotalCents = z.BeginningGrandTotalCents + summary.NetSalesCents
	return z
}
