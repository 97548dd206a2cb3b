package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/bir"
	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

const topProductLimit = 10

func (s *Service) SalesReport(ctx context.Context, storeID string, fromDate string, toDate string) (domain.SalesReport, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.SalesReport{}, err
	}
	from, to, err := s.dateRange(fromDate, toDate)
	if err != nil {
		return domain.SalesReport{}, err
	}
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{StoreID: storeID, From: from, To: to})
	if err != nil {
		return domain.SalesReport{}, err
	}
	refunds, err := s.repo.ListRefunds(ctx, storeID, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		StoreID:     storeID,
		From:        from.Format("2006-01-02"),
		To:          to.AddDate(0, 0, -1).Format("2006-01-02"),
		ByPayment:   []domain.PaymentBreakdown{},
		ByOrderType: []domain.GroupTotal{},
		ByCashier:   []domain.GroupTotal{},
		TopProducts: []domain.ProductSales{},
	}

	payments := map[string]*domain.PaymentBreakdown{}
	orderTypes := map[string]*domain.GroupTotal{}
	cashiers := map[string]*domain.GroupTotal{}
	products := map[string]*domain.ProductSales{}
	var salesTotal int64

	for _, tx := range txs {
		if tx.Status == domain.TxStatusVoided {
			report.VoidCount++
			report.VoidCents += tx.TotalCents
			continue
		}
		report.Transactions++
		report.GrossSalesCents += tx.GrossCents
		report.DiscountCents += tx.DiscountCents
		report.VATableSalesCents += tx.VATableSalesCents
		report.VATCents += tx.VATCents
		report.VATExemptCents += tx.VATExemptCents
		salesTotal += tx.TotalCents

		if len(tx.PaymentSplits) > 0 {
			for _, split := range tx.PaymentSplits {
				addPaymentTotal(payments, split.Method, split.AmountCents)
			}
		} else {
			addPaymentTotal(payments, tx.PaymentMethod, tx.TotalCents)
		}
		addGroupTotal(orderTypes, tx.OrderType, tx.TotalCents)
		addGroupTotal(cashiers, tx.CashierUsername, tx.TotalCents)

		for _, line := range tx.Items {
			p, ok := products[line.ProductID]
			if !ok {
				p = &domain.ProductSales{ProductID: line.ProductID, Name: line.Name}
				products[line.ProductID] = p
			}
			p.Qty += int64(line.Qty)
			p.TotalCents += line.LineTotalCents
		}
	}
	for _, r := range refunds {
		report.RefundCents += r.AmountCents
	}
	report.NetSalesCents = salesTotal - report.RefundCents

	for _, p := range payments {
		report.ByPayment = append(report.ByPayment, *p)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.PaymentBreakdown) int {
		return cmp.Or(cmp.Compare(b.TotalCents, a.TotalCents), strings.Compare(a.PaymentMethod, b.PaymentMethod))
	})
	report.ByOrderType = sortedGroups(orderTypes)
	report.ByCashier = sortedGroups(cashiers)

	for _, p := range products {
		report.TopProducts = append(report.TopProducts, *p)
	}
	slices.SortFunc(report.TopProducts, func(a, b domain.ProductSales) int {
		return cmp.Or(cmp.Compare(b.Qty, a.Qty), cmp.Compare(b.TotalCents, a.TotalCents), strings.Compare(a.Name, b.Name))
	})
	if len(report.TopProducts) > topProductLimit {
		report.TopProducts = report.TopProducts[:topProductLimit]
	}
	return report, nil
}

func addPaymentTotal(m map[string]*domain.PaymentBreakdown, method string, cents int64) {
	p, ok := m[method]
	if !ok {
		p = &domain.PaymentBreakdown{PaymentMethod: method}
		m[method] = p
	}
	p.Transactions++
	p.TotalCents += cents
}

func addGroupTotal(m map[string]*domain.GroupTotal, key string, cents int64) {
	g, ok := m[key]
	if !ok {
		g = &domain.GroupTotal{Key: key}
		m[key] = g
	}
	g.Transactions++
	g.TotalCents += cents
}

func sortedGroups(m map[string]*domain.GroupTotal) []domain.GroupTotal {
	groups := make([]domain.GroupTotal, 0, len(m))
	for _, g := range m {
		groups = append(groups, *g)
	}
	slices.SortFunc(groups, func(a, b domain.GroupTotal) int {
		return cmp.Or(cmp.Compare(b.TotalCents, a.TotalCents), strings.Compare(a.Key, b.Key))
	})
	return groups
}

// InventoryReport values every item at its weighted unit cost.
func (s *Service) InventoryReport(ctx context.Context, storeID string) (domain.InventoryReport, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.InventoryReport{}, err
	}
	items, err := s.repo.ListInventoryItems(ctx, storeID)
	if err != nil {
		return domain.InventoryReport{}, err
	}

	report := domain.InventoryReport{
		StoreID:     storeID,
		GeneratedAt: s.now().Format(time.RFC3339),
		Items:       make([]domain.InventoryReportLine, 0, len(items)),
	}
	for _, item := range items {
		line := domain.InventoryReportLine{
			InventoryItem: item,
			IsLow:         item.Active && item.IsLowStock(),
		}
		if item.Stock.IsPositive() {
			line.ValueCents = item.Stock.Mul(item.CostPerUnitCents).Round(0).IntPart()
		}
		if line.IsLow {
			report.LowStockCount++
		}
		report.TotalValueCents += line.ValueCents
		report.Items = append(report.Items, line)
	}
	return report, nil
}

// ProfitLoss nets VAT-exclusive revenue against ingredient cost and expenses.
// Cost of goods comes from sale movements at the unit cost recorded on each,
// less anything returned to stock by voids.
func (s *Service) ProfitLoss(ctx context.Context, storeID string, fromDate string, toDate string) (domain.ProfitLossReport, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return domain.ProfitLossReport{}, err
	}
	from, to, err := s.dateRange(fromDate, toDate)
	if err != nil {
		return domain.ProfitLossReport{}, err
	}

	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{StoreID: storeID, From: from, To: to})
	if err != nil {
		return domain.ProfitLossReport{}, err
	}
	refunds, err := s.repo.ListRefunds(ctx, storeID, from, to)
	if err != nil {
		return domain.ProfitLossReport{}, err
	}
	movements, err := s.repo.ListMovements(ctx, domain.MovementFilter{StoreID: storeID, From: from, To: to})
	if err != nil {
		return domain.ProfitLossReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, storeID, from, to)
	if err != nil {
		return domain.ProfitLossReport{}, err
	}

	report := domain.ProfitLossReport{
		StoreID:            storeID,
		From:               from.Format("2006-01-02"),
		To:                 to.AddDate(0, 0, -1).Format("2006-01-02"),
		ExpensesByCategory: []domain.GroupTotal{},
	}
	for _, tx := range txs {
		if tx.Status == domain.TxStatusVoided {
			continue
		}
		report.GrossSalesCents += tx.TotalCents
		report.VATCents += tx.VATCents
	}
	var refundVAT int64
	for _, r := range refunds {
		report.RefundCents += r.AmountCents
		refundVAT += r.VATCents
	}
	report.RevenueCents = report.GrossSalesCents - report.VATCents - (report.RefundCents - refundVAT)

	cogs := decimal.Zero
	for _, mv := range movements {
		switch mv.MovementType {
		case domain.MovementSale:
			cogs = cogs.Add(mv.Quantity.Neg().Mul(mv.UnitCostCents))
		case domain.MovementVoidReturn:
			cogs = cogs.Sub(mv.Quantity.Mul(mv.UnitCostCents))
		}
	}
	report.COGSCents = cogs.Round(0).IntPart()
	report.GrossProfitCents = report.RevenueCents - report.COGSCents

	categories := map[string]*domain.GroupTotal{}
	for _, e := range expenses {
		report.ExpensesCents += e.AmountCents
		addGroupTotal(categories, e.Category, e.AmountCents)
	}
	report.ExpensesByCategory = sortedGroups(categories)
	report.NetProfitCents = report.GrossProfitCents - report.ExpensesCents
	if report.RevenueCents > 0 {
		margin := decimal.NewFromInt(report.GrossProfitCents * 100).Div(decimal.NewFromInt(report.RevenueCents)).Round(2)
		report.GrossMarginPercent = margin.InexactFloat64()
	}
	return report, nil
}

// XReadingRequest scopes a mid-day reading to a terminal, a shift, or the
// whole store.
type XReadingRequest struct {
	StoreID    string
	TerminalID string
	ShiftID    string
	Date       string
}

// XReading summarizes sales so far without resetting anything.
func (s *Service) XReading(ctx context.Context, req XReadingRequest) (domain.ReadingSummary, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	if _, err := s.authorize(ctx, req.StoreID, cashierRoles...); err != nil {
		return domain.ReadingSummary{}, err
	}
	st, err := s.repo.GetStore(ctx, req.StoreID)
	if err != nil {
		return domain.ReadingSummary{}, err
	}

	scope := bir.ReadingScope{Kind: bir.KindX, TerminalID: strings.TrimSpace(req.TerminalID)}
	filter := domain.TransactionFilter{StoreID: req.StoreID, TerminalID: scope.TerminalID}
	if shiftID := strings.TrimSpace(req.ShiftID); shiftID != "" {
		shift, err := s.repo.GetShift(ctx, shiftID)
		if err != nil {
			return domain.ReadingSummary{}, err
		}
		if shift.StoreID != req.StoreID {
			return domain.ReadingSummary{}, store.ErrNotFound
		}
		scope.ShiftID = shift.ID
		scope.TerminalID = shift.TerminalID
		scope.CashierUsername = shift.CashierUsername
		scope.From = shift.OpenedAt
		scope.To = s.now()
		if shift.ClosedAt != nil {
			scope.To = *shift.ClosedAt
		}
		filter = domain.TransactionFilter{StoreID: req.StoreID, ShiftID: shift.ID}
	} else {
		scope.From, scope.To, err = s.businessDay(req.Date)
		if err != nil {
			return domain.ReadingSummary{}, err
		}
		filter.From, filter.To = scope.From, scope.To
	}

	txs, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return domain.ReadingSummary{}, err
	}
	refunds, err := s.scopedRefunds(ctx, req.StoreID, scope)
	if err != nil {
		return domain.ReadingSummary{}, err
	}
	return bir.BuildReading(*st, scope, txs, refunds, s.now()), nil
}

// scopedRefunds returns refunds paid within the scope window, narrowed to the
// scope's shift or terminal when it names one.
func (s *Service) scopedRefunds(ctx context.Context, storeID string, scope bir.ReadingScope) ([]domain.Refund, error) {
	refunds, err := s.repo.ListRefunds(ctx, storeID, scope.From, scope.To)
	if err != nil {
		return nil, err
	}
	if scope.ShiftID == "" && scope.TerminalID == "" {
		return refunds, nil
	}

	terminals := map[string]string{}
	scoped := make([]domain.Refund, 0, len(refunds))
	for _, r := range refunds {
		if scope.ShiftID != "" {
			if r.ShiftID == scope.ShiftID {
				scoped = append(scoped, r)
			}
			continue
		}
		if r.ShiftID == "" {
			continue
		}
		terminal, ok := terminals[r.ShiftID]
		if !ok {
			shift, err := s.repo.GetShift(ctx, r.ShiftID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			if shift != nil {
				terminal = shift.TerminalID
			}
			terminals[r.ShiftID] = terminal
		}
		if terminal == scope.TerminalID {
			scoped = append(scoped, r)
		}
	}
	return scoped, nil
}

// CreateZReading closes a terminal's business day. Each terminal gets one Z
// reading per date, chained to the previous one by reset counter and grand
// total.
func (s *Service) CreateZReading(ctx context.Context, storeID string, terminalID string, date string) (domain.ZReading, error) {
	storeID = s.storeOrDefault(storeID)
	actor, err := s.authorize(ctx, storeID, managerRoles...)
	if err != nil {
		return domain.ZReading{}, err
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.ZReading{}, fmt.Errorf("%w: terminal required", store.ErrInvalidTransaction)
	}
	st, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return domain.ZReading{}, err
	}
	from, to, err := s.businessDay(date)
	if err != nil {
		return domain.ZReading{}, err
	}

	scope := bir.ReadingScope{Kind: bir.KindZ, TerminalID: terminalID, From: from, To: to}
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{StoreID: storeID, TerminalID: terminalID, From: from, To: to})
	if err != nil {
		return domain.ZReading{}, err
	}
	refunds, err := s.scopedRefunds(ctx, storeID, scope)
	if err != nil {
		return domain.ZReading{}, err
	}
	summary := bir.BuildReading(*st, scope, txs, refunds, s.now())

	prev, err := s.repo.GetLastZReading(ctx, storeID, terminalID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.ZReading{}, err
		}
		prev = nil
	}
	businessDate := from.Format("2006-01-02")
	if prev != nil && prev.BusinessDate >= businessDate {
		return domain.ZReading{}, fmt.Errorf("%w: z reading for %s already taken on or after %s", store.ErrConflict, terminalID, prev.BusinessDate)
	}

	saved, err := s.repo.CreateZReading(ctx, bir.NextZReading(prev, summary, businessDate, actor.Username))
	if err != nil {
		return domain.ZReading{}, err
	}
	s.logAudit(ctx, storeID, "z_reading", "z_reading", saved.ID, fmt.Sprintf(
		"terminal=%s,date=%s,reset=%d,net=%d,grand_total=%d",
		saved.TerminalID, saved.BusinessDate, saved.ResetCounter, saved.Summary.NetSalesCents, saved.EndingGrandTotalCents,
	))
	return *saved, nil
}

func (s *Service) ListZReadings(ctx context.Context, storeID string, limit int) ([]domain.ZReading, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, managerRoles...); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 31
	}
	return s.repo.ListZReadings(ctx, storeID, limit)
}

// GetZReading finds a stored reading among the store's recent history.
func (s *Service) GetZReading(ctx context.Context, storeID string, id string) (domain.ZReading, error) {
	readings, err := s.ListZReadings(ctx, storeID, 366)
	if err != nil {
		return domain.ZReading{}, err
	}
	for _, r := range readings {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ZReading{}, store.ErrNotFound
}
