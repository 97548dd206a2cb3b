package bir

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

func TestCompute(t *testing.T) {
	cases := []struct {
		name          string
		gross         int64
		discount      domain.DiscountInput
		vatRegistered bool
		want          Breakdown
	}{
		{
			name:          "plain sale",
			gross:         25000,
			vatRegistered: true,
			want:          Breakdown{GrossCents: 25000, VATableSalesCents: 22321, VATCents: 2679, TotalCents: 25000},
		},
		{
			name:          "senior whole bill",
			gross:         25000,
			discount:      domain.DiscountInput{Type: domain.DiscountSenior, IDNumber: "SC-1"},
			vatRegistered: true,
			want:          Breakdown{GrossCents: 25000, DiscountCents: 4464, VATExemptCents: 22321, TotalCents: 17857},
		},
		{
			name:          "pwd one of two diners",
			gross:         50000,
			discount:      domain.DiscountInput{Type: domain.DiscountPWD, IDNumber: "PWD-1", DiscountPax: 1, TotalPax: 2},
			vatRegistered: true,
			want:          Breakdown{GrossCents: 50000, DiscountCents: 4464, VATableSalesCents: 22321, VATCents: 2679, VATExemptCents: 22321, TotalCents: 42857},
		},
		{
			name:          "promo percent",
			gross:         25000,
			discount:      domain.DiscountInput{Type: domain.DiscountPromo, Percent: 10},
			vatRegistered: true,
			want:          Breakdown{GrossCents: 25000, DiscountCents: 2500, VATableSalesCents: 20089, VATCents: 2411, TotalCents: 22500},
		},
		{
			name:          "employee fixed amount",
			gross:         12500,
			discount:      domain.DiscountInput{Type: domain.DiscountEmployee, AmountCents: 1500},
			vatRegistered: true,
			want:          Breakdown{GrossCents: 12500, DiscountCents: 1500, VATableSalesCents: 9821, VATCents: 1179, TotalCents: 11000},
		},
		{
			name:  "non-VAT store",
			gross: 25000,
			want:  Breakdown{GrossCents: 25000, VATExemptCents: 25000, TotalCents: 25000},
		},
		{
			name:     "non-VAT store senior",
			gross:    25000,
			discount: domain.DiscountInput{Type: domain.DiscountSenior, IDNumber: "SC-1"},
			want:     Breakdown{GrossCents: 25000, DiscountCents: 5000, VATExemptCents: 25000, TotalCents: 20000},
		},
	}
	for _, tc := range cases {
		got, err := Compute(tc.gross, tc.discount, tc.vatRegistered, 12)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestComputeRejectsInvalidDiscounts(t *testing.T) {
	cases := []domain.DiscountInput{
		{Type: domain.DiscountSenior},
		{Type: domain.DiscountPWD, IDNumber: "x", DiscountPax: 3, TotalPax: 2},
		{Type: domain.DiscountPromo, Percent: 120},
		{Type: domain.DiscountOther, AmountCents: 99999},
		{Type: "birthday"},
	}
	for _, discount := range cases {
		if _, err := Compute(25000, discount, true, 12); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("%+v: expected ErrInvalidTransaction, got %v", discount, err)
		}
	}
}

func TestRefundVATAndReceiptNumber(t *testing.T) {
	if got := RefundVAT(11200, 12); got != 1200 {
		t.Fatalf("expected 1200 VAT in 112.00 refund, got %d", got)
	}
	at := time.Date(2026, 3, 14, 15, 4, 5, 0, time.UTC)
	if got := ReceiptNumber(at, 7); got != "20260314-0007-150405" {
		t.Fatalf("unexpected receipt number %q", got)
	}
}

func sampleReading() (domain.Store, []domain.Transaction, []domain.Refund) {
	st := domain.Store{ID: "main-store", Name: "Croffle Main Branch", TIN: "123-456-789-000", MachineSerial: "MIN-0001"}
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ReceiptNumber: "20260314-0002-100000", Status: domain.TxStatusPaid, PaymentMethod: "gcash", GrossCents: 25000, VATableSalesCents: 22321, VATCents: 2679, TotalCents: 25000, CreatedAt: base.Add(time.Hour)},
		{ReceiptNumber: "20260314-0001-090000", Status: domain.TxStatusPaid, PaymentMethod: "cash", GrossCents: 25000, DiscountType: domain.DiscountSenior, DiscountCents: 4464, VATExemptCents: 22321, TotalCents: 17857, CreatedAt: base},
		{ReceiptNumber: "20260314-0003-110000", Status: domain.TxStatusVoided, PaymentMethod: "cash", GrossCents: 12500, TotalCents: 12500, CreatedAt: base.Add(2 * time.Hour)},
		{ReceiptNumber: "20260314-0004-120000", Status: domain.TxStatusRefunded, PaymentMethod: "split", GrossCents: 11200, VATableSalesCents: 10000, VATCents: 1200, TotalCents: 11200, RefundedCents: 11200, CreatedAt: base.Add(3 * time.Hour),
			PaymentSplits: []domain.PaymentSplit{{Method: "cash", AmountCents: 5000}, {Method: "card", AmountCents: 6200}}},
	}
	refunds := []domain.Refund{{AmountCents: 11200, VATCents: 1200}}
	return st, txs, refunds
}

func TestBuildReading(t *testing.T) {
	st, txs, refunds := sampleReading()
	s := BuildReading(st, ReadingScope{Kind: KindX, TerminalID: "T1"}, txs, refunds, time.Now().UTC())

	if s.BeginningReceipt != "20260314-0001-090000" || s.EndingReceipt != "20260314-0004-120000" {
		t.Fatalf("unexpected receipt range %s..%s", s.BeginningReceipt, s.EndingReceipt)
	}
	if s.TransactionCount != 3 || s.VoidCount != 1 || s.VoidCents != 12500 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.GrossSalesCents != 61200 || s.VATCents != 3879 || s.VATExemptCents != 22321 || s.Discounts.SeniorCents != 4464 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.RefundCount != 1 || s.RefundCents != 11200 || s.NetSalesCents != 25000+17857 {
		t.Fatalf("unexpected refunds/net: %+v", s)
	}
	byMethod := map[string]int64{}
	for _, p := range s.ByPayment {
		byMethod[p.PaymentMethod] = p.TotalCents
	}
	if byMethod["cash"] != 17857+5000 || byMethod["card"] != 6200 || byMethod["gcash"] != 25000 {
		t.Fatalf("unexpected payment breakdown: %+v", s.ByPayment)
	}
}

func TestNextZReadingChainsGrandTotals(t *testing.T) {
	summary := domain.ReadingSummary{StoreID: "main-store", TerminalID: "T1", NetSalesCents: 42857}
	first := NextZReading(nil, summary, "2026-03-14", "manager")
	if first.ResetCounter != 1 || first.BeginningGrandTotalCents != 0 || first.EndingGrandTotalCents != 42857 {
		t.Fatalf("unexpected first reading: %+v", first)
	}
	summary.NetSalesCents = 10000
	second := NextZReading(&first, summary, "2026-03-15", "manager")
	if second.ResetCounter != 2 || second.BeginningGrandTotalCents != 42857 || second.EndingGrandTotalCents != 52857 {
		t.Fatalf("unexpected second reading: %+v", second)
	}
}

func TestWriteCSVAndPDF(t *testing.T) {
	st, txs, refunds := sampleReading()
	s := BuildReading(st, ReadingScope{Kind: KindZ, TerminalID: "T1"}, txs, refunds, time.Now().UTC())
	z := NextZReading(nil, s, "2026-03-14", "manager")

	var csvOut bytes.Buffer
	if err := WriteCSV(&csvOut, s, &z); err != nil {
		t.Fatalf("csv: %v", err)
	}
	for _, want := range []string{"field,value", "Gross Sales,612.00", "SC Discount,44.64", "Reset Counter,1"} {
		if !strings.Contains(csvOut.String(), want) {
			t.Fatalf("csv missing %q:\n%s", want, csvOut.String())
		}
	}

	var pdfOut bytes.Buffer
	if err := WritePDF(&pdfOut, s, &z); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(pdfOut.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected PDF header")
	}
}

func TestFormatPesos(t *testing.T) {
	cases := map[int64]string{0: "0.00", 5: "0.05", 12500: "125.00", -4464: "-44.64"}
	for cents, want := range cases {
		if got := FormatPesos(cents); got != want {
			t.Fatalf("FormatPesos(%d) = %q, want %q", cents, got, want)
		}
	}
}
