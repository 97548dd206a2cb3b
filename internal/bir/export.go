package bir

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"crofflepos/internal/domain"
)

// FormatPesos renders centavos as a peso amount with two decimals.
func FormatPesos(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

type row struct {
	label string
	value string
}

func readingRows(s domain.ReadingSummary, z *domain.ZReading) []row {
	rows := []row{
		{"Reading", s.Kind},
		{"Store", s.StoreName},
		{"TIN", s.TIN},
		{"MIN", s.MachineSerial},
		{"Permit", s.PermitNumber},
		{"Terminal", s.TerminalID},
	}
	if s.ShiftID != "" {
		rows = append(rows, row{"Shift", s.ShiftID}, row{"Cashier", s.CashierUsername})
	}
	rows = append(rows,
		row{"From", s.From.Format(time.RFC3339)},
		row{"To", s.To.Format(time.RFC3339)},
		row{"Beginning OR", s.BeginningReceipt},
		row{"Ending OR", s.EndingReceipt},
		row{"Transactions", strconv.FormatInt(s.TransactionCount, 10)},
		row{"Gross Sales", FormatPesos(s.GrossSalesCents)},
		row{"VATable Sales", FormatPesos(s.VATableSalesCents)},
		row{"VAT Amount", FormatPesos(s.VATCents)},
		row{"VAT-Exempt Sales", FormatPesos(s.VATExemptCents)},
		row{"Zero-Rated Sales", FormatPesos(s.ZeroRatedCents)},
		row{"SC Discount", FormatPesos(s.Discounts.SeniorCents)},
		row{"PWD Discount", FormatPesos(s.Discounts.PWDCents)},
		row{"NAAC Discount", FormatPesos(s.Discounts.NAACCents)},
		row{"Solo Parent Discount", FormatPesos(s.Discounts.SoloParentCents)},
		row{"Employee Discount", FormatPesos(s.Discounts.EmployeeCents)},
		row{"Other Discounts", FormatPesos(s.Discounts.OtherCents)},
		row{"Voids", fmt.Sprintf("%d / %s", s.VoidCount, FormatPesos(s.VoidCents))},
		row{"Refunds", fmt.Sprintf("%d / %s", s.RefundCount, FormatPesos(s.RefundCents))},
		row{"Refund VAT", FormatPesos(s.RefundVATCents)},
		row{"Net Sales", FormatPesos(s.NetSalesCents)},
	)
	for _, p := range s.ByPayment {
		rows = append(rows, row{"Payment " + p.PaymentMethod, fmt.Sprintf("%d / %s", p.Transactions, FormatPesos(p.TotalCents))})
	}
	if z != nil {
		rows = append(rows,
			row{"Business Date", z.BusinessDate},
			row{"Reset Counter", strconv.Itoa(z.ResetCounter)},
			row{"Beginning Grand Total", FormatPesos(z.BeginningGrandTotalCents)},
			row{"Ending Grand Total", FormatPesos(z.EndingGrandTotalCents)},
		)
	}
	rows = append(rows, row{"Generated", s.GeneratedAt.Format(time.RFC3339)})
	return rows
}

// WriteCSV writes a reading as label,value rows. z is nil for X readings.
func WriteCSV(w io.Writer, s domain.ReadingSummary, z *domain.ZReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"field", "value"}); err != nil {
		return err
	}
	for _, r := range readingRows(s, z) {
		if err := cw.Write([]string{r.label, r.value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePDF renders a printable reading. z is nil for X readings.
func WritePDF(w io.Writer, s domain.ReadingSummary, z *domain.ZReading) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s-Reading %s", s.Kind, s.StoreName), false)
	pdf.AddPage()

	pdf.SetFont("Courier", "B", 14)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s-READING", s.Kind), "", 1, "C", false, 0, "")
	pdf.SetFont("Courier", "", 10)
	pdf.CellFormat(0, 5, s.StoreName, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, r := range readingRows(s, z) {
		pdf.CellFormat(70, 6, r.label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, r.value, "B", 1, "R", false, 0, "")
	}
	return pdf.Output(w)
}
