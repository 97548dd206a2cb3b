// Package bir implements Philippine BIR sales rules: VAT splitting of
// VAT-inclusive prices, statutory discounts, receipt numbering and the
// X and Z readings.
package bir

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

const DefaultVATRatePercent = 12

// statutoryDiscount is the 20% senior/PWD/NAAC discount.
var statutoryDiscount = decimal.RequireFromString("0.20")

// Breakdown is how a sale splits for the receipt and the readings.
type Breakdown struct {
	GrossCents        int64
	DiscountCents     int64
	VATableSalesCents int64
	VATCents          int64
	VATExemptCents    int64
	ZeroRatedCents    int64
	TotalCents        int64
}

// IsStatutory reports whether the discount type is VAT exempt by law.
func IsStatutory(discountType string) bool {
	switch discountType {
	case domain.DiscountSenior, domain.DiscountPWD, domain.DiscountNAAC:
		return true
	}
	return false
}

func validDiscountType(discountType string) bool {
	switch discountType {
	case domain.DiscountNone, domain.DiscountSenior, domain.DiscountPWD, domain.DiscountNAAC,
		domain.DiscountSoloParent, domain.DiscountEmployee, domain.DiscountPromo, domain.DiscountOther:
		return true
	}
	return false
}

// Compute splits a VAT-inclusive gross into VATable, VAT and exempt parts
// after applying the discount.
func Compute(grossCents int64, discount domain.DiscountInput, vatRegistered bool, ratePercent int) (Breakdown, error) {
	if grossCents < 0 {
		return Breakdown{}, fmt.Errorf("gross must not be negative: %w", store.ErrInvalidTransaction)
	}
	if ratePercent <= 0 {
		ratePercent = DefaultVATRatePercent
	}
	if !validDiscountType(discount.Type) {
		return Breakdown{}, fmt.Errorf("unknown discount type %q: %w", discount.Type, store.ErrInvalidTransaction)
	}
	divisor := decimal.NewFromInt(int64(100 + ratePercent)).Div(decimal.NewFromInt(100))
	gross := decimal.NewFromInt(grossCents)
	b := Breakdown{GrossCents: grossCents}

	if IsStatutory(discount.Type) {
		share, err := statutoryShare(gross, discount)
		if err != nil {
			return Breakdown{}, err
		}
		rest := gross.Sub(share)
		if !vatRegistered {
			b.DiscountCents = round(share.Mul(statutoryDiscount))
			b.VATExemptCents = grossCents
			b.TotalCents = grossCents - b.DiscountCents
			return b, nil
		}
		exemptBase := share.Div(divisor)
		b.VATExemptCents = round(exemptBase)
		b.DiscountCents = round(exemptBase.Mul(statutoryDiscount))
		b.VATableSalesCents = round(rest.Div(divisor))
		b.VATCents = round(rest) - b.VATableSalesCents
		b.TotalCents = b.VATableSalesCents + b.VATCents + b.VATExemptCents - b.DiscountCents
		return b, nil
	}

	discountCents, err := regularDiscount(grossCents, discount)
	if err != nil {
		return Breakdown{}, err
	}
	b.DiscountCents = discountCents
	net := grossCents - discountCents
	b.TotalCents = net
	if !vatRegistered {
		b.VATExemptCents = net
		return b, nil
	}
	b.VATableSalesCents = round(decimal.NewFromInt(net).Div(divisor))
	b.VATCents = net - b.VATableSalesCents
	return b, nil
}

func statutoryShare(gross decimal.Decimal, discount domain.DiscountInput) (decimal.Decimal, error) {
	if discount.IDNumber == "" {
		return decimal.Zero, fmt.Errorf("%s discount requires an ID number: %w", discount.Type, store.ErrInvalidTransaction)
	}
	if discount.TotalPax <= 0 && discount.DiscountPax <= 0 {
		return gross, nil
	}
	if discount.TotalPax <= 0 || discount.DiscountPax <= 0 || discount.DiscountPax > discount.TotalPax {
		return decimal.Zero, fmt.Errorf("discount pax must be between 1 and total pax: %w", store.ErrInvalidTransaction)
	}
	return gross.Mul(decimal.NewFromInt(int64(discount.DiscountPax))).Div(decimal.NewFromInt(int64(discount.TotalPax))), nil
}

func regularDiscount(grossCents int64, discount domain.DiscountInput) (int64, error) {
	if discount.Type == domain.DiscountNone {
		return 0, nil
	}
	if discount.Percent < 0 || discount.Percent > 100 || discount.AmountCents < 0 {
		return 0, fmt.Errorf("discount out of range: %w", store.ErrInvalidTransaction)
	}
	var cents int64
	if discount.Percent > 0 {
		cents = round(decimal.NewFromInt(grossCents).Mul(decimal.NewFromFloat(discount.Percent)).Div(decimal.NewFromInt(100)))
	} else {
		cents = discount.AmountCents
	}
	if cents > grossCents {
		return 0, fmt.Errorf("discount exceeds gross: %w", store.ErrInvalidTransaction)
	}
	return cents, nil
}

// RefundVAT is the VAT portion of a VAT-inclusive refund amount.
func RefundVAT(amountCents int64, ratePercent int) int64 {
	if ratePercent <= 0 {
		ratePercent = DefaultVATRatePercent
	}
	return round(decimal.NewFromInt(amountCents).Mul(decimal.NewFromInt(int64(ratePercent))).Div(decimal.NewFromInt(int64(100 + ratePercent))))
}

// ReceiptNumber formats yyyyMMdd-NNNN-HHmmss from the sale time and the
// store's daily sequence.
func ReceiptNumber(at time.Time, sequence int) string {
	return fmt.Sprintf("%s-%04d-%s", at.Format("20060102"), sequence, at.Format("150405"))
}

func round(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}
