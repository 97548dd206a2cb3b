// Package units normalizes the free-form unit names found in recipes and
// inventory records and converts quantities between compatible units.
package units

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Pieces     = "pieces"
	Serving    = "serving"
	Portion    = "portion"
	Scoop      = "scoop"
	Box        = "box"
	Pack       = "pack"
	Kilogram   = "kg"
	Gram       = "g"
	Liter      = "liters"
	Milliliter = "ml"
)

var ErrIncompatibleUnits = errors.New("incompatible units")

var aliases = map[string]string{
	"pieces": Pieces, "piece": Pieces, "pcs": Pieces, "pc": Pieces,
	"serving": Serving, "servings": Serving,
	"portion": Portion, "portions": Portion,
	"scoop": Scoop, "scoops": Scoop,
	"box": Box, "boxes": Box,
	"pack": Pack, "packs": Pack,
	"kg": Kilogram, "kgs": Kilogram, "kilogram": Kilogram, "kilograms": Kilogram,
	"g": Gram, "gram": Gram, "grams": Gram, "gm": Gram,
	"l": Liter, "liter": Liter, "liters": Liter, "litre": Liter, "litres": Liter,
	"ml": Milliliter, "milliliter": Milliliter, "milliliters": Milliliter, "millilitre": Milliliter,
}

type group int

const (
	groupNone group = iota
	groupWeight
	groupVolume
	groupCount
)

var groups = map[string]group{
	Kilogram: groupWeight, Gram: groupWeight,
	Liter: groupVolume, Milliliter: groupVolume,
	Pieces: groupCount, Serving: groupCount, Portion: groupCount, Scoop: groupCount,
}

// base-unit factors within a group: grams, milliliters, count.
var factors = map[string]int64{
	Kilogram: 1000, Gram: 1,
	Liter: 1000, Milliliter: 1,
	Pieces: 1, Serving: 1, Portion: 1, Scoop: 1,
}

// Normalize maps a unit alias onto its canonical name. Unknown units are
// returned lower-cased and trimmed.
func Normalize(unit string) string {
	key := strings.ToLower(strings.TrimSpace(unit))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return key
}

// Compatible reports whether quantities in a can be expressed in b.
func Compatible(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	ga, gb := groups[na], groups[nb]
	return ga != groupNone && ga == gb
}

// Convert expresses qty measured in from as the equivalent amount in to.
func Convert(qty decimal.Decimal, from, to string) (decimal.Decimal, error) {
	nf, nt := Normalize(from), Normalize(to)
	if nf == nt {
		return qty, nil
	}
	if !Compatible(nf, nt) {
		return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrIncompatibleUnits, from, to)
	}
	return qty.Mul(decimal.NewFromInt(factors[nf])).Div(decimal.NewFromInt(factors[nt])), nil
}

var packPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pack\s+of\s+(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s*(?:pcs|pieces|pc)\b`),
	regexp.MustCompile(`(?i)\((\d+)\)`),
	regexp.MustCompile(`(?i)(\d+)\s*-?\s*pack\b`),
}

// ExtractPackQuantity finds a pack size in an item name such as
// "Croissant Dough (pack of 24)" or "Cups 50pcs".
func ExtractPackQuantity(name string) (int, bool) {
	for _, re := range packPatterns {
		match := re.FindStringSubmatch(name)
		if len(match) < 2 {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 {
			continue
		}
		return n, true
	}
	return 0, false
}
