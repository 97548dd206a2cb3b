package inventory

import (
	"testing"

	"crofflepos/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Nutella (from Commissary)":  "nutella",
		"Croissant Dough with Sugar": "croissant dough",
		"  Whipped   CREAM ":         "whipped cream",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"crème", "creme", 1},
		{"same", "same", 0},
	}
	for _, tc := range cases {
		if got := Levenshtein(tc.a, tc.b); got != tc.want {
			t.Fatalf("Levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMatchPrefersExactThenFuzzyWithCompatibleUnit(t *testing.T) {
	items := []domain.InventoryItem{
		{ID: "cream", Name: "Whipped Cream", Unit: "g", Active: true},
		{ID: "dough", Name: "Croissant Dough", Unit: "pieces", Active: true},
		{ID: "old", Name: "Nutella", Unit: "g", Active: false},
	}

	if got, ok := Match("croissant dough (from commissary)", "pcs", items); !ok || got.ID != "dough" {
		t.Fatalf("expected exact match on dough, got %+v %t", got, ok)
	}
	if got, ok := Match("Whiped Cream", "kg", items); !ok || got.ID != "cream" {
		t.Fatalf("expected fuzzy match on cream, got %+v %t", got, ok)
	}
	if _, ok := Match("Whipped Cream", "pieces", items); ok {
		t.Fatalf("expected unit mismatch to prevent a match")
	}
	if _, ok := Match("Nutella", "g", items); ok {
		t.Fatalf("expected inactive item to be ignored")
	}
	if _, ok := Match("Caramel Sauce", "g", items); ok {
		t.Fatalf("expected no match for unrelated ingredient")
	}
}
