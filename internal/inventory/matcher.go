package inventory

import (
	"regexp"
	"strings"

	"crofflepos/internal/domain"
	"crofflepos/internal/units"
)

// MinSimilarity is the lowest fuzzy score accepted as a match.
const MinSimilarity = 0.8

var (
	fromSuffix = regexp.MustCompile(`(?i)\s*\(from [^)]*\)\s*$`)
	withSuffix = regexp.MustCompile(`(?i)\s+with\s+.*$`)
	spaces     = regexp.MustCompile(`\s+`)
)

// NormalizeName lower-cases an ingredient name and drops "(from ...)" and
// " with ..." suffixes.
func NormalizeName(name string) string {
	name = fromSuffix.ReplaceAllString(name, "")
	name = withSuffix.ReplaceAllString(name, "")
	name = spaces.ReplaceAllString(strings.TrimSpace(name), " ")
	return strings.ToLower(name)
}

// Levenshtein returns the edit distance between a and b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity scores two names between 0 and 1 after normalization.
func Similarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == nb {
		return 1
	}
	longest := max(len([]rune(na)), len([]rune(nb)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(na, nb))/float64(longest)
}

// Match finds the inventory item an ingredient refers to. An exact
// normalized name wins; otherwise the most similar item above
// MinSimilarity. Either way the units must be compatible.
func Match(name string, unit string, items []domain.InventoryItem) (domain.InventoryItem, bool) {
	target := NormalizeName(name)
	for _, item := range items {
		if item.Active && NormalizeName(item.Name) == target && units.Compatible(unit, item.Unit) {
			return item, true
		}
	}

	var best domain.InventoryItem
	bestScore := 0.0
	for _, item := range items {
		if !item.Active || !units.Compatible(unit, item.Unit) {
			continue
		}
		score := Similarity(name, item.Name)
		if score >= MinSimilarity && score > bestScore {
			best, bestScore = item, score
		}
	}
	return best, bestScore > 0
}
