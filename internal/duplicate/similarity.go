package duplicate

import "strings"

const (
	// positionalWindow is the largest rune length difference compared position by position.
	positionalWindow = 3

	// minWordLen excludes short words from the overlap count.
	minWordLen = 3
)

// Similarity scores two normalized strings in [0, 1].
//
// Strings of nearly equal length are compared rune by rune at the same
// position. Otherwise the score is the share of distinct words longer than
// two runes that both strings contain.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}

	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) <= positionalWindow {
		return positional(ra, rb)
	}

	return wordOverlap(a, b)
}

func positional(a, b []rune) float64 {
	longest := max(len(a), len(b))
	shortest := min(len(a), len(b))

	matches := 0
	for i := range shortest {
		if a[i] == b[i] {
			matches++
		}
	}

	return float64(matches) / float64(longest)
}

func wordOverlap(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)

	total := len(wa) + len(wb)
	if total == 0 {
		return 0
	}

	inB := make(map[string]struct{}, len(wb))
	for _, w := range wb {
		inB[w] = struct{}{}
	}

	common := 0
	counted := make(map[string]struct{}, len(wa))
	for _, w := range wa {
		if len([]rune(w)) < minWordLen {
			continue
		}

		if _, ok := counted[w]; ok {
			continue
		}

		if _, ok := inB[w]; ok {
			counted[w] = struct{}{}
			common++
		}
	}

	return 2 * float64(common) / float64(total)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}
