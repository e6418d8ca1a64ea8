// Package duplicate decides whether an incoming quote repeats one already stored.
//
// Comparison happens on normalized strings: punctuation variants are folded,
// case and whitespace are ignored, and author names lose trailing periods.
// Candidates are narrowed to the incoming author's index bucket, so a
// misspelled author name is not detected as a duplicate.
package duplicate

import (
	"strings"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// NormalizeText folds punctuation variants, lowercases and collapses whitespace.
// It is the same folding the store uses for author and tag keys.
func NormalizeText(s string) string {
	return domain.NormalizeKey(s)
}

// NormalizeAuthor normalizes like NormalizeText and strips trailing periods.
func NormalizeAuthor(s string) string {
	return strings.TrimRight(NormalizeText(s), ". ")
}

// Fingerprint identifies a quote's normalized content for the store's uniqueness guard.
// Two quotes matching rule 1 share a fingerprint.
func Fingerprint(text, author string) string {
	return NormalizeText(text) + "\x00" + NormalizeAuthor(author)
}
