package duplicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const jobsQuote = "The only way to do great work is to love what you do."

func TestCompare(t *testing.T) {
	tests := []struct {
		name           string
		textA, authorA string
		textB, authorB string
		want           Rule
	}{
		{
			name:  "exact after normalization",
			textA: jobsQuote, authorA: "Steve Jobs",
			textB: "  the ONLY way to do great work is to love what you do. ", authorB: "steve  jobs",
			want: RuleExact,
		},
		{
			name:  "trailing period on author still exact",
			textA: jobsQuote, authorA: "Steve Jobs",
			textB: jobsQuote, authorB: "Steve Jobs.",
			want: RuleExact,
		},
		{
			name:  "missing trailing period on text",
			textA: jobsQuote, authorA: "Steve Jobs",
			textB: "The only way to do great work is to love what you do", authorB: "Steve Jobs",
			want: RuleSimilarTextSameAuthor,
		},
		{
			name:  "same text with author typo",
			textA: jobsQuote, authorA: "Steve Jobs",
			textB: jobsQuote, authorB: "Steve Jobz",
			want: RuleSameTextSimilarAuthor,
		},
		{
			name:  "punctuation variants are equal",
			textA: "Don’t panic — ever…", authorA: "Douglas Adams",
			textB: "Don't panic - ever...", authorB: "Douglas Adams",
			want: RuleExact,
		},
		{
			name:  "different quotes same author",
			textA: jobsQuote, authorA: "Steve Jobs",
			textB: "Stay hungry, stay foolish.", authorB: "Steve Jobs",
			want: RuleNone,
		},
		{
			name:  "same text different author",
			textA: jobsQuote, authorA: "Steve Jobs",
			textB: jobsQuote, authorB: "Mark Twain",
			want: RuleNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.textA, tt.authorA, tt.textB, tt.authorB)
			assert.Equal(t, tt.want, got.Rule)
			assert.Equal(t, tt.want != RuleNone, got.Duplicate())

			swapped := Compare(tt.textB, tt.authorB, tt.textA, tt.authorA)
			assert.Equal(t, got, swapped, "comparison must be symmetric")
		})
	}
}

func TestCompare_SimilarBoth(t *testing.T) {
	// Twenty-character texts differing in one position score 0.95.
	a := "abcdefghijklmnopqrst"
	b := "abcdefghijklmnopqrsX"
	// Ten-character authors differing in one position score 0.90.
	got := Compare(a, "abcdefghij", b, "abcdefghiX")

	assert.Equal(t, RuleSimilarBoth, got.Rule)
	assert.InDelta(t, 0.95, got.TextScore, 1e-9)
	assert.InDelta(t, 0.90, got.AuthorScore, 1e-9)
}

func TestRule_String(t *testing.T) {
	assert.Equal(t, "none", RuleNone.String())
	assert.Equal(t, "exact", RuleExact.String())
	assert.Equal(t, "similar_both", RuleSimilarBoth.String())
}
