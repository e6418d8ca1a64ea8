package duplicate

// Rule identifies which admission rule matched a pair of quotes.
type Rule int

// Rules are evaluated in order; the first match wins.
const (
	RuleNone Rule = iota
	RuleExact
	RuleSimilarTextSameAuthor
	RuleSameTextSimilarAuthor
	RuleSimilarBoth
)

// Thresholds for the similarity rules.
const (
	TextThreshold         = 0.90
	AuthorThreshold       = 0.85
	StrictTextThreshold   = 0.95
	StrictAuthorThreshold = 0.90
)

// String returns the metric label for the rule.
func (r Rule) String() string {
	switch r {
	case RuleExact:
		return "exact"
	case RuleSimilarTextSameAuthor:
		return "similar_text_same_author"
	case RuleSameTextSimilarAuthor:
		return "same_text_similar_author"
	case RuleSimilarBoth:
		return "similar_both"
	default:
		return "none"
	}
}

// Comparison is the outcome of comparing two quotes.
type Comparison struct {
	Rule        Rule
	TextScore   float64
	AuthorScore float64
}

// Duplicate reports whether any rule matched.
func (c Comparison) Duplicate() bool {
	return c.Rule != RuleNone
}

// Compare normalizes both quotes and applies the admission rules.
// The result does not depend on argument order.
func Compare(textA, authorA, textB, authorB string) Comparison {
	return compareNormalized(
		NormalizeText(textA), NormalizeAuthor(authorA),
		NormalizeText(textB), NormalizeAuthor(authorB),
	)
}

func compareNormalized(ta, aa, tb, ab string) Comparison {
	c := Comparison{
		TextScore:   Similarity(ta, tb),
		AuthorScore: Similarity(aa, ab),
	}

	sameText := ta == tb
	sameAuthor := aa == ab

	switch {
	case sameText && sameAuthor:
		c.Rule = RuleExact
	case c.TextScore >= TextThreshold && sameAuthor:
		c.Rule = RuleSimilarTextSameAuthor
	case sameText && c.AuthorScore >= AuthorThreshold:
		c.Rule = RuleSameTextSimilarAuthor
	case c.TextScore >= StrictTextThreshold && c.AuthorScore >= StrictAuthorThreshold:
		c.Rule = RuleSimilarBoth
	}

	return c
}
