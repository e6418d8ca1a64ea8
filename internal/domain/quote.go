package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Field limits enforced when quotes and tags enter the system.
const (
	MaxTextLength   = 2000
	MaxAuthorLength = 200
	MaxTagsPerQuote = 25
	MaxTagLength    = 64
)

// Quote represents a quotation with its author.
// This is a domain entity - it has no knowledge of external systems.
type Quote struct {
	// ID is the unique identifier for this quote.
	ID string

	// Text is the body of the quote.
	Text string

	// Author is who said or wrote the quote, as entered.
	Author string

	// AuthorKey is the normalized author used for indexing.
	AuthorKey string

	// Tags are display names, unique case-insensitively, in entry order.
	Tags []string

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

// NewQuote validates the inputs and builds a quote ready to be stored.
func NewQuote(id, text, author string, tags []string, by string, now time.Time) (*Quote, error) {
	text, err := cleanText("text", text, MaxTextLength)
	if err != nil {
		return nil, err
	}

	author, err = cleanText("author", author, MaxAuthorLength)
	if err != nil {
		return nil, err
	}

	names, err := NormalizeTagNames(tags)
	if err != nil {
		return nil, err
	}

	return &Quote{
		ID:        id,
		Text:      text,
		Author:    author,
		AuthorKey: NormalizeKey(author),
		Tags:      names,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: by,
		UpdatedBy: by,
	}, nil
}

// Revise returns a copy of q with new content, preserving identity and creation data.
func (q *Quote) Revise(text, author string, tags []string, by string, now time.Time) (*Quote, error) {
	next, err := NewQuote(q.ID, text, author, tags, by, now)
	if err != nil {
		return nil, err
	}

	next.CreatedAt = q.CreatedAt
	next.CreatedBy = q.CreatedBy

	return next, nil
}

// HasTag reports whether the quote carries the tag, compared by key.
func (q *Quote) HasTag(name string) bool {
	key := NormalizeKey(name)
	for _, t := range q.Tags {
		if NormalizeKey(t) == key {
			return true
		}
	}

	return false
}

// TagKeys returns the normalized keys of the quote's tags.
func (q *Quote) TagKeys() []string {
	keys := make([]string, 0, len(q.Tags))
	for _, t := range q.Tags {
		keys = append(keys, NormalizeKey(t))
	}

	return keys
}

// punctuationFold maps typographic variants to their ASCII spelling.
var punctuationFold = strings.NewReplacer(
	"“", `"`, // left double quotation mark
	"”", `"`,
	"‘", "'",
	"’", "'",
	"—", "-", // em dash
	"–", "-", // en dash
	"…", "...",
)

// NormalizeKey folds punctuation variants, lowercases, trims and collapses
// internal whitespace. Author and tag keys are both derived with it, so
// "Jean–Paul Sartre" and "Jean-Paul Sartre" share an index bucket.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(punctuationFold.Replace(s)), " "))
}

// NewTagName validates a tag name and returns its display form.
func NewTagName(name string) (string, error) {
	display := strings.Join(strings.Fields(name), " ")
	if display == "" {
		return "", NewValidationError("tag", "must not be empty")
	}

	if utf8.RuneCountInString(display) > MaxTagLength {
		return "", NewValidationErrorWithValue("tag", "too long", display)
	}

	if hasControl(display) {
		return "", NewValidationErrorWithValue("tag", "contains control characters", display)
	}

	return display, nil
}

// NormalizeTagNames validates names and drops case-insensitive repeats,
// keeping the first spelling of each tag.
func NormalizeTagNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, n := range names {
		display, err := NewTagName(n)
		if err != nil {
			return nil, err
		}

		key := NormalizeKey(display)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, display)
	}

	if len(out) > MaxTagsPerQuote {
		return nil, NewValidationErrorWithValue("tags", "too many tags", len(out))
	}

	return out, nil
}

// DiffTags compares two tag lists by key.
// added holds display names present only in next; removed holds names present only in prev.
func DiffTags(prev, next []string) (added, removed []string) {
	prevKeys := make(map[string]struct{}, len(prev))
	for _, t := range prev {
		prevKeys[NormalizeKey(t)] = struct{}{}
	}

	nextKeys := make(map[string]struct{}, len(next))
	for _, t := range next {
		key := NormalizeKey(t)
		nextKeys[key] = struct{}{}

		if _, ok := prevKeys[key]; !ok {
			added = append(added, t)
		}
	}

	for _, t := range prev {
		if _, ok := nextKeys[NormalizeKey(t)]; !ok {
			removed = append(removed, t)
		}
	}

	return added, removed
}

func cleanText(field, s string, maxLen int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError(field, "is required")
	}

	if utf8.RuneCountInString(s) > maxLen {
		return "", NewValidationErrorWithValue(field, "too long", utf8.RuneCountInString(s))
	}

	if !utf8.ValidString(s) {
		return "", NewValidationError(field, "must be valid UTF-8")
	}

	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return "", NewValidationError(field, "contains control characters")
		}
	}

	return s, nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
