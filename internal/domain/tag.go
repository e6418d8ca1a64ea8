package domain

import "time"

// Tag is the materialized metadata record for a tag.
// QuoteCount always equals the number of live mappings for Key.
type Tag struct {
	Name       string
	Key        string
	QuoteCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	CreatedBy  string
	LastUsedAt time.Time

	// RenamedFrom is set while a rename into this tag is in progress.
	RenamedFrom string
}

// NewTag builds a tag record with a zero count.
func NewTag(name, by string, now time.Time) (*Tag, error) {
	display, err := NewTagName(name)
	if err != nil {
		return nil, err
	}

	return &Tag{
		Name:      display,
		Key:       NormalizeKey(display),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: by,
	}, nil
}

// Unused reports whether the tag is eligible for cleanup.
func (t *Tag) Unused() bool {
	return t.QuoteCount <= 0
}

// TagQuoteMapping links one tag to one quote. It backs listing by tag.
type TagQuoteMapping struct {
	TagKey    string
	TagName   string
	QuoteID   string
	Author    string
	CreatedAt time.Time
}

// AuthorAggregate is derived per-author statistics kept by the change pipeline.
type AuthorAggregate struct {
	AuthorKey    string
	Author       string
	QuoteCount   int
	Tags         []string
	FirstQuoteAt time.Time
	LastQuoteAt  time.Time
	UpdatedAt    time.Time
}
