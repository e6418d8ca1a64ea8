// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never storage records or driver types
//   - Error returns use domain error types (ErrNotFound, ErrConflict, ErrThrottled)
//   - Every multi-key write is atomic within one store transaction
package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// WriteOptions controls the content uniqueness guard on quote writes.
type WriteOptions struct {
	// Fingerprint identifies normalized content. Empty skips the guard.
	Fingerprint string

	// EnforceUnique fails the write with a *GuardTakenError when another
	// quote already holds Fingerprint. When false, a taken fingerprint is
	// left with its current holder.
	EnforceUnique bool
}

// GuardTakenError is returned by an enforcing PutQuote when another quote
// already holds the fingerprint.
type GuardTakenError struct {
	HolderID string
}

// Error implements the error interface.
func (e *GuardTakenError) Error() string {
	return fmt.Sprintf("quote content already held by %q", e.HolderID)
}

// Unwrap returns domain.ErrConflict for errors.Is() support.
func (e *GuardTakenError) Unwrap() error {
	return domain.ErrConflict
}

// QuoteStore is the Entity Store and its secondary indexes.
//
// Every listing is served from a dedicated ordering key, newest first,
// and never scans entities outside the requested partition.
type QuoteStore interface {
	// PutQuote writes q together with its by-author and by-recency index keys
	// and a change event. prev is the stored version for updates, nil for creations.
	PutQuote(ctx context.Context, q, prev *domain.Quote, opts WriteOptions) error

	// GetQuote returns domain.ErrNotFound if the quote does not exist.
	GetQuote(ctx context.Context, id string) (*domain.Quote, error)

	// BatchGetQuotes returns the quotes that exist, in the order of ids.
	BatchGetQuotes(ctx context.Context, ids []string) ([]*domain.Quote, error)

	// DeleteQuote removes the quote, its index keys and its guard and records a change event.
	// Tag mappings are not touched.
	DeleteQuote(ctx context.Context, q *domain.Quote) error

	// UpdateQuoteTags applies mutate to the stored quote inside one transaction.
	// When mutate reports no change nothing is written. The returned quote is the stored state.
	UpdateQuoteTags(ctx context.Context, id string, mutate func(q *domain.Quote) bool) (*domain.Quote, bool, error)

	ListByAuthor(ctx context.Context, authorKey string, req domain.PageRequest) (domain.Page[*domain.Quote], error)
	ListRecent(ctx context.Context, req domain.PageRequest) (domain.Page[*domain.Quote], error)

	// ScanRecent walks the recency index from the cursor, keeping quotes for which
	// match returns true. At most budget index entries are examined per call.
	ScanRecent(ctx context.Context, req domain.PageRequest, budget int, match func(*domain.Quote) bool) (domain.Page[*domain.Quote], error)

	// AuthorCandidates returns up to limit quotes whose author key starts with prefix.
	AuthorCandidates(ctx context.Context, prefix string, limit int) ([]*domain.Quote, error)

	// AuthorQuotes returns every quote under one author key.
	AuthorQuotes(ctx context.Context, authorKey string) ([]*domain.Quote, error)

	// AllQuotes returns every quote, newest first.
	AllQuotes(ctx context.Context) ([]*domain.Quote, error)
}

// TagStore is the Tag Metadata Cache and the tag-quote mappings.
//
// Tag counts change only inside AddMapping and RemoveMapping, in the same
// transaction as the mapping itself.
type TagStore interface {
	// EnsureTag creates the tag with a zero count when absent.
	EnsureTag(ctx context.Context, name, by string, now time.Time) (*domain.Tag, bool, error)

	// CreateTag returns domain.ErrConflict if a tag with the same key exists.
	CreateTag(ctx context.Context, tag *domain.Tag) error

	// GetTag returns domain.ErrNotFound if the tag does not exist.
	GetTag(ctx context.Context, name string) (*domain.Tag, error)

	// ListTags returns every tag ordered by key.
	ListTags(ctx context.Context) ([]*domain.Tag, error)

	// DeleteTag removes the tag record and its count. With requireUnused it
	// only deletes when the count is zero and no mapping remains, and reports
	// whether it deleted.
	DeleteTag(ctx context.Context, name string, requireUnused bool) (bool, error)

	// UpdateTag applies mutate to the stored tag inside one transaction.
	// Only the display name (same key), rename marker and timestamps may change;
	// the count is not writable through it.
	UpdateTag(ctx context.Context, name string, mutate func(t *domain.Tag) bool) (*domain.Tag, error)

	// TouchTag advances LastUsedAt to at when at is later. It never changes the count.
	TouchTag(ctx context.Context, name string, at time.Time) error

	// AddMapping inserts the mapping and increments the tag count when the
	// mapping was absent. It reports whether it inserted.
	AddMapping(ctx context.Context, m domain.TagQuoteMapping, quoteCreatedAt time.Time) (bool, error)

	// RemoveMapping deletes the mapping and decrements the tag count when the
	// mapping was present. It reports whether it removed.
	RemoveMapping(ctx context.Context, tag, quoteID string) (bool, error)

	// ListByTag pages through the quotes mapped to a tag.
	ListByTag(ctx context.Context, tag string, req domain.PageRequest) (domain.Page[*domain.Quote], error)

	// TaggedQuoteIDs returns every quote id mapped to a tag.
	TaggedQuoteIDs(ctx context.Context, tag string) ([]string, error)
}

// AuthorStore holds the derived author aggregates.
type AuthorStore interface {
	PutAuthor(ctx context.Context, a *domain.AuthorAggregate) error
	DeleteAuthor(ctx context.Context, authorKey string) error
	GetAuthor(ctx context.Context, authorKey string) (*domain.AuthorAggregate, error)
	ListAuthors(ctx context.Context) ([]*domain.AuthorAggregate, error)
}

// Outbox is the durable queue of committed change events.
type Outbox interface {
	// PendingEvents returns up to limit events in sequence order, skipping
	// those for which skip returns true.
	PendingEvents(ctx context.Context, limit int, skip func(seq uint64) bool) ([]domain.ChangeEvent, error)

	// AckEvent removes a processed event.
	AckEvent(ctx context.Context, seq uint64) error

	// DeadLetter moves an event out of the outbox.
	DeadLetter(ctx context.Context, dl domain.DeadLetter) error

	ListDeadLetters(ctx context.Context) ([]domain.DeadLetter, error)

	// Redrive moves every dead letter back into the outbox and returns how many moved.
	Redrive(ctx context.Context) (int, error)

	// Notifications receives a value after commits that append events.
	Notifications() <-chan struct{}
}
