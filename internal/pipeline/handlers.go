package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

// Handler processes one change event. Delivery is at least once, so
// handlers must give the same result when an event is handled again.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev domain.ChangeEvent) error
}

// AuthorAggregator keeps author aggregates in line with the by-author index.
// It recomputes each touched aggregate from the index instead of applying deltas.
type AuthorAggregator struct {
	quotes  ports.QuoteStore
	authors ports.AuthorStore
	now     func() time.Time
}

// NewAuthorAggregator creates an aggregator. A nil clock uses time.Now.
func NewAuthorAggregator(quotes ports.QuoteStore, authors ports.AuthorStore, now func() time.Time) *AuthorAggregator {
	if now == nil {
		now = time.Now
	}

	return &AuthorAggregator{quotes: quotes, authors: authors, now: now}
}

// Name implements Handler.
func (a *AuthorAggregator) Name() string { return "author_aggregator" }

// Handle implements Handler.
func (a *AuthorAggregator) Handle(ctx context.Context, ev domain.ChangeEvent) error {
	for _, key := range ev.AuthorKeys {
		if err := a.Recompute(ctx, key); err != nil {
			return fmt.Errorf("author %q: %w", key, err)
		}
	}

	return nil
}

// Recompute rebuilds one aggregate, deleting it when the author has no quotes left.
func (a *AuthorAggregator) Recompute(ctx context.Context, authorKey string) error {
	quotes, err := a.quotes.AuthorQuotes(ctx, authorKey)
	if err != nil {
		return err
	}

	if len(quotes) == 0 {
		return a.authors.DeleteAuthor(ctx, authorKey)
	}

	return a.authors.PutAuthor(ctx, aggregate(authorKey, quotes, a.now()))
}

// Rebuild recomputes every aggregate from the entity store and removes
// aggregates for authors with no quotes. It returns the number of authors.
func (a *AuthorAggregator) Rebuild(ctx context.Context) (int, error) {
	quotes, err := a.quotes.AllQuotes(ctx)
	if err != nil {
		return 0, err
	}

	byAuthor := make(map[string][]*domain.Quote)
	for _, q := range quotes {
		byAuthor[q.AuthorKey] = append(byAuthor[q.AuthorKey], q)
	}

	existing, err := a.authors.ListAuthors(ctx)
	if err != nil {
		return 0, err
	}

	for _, agg := range existing {
		if _, ok := byAuthor[agg.AuthorKey]; !ok {
			if err := a.authors.DeleteAuthor(ctx, agg.AuthorKey); err != nil {
				return 0, err
			}
		}
	}

	now := a.now()
	for key, qs := range byAuthor {
		if err := a.authors.PutAuthor(ctx, aggregate(key, qs, now)); err != nil {
			return 0, err
		}
	}

	return len(byAuthor), nil
}

// aggregate summarizes quotes ordered newest first.
func aggregate(key string, quotes []*domain.Quote, now time.Time) *domain.AuthorAggregate {
	agg := &domain.AuthorAggregate{
		AuthorKey:  key,
		QuoteCount: len(quotes),
		UpdatedAt:  now,
	}

	var tags []string

	for _, q := range quotes {
		if agg.LastQuoteAt.IsZero() || q.CreatedAt.After(agg.LastQuoteAt) {
			agg.LastQuoteAt = q.CreatedAt
			agg.Author = q.Author
		}

		if agg.FirstQuoteAt.IsZero() || q.CreatedAt.Before(agg.FirstQuoteAt) {
			agg.FirstQuoteAt = q.CreatedAt
		}

		for _, t := range q.Tags {
			tags = append(tags, domain.NormalizeKey(t))
		}
	}

	slices.Sort(tags)
	agg.Tags = slices.Compact(tags)

	return agg
}

// TagActivity advances last-used times of tags applied by a change.
// It never touches tag counts.
type TagActivity struct {
	tags ports.TagStore
}

// NewTagActivity creates the handler.
func NewTagActivity(tags ports.TagStore) *TagActivity {
	return &TagActivity{tags: tags}
}

// Name implements Handler.
func (t *TagActivity) Name() string { return "tag_activity" }

// Handle implements Handler.
func (t *TagActivity) Handle(ctx context.Context, ev domain.ChangeEvent) error {
	for _, name := range ev.Tags {
		if err := t.tags.TouchTag(ctx, name, ev.OccurredAt); err != nil {
			return fmt.Errorf("tag %q: %w", name, err)
		}
	}

	return nil
}
