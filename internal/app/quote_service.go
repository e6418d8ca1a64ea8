// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/duplicate"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

// DefaultSearchBudget bounds how many recency index entries one search page examines.
const DefaultSearchBudget = 2000

// CreateQuoteInput is the caller input for CreateQuote.
type CreateQuoteInput struct {
	Text   string
	Author string
	Tags   []string

	// AllowDuplicate skips the duplicate check after a caller confirmed the override.
	AllowDuplicate bool
}

// UpdateQuoteInput holds the fields to change. Nil fields keep their stored value.
type UpdateQuoteInput struct {
	Text   *string
	Author *string
	Tags   *[]string
}

// QuoteServiceConfig contains dependencies for the quote service.
type QuoteServiceConfig struct {
	Quotes       ports.QuoteStore
	Tags         ports.TagStore
	Authors      ports.AuthorStore
	Synchronizer *Synchronizer
	Detector     *duplicate.Detector
	Executor     *Executor

	// SearchBudget defaults to DefaultSearchBudget.
	SearchBudget int

	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

// QuoteService orchestrates quote use cases. Writes run as staged operations:
// validation, duplicate detection, the entity commit, then tag synchronization.
type QuoteService struct {
	quotes   ports.QuoteStore
	tags     ports.TagStore
	authors  ports.AuthorStore
	sync     *Synchronizer
	detector *duplicate.Detector
	exec     *Executor
	budget   int
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewQuoteService creates a new quote service. It panics if a required dependency is missing.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Quotes == nil || cfg.Tags == nil || cfg.Authors == nil {
		panic("app: quote service requires quote, tag and author stores")
	}

	if cfg.Synchronizer == nil || cfg.Detector == nil {
		panic("app: quote service requires a synchronizer and a duplicate detector")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exec := cfg.Executor
	if exec == nil {
		exec = NewExecutor(logger)
	}

	budget := cfg.SearchBudget
	if budget <= 0 {
		budget = DefaultSearchBudget
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &QuoteService{
		quotes:   cfg.Quotes,
		tags:     cfg.Tags,
		authors:  cfg.Authors,
		sync:     cfg.Synchronizer,
		detector: cfg.Detector,
		exec:     exec,
		budget:   budget,
		logger:   logger.With(slog.String("component", "quote_service")),
		now:      clock,
		newID:    newID,
	}
}

// CreateQuote admits a new quote unless it duplicates a stored one.
// A rejection is a *domain.DuplicateError carrying the matched quotes.
func (s *QuoteService) CreateQuote(ctx context.Context, in CreateQuoteInput) (_ *domain.Quote, err error) {
	ctx, span := startSpan(ctx, "QuoteService.CreateQuote",
		attribute.Bool("quote.allow_duplicate", in.AllowDuplicate),
	)
	defer endSpan(span, &err)

	caller, err := authorize(ctx, "create_quote")
	if err != nil {
		return nil, err
	}

	op := Operation[CreateQuoteInput, *domain.Quote, *domain.Quote]{
		Name: "create_quote",
		Validate: func(_ context.Context, in CreateQuoteInput) (*domain.Quote, error) {
			return domain.NewQuote(s.newID(), in.Text, in.Author, in.Tags, caller.ID, s.now())
		},
		Check: func(ctx context.Context, q *domain.Quote) error {
			if in.AllowDuplicate {
				return nil
			}

			return s.checkDuplicate(ctx, q)
		},
		Commit: func(ctx context.Context, q *domain.Quote) (*domain.Quote, error) {
			if err := s.sync.EnsureTags(ctx, q.Tags, caller.ID); err != nil {
				return nil, err
			}

			opts := ports.WriteOptions{}
			if !in.AllowDuplicate {
				opts = ports.WriteOptions{
					Fingerprint:   duplicate.Fingerprint(q.Text, q.Author),
					EnforceUnique: true,
				}
			}

			err := s.quotes.PutQuote(ctx, q, nil, opts)

			var taken *ports.GuardTakenError
			if errors.As(err, &taken) {
				return nil, s.guardDuplicate(ctx, q, taken.HolderID, err)
			}

			if err != nil {
				return nil, err
			}

			return q, nil
		},
		Sync: func(ctx context.Context, q *domain.Quote) error {
			return s.sync.ApplyQuoteTagDiff(ctx, q, q.Tags, nil)
		},
	}

	q, err := Execute(ctx, s.exec, op, in)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("quote.id", q.ID))

	return q, nil
}

func (s *QuoteService) checkDuplicate(ctx context.Context, q *domain.Quote) error {
	decision, err := s.detector.Check(ctx, q.Text, q.Author)
	if err != nil {
		return err
	}

	if decision.Admitted {
		return nil
	}

	return domain.NewDuplicateError(decision.DomainCandidates())
}

// guardDuplicate turns a uniqueness guard conflict into a duplicate rejection.
// The detector's matches are preferred; otherwise the guard holder is the
// candidate. guardErr is returned when the holder is gone or only shares a hash.
func (s *QuoteService) guardDuplicate(ctx context.Context, q *domain.Quote, holderID string, guardErr error) error {
	if err := s.checkDuplicate(ctx, q); err != nil {
		return err
	}

	holder, err := s.quotes.GetQuote(ctx, holderID)
	if err != nil {
		if domain.IsNotFound(err) {
			return guardErr
		}

		return err
	}

	c := duplicate.Compare(q.Text, q.Author, holder.Text, holder.Author)
	if !c.Duplicate() {
		return guardErr
	}

	s.logger.InfoContext(ctx, "duplicate quote rejected by uniqueness guard",
		slog.String("match_id", holder.ID),
		slog.String("rule", c.Rule.String()),
	)

	return domain.NewDuplicateError([]domain.DuplicateCandidate{{
		QuoteID:     holder.ID,
		Text:        holder.Text,
		Author:      holder.Author,
		Rule:        int(c.Rule),
		TextScore:   c.TextScore,
		AuthorScore: c.AuthorScore,
	}})
}

// revision pairs the stored quote with its edited version.
type revision struct {
	prev *domain.Quote
	next *domain.Quote
}

// UpdateQuote edits a stored quote. Edits are not checked for duplicates.
func (s *QuoteService) UpdateQuote(ctx context.Context, id string, in UpdateQuoteInput) (_ *domain.Quote, err error) {
	ctx, span := startSpan(ctx, "QuoteService.UpdateQuote", attribute.String("quote.id", id))
	defer endSpan(span, &err)

	caller, err := authorize(ctx, "update_quote")
	if err != nil {
		return nil, err
	}

	prev, err := s.quotes.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}

	op := Operation[UpdateQuoteInput, revision, revision]{
		Name: "update_quote",
		Validate: func(_ context.Context, in UpdateQuoteInput) (revision, error) {
			text, author, tags := prev.Text, prev.Author, prev.Tags
			if in.Text != nil {
				text = *in.Text
			}

			if in.Author != nil {
				author = *in.Author
			}

			if in.Tags != nil {
				tags = *in.Tags
			}

			next, err := prev.Revise(text, author, tags, caller.ID, s.now())

			return revision{prev: prev, next: next}, err
		},
		Commit: func(ctx context.Context, r revision) (revision, error) {
			added, _ := domain.DiffTags(r.prev.Tags, r.next.Tags)
			if err := s.sync.EnsureTags(ctx, added, caller.ID); err != nil {
				return r, err
			}

			opts := ports.WriteOptions{Fingerprint: duplicate.Fingerprint(r.next.Text, r.next.Author)}

			return r, s.quotes.PutQuote(ctx, r.next, r.prev, opts)
		},
		Sync: func(ctx context.Context, r revision) error {
			_, removed := domain.DiffTags(r.prev.Tags, r.next.Tags)

			// The full tag set is re-asserted so mappings lost by an earlier
			// partial write are restored; existing mappings keep their count.
			return s.sync.ApplyQuoteTagDiff(ctx, r.next, r.next.Tags, removed)
		},
	}

	r, err := Execute(ctx, s.exec, op, in)
	if err != nil {
		return nil, err
	}

	return r.next, nil
}

// DeleteQuote removes a quote and its tag mappings.
func (s *QuoteService) DeleteQuote(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "QuoteService.DeleteQuote", attribute.String("quote.id", id))
	defer endSpan(span, &err)

	if _, err := authorize(ctx, "delete_quote"); err != nil {
		return err
	}

	op := Operation[string, *domain.Quote, *domain.Quote]{
		Name:     "delete_quote",
		Validate: s.quotes.GetQuote,
		Commit: func(ctx context.Context, q *domain.Quote) (*domain.Quote, error) {
			// Mappings go first so a failed delete never leaves a mapping to a missing quote.
			if err := s.sync.ApplyQuoteTagDiff(ctx, q, nil, q.Tags); err != nil {
				return nil, err
			}

			return q, s.quotes.DeleteQuote(ctx, q)
		},
	}

	_, err = Execute(ctx, s.exec, op, id)

	return err
}

// GetQuote retrieves a quote by its identifier.
func (s *QuoteService) GetQuote(ctx context.Context, id string) (_ *domain.Quote, err error) {
	ctx, span := startSpan(ctx, "QuoteService.GetQuote", attribute.String("quote.id", id))
	defer endSpan(span, &err)

	return s.quotes.GetQuote(ctx, id)
}

// ListByAuthor pages through one author's quotes, newest first. Matching ignores case.
func (s *QuoteService) ListByAuthor(ctx context.Context, author string, req domain.PageRequest) (_ domain.Page[*domain.Quote], err error) {
	ctx, span := startSpan(ctx, "QuoteService.ListByAuthor")
	defer endSpan(span, &err)

	key := domain.NormalizeKey(author)
	if key == "" {
		return domain.Page[*domain.Quote]{}, domain.NewValidationError("author", "is required")
	}

	return s.quotes.ListByAuthor(ctx, key, req)
}

// ListByTag pages through the quotes carrying a tag, newest first. An unknown tag yields an empty page.
func (s *QuoteService) ListByTag(ctx context.Context, tag string, req domain.PageRequest) (_ domain.Page[*domain.Quote], err error) {
	ctx, span := startSpan(ctx, "QuoteService.ListByTag", attribute.String("tag", tag))
	defer endSpan(span, &err)

	key := domain.NormalizeKey(tag)
	if key == "" {
		return domain.Page[*domain.Quote]{}, domain.NewValidationError("tag", "is required")
	}

	return s.tags.ListByTag(ctx, key, req)
}

// ListRecent pages through every quote, newest first.
func (s *QuoteService) ListRecent(ctx context.Context, req domain.PageRequest) (_ domain.Page[*domain.Quote], err error) {
	ctx, span := startSpan(ctx, "QuoteService.ListRecent")
	defer endSpan(span, &err)

	return s.quotes.ListRecent(ctx, req)
}

// Search returns quotes whose text, author or tags contain query, newest first.
// Results are not ranked. A page may hold fewer than the limit while HasMore
// is set, because each page examines a bounded number of quotes.
func (s *QuoteService) Search(ctx context.Context, query string, req domain.PageRequest) (_ domain.Page[*domain.Quote], err error) {
	ctx, span := startSpan(ctx, "QuoteService.Search")
	defer endSpan(span, &err)

	needle := duplicate.NormalizeText(query)
	if needle == "" {
		return domain.Page[*domain.Quote]{}, domain.NewValidationError("q", "is required")
	}

	return s.quotes.ScanRecent(ctx, req, s.budget, func(q *domain.Quote) bool {
		return matchesQuery(q, needle)
	})
}

func matchesQuery(q *domain.Quote, needle string) bool {
	if strings.Contains(duplicate.NormalizeText(q.Text), needle) ||
		strings.Contains(duplicate.NormalizeText(q.Author), needle) {
		return true
	}

	return slices.ContainsFunc(q.Tags, func(t string) bool {
		return strings.Contains(duplicate.NormalizeText(t), needle)
	})
}

// ListAuthors returns the derived author aggregates. They may lag recent writes.
func (s *QuoteService) ListAuthors(ctx context.Context) (_ []*domain.AuthorAggregate, err error) {
	ctx, span := startSpan(ctx, "QuoteService.ListAuthors")
	defer endSpan(span, &err)

	return s.authors.ListAuthors(ctx)
}

// ExportAll returns a full, uncapped snapshot of quotes, tags and authors.
func (s *QuoteService) ExportAll(ctx context.Context) (_ *domain.Export, err error) {
	ctx, span := startSpan(ctx, "QuoteService.ExportAll")
	defer endSpan(span, &err)

	caller, err := authorize(ctx, "export")
	if err != nil {
		return nil, err
	}

	quotes, tags, stats, err := Parallel3(ctx, s.quotes.AllQuotes, s.tags.ListTags, s.authors.ListAuthors)
	if err != nil {
		return nil, err
	}

	export := &domain.Export{
		Quotes:      quotes,
		Tags:        tags,
		Authors:     authorNames(quotes),
		AuthorStats: stats,
		ExportedAt:  s.now(),
		ExportedBy:  caller.ID,
	}

	s.logger.InfoContext(ctx, "catalogue exported",
		slog.Int("quotes", len(quotes)),
		slog.Int("tags", len(tags)),
		slog.Int("authors", len(export.Authors)),
	)

	return export, nil
}

// authorNames returns one display name per author key, taken from the newest quote, sorted by key.
func authorNames(quotes []*domain.Quote) []string {
	byKey := make(map[string]string)
	for _, q := range quotes {
		if _, ok := byKey[q.AuthorKey]; !ok {
			byKey[q.AuthorKey] = q.Author
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = byKey[k]
	}

	return names
}

// authorize resolves the caller from ctx and requires a privileged caller.
func authorize(ctx context.Context, operation string) (domain.Caller, error) {
	caller, _ := domain.CallerFromContext(ctx)

	return caller, caller.Authorize(operation)
}
