package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/logging"
	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

const (
	// DefaultCascadeConcurrency bounds concurrent per-quote steps in a tag cascade.
	DefaultCascadeConcurrency = 8

	// cascadePasses is how many times a cascade rescans for mappings created while it ran.
	cascadePasses = 3
)

// SynchronizerConfig holds dependencies for the synchronizer.
type SynchronizerConfig struct {
	Quotes ports.QuoteStore
	Tags   ports.TagStore

	// Concurrency bounds per-quote cascade steps. Defaults to DefaultCascadeConcurrency.
	Concurrency int

	// CacheTTL keeps the listTags snapshot. Zero disables caching.
	CacheTTL time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Synchronizer keeps tag records, tag-quote mappings and quote tag sets consistent.
//
// It is the only writer of tag counts. Counts move through the store's
// AddMapping/RemoveMapping, which adjust the count in the mapping's own
// transaction, so every step here is idempotent and can be re-run after a
// partial failure.
type Synchronizer struct {
	quotes      ports.QuoteStore
	tags        ports.TagStore
	concurrency int
	cache       *tagListCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewSynchronizer creates a synchronizer. It panics if a store is missing.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.Quotes == nil || cfg.Tags == nil {
		panic("app: synchronizer requires quote and tag stores")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultCascadeConcurrency
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Synchronizer{
		quotes:      cfg.Quotes,
		tags:        cfg.Tags,
		concurrency: concurrency,
		cache:       newTagListCache(cfg.CacheTTL, cfg.Metrics),
		metrics:     cfg.Metrics,
		logger:      logger.With(slog.String("component", "synchronizer")),
		now:         clock,
	}
}

// Tags returns every tag, served from the snapshot cache when fresh.
func (s *Synchronizer) Tags(ctx context.Context) ([]*domain.Tag, error) {
	return s.cache.get(ctx, s.tags.ListTags)
}

// EnsureTags creates any missing tag records with a zero count.
func (s *Synchronizer) EnsureTags(ctx context.Context, names []string, by string) error {
	var created atomic.Bool

	err := FanOut(ctx, s.concurrency, names, func(ctx context.Context, name string) error {
		_, isNew, err := s.tags.EnsureTag(ctx, name, by, s.now())
		if isNew {
			created.Store(true)
		}

		return err
	})
	if created.Load() {
		s.cache.invalidate()
	}

	return err
}

// AddTag creates an unused tag. It fails with domain.ErrConflict if the name is taken.
func (s *Synchronizer) AddTag(ctx context.Context, name, by string) (*domain.Tag, error) {
	tag, err := domain.NewTag(name, by, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.tags.CreateTag(ctx, tag); err != nil {
		return nil, err
	}

	s.cache.invalidate()

	return tag, nil
}

// ApplyQuoteTagDiff maps q to every tag in added and unmaps it from every tag in removed.
// Adding a mapping that already exists leaves the count unchanged, so callers
// may pass the quote's full tag set as added to repair earlier partial writes.
func (s *Synchronizer) ApplyQuoteTagDiff(ctx context.Context, q *domain.Quote, added, removed []string) error {
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	defer s.cache.invalidate()

	err := FanOut(ctx, s.concurrency, added, func(ctx context.Context, name string) error {
		return s.mapQuote(ctx, q, name)
	})
	if err != nil {
		return fmt.Errorf("mapping quote %s: %w", q.ID, err)
	}

	err = FanOut(ctx, s.concurrency, removed, func(ctx context.Context, name string) error {
		_, err := s.tags.RemoveMapping(ctx, name, q.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("unmapping quote %s: %w", q.ID, err)
	}

	return nil
}

// mapQuote adds one mapping, recreating the tag if a concurrent delete removed it
// after the quote referenced it.
func (s *Synchronizer) mapQuote(ctx context.Context, q *domain.Quote, name string) error {
	m := domain.TagQuoteMapping{
		TagName:   name,
		QuoteID:   q.ID,
		Author:    q.Author,
		CreatedAt: s.now(),
	}

	_, err := s.tags.AddMapping(ctx, m, q.CreatedAt)
	if !domain.IsNotFound(err) {
		return err
	}

	if _, _, err := s.tags.EnsureTag(ctx, name, q.UpdatedBy, s.now()); err != nil {
		return err
	}

	_, err = s.tags.AddMapping(ctx, m, q.CreatedAt)

	return err
}

// RenameTag moves every quote from oldName to newName and removes the old tag.
// It returns the number of quotes updated. Re-running an interrupted rename
// with the same arguments resumes it.
func (s *Synchronizer) RenameTag(ctx context.Context, oldName, newName, by string) (int, error) {
	display, err := domain.NewTagName(newName)
	if err != nil {
		return 0, err
	}

	oldKey, newKey := domain.NormalizeKey(oldName), domain.NormalizeKey(display)
	logger := logging.FromContextOr(ctx, s.logger).With(
		slog.String("from", oldKey),
		slog.String("to", newKey),
	)

	defer s.cache.invalidate()

	old, err := s.tags.GetTag(ctx, oldKey)
	if domain.IsNotFound(err) {
		return 0, s.finishInterruptedRename(ctx, oldKey, newKey, err)
	}

	if err != nil {
		return 0, err
	}

	if oldKey == newKey {
		return s.relabelTag(ctx, old, display)
	}

	if err := s.prepareRenameTarget(ctx, old, display, by); err != nil {
		return 0, err
	}

	logger.InfoContext(ctx, "renaming tag", slog.Int64("quotes", old.QuoteCount))

	affected, err := s.cascade(ctx, "rename", oldKey, func(ctx context.Context, id string) (bool, error) {
		return s.renameOnQuote(ctx, id, oldKey, display)
	})
	if err != nil {
		return affected, err
	}

	if _, err := s.tags.UpdateTag(ctx, newKey, func(t *domain.Tag) bool {
		if t.RenamedFrom == "" {
			return false
		}

		t.RenamedFrom = ""
		t.UpdatedAt = s.now()

		return true
	}); err != nil {
		return affected, fmt.Errorf("clearing rename marker: %w", err)
	}

	logger.InfoContext(ctx, "tag renamed", slog.Int("affected", affected))

	return affected, nil
}

// finishInterruptedRename handles a rename whose old tag is already gone.
// If the target still carries the marker from this rename, only the marker is left to clear.
func (s *Synchronizer) finishInterruptedRename(ctx context.Context, oldKey, newKey string, notFound error) error {
	target, err := s.tags.GetTag(ctx, newKey)
	if err != nil || target.RenamedFrom != oldKey {
		return notFound
	}

	_, err = s.tags.UpdateTag(ctx, newKey, func(t *domain.Tag) bool {
		t.RenamedFrom = ""
		return true
	})

	return err
}

// prepareRenameTarget creates the target tag carrying the old tag's timestamps and
// a marker naming the source, or accepts an existing target left by an earlier attempt.
func (s *Synchronizer) prepareRenameTarget(ctx context.Context, old *domain.Tag, display, by string) error {
	target := &domain.Tag{
		Name:        display,
		Key:         domain.NormalizeKey(display),
		CreatedAt:   old.CreatedAt,
		UpdatedAt:   s.now(),
		CreatedBy:   old.CreatedBy,
		LastUsedAt:  old.LastUsedAt,
		RenamedFrom: old.Key,
	}

	err := s.tags.CreateTag(ctx, target)
	if err == nil || !domain.IsConflict(err) {
		return err
	}

	existing, err := s.tags.GetTag(ctx, target.Key)
	if err != nil {
		return err
	}

	if existing.RenamedFrom != old.Key {
		return domain.NewConflictErrorWithDetails("tag", "already exists", display)
	}

	return nil
}

func (s *Synchronizer) renameOnQuote(ctx context.Context, id, oldKey, display string) (bool, error) {
	q, changed, err := s.quotes.UpdateQuoteTags(ctx, id, func(q *domain.Quote) bool {
		return replaceTag(q, oldKey, display, s.now())
	})

	switch {
	case domain.IsNotFound(err):
		// Stale mapping for a deleted quote.
	case err != nil:
		return false, err
	default:
		if q.HasTag(display) {
			if err := s.mapQuote(ctx, q, display); err != nil {
				return false, err
			}
		}
	}

	if _, err := s.tags.RemoveMapping(ctx, oldKey, id); err != nil {
		return false, err
	}

	return changed, nil
}

// relabelTag changes only the display form of a tag.
func (s *Synchronizer) relabelTag(ctx context.Context, tag *domain.Tag, display string) (int, error) {
	if tag.Name == display {
		return 0, nil
	}

	if _, err := s.tags.UpdateTag(ctx, tag.Key, func(t *domain.Tag) bool {
		t.Name = display
		t.UpdatedAt = s.now()

		return true
	}); err != nil {
		return 0, err
	}

	ids, err := s.tags.TaggedQuoteIDs(ctx, tag.Key)
	if err != nil {
		return 0, err
	}

	return s.runSteps(ctx, "rename", tag.Key, ids, func(ctx context.Context, id string) (bool, error) {
		q, changed, err := s.quotes.UpdateQuoteTags(ctx, id, func(q *domain.Quote) bool {
			return replaceTag(q, tag.Key, display, s.now())
		})
		if domain.IsNotFound(err) {
			return false, nil
		}

		if err != nil {
			return false, err
		}

		return changed, s.mapQuote(ctx, q, display)
	})
}

// DeleteTag removes a tag from every quote, then removes the tag itself.
// It returns the number of quotes updated.
func (s *Synchronizer) DeleteTag(ctx context.Context, name string) (int, error) {
	key := domain.NormalizeKey(name)

	if _, err := s.tags.GetTag(ctx, key); err != nil {
		return 0, err
	}

	defer s.cache.invalidate()

	affected, err := s.cascade(ctx, "delete", key, func(ctx context.Context, id string) (bool, error) {
		_, changed, err := s.quotes.UpdateQuoteTags(ctx, id, func(q *domain.Quote) bool {
			return removeTag(q, key, s.now())
		})
		if err != nil && !domain.IsNotFound(err) {
			return false, err
		}

		if _, err := s.tags.RemoveMapping(ctx, key, id); err != nil {
			return false, err
		}

		return changed, nil
	})
	if err != nil {
		return affected, err
	}

	logging.FromContextOr(ctx, s.logger).InfoContext(ctx, "tag deleted",
		slog.String("tag", key),
		slog.Int("affected", affected),
	)

	return affected, nil
}

// cascade runs step for every quote mapped to key, then deletes the tag record
// once no mapping remains. Mappings created while it runs are picked up by rescans.
func (s *Synchronizer) cascade(ctx context.Context, op, key string, step func(context.Context, string) (bool, error)) (int, error) {
	affected, total := 0, 0

	for range cascadePasses {
		ids, err := s.tags.TaggedQuoteIDs(ctx, key)
		if err != nil {
			return affected, domain.NewPartialCascadeError(op, key, affected, total, err)
		}

		if len(ids) > 0 {
			total += len(ids)

			n, err := s.runSteps(ctx, op, key, ids, step)
			affected += n

			if err != nil {
				return affected, err
			}
		}

		deleted, err := s.tags.DeleteTag(ctx, key, true)
		if err != nil {
			return affected, domain.NewPartialCascadeError(op, key, affected, total, err)
		}

		if deleted {
			return affected, nil
		}
	}

	return affected, domain.NewPartialCascadeError(op, key, affected, total,
		errors.New("tag still in use after rescans"))
}

// runSteps applies step to each quote with bounded concurrency.
// Any failure is reported as a partial cascade carrying the completed count.
func (s *Synchronizer) runSteps(ctx context.Context, op, key string, ids []string, step func(context.Context, string) (bool, error)) (int, error) {
	results := ParallelPartialLimit(ctx, s.concurrency, ids, step)

	affected := 0
	failed := 0

	var firstErr error

	for i, r := range results {
		switch {
		case r.Err != nil:
			failed++
			s.metrics.CascadeStep(op, "failed")

			if firstErr == nil {
				firstErr = r.Err
			}

			s.logger.WarnContext(ctx, "cascade step failed",
				slog.String("operation", op),
				slog.String("tag", key),
				slog.String("quote_id", ids[i]),
				slog.Any("error", r.Err),
			)
		case r.Value:
			affected++
			s.metrics.CascadeStep(op, "updated")
		default:
			s.metrics.CascadeStep(op, "skipped")
		}
	}

	if failed > 0 {
		return affected, domain.NewPartialCascadeError(op, key, affected, len(ids), firstErr)
	}

	return affected, nil
}

// CleanupUnused deletes every tag with a zero count and no mappings.
// It scans tag records only and returns the deleted names.
func (s *Synchronizer) CleanupUnused(ctx context.Context) ([]string, error) {
	tags, err := s.tags.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	deleted := []string{}

	for _, t := range tags {
		if !t.Unused() {
			continue
		}

		ok, err := s.tags.DeleteTag(ctx, t.Key, true)
		if domain.IsNotFound(err) {
			continue
		}

		if err != nil {
			s.cache.invalidate()
			return deleted, fmt.Errorf("deleting unused tag %q: %w", t.Name, err)
		}

		if ok {
			deleted = append(deleted, t.Name)
		}
	}

	if len(deleted) > 0 {
		s.cache.invalidate()
		s.logger.InfoContext(ctx, "removed unused tags", slog.Int("count", len(deleted)))
	}

	return deleted, nil
}

// replaceTag swaps the tag with key for display, dropping it instead when display is already present.
func replaceTag(q *domain.Quote, key, display string, now time.Time) bool {
	idx := -1
	hasTarget := false
	displayKey := domain.NormalizeKey(display)

	for i, t := range q.Tags {
		switch domain.NormalizeKey(t) {
		case key:
			idx = i
		case displayKey:
			hasTarget = true
		}
	}

	if idx < 0 {
		return false
	}

	if hasTarget {
		q.Tags = append(q.Tags[:idx], q.Tags[idx+1:]...)
	} else {
		if q.Tags[idx] == display {
			return false
		}

		q.Tags[idx] = display
	}

	q.UpdatedAt = now

	return true
}

func removeTag(q *domain.Quote, key string, now time.Time) bool {
	for i, t := range q.Tags {
		if domain.NormalizeKey(t) == key {
			q.Tags = append(q.Tags[:i], q.Tags[i+1:]...)
			q.UpdatedAt = now

			return true
		}
	}

	return false
}
