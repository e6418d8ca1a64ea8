package app

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// TagServiceConfig contains dependencies for the tag service.
type TagServiceConfig struct {
	Synchronizer *Synchronizer
	Logger       *slog.Logger
}

// TagService exposes tag administration. Every mutation goes through the synchronizer.
type TagService struct {
	sync   *Synchronizer
	logger *slog.Logger
}

// NewTagService creates a tag service. It panics without a synchronizer.
func NewTagService(cfg TagServiceConfig) *TagService {
	if cfg.Synchronizer == nil {
		panic("app: tag service requires a synchronizer")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TagService{
		sync:   cfg.Synchronizer,
		logger: logger.With(slog.String("component", "tag_service")),
	}
}

// ListTags returns every tag with its quote count, ordered by normalized name.
func (s *TagService) ListTags(ctx context.Context) (_ []*domain.Tag, err error) {
	ctx, span := startSpan(ctx, "TagService.ListTags")
	defer endSpan(span, &err)

	return s.sync.Tags(ctx)
}

// AddTag creates a tag with no quotes.
func (s *TagService) AddTag(ctx context.Context, name string) (_ *domain.Tag, err error) {
	ctx, span := startSpan(ctx, "TagService.AddTag", attribute.String("tag", name))
	defer endSpan(span, &err)

	caller, err := authorize(ctx, "add_tag")
	if err != nil {
		return nil, err
	}

	tag, err := s.sync.AddTag(ctx, name, caller.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tag added", slog.String("tag", tag.Name))

	return tag, nil
}

// RenameTag moves every quote from oldName to newName and returns how many quotes changed.
// After a *domain.PartialCascadeError the same call can be repeated to finish the rename.
func (s *TagService) RenameTag(ctx context.Context, oldName, newName string) (_ int, err error) {
	ctx, span := startSpan(ctx, "TagService.RenameTag",
		attribute.String("tag.from", oldName),
		attribute.String("tag.to", newName),
	)
	defer endSpan(span, &err)

	caller, err := authorize(ctx, "rename_tag")
	if err != nil {
		return 0, err
	}

	affected, err := s.sync.RenameTag(ctx, oldName, newName, caller.ID)
	span.SetAttributes(attribute.Int("tag.affected", affected))

	return affected, err
}

// DeleteTag removes a tag from every quote and deletes it. It returns how many quotes changed.
func (s *TagService) DeleteTag(ctx context.Context, name string) (_ int, err error) {
	ctx, span := startSpan(ctx, "TagService.DeleteTag", attribute.String("tag", name))
	defer endSpan(span, &err)

	if _, err := authorize(ctx, "delete_tag"); err != nil {
		return 0, err
	}

	affected, err := s.sync.DeleteTag(ctx, name)
	span.SetAttributes(attribute.Int("tag.affected", affected))

	return affected, err
}

// CleanupUnusedTags deletes every tag with no quotes and returns their names.
func (s *TagService) CleanupUnusedTags(ctx context.Context) (_ []string, err error) {
	ctx, span := startSpan(ctx, "TagService.CleanupUnusedTags")
	defer endSpan(span, &err)

	if _, err := authorize(ctx, "cleanup_tags"); err != nil {
		return nil, err
	}

	return s.sync.CleanupUnused(ctx)
}
