package badgerstore

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

func loadTag(txn *badger.Txn, k string) (*tagRecord, int64, error) {
	rec, err := getJSON[tagRecord](txn, tagKey(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, domain.NewNotFoundError("tag", k)
	}

	if err != nil {
		return nil, 0, err
	}

	count, err := loadCount(txn, k)

	return rec, count, err
}

func loadCount(txn *badger.Txn, k string) (int64, error) {
	item, err := txn.Get(tagCountKey(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	var n int64

	err = item.Value(func(v []byte) error {
		n = decodeCount(v)
		return nil
	})

	return n, err
}

// addCount adjusts a tag count inside txn, never going below zero.
// Concurrent adjustments conflict at commit and are retried by the caller.
func addCount(txn *badger.Txn, k string, delta int64) error {
	n, err := loadCount(txn, k)
	if err != nil {
		return err
	}

	return txn.Set(tagCountKey(k), encodeCount(max(n+delta, 0)))
}

// EnsureTag implements ports.TagStore.
func (s *Store) EnsureTag(ctx context.Context, name, by string, now time.Time) (*domain.Tag, bool, error) {
	tag, err := domain.NewTag(name, by, now)
	if err != nil {
		return nil, false, err
	}

	var (
		out     *domain.Tag
		created bool
	)

	err = s.update(ctx, "ensure_tag", func(txn *badger.Txn) error {
		rec, count, err := loadTag(txn, tag.Key)
		if err == nil {
			out, created = rec.toDomain(count), false
			return nil
		}

		if !domain.IsNotFound(err) {
			return err
		}

		if err := setJSON(txn, tagKey(tag.Key), newTagRecord(tag)); err != nil {
			return err
		}

		out, created = tag, true

		return txn.Set(tagCountKey(tag.Key), encodeCount(0))
	})
	if err != nil {
		return nil, false, err
	}

	return out, created, nil
}

// CreateTag implements ports.TagStore.
func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return s.update(ctx, "create_tag", func(txn *badger.Txn) error {
		found, err := exists(txn, tagKey(tag.Key))
		if err != nil {
			return err
		}

		if found {
			return domain.NewConflictErrorWithDetails("tag", "already exists", tag.Name)
		}

		if err := setJSON(txn, tagKey(tag.Key), newTagRecord(tag)); err != nil {
			return err
		}

		return txn.Set(tagCountKey(tag.Key), encodeCount(0))
	})
}

// GetTag implements ports.TagStore.
func (s *Store) GetTag(ctx context.Context, name string) (*domain.Tag, error) {
	var out *domain.Tag

	err := s.view(ctx, "get_tag", func(txn *badger.Txn) error {
		rec, count, err := loadTag(txn, domain.NormalizeKey(name))
		if err != nil {
			return err
		}

		out = rec.toDomain(count)

		return nil
	})

	return out, err
}

// ListTags implements ports.TagStore.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	var out []*domain.Tag

	err := s.view(ctx, "list_tags", func(txn *badger.Txn) error {
		out = []*domain.Tag{}

		return eachKey(txn, prefixTag, nil, true, func(item *badger.Item) (bool, error) {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := decode[tagRecord](raw)
			if err != nil {
				return false, err
			}

			count, err := loadCount(txn, rec.Key)
			if err != nil {
				return false, err
			}

			out = append(out, rec.toDomain(count))

			return true, nil
		})
	})

	return out, err
}

// DeleteTag implements ports.TagStore.
func (s *Store) DeleteTag(ctx context.Context, name string, requireUnused bool) (bool, error) {
	k := domain.NormalizeKey(name)
	deleted := false

	err := s.update(ctx, "delete_tag", func(txn *badger.Txn) error {
		deleted = false

		_, count, err := loadTag(txn, k)
		if err != nil {
			return err
		}

		if requireUnused {
			if count > 0 {
				return nil
			}

			mapped := false

			err := eachKey(txn, bucket(prefixMapping, k), nil, false, func(*badger.Item) (bool, error) {
				mapped = true
				return false, nil
			})
			if err != nil || mapped {
				return err
			}
		}

		if err := txn.Delete(tagKey(k)); err != nil {
			return err
		}

		deleted = true

		return txn.Delete(tagCountKey(k))
	})

	return deleted, err
}

// UpdateTag implements ports.TagStore.
func (s *Store) UpdateTag(ctx context.Context, name string, mutate func(t *domain.Tag) bool) (*domain.Tag, error) {
	k := domain.NormalizeKey(name)

	var out *domain.Tag

	err := s.update(ctx, "update_tag", func(txn *badger.Txn) error {
		rec, count, err := loadTag(txn, k)
		if err != nil {
			return err
		}

		tag := rec.toDomain(count)
		if !mutate(tag) {
			out = tag
			return nil
		}

		if domain.NormalizeKey(tag.Name) != k {
			return domain.NewValidationErrorWithValue("tag", "update must keep the normalized name", tag.Name)
		}

		tag.Key = k
		out = tag

		return setJSON(txn, tagKey(k), newTagRecord(tag))
	})

	return out, err
}

// TouchTag implements ports.TagStore. A missing tag is not an error:
// it was renamed or deleted after the event was written.
func (s *Store) TouchTag(ctx context.Context, name string, at time.Time) error {
	k := domain.NormalizeKey(name)

	return s.update(ctx, "touch_tag", func(txn *badger.Txn) error {
		rec, err := getJSON[tagRecord](txn, tagKey(k))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		if !at.After(rec.LastUsedAt) {
			return nil
		}

		rec.LastUsedAt = at.UTC()

		return setJSON(txn, tagKey(k), rec)
	})
}

// AddMapping implements ports.TagStore.
func (s *Store) AddMapping(ctx context.Context, m domain.TagQuoteMapping, quoteCreatedAt time.Time) (bool, error) {
	k := domain.NormalizeKey(m.TagName)
	added := false

	err := s.update(ctx, "add_mapping", func(txn *badger.Txn) error {
		added = false

		rec, _, err := loadTag(txn, k)
		if err != nil {
			return err
		}

		mapping := mappingRecord{
			TagKey:    k,
			TagName:   rec.Name,
			QuoteID:   m.QuoteID,
			Author:    m.Author,
			CreatedAt: m.CreatedAt.UTC(),
		}

		item, err := txn.Get(locatorKey(k, m.QuoteID))
		switch {
		case err == nil:
			existing, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			old, err := getJSON[mappingRecord](txn, existing)
			if err != nil {
				return err
			}

			mapping.CreatedAt = old.CreatedAt

			return setJSON(txn, existing, mapping)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		mk := mappingKey(k, quoteCreatedAt, m.QuoteID)
		if err := setJSON(txn, mk, mapping); err != nil {
			return err
		}

		if err := txn.Set(locatorKey(k, m.QuoteID), mk); err != nil {
			return err
		}

		added = true

		return addCount(txn, k, 1)
	})

	return added, err
}

// RemoveMapping implements ports.TagStore.
func (s *Store) RemoveMapping(ctx context.Context, tag, quoteID string) (bool, error) {
	k := domain.NormalizeKey(tag)
	removed := false

	err := s.update(ctx, "remove_mapping", func(txn *badger.Txn) error {
		removed = false

		item, err := txn.Get(locatorKey(k, quoteID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		mk, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if err := txn.Delete(mk); err != nil {
			return err
		}

		if err := txn.Delete(locatorKey(k, quoteID)); err != nil {
			return err
		}

		removed = true

		return addCount(txn, k, -1)
	})

	return removed, err
}

// ListByTag implements ports.TagStore.
func (s *Store) ListByTag(ctx context.Context, tag string, req domain.PageRequest) (domain.Page[*domain.Quote], error) {
	partition := bucket(prefixMapping, domain.NormalizeKey(tag))
	page := domain.Page[*domain.Quote]{Items: []*domain.Quote{}}

	from, err := decodeCursor(req.Cursor, partition)
	if err != nil {
		return page, err
	}

	limit := req.ClampedLimit()

	err = s.view(ctx, "list_by_tag", func(txn *badger.Txn) error {
		page = domain.Page[*domain.Quote]{Items: make([]*domain.Quote, 0, limit)}

		var last []byte

		return eachKey(txn, partition, from, true, func(item *badger.Item) (bool, error) {
			if len(page.Items) == limit {
				page.HasMore = true
				page.NextCursor = encodeCursor(last)

				return false, nil
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			m, err := decode[mappingRecord](raw)
			if err != nil {
				return false, err
			}

			rec, err := loadQuote(txn, m.QuoteID)
			if domain.IsNotFound(err) {
				return true, nil
			}

			if err != nil {
				return false, err
			}

			page.Items = append(page.Items, rec.toDomain())
			last = item.KeyCopy(nil)

			return true, nil
		})
	})

	return page, err
}

// TaggedQuoteIDs implements ports.TagStore.
func (s *Store) TaggedQuoteIDs(ctx context.Context, tag string) ([]string, error) {
	prefix := bucket(prefixLocator, domain.NormalizeKey(tag))

	var ids []string

	err := s.view(ctx, "tagged_quote_ids", func(txn *badger.Txn) error {
		ids = []string{}

		return eachKey(txn, prefix, nil, false, func(item *badger.Item) (bool, error) {
			ids = append(ids, string(item.Key()[len(prefix):]))
			return true, nil
		})
	})

	return ids, err
}
