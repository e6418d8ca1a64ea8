package badgerstore

import (
	"bytes"
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

// PutQuote implements ports.QuoteStore.
func (s *Store) PutQuote(ctx context.Context, q, prev *domain.Quote, opts ports.WriteOptions) error {
	err := s.update(ctx, "put_quote", func(txn *badger.Txn) error {
		var stored *quoteRecord

		if prev == nil {
			found, err := exists(txn, quoteKey(q.ID))
			if err != nil {
				return err
			}

			if found {
				return domain.NewConflictError("quote", "id already exists")
			}
		} else {
			rec, err := loadQuote(txn, q.ID)
			if err != nil {
				return err
			}

			stored = rec
			if !stored.UpdatedAt.Equal(prev.UpdatedAt) {
				return domain.NewConflictErrorWithDetails("quote", "modified since it was read", q.ID)
			}

			if stored.AuthorKey != q.AuthorKey {
				if err := txn.Delete(authorIndexKey(stored.toDomain())); err != nil {
					return err
				}
			}
		}

		rec := newQuoteRecord(q)

		guard, err := claimGuard(txn, q.ID, stored, opts)
		if err != nil {
			return err
		}

		rec.Guard = guard

		if err := writeQuote(txn, rec); err != nil {
			return err
		}

		var before *domain.Quote
		if stored != nil {
			before = stored.toDomain()
		}

		return s.appendEvent(txn, domain.NewQuoteEvent(before, q, q.UpdatedAt))
	})
	if err != nil {
		return err
	}

	s.signal()

	return nil
}

// claimGuard releases the guard held by the stored version when content changed
// and takes the new one. It returns the guard key the quote now holds.
func claimGuard(txn *badger.Txn, id string, stored *quoteRecord, opts ports.WriteOptions) ([]byte, error) {
	var want []byte
	if opts.Fingerprint != "" {
		want = guardKey(opts.Fingerprint)
	}

	if stored != nil && stored.Guard != nil {
		if bytes.Equal(stored.Guard, want) {
			return want, nil
		}

		if err := releaseGuard(txn, stored.Guard, id); err != nil {
			return nil, err
		}
	}

	if want == nil {
		return nil, nil
	}

	item, err := txn.Get(want)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return want, txn.Set(want, []byte(id))
	case err != nil:
		return nil, err
	}

	holder, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	if string(holder) == id {
		return want, nil
	}

	if opts.EnforceUnique {
		return nil, &ports.GuardTakenError{HolderID: string(holder)}
	}

	return nil, nil
}

func releaseGuard(txn *badger.Txn, guard []byte, id string) error {
	item, err := txn.Get(guard)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	holder, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}

	if string(holder) != id {
		return nil
	}

	return txn.Delete(guard)
}

func writeQuote(txn *badger.Txn, rec *quoteRecord) error {
	q := rec.toDomain()

	if err := setJSON(txn, quoteKey(rec.ID), rec); err != nil {
		return err
	}

	if err := txn.Set(authorIndexKey(q), []byte(q.ID)); err != nil {
		return err
	}

	return txn.Set(recencyKey(q), []byte(q.ID))
}

func loadQuote(txn *badger.Txn, id string) (*quoteRecord, error) {
	rec, err := getJSON[quoteRecord](txn, quoteKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.NewNotFoundError("quote", id)
	}

	return rec, err
}

// GetQuote implements ports.QuoteStore.
func (s *Store) GetQuote(ctx context.Context, id string) (*domain.Quote, error) {
	var q *domain.Quote

	err := s.view(ctx, "get_quote", func(txn *badger.Txn) error {
		rec, err := loadQuote(txn, id)
		if err != nil {
			return err
		}

		q = rec.toDomain()

		return nil
	})

	return q, err
}

// BatchGetQuotes implements ports.QuoteStore.
func (s *Store) BatchGetQuotes(ctx context.Context, ids []string) ([]*domain.Quote, error) {
	var out []*domain.Quote

	err := s.view(ctx, "batch_get_quotes", func(txn *badger.Txn) error {
		out = make([]*domain.Quote, 0, len(ids))

		for _, id := range ids {
			rec, err := loadQuote(txn, id)
			if domain.IsNotFound(err) {
				continue
			}

			if err != nil {
				return err
			}

			out = append(out, rec.toDomain())
		}

		return nil
	})

	return out, err
}

// DeleteQuote implements ports.QuoteStore.
func (s *Store) DeleteQuote(ctx context.Context, q *domain.Quote) error {
	err := s.update(ctx, "delete_quote", func(txn *badger.Txn) error {
		rec, err := loadQuote(txn, q.ID)
		if err != nil {
			return err
		}

		stored := rec.toDomain()

		for _, k := range [][]byte{quoteKey(rec.ID), authorIndexKey(stored), recencyKey(stored)} {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		if rec.Guard != nil {
			if err := releaseGuard(txn, rec.Guard, rec.ID); err != nil {
				return err
			}
		}

		return s.appendEvent(txn, domain.NewQuoteEvent(stored, nil, q.UpdatedAt))
	})
	if err != nil {
		return err
	}

	s.signal()

	return nil
}

// UpdateQuoteTags implements ports.QuoteStore.
func (s *Store) UpdateQuoteTags(ctx context.Context, id string, mutate func(q *domain.Quote) bool) (*domain.Quote, bool, error) {
	var (
		result  *domain.Quote
		changed bool
	)

	err := s.update(ctx, "update_quote_tags", func(txn *badger.Txn) error {
		rec, err := loadQuote(txn, id)
		if err != nil {
			return err
		}

		before := rec.toDomain()
		after := rec.toDomain()

		changed = mutate(after)
		if !changed {
			result = before
			return nil
		}

		next := newQuoteRecord(after)
		next.Guard = rec.Guard
		// Index keys depend only on author and creation time, which tag edits keep.
		next.AuthorKey = rec.AuthorKey
		next.CreatedAt = rec.CreatedAt

		if err := setJSON(txn, quoteKey(id), next); err != nil {
			return err
		}

		result = next.toDomain()

		return s.appendEvent(txn, domain.NewQuoteEvent(before, result, result.UpdatedAt))
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.signal()
	}

	return result, changed, nil
}

// ListByAuthor implements ports.QuoteStore.
func (s *Store) ListByAuthor(ctx context.Context, authorKey string, req domain.PageRequest) (domain.Page[*domain.Quote], error) {
	return s.pageIndex(ctx, "list_by_author", bucket(prefixAuthorIndex, authorKey), req)
}

// ListRecent implements ports.QuoteStore.
func (s *Store) ListRecent(ctx context.Context, req domain.PageRequest) (domain.Page[*domain.Quote], error) {
	return s.pageIndex(ctx, "list_recent", prefixRecency, req)
}

// pageIndex pages through an index partition whose values are quote ids.
func (s *Store) pageIndex(ctx context.Context, op string, partition []byte, req domain.PageRequest) (domain.Page[*domain.Quote], error) {
	page := domain.Page[*domain.Quote]{Items: []*domain.Quote{}}

	from, err := decodeCursor(req.Cursor, partition)
	if err != nil {
		return page, err
	}

	limit := req.ClampedLimit()

	err = s.view(ctx, op, func(txn *badger.Txn) error {
		page = domain.Page[*domain.Quote]{Items: make([]*domain.Quote, 0, limit)}

		var last []byte

		return eachKey(txn, partition, from, true, func(item *badger.Item) (bool, error) {
			if len(page.Items) == limit {
				page.HasMore = true
				page.NextCursor = encodeCursor(last)

				return false, nil
			}

			id, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := loadQuote(txn, string(id))
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

// ScanRecent implements ports.QuoteStore.
func (s *Store) ScanRecent(ctx context.Context, req domain.PageRequest, budget int, match func(*domain.Quote) bool) (domain.Page[*domain.Quote], error) {
	page := domain.Page[*domain.Quote]{Items: []*domain.Quote{}}

	from, err := decodeCursor(req.Cursor, prefixRecency)
	if err != nil {
		return page, err
	}

	limit := req.ClampedLimit()

	err = s.view(ctx, "scan_recent", func(txn *badger.Txn) error {
		page = domain.Page[*domain.Quote]{Items: make([]*domain.Quote, 0, limit)}

		var last []byte

		scanned := 0

		return eachKey(txn, prefixRecency, from, true, func(item *badger.Item) (bool, error) {
			if len(page.Items) == limit || (budget > 0 && scanned == budget) {
				page.HasMore = true
				page.NextCursor = encodeCursor(last)

				return false, nil
			}

			scanned++
			last = item.KeyCopy(nil)

			id, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := loadQuote(txn, string(id))
			if domain.IsNotFound(err) {
				return true, nil
			}

			if err != nil {
				return false, err
			}

			if q := rec.toDomain(); match(q) {
				page.Items = append(page.Items, q)
			}

			return true, nil
		})
	})

	return page, err
}

// AuthorCandidates implements ports.QuoteStore.
func (s *Store) AuthorCandidates(ctx context.Context, prefix string, limit int) ([]*domain.Quote, error) {
	return s.collectIndex(ctx, "author_candidates", key(prefixAuthorIndex, prefix), limit)
}

// AuthorQuotes implements ports.QuoteStore.
func (s *Store) AuthorQuotes(ctx context.Context, authorKey string) ([]*domain.Quote, error) {
	return s.collectIndex(ctx, "author_quotes", bucket(prefixAuthorIndex, authorKey), 0)
}

// AllQuotes implements ports.QuoteStore.
func (s *Store) AllQuotes(ctx context.Context) ([]*domain.Quote, error) {
	return s.collectIndex(ctx, "all_quotes", prefixRecency, 0)
}

// collectIndex loads the quotes referenced under an index prefix. A zero limit means all.
func (s *Store) collectIndex(ctx context.Context, op string, prefix []byte, limit int) ([]*domain.Quote, error) {
	var out []*domain.Quote

	err := s.view(ctx, op, func(txn *badger.Txn) error {
		out = []*domain.Quote{}

		return eachKey(txn, prefix, nil, true, func(item *badger.Item) (bool, error) {
			id, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := loadQuote(txn, string(id))
			if domain.IsNotFound(err) {
				return true, nil
			}

			if err != nil {
				return false, err
			}

			out = append(out, rec.toDomain())

			return limit <= 0 || len(out) < limit, nil
		})
	})

	return out, err
}
