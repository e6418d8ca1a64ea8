package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// PutAuthor implements ports.AuthorStore.
func (s *Store) PutAuthor(ctx context.Context, a *domain.AuthorAggregate) error {
	rec := authorRecord{
		AuthorKey:    a.AuthorKey,
		Author:       a.Author,
		QuoteCount:   a.QuoteCount,
		Tags:         a.Tags,
		FirstQuoteAt: a.FirstQuoteAt.UTC(),
		LastQuoteAt:  a.LastQuoteAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}

	return s.update(ctx, "put_author", func(txn *badger.Txn) error {
		return setJSON(txn, authorKey(a.AuthorKey), rec)
	})
}

// DeleteAuthor implements ports.AuthorStore.
func (s *Store) DeleteAuthor(ctx context.Context, key string) error {
	return s.update(ctx, "delete_author", func(txn *badger.Txn) error {
		return txn.Delete(authorKey(key))
	})
}

// GetAuthor implements ports.AuthorStore.
func (s *Store) GetAuthor(ctx context.Context, key string) (*domain.AuthorAggregate, error) {
	var out *domain.AuthorAggregate

	err := s.view(ctx, "get_author", func(txn *badger.Txn) error {
		rec, err := getJSON[authorRecord](txn, authorKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.NewNotFoundError("author", key)
		}

		if err != nil {
			return err
		}

		out = rec.toDomain()

		return nil
	})

	return out, err
}

// ListAuthors implements ports.AuthorStore.
func (s *Store) ListAuthors(ctx context.Context) ([]*domain.AuthorAggregate, error) {
	var out []*domain.AuthorAggregate

	err := s.view(ctx, "list_authors", func(txn *badger.Txn) error {
		out = []*domain.AuthorAggregate{}

		return eachKey(txn, prefixAuthor, nil, true, func(item *badger.Item) (bool, error) {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := decode[authorRecord](raw)
			if err != nil {
				return false, err
			}

			out = append(out, rec.toDomain())

			return true, nil
		})
	})

	return out, err
}

func (r *authorRecord) toDomain() *domain.AuthorAggregate {
	return &domain.AuthorAggregate{
		AuthorKey:    r.AuthorKey,
		Author:       r.Author,
		QuoteCount:   r.QuoteCount,
		Tags:         r.Tags,
		FirstQuoteAt: r.FirstQuoteAt,
		LastQuoteAt:  r.LastQuoteAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
