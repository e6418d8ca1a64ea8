package badgerstore

import (
	"encoding/json"
	"time"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

type quoteRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	AuthorKey string    `json:"author_key"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`

	// Guard is the uniqueness guard key held by this quote, if any.
	Guard []byte `json:"guard,omitempty"`
}

func newQuoteRecord(q *domain.Quote) *quoteRecord {
	return &quoteRecord{
		ID:        q.ID,
		Text:      q.Text,
		Author:    q.Author,
		AuthorKey: q.AuthorKey,
		Tags:      append([]string(nil), q.Tags...),
		CreatedAt: q.CreatedAt.UTC(),
		UpdatedAt: q.UpdatedAt.UTC(),
		CreatedBy: q.CreatedBy,
		UpdatedBy: q.UpdatedBy,
	}
}

func (r *quoteRecord) toDomain() *domain.Quote {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}

	return &domain.Quote{
		ID:        r.ID,
		Text:      r.Text,
		Author:    r.Author,
		AuthorKey: r.AuthorKey,
		Tags:      append([]string(nil), tags...),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		CreatedBy: r.CreatedBy,
		UpdatedBy: r.UpdatedBy,
	}
}

type tagRecord struct {
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by"`
	LastUsedAt  time.Time `json:"last_used_at,omitzero"`
	RenamedFrom string    `json:"renamed_from,omitempty"`
}

func newTagRecord(t *domain.Tag) *tagRecord {
	return &tagRecord{
		Name:        t.Name,
		Key:         t.Key,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
		CreatedBy:   t.CreatedBy,
		LastUsedAt:  t.LastUsedAt.UTC(),
		RenamedFrom: t.RenamedFrom,
	}
}

func (r *tagRecord) toDomain(count int64) *domain.Tag {
	return &domain.Tag{
		Name:        r.Name,
		Key:         r.Key,
		QuoteCount:  count,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CreatedBy:   r.CreatedBy,
		LastUsedAt:  r.LastUsedAt,
		RenamedFrom: r.RenamedFrom,
	}
}

type mappingRecord struct {
	TagKey    string    `json:"tag_key"`
	TagName   string    `json:"tag_name"`
	QuoteID   string    `json:"quote_id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type authorRecord struct {
	AuthorKey    string    `json:"author_key"`
	Author       string    `json:"author"`
	QuoteCount   int       `json:"quote_count"`
	Tags         []string  `json:"tags"`
	FirstQuoteAt time.Time `json:"first_quote_at"`
	LastQuoteAt  time.Time `json:"last_quote_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type eventRecord struct {
	Seq        uint64           `json:"seq"`
	Kind       domain.EventKind `json:"kind"`
	QuoteID    string           `json:"quote_id"`
	AuthorKeys []string         `json:"author_keys"`
	Tags       []string         `json:"tags,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func newEventRecord(ev domain.ChangeEvent) eventRecord {
	return eventRecord{
		Seq:        ev.Seq,
		Kind:       ev.Kind,
		QuoteID:    ev.QuoteID,
		AuthorKeys: ev.AuthorKeys,
		Tags:       ev.Tags,
		OccurredAt: ev.OccurredAt.UTC(),
	}
}

func (r eventRecord) toDomain() domain.ChangeEvent {
	return domain.ChangeEvent{
		Seq:        r.Seq,
		Kind:       r.Kind,
		QuoteID:    r.QuoteID,
		AuthorKeys: r.AuthorKeys,
		Tags:       r.Tags,
		OccurredAt: r.OccurredAt,
	}
}

type deadLetterRecord struct {
	Event     eventRecord `json:"event"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error"`
	FailedAt  time.Time   `json:"failed_at"`
}

func decode[T any](b []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}

	return &v, nil
}
