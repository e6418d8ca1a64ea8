package domain

import "time"

// EventKind names a committed change.
type EventKind string

// Change kinds emitted by quote writes.
const (
	EventQuoteCreated EventKind = "quote.created"
	EventQuoteUpdated EventKind = "quote.updated"
	EventQuoteDeleted EventKind = "quote.deleted"
)

// ChangeEvent is appended to the outbox in the same transaction as the quote write.
// AuthorKeys lists every author bucket the change touched; Tags lists tags newly applied.
type ChangeEvent struct {
	Seq        uint64
	Kind       EventKind
	QuoteID    string
	AuthorKeys []string
	Tags       []string
	OccurredAt time.Time
}

// DeadLetter is an event the pipeline gave up on.
type DeadLetter struct {
	Seq       uint64
	Event     ChangeEvent
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// Export is a full snapshot of the catalogue.
type Export struct {
	Quotes  []*Quote
	Tags    []*Tag
	Authors []string

	// AuthorStats holds the derived aggregates as last computed by the pipeline.
	AuthorStats []*AuthorAggregate

	ExportedAt time.Time
	ExportedBy string
}

// NewQuoteEvent describes a committed quote write.
// prev is nil for creations; next is nil for deletions.
func NewQuoteEvent(prev, next *Quote, at time.Time) ChangeEvent {
	ev := ChangeEvent{OccurredAt: at}

	switch {
	case prev == nil && next != nil:
		ev.Kind = EventQuoteCreated
		ev.QuoteID = next.ID
		ev.Tags = append([]string(nil), next.Tags...)
	case next == nil && prev != nil:
		ev.Kind = EventQuoteDeleted
		ev.QuoteID = prev.ID
	case prev != nil:
		ev.Kind = EventQuoteUpdated
		ev.QuoteID = next.ID
		ev.Tags, _ = DiffTags(prev.Tags, next.Tags)
	}

	if prev != nil {
		ev.AuthorKeys = append(ev.AuthorKeys, prev.AuthorKey)
	}

	if next != nil && (prev == nil || next.AuthorKey != prev.AuthorKey) {
		ev.AuthorKeys = append(ev.AuthorKeys, next.AuthorKey)
	}

	return ev
}
