package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// appendEvent assigns the next sequence number and writes ev to the outbox inside txn.
// A commit that retries takes a fresh number, so sequence order follows commit order
// for any single quote.
func (s *Store) appendEvent(txn *badger.Txn, ev domain.ChangeEvent) error {
	n, err := s.seq.Next()
	if err != nil {
		return err
	}

	ev.Seq = n + 1

	return setJSON(txn, seqKey(prefixOutbox, ev.Seq), newEventRecord(ev))
}

// PendingEvents implements ports.Outbox.
func (s *Store) PendingEvents(ctx context.Context, limit int, skip func(seq uint64) bool) ([]domain.ChangeEvent, error) {
	var out []domain.ChangeEvent

	err := s.view(ctx, "pending_events", func(txn *badger.Txn) error {
		out = make([]domain.ChangeEvent, 0, limit)

		return eachKey(txn, prefixOutbox, nil, true, func(item *badger.Item) (bool, error) {
			seq := seqFromKey(prefixOutbox, item.Key())
			if skip != nil && skip(seq) {
				return true, nil
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := decode[eventRecord](raw)
			if err != nil {
				return false, err
			}

			ev := rec.toDomain()
			ev.Seq = seq
			out = append(out, ev)

			return limit <= 0 || len(out) < limit, nil
		})
	})

	return out, err
}

// AckEvent implements ports.Outbox.
func (s *Store) AckEvent(ctx context.Context, seq uint64) error {
	return s.update(ctx, "ack_event", func(txn *badger.Txn) error {
		return txn.Delete(seqKey(prefixOutbox, seq))
	})
}

// DeadLetter implements ports.Outbox.
func (s *Store) DeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	seq := dl.Event.Seq

	return s.update(ctx, "dead_letter", func(txn *badger.Txn) error {
		if err := txn.Delete(seqKey(prefixOutbox, seq)); err != nil {
			return err
		}

		return setJSON(txn, seqKey(prefixDeadLetter, seq), deadLetterRecord{
			Event:     newEventRecord(dl.Event),
			Attempts:  dl.Attempts,
			LastError: dl.LastError,
			FailedAt:  dl.FailedAt.UTC(),
		})
	})
}

// ListDeadLetters implements ports.Outbox.
func (s *Store) ListDeadLetters(ctx context.Context) ([]domain.DeadLetter, error) {
	var out []domain.DeadLetter

	err := s.view(ctx, "list_dead_letters", func(txn *badger.Txn) error {
		out = []domain.DeadLetter{}

		return eachKey(txn, prefixDeadLetter, nil, true, func(item *badger.Item) (bool, error) {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := decode[deadLetterRecord](raw)
			if err != nil {
				return false, err
			}

			seq := seqFromKey(prefixDeadLetter, item.Key())
			ev := rec.Event.toDomain()
			ev.Seq = seq

			out = append(out, domain.DeadLetter{
				Seq:       seq,
				Event:     ev,
				Attempts:  rec.Attempts,
				LastError: rec.LastError,
				FailedAt:  rec.FailedAt,
			})

			return true, nil
		})
	})

	return out, err
}

// Redrive implements ports.Outbox. Events keep their original sequence numbers.
func (s *Store) Redrive(ctx context.Context) (int, error) {
	moved := 0

	err := s.update(ctx, "redrive", func(txn *badger.Txn) error {
		moved = 0

		type entry struct {
			seq uint64
			rec eventRecord
		}

		var entries []entry

		err := eachKey(txn, prefixDeadLetter, nil, true, func(item *badger.Item) (bool, error) {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			rec, err := decode[deadLetterRecord](raw)
			if err != nil {
				return false, err
			}

			entries = append(entries, entry{seq: seqFromKey(prefixDeadLetter, item.Key()), rec: rec.Event})

			return true, nil
		})
		if err != nil {
			return err
		}

		for _, e := range entries {
			e.rec.Seq = e.seq
			if err := setJSON(txn, seqKey(prefixOutbox, e.seq), e.rec); err != nil {
				return err
			}

			if err := txn.Delete(seqKey(prefixDeadLetter, e.seq)); err != nil {
				return err
			}
		}

		moved = len(entries)

		return nil
	})
	if err != nil {
		return 0, err
	}

	if moved > 0 {
		s.signal()
	}

	return moved, nil
}
