package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/time/rate"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
	"github.com/jsamuelsen/quotevault/internal/platform/retry"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

var (
	_ ports.QuoteStore    = (*Store)(nil)
	_ ports.TagStore      = (*Store)(nil)
	_ ports.AuthorStore   = (*Store)(nil)
	_ ports.Outbox        = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// errRateLimited marks an attempt refused by the local limiter.
var errRateLimited = errors.New("store rate limit exceeded")

// sequenceBandwidth is how many outbox sequence numbers are leased at once.
const sequenceBandwidth = 256

// StoreConfig holds dependencies for the store.
type StoreConfig struct {
	DB *DB

	// Retry bounds retries of conflicting or throttled operations.
	Retry retry.Policy

	// RateLimit caps store operations per second. Zero disables the limiter.
	RateLimit float64
	RateBurst int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Store implements ports.QuoteStore, ports.TagStore, ports.AuthorStore and ports.Outbox.
type Store struct {
	db      *DB
	seq     *badger.Sequence
	limiter *rate.Limiter
	policy  retry.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
	notify  chan struct{}
}

// NewStore creates a store over an open database.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DB == nil {
		return nil, errors.New("store database is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seq, err := cfg.DB.GetSequence(keyOutboxSequence, sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("leasing outbox sequence: %w", err)
	}

	s := &Store{
		db:      cfg.DB,
		seq:     seq,
		policy:  cfg.Retry,
		metrics: cfg.Metrics,
		logger:  logger.With(slog.String("component", "store")),
		notify:  make(chan struct{}, 1),
	}

	if cfg.RateLimit > 0 {
		burst := max(cfg.RateBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return s, nil
}

// Close releases the leased outbox sequence range. The database stays open.
func (s *Store) Close() error {
	return s.seq.Release()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "store"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	if s.db.IsClosed() {
		return domain.NewUnavailableError("store", "database closed")
	}

	return s.view(ctx, "health", func(txn *badger.Txn) error {
		_, err := txn.Get(keyOutboxSequence)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		return err
	})
}

// Notifications implements ports.Outbox.
func (s *Store) Notifications() <-chan struct{} {
	return s.notify
}

func (s *Store) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Store) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	return s.run(ctx, op, func() error {
		return s.db.Update(fn)
	})
}

func (s *Store) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	return s.run(ctx, op, func() error {
		return s.db.View(fn)
	})
}

// run executes fn, retrying transaction conflicts and limiter refusals.
// Exhausted retries surface as domain.ThrottledError.
func (s *Store) run(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts, err := retry.Do(ctx, s.policy, func() error {
		if s.limiter != nil && !s.limiter.Allow() {
			return errRateLimited
		}

		return fn()
	}, retryable, func(err error, wait time.Duration) {
		reason := "conflict"
		if errors.Is(err, errRateLimited) {
			reason = "throttled"
		}

		s.metrics.StoreRetry(op, reason)
		s.logger.DebugContext(ctx, "retrying store operation",
			slog.String("operation", op),
			slog.String("reason", reason),
			slog.Duration("wait", wait),
		)
	})
	if err == nil {
		return nil
	}

	if retryable(err) {
		s.metrics.StoreGaveUp(op)
		s.logger.WarnContext(ctx, "store operation throttled",
			slog.String("operation", op),
			slog.Int("attempts", attempts),
		)

		return domain.NewThrottledError(op, attempts, err)
	}

	return err
}

func retryable(err error) bool {
	return errors.Is(err, badger.ErrConflict) || errors.Is(err, errRateLimited)
}

func getJSON[T any](txn *badger.Txn, k []byte) (*T, error) {
	item, err := txn.Get(k)
	if err != nil {
		return nil, err
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	v, err := decode[T](raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", k, err)
	}

	return v, nil
}

func setJSON(txn *badger.Txn, k []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", k, err)
	}

	return txn.Set(k, raw)
}

func exists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// eachKey calls fn for every key under prefix, starting after from when set.
// fn returns false to stop.
func eachKey(txn *badger.Txn, prefix, from []byte, withValues bool, fn func(item *badger.Item) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = withValues

	it := txn.NewIterator(opts)
	defer it.Close()

	start := prefix
	if from != nil {
		start = from
	}

	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if from != nil && string(item.Key()) == string(from) {
			continue
		}

		more, err := fn(item)
		if err != nil {
			return err
		}

		if !more {
			return nil
		}
	}

	return nil
}
