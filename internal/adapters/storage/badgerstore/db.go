// Package badgerstore implements the quote catalogue ports on an embedded BadgerDB.
//
// Every entity and index lives in its own byte-prefixed key partition.
// Listings walk a single partition in key order; newest-first ordering comes
// from inverted timestamps in the index keys. Multi-key writes for one
// entity commit in one optimistic transaction, and transaction conflicts and
// local throttling are retried with bounded backoff before surfacing
// domain.ErrThrottled.
package badgerstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// encryptedIndexCacheSize is required by badger once encryption is enabled.
const encryptedIndexCacheSize = 64 << 20

// Config holds database settings.
type Config struct {
	// Path is the data directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in memory. Used by tests and the demo profile.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval runs value log GC periodically. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64

	// EncryptionKey enables encryption at rest. Must be 16, 24 or 32 bytes.
	EncryptionKey []byte

	// Logger receives badger's internal logs. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a persistent database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB is an open database plus its background value log GC.
type DB struct {
	*badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the database described by cfg.
func Open(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store path is required for a persistent database")
		}

		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", cfg.Path, err)
		}

		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}

	if len(cfg.EncryptionKey) > 0 {
		switch len(cfg.EncryptionKey) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", len(cfg.EncryptionKey))
		}

		opts = opts.WithEncryptionKey(cfg.EncryptionKey).WithIndexCacheSize(encryptedIndexCacheSize)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With(slog.String("component", "badger"))})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	wrapped := &DB{DB: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		wrapped.startGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}

	return wrapped, nil
}

// OpenInMemory opens an empty in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

func (d *DB) startGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	d.gcStop = make(chan struct{})
	d.gcDone = make(chan struct{})

	go func() {
		defer close(d.gcDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.gcStop:
				return
			case <-ticker.C:
				err := d.RunValueLogGC(ratio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
					logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.gcStop != nil {
		close(d.gcStop)
		<-d.gcDone
		d.gcStop = nil
	}

	return d.DB.Close()
}
