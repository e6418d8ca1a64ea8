package app

import (
	"log/slog"
	"time"

	"github.com/jsamuelsen/quotevault/internal/duplicate"
	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

// Store is everything the application layer needs from persistence.
type Store interface {
	ports.QuoteStore
	ports.TagStore
	ports.AuthorStore
}

// Options tune the services built by New. Zero values select defaults.
type Options struct {
	CandidateLimit     int
	CascadeConcurrency int
	TagCacheTTL        time.Duration
	SearchBudget       int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Services groups the caller-facing services over one store.
//
// Example usage:
//
//	// In main.go
//	svc := app.New(store, app.Options{TagCacheTTL: time.Minute}, m, logger)
//
//	// In an HTTP handler
//	q, err := svc.Quotes.CreateQuote(ctx, app.CreateQuoteInput{Text: text, Author: author})
type Services struct {
	Quotes       *QuoteService
	Tags         *TagService
	Synchronizer *Synchronizer
	Detector     *duplicate.Detector
}

// New wires the synchronizer, duplicate detector and services.
// A nil metrics value disables instrumentation.
func New(store Store, opts Options, m *metrics.Metrics, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}

	sync := NewSynchronizer(SynchronizerConfig{
		Quotes:      store,
		Tags:        store,
		Concurrency: opts.CascadeConcurrency,
		CacheTTL:    opts.TagCacheTTL,
		Metrics:     m,
		Logger:      logger,
		Clock:       opts.Clock,
	})

	detector := duplicate.NewDetector(duplicate.DetectorConfig{
		Source:         store,
		CandidateLimit: opts.CandidateLimit,
		Recorder:       m,
		Logger:         logger,
	})

	return &Services{
		Quotes: NewQuoteService(QuoteServiceConfig{
			Quotes:       store,
			Tags:         store,
			Authors:      store,
			Synchronizer: sync,
			Detector:     detector,
			Executor:     NewExecutor(logger),
			SearchBudget: opts.SearchBudget,
			Logger:       logger,
			Clock:        opts.Clock,
		}),
		Tags:         NewTagService(TagServiceConfig{Synchronizer: sync, Logger: logger}),
		Synchronizer: sync,
		Detector:     detector,
	}
}
