// Package pipeline consumes committed change events and maintains derived,
// non-authoritative state: author aggregates and tag last-used times.
//
// Events are read from the store's outbox in sequence order and sharded by
// quote id, so events for one quote are handled in commit order while
// different quotes proceed in parallel. Delivery is at least once. Failed
// events are retried with backoff and then moved to the dead-letter
// partition; they never block other events or the write path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
	"github.com/jsamuelsen/quotevault/internal/platform/retry"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

// Defaults used when a config field is unset.
const (
	DefaultWorkers      = 4
	DefaultPollInterval = 500 * time.Millisecond
	DefaultBatchSize    = 100
)

// ErrAlreadyStarted is returned when Start is called on a running dispatcher.
var ErrAlreadyStarted = errors.New("pipeline already started")

// Config holds dependencies and tuning for the dispatcher.
type Config struct {
	Outbox   ports.Outbox
	Handlers []Handler

	Workers      int
	PollInterval time.Duration
	BatchSize    int

	// Retry bounds attempts per event before it is dead-lettered.
	Retry   retry.Policy
	Breaker BreakerConfig

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Stats is a point-in-time view of the dispatcher counters.
type Stats struct {
	Processed    uint64
	Retried      uint64
	DeadLettered uint64
	InFlight     int
	Breaker      string
}

// Dispatcher polls the outbox and hands events to sharded workers.
type Dispatcher struct {
	outbox       ports.Outbox
	handlers     []Handler
	workers      int
	pollInterval time.Duration
	batchSize    int
	policy       retry.Policy
	breaker      *breaker
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	inflight map[uint64]struct{}
	running  bool
	stop     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	processed    atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
}

// New creates a dispatcher. It fails without an outbox or handlers.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Outbox == nil {
		return nil, errors.New("pipeline outbox is required")
	}

	if len(cfg.Handlers) == 0 {
		return nil, errors.New("pipeline needs at least one handler")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "pipeline"))

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	d := &Dispatcher{
		outbox:       cfg.Outbox,
		handlers:     cfg.Handlers,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		policy:       cfg.Retry,
		metrics:      cfg.Metrics,
		logger:       logger,
		now:          clock,
		inflight:     make(map[uint64]struct{}),
	}

	if d.workers <= 0 {
		d.workers = DefaultWorkers
	}

	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}

	if d.batchSize <= 0 {
		d.batchSize = DefaultBatchSize
	}

	d.breaker = newBreaker(cfg.Breaker, clock, func(from, to BreakerState) {
		logger.Warn("pipeline breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return d, nil
}

// Start launches the poll loop and workers. They run until Shutdown is
// called or ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.stop = make(chan struct{})
	d.running = true

	queues := make([]chan domain.ChangeEvent, d.workers)
	for i := range queues {
		queues[i] = make(chan domain.ChangeEvent, d.batchSize)

		d.wg.Go(func() {
			for ev := range queues[i] {
				d.process(runCtx, ev)
			}
		})
	}

	d.wg.Go(func() { d.loop(runCtx, queues) })

	d.logger.InfoContext(ctx, "pipeline started",
		slog.Int("workers", d.workers),
		slog.Duration("poll_interval", d.pollInterval),
	)

	return nil
}

// Shutdown stops polling and waits for queued events to finish.
// When ctx expires first, in-flight handlers are canceled and their events
// stay in the outbox for the next start.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}

	d.running = false
	close(d.stop)
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		d.logger.InfoContext(ctx, "pipeline stopped")

		return nil
	case <-ctx.Done():
		cancel()
		<-done
		d.logger.WarnContext(ctx, "pipeline stopped before queued events finished")

		return ctx.Err()
	}
}

func (d *Dispatcher) loop(ctx context.Context, queues []chan domain.ChangeEvent) {
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if !d.poll(ctx, queues) {
			return
		}

		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.outbox.Notifications():
		}
	}
}

// poll dispatches one batch. It returns false when the dispatcher is stopping.
func (d *Dispatcher) poll(ctx context.Context, queues []chan domain.ChangeEvent) bool {
	if !d.breaker.allow() {
		return true
	}

	events, err := d.outbox.PendingEvents(ctx, d.batchSize, d.isInflight)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}

		d.breaker.failure()
		d.logger.WarnContext(ctx, "reading outbox failed", slog.Any("error", err))

		return true
	}

	d.metrics.SetBacklog(len(events))

	for _, ev := range events {
		d.markInflight(ev.Seq)

		select {
		case queues[shard(ev.QuoteID, len(queues))] <- ev:
		case <-d.stop:
			d.clearInflight(ev.Seq)
			return false
		case <-ctx.Done():
			d.clearInflight(ev.Seq)
			return false
		}
	}

	return true
}

// Drain handles every pending event synchronously, in sequence order, and
// returns how many were handled. It must not run while the dispatcher is started.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	handled := 0
	seen := make(map[uint64]bool)

	for {
		events, err := d.outbox.PendingEvents(ctx, d.batchSize, func(seq uint64) bool { return seen[seq] })
		if err != nil {
			return handled, err
		}

		if len(events) == 0 {
			return handled, nil
		}

		for _, ev := range events {
			seen[ev.Seq] = true

			d.markInflight(ev.Seq)
			d.process(ctx, ev)
			handled++
		}

		if err := ctx.Err(); err != nil {
			return handled, err
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, ev domain.ChangeEvent) {
	defer d.clearInflight(ev.Seq)

	logger := d.logger.With(
		slog.Uint64("seq", ev.Seq),
		slog.String("kind", string(ev.Kind)),
		slog.String("quote_id", ev.QuoteID),
	)

	attempts, err := retry.Do(ctx, d.policy,
		func() error { return d.handle(ctx, ev) },
		func(error) bool { return ctx.Err() == nil },
		func(err error, wait time.Duration) {
			d.retried.Add(1)
			logger.DebugContext(ctx, "retrying event",
				slog.Any("error", err),
				slog.Duration("wait", wait),
			)
		},
	)

	switch {
	case err == nil:
		if ackErr := d.outbox.AckEvent(ctx, ev.Seq); ackErr != nil {
			logger.WarnContext(ctx, "ack failed, event will be redelivered", slog.Any("error", ackErr))
		}

		d.processed.Add(1)
		d.breaker.success()
		d.metrics.PipelineEvent(string(ev.Kind), "processed")
	case ctx.Err() != nil:
		// The event stays in the outbox and is redelivered after restart.
		d.metrics.PipelineEvent(string(ev.Kind), "canceled")
	default:
		d.breaker.failure()
		d.deadLetter(ctx, logger, ev, attempts, err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev domain.ChangeEvent) error {
	for _, h := range d.handlers {
		if err := h.Handle(ctx, ev); err != nil {
			return fmt.Errorf("%s: %w", h.Name(), err)
		}
	}

	return nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, logger *slog.Logger, ev domain.ChangeEvent, attempts int, cause error) {
	dl := domain.DeadLetter{
		Seq:       ev.Seq,
		Event:     ev,
		Attempts:  attempts,
		LastError: cause.Error(),
		FailedAt:  d.now(),
	}

	if err := d.outbox.DeadLetter(ctx, dl); err != nil {
		logger.ErrorContext(ctx, "dead-lettering failed, event will be redelivered",
			slog.Any("error", err),
			slog.Any("cause", cause),
		)

		return
	}

	d.deadLettered.Add(1)
	d.metrics.PipelineEvent(string(ev.Kind), "dead_lettered")
	logger.WarnContext(ctx, "event dead-lettered",
		slog.Int("attempts", attempts),
		slog.Any("error", cause),
	)
}

// ListDeadLetters returns events the pipeline gave up on.
func (d *Dispatcher) ListDeadLetters(ctx context.Context) ([]domain.DeadLetter, error) {
	return d.outbox.ListDeadLetters(ctx)
}

// Redrive moves every dead letter back into the outbox and returns how many moved.
func (d *Dispatcher) Redrive(ctx context.Context) (int, error) {
	n, err := d.outbox.Redrive(ctx)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		d.logger.InfoContext(ctx, "dead letters redriven", slog.Int("count", n))
	}

	return n, nil
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	inflight := len(d.inflight)
	d.mu.Unlock()

	return Stats{
		Processed:    d.processed.Load(),
		Retried:      d.retried.Load(),
		DeadLettered: d.deadLettered.Load(),
		InFlight:     inflight,
		Breaker:      d.breaker.current().String(),
	}
}

// Name implements ports.HealthChecker.
func (d *Dispatcher) Name() string {
	return "pipeline"
}

// Check implements ports.HealthChecker. It fails while the breaker holds dispatch paused.
func (d *Dispatcher) Check(context.Context) error {
	if d.breaker.current() == BreakerOpen {
		return errors.New("dispatch paused after repeated handler failures")
	}

	return nil
}

func (d *Dispatcher) isInflight(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.inflight[seq]

	return ok
}

func (d *Dispatcher) markInflight(seq uint64) {
	d.mu.Lock()
	d.inflight[seq] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) clearInflight(seq uint64) {
	d.mu.Lock()
	delete(d.inflight, seq)
	d.mu.Unlock()
}

// shard picks the worker for a quote so its events stay in order.
func shard(quoteID string, n int) int {
	return int(xxhash.Sum64String(quoteID) % uint64(n))
}
