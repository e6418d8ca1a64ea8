package ports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single health check unless WithTimeout overrides it.
const DefaultCheckTimeout = 2 * time.Second

// ErrDuplicateChecker is returned when attempting to register a health checker
// with a name that is already registered.
var ErrDuplicateChecker = errors.New("duplicate health checker")

// HealthChecker is implemented by components that can report their health.
// The store and the change pipeline register themselves at startup.
type HealthChecker interface {
	// Name identifies the component in readiness responses.
	Name() string

	// Check returns nil when the component is healthy.
	Check(ctx context.Context) error
}

// HealthRegistry aggregates health checks from multiple components.
type HealthRegistry interface {
	// Register adds a checker. Names must be unique.
	Register(checker HealthChecker, opts ...CheckOption) error

	// CheckAll runs every registered check concurrently.
	CheckAll(ctx context.Context) *HealthResult
}

// HealthStatus represents the overall health state.
type HealthStatus string

const (
	// HealthStatusHealthy indicates all checks passed.
	HealthStatusHealthy HealthStatus = "healthy"

	// HealthStatusDegraded indicates only non-critical checks failed.
	// The service keeps taking traffic; derived state may lag.
	HealthStatusDegraded HealthStatus = "degraded"

	// HealthStatusUnhealthy indicates a critical check failed.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResult contains the aggregated health check results.
type HealthResult struct {
	Status    HealthStatus            `json:"status"`
	Checks    map[string]*CheckResult `json:"checks"`
	Timestamp time.Time               `json:"timestamp"`
}

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Status   HealthStatus  `json:"status"`
	Critical bool          `json:"critical"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CheckOption tunes how a registered checker is run.
type CheckOption func(*registration)

// NonCritical marks a checker whose failure degrades rather than fails readiness.
func NonCritical() CheckOption {
	return func(r *registration) { r.critical = false }
}

// WithTimeout overrides DefaultCheckTimeout for one checker.
func WithTimeout(d time.Duration) CheckOption {
	return func(r *registration) {
		if d > 0 {
			r.timeout = d
		}
	}
}

type registration struct {
	checker  HealthChecker
	critical bool
	timeout  time.Duration
}

// DefaultHealthRegistry is a thread-safe implementation of HealthRegistry.
type DefaultHealthRegistry struct {
	mu     sync.RWMutex
	checks []registration
	now    func() time.Time
}

// NewHealthRegistry creates a new health registry.
func NewHealthRegistry() *DefaultHealthRegistry {
	return &DefaultHealthRegistry{now: time.Now}
}

// Register adds a health checker to the registry.
func (r *DefaultHealthRegistry) Register(checker HealthChecker, opts ...CheckOption) error {
	reg := registration{checker: checker, critical: true, timeout: DefaultCheckTimeout}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := checker.Name()
	for _, existing := range r.checks {
		if existing.checker.Name() == name {
			return fmt.Errorf("%w: %s", ErrDuplicateChecker, name)
		}
	}

	r.checks = append(r.checks, reg)

	return nil
}

// CheckAll runs all registered health checks concurrently, each under its own timeout.
func (r *DefaultHealthRegistry) CheckAll(ctx context.Context) *HealthResult {
	r.mu.RLock()
	checks := append([]registration(nil), r.checks...)
	r.mu.RUnlock()

	results := make([]*CheckResult, len(checks))

	var g errgroup.Group
	for i, reg := range checks {
		g.Go(func() error {
			results[i] = r.run(ctx, reg)
			return nil
		})
	}

	_ = g.Wait()

	result := &HealthResult{
		Status:    HealthStatusHealthy,
		Checks:    make(map[string]*CheckResult, len(checks)),
		Timestamp: r.now(),
	}

	for i, reg := range checks {
		res := results[i]
		result.Checks[reg.checker.Name()] = res

		switch {
		case res.Status == HealthStatusHealthy:
		case res.Critical:
			result.Status = HealthStatusUnhealthy
		case result.Status == HealthStatusHealthy:
			result.Status = HealthStatusDegraded
		}
	}

	return result
}

func (r *DefaultHealthRegistry) run(ctx context.Context, reg registration) *CheckResult {
	ctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	start := r.now()
	err := reg.checker.Check(ctx)

	res := &CheckResult{
		Status:   HealthStatusHealthy,
		Critical: reg.critical,
		Duration: r.now().Sub(start),
	}

	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Message = err.Error()
	}

	return res
}
