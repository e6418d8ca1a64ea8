// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults used when a policy field is unset.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 20 * time.Millisecond
	DefaultMaxInterval     = time.Second
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.25
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts includes the first call.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// DefaultPolicy returns the policy used by the store and the pipeline when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}

	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}

	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}

	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}

	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		p.JitterFactor = d.JitterFactor
	}

	return p
}

// BackOff builds a cenkalti/backoff schedule for the policy bound to ctx.
func (p Policy) BackOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.JitterFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Notify is called before each wait with the error that caused it.
type Notify func(err error, wait time.Duration)

// Do calls fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
// It returns the number of attempts made and the last error.
func Do(ctx context.Context, p Policy, fn func() error, retryable func(error) bool, notify Notify) (int, error) {
	attempts := 0
	op := func() error {
		attempts++

		err := fn()
		if err == nil {
			return nil
		}

		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}

	err := backoff.RetryNotify(op, p.BackOff(ctx), n)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}

	return attempts, err
}
