package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var waits []time.Duration

	attempts, err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}

		return nil
	}, isTransient, func(_ error, d time.Duration) {
		waits = append(waits, d)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, waits, 2)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad input")

	attempts, err := Do(context.Background(), fastPolicy(5), func() error {
		return permanent
	}, isTransient, nil)

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts, err := Do(context.Background(), fastPolicy(3), func() error {
		return errTransient
	}, isTransient, nil)

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := Do(ctx, fastPolicy(5), func() error {
		return errTransient
	}, isTransient, nil)

	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{}.withDefaults()

	assert.Equal(t, DefaultPolicy(), p)
}
