package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name  string
	err   error
	block bool
}

func (s *stubChecker) Name() string { return s.name }

func (s *stubChecker) Check(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}

	return s.err
}

func TestHealthRegistry_Empty(t *testing.T) {
	result := NewHealthRegistry().CheckAll(context.Background())

	assert.Equal(t, HealthStatusHealthy, result.Status)
	assert.Empty(t, result.Checks)
	assert.False(t, result.Timestamp.IsZero())
}

func TestHealthRegistry_DuplicateName(t *testing.T) {
	registry := NewHealthRegistry()

	require.NoError(t, registry.Register(&stubChecker{name: "store"}))

	err := registry.Register(&stubChecker{name: "store"})
	require.ErrorIs(t, err, ErrDuplicateChecker)
	assert.Contains(t, err.Error(), "store")
}

func TestHealthRegistry_CheckAll(t *testing.T) {
	tests := []struct {
		name     string
		store    error
		pipeline error
		want     HealthStatus
	}{
		{name: "all healthy", want: HealthStatusHealthy},
		{name: "pipeline paused", pipeline: errors.New("dispatch paused"), want: HealthStatusDegraded},
		{name: "store down", store: errors.New("database closed"), want: HealthStatusUnhealthy},
		{
			name:     "both down",
			store:    errors.New("database closed"),
			pipeline: errors.New("dispatch paused"),
			want:     HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewHealthRegistry()
			require.NoError(t, registry.Register(&stubChecker{name: "store", err: tt.store}))
			require.NoError(t, registry.Register(&stubChecker{name: "pipeline", err: tt.pipeline}, NonCritical()))

			result := registry.CheckAll(context.Background())

			assert.Equal(t, tt.want, result.Status)
			require.Len(t, result.Checks, 2)
			assert.True(t, result.Checks["store"].Critical)
			assert.False(t, result.Checks["pipeline"].Critical)

			if tt.pipeline != nil {
				assert.Equal(t, HealthStatusUnhealthy, result.Checks["pipeline"].Status)
				assert.Equal(t, tt.pipeline.Error(), result.Checks["pipeline"].Message)
			}
		})
	}
}

func TestHealthRegistry_Timeout(t *testing.T) {
	registry := NewHealthRegistry()
	require.NoError(t, registry.Register(&stubChecker{name: "slow", block: true}, WithTimeout(20*time.Millisecond)))

	start := time.Now()
	result := registry.CheckAll(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, HealthStatusUnhealthy, result.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), result.Checks["slow"].Message)
}
