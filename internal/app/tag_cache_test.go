package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

func TestTagListCache_ServesSnapshotUntilInvalidated(t *testing.T) {
	c := newTagListCache(time.Minute, nil)

	var loads atomic.Int32
	load := func(context.Context) ([]*domain.Tag, error) {
		loads.Add(1)
		return []*domain.Tag{{Key: "life", Name: "Life"}}, nil
	}

	first, err := c.get(context.Background(), load)
	require.NoError(t, err)

	first[0].Name = "mutated"

	second, err := c.get(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, "Life", second[0].Name, "callers get copies")
	assert.Equal(t, int32(1), loads.Load())

	c.invalidate()

	_, err = c.get(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestTagListCache_InvalidationDetachesInFlightLoad(t *testing.T) {
	c := newTagListCache(time.Minute, nil)

	started := make(chan struct{})
	release := make(chan struct{})

	stale := func(context.Context) ([]*domain.Tag, error) {
		close(started)
		<-release

		return []*domain.Tag{{Key: "old", Name: "Old"}}, nil
	}

	fresh := func(context.Context) ([]*domain.Tag, error) {
		return []*domain.Tag{{Key: "new", Name: "New"}}, nil
	}

	staleDone := make(chan []*domain.Tag, 1)

	go func() {
		tags, err := c.get(context.Background(), stale)
		assert.NoError(t, err)

		staleDone <- tags
	}()

	<-started
	c.invalidate()

	tags, err := c.get(context.Background(), fresh)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "new", tags[0].Key, "post-invalidation caller must not join the older load")

	close(release)

	old := <-staleDone
	require.Len(t, old, 1)
	assert.Equal(t, "old", old[0].Key)

	cached, err := c.get(context.Background(), func(context.Context) ([]*domain.Tag, error) {
		t.Error("expected a cache hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", cached[0].Key, "older load does not overwrite the newer snapshot")
}

func TestTagListCache_DisabledAlwaysLoads(t *testing.T) {
	c := newTagListCache(0, nil)

	var loads atomic.Int32
	load := func(context.Context) ([]*domain.Tag, error) {
		loads.Add(1)
		return nil, nil
	}

	for range 3 {
		_, err := c.get(context.Background(), load)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), loads.Load())
}
