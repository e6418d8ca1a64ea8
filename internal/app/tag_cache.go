package app

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
)

const tagListKey = "tags"

// tagListCache holds the listTags snapshot between tag mutations.
// Any synchronous tag or mapping change invalidates it; last-used times
// written by the pipeline may lag by up to the TTL. Loads are shared per
// generation, so a caller arriving after an invalidation never joins a load
// that began before it.
type tagListCache struct {
	cache      *gocache.Cache
	group      singleflight.Group
	generation atomic.Uint64
	metrics    *metrics.Metrics
	enabled    bool
}

func newTagListCache(ttl time.Duration, m *metrics.Metrics) *tagListCache {
	return &tagListCache{
		cache:   gocache.New(ttl, 2*ttl),
		metrics: m,
		enabled: ttl > 0,
	}
}

func (c *tagListCache) get(ctx context.Context, load func(context.Context) ([]*domain.Tag, error)) ([]*domain.Tag, error) {
	if !c.enabled {
		return load(ctx)
	}

	if v, ok := c.cache.Get(tagListKey); ok {
		c.metrics.TagListLookup(true)
		return cloneTags(v.([]*domain.Tag)), nil
	}

	c.metrics.TagListLookup(false)

	gen := c.generation.Load()

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		tags, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if c.generation.Load() == gen {
			c.cache.SetDefault(tagListKey, tags)
		}

		return tags, nil
	})
	if err != nil {
		return nil, err
	}

	return cloneTags(v.([]*domain.Tag)), nil
}

func (c *tagListCache) invalidate() {
	c.generation.Add(1)
	c.cache.Delete(tagListKey)
}

func cloneTags(tags []*domain.Tag) []*domain.Tag {
	out := make([]*domain.Tag, len(tags))
	for i, t := range tags {
		cp := *t
		out[i] = &cp
	}

	return out
}
