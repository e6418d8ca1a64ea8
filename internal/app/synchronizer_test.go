package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotevault/internal/adapters/storage/badgerstore"
	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

// flakyStore fails per-quote tag updates for selected quotes.
type flakyStore struct {
	*badgerstore.Store

	mu   sync.Mutex
	fail map[string]bool
}

func (f *flakyStore) failFor(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail = make(map[string]bool, len(ids))
	for _, id := range ids {
		f.fail[id] = true
	}
}

func (f *flakyStore) UpdateQuoteTags(ctx context.Context, id string, mutate func(q *domain.Quote) bool) (*domain.Quote, bool, error) {
	f.mu.Lock()
	fail := f.fail[id]
	f.mu.Unlock()

	if fail {
		return nil, false, errors.New("injected store failure")
	}

	return f.Store.UpdateQuoteTags(ctx, id, mutate)
}

// seedTagged creates n quotes tagged with tags and returns their ids.
func seedTagged(t *testing.T, svc *Services, n int, tags ...string) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for i := range n {
		q, err := svc.Quotes.CreateQuote(admin(), CreateQuoteInput{
			Text:   fmt.Sprintf("Seeded quote %c for the tag tests", 'A'+i),
			Author: fmt.Sprintf("Seed Author %c", 'A'+i),
			Tags:   tags,
		})
		require.NoError(t, err)

		ids = append(ids, q.ID)
	}

	return ids
}

func quoteTags(t *testing.T, svc *Services, id string) []string {
	t.Helper()

	q, err := svc.Quotes.GetQuote(context.Background(), id)
	require.NoError(t, err)

	return q.Tags
}

func TestNewSynchronizer_PanicsWithoutStores(t *testing.T) {
	assert.Panics(t, func() { NewSynchronizer(SynchronizerConfig{}) })
}

func TestSynchronizer_RenameTag(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := admin()

	ids := seedTagged(t, svc, 3, "Motivation", "Life")

	before, err := store.GetTag(context.Background(), "motivation")
	require.NoError(t, err)

	affected, err := svc.Tags.RenameTag(ctx, "motivation", "Inspiration")
	require.NoError(t, err)
	assert.Equal(t, 3, affected)

	for _, id := range ids {
		assert.Equal(t, []string{"Inspiration", "Life"}, quoteTags(t, svc, id))
	}

	old, err := svc.Quotes.ListByTag(ctx, "Motivation", domain.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, old.Items)

	moved, err := svc.Quotes.ListByTag(ctx, "inspiration", domain.PageRequest{})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, pageIDs(moved))

	assert.Equal(t, map[string]int64{"Inspiration": 3, "Life": 3}, tagCounts(t, svc))

	tag, err := store.GetTag(context.Background(), "inspiration")
	require.NoError(t, err)
	assert.Empty(t, tag.RenamedFrom)
	assert.True(t, tag.CreatedAt.Equal(before.CreatedAt), "creation time is carried over")

	assertCountsMatchMappings(t, store)
}

func TestSynchronizer_RenameTag_Errors(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := admin()

	seedTagged(t, svc, 1, "a", "b")

	tests := []struct {
		name     string
		from, to string
		check    func(error) bool
	}{
		{name: "missing source", from: "nope", to: "c", check: domain.IsNotFound},
		{name: "target exists", from: "a", to: "B", check: domain.IsConflict},
		{name: "invalid target", from: "a", to: "  ", check: domain.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Tags.RenameTag(ctx, tt.from, tt.to)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	assert.Equal(t, map[string]int64{"a": 1, "b": 1}, tagCounts(t, svc))
}

func TestSynchronizer_RenameTag_CaseOnly(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)

	ids := seedTagged(t, svc, 2, "golang")

	affected, err := svc.Tags.RenameTag(admin(), "golang", "GoLang")
	require.NoError(t, err)
	assert.Equal(t, 2, affected)

	for _, id := range ids {
		assert.Equal(t, []string{"GoLang"}, quoteTags(t, svc, id))
	}

	assert.Equal(t, map[string]int64{"GoLang": 2}, tagCounts(t, svc))

	affected, err = svc.Tags.RenameTag(admin(), "golang", "GoLang")
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestSynchronizer_RenameTag_ResumesAfterPartialFailure(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(t)}
	svc := newTestServices(t, flaky)
	ctx := admin()

	ids := seedTagged(t, svc, 4, "old")
	flaky.failFor(ids[1])

	affected, err := svc.Tags.RenameTag(ctx, "old", "new")
	require.Error(t, err)

	var partial *domain.PartialCascadeError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 3, partial.Affected)
	assert.Equal(t, 4, partial.Total)
	assert.Equal(t, 3, affected)
	assert.True(t, domain.IsPartialCascade(err))

	counts := tagCounts(t, svc)
	assert.Equal(t, int64(1), counts["old"])
	assert.Equal(t, int64(3), counts["new"])
	assertCountsMatchMappings(t, flaky.Store)

	flaky.failFor()

	affected, err = svc.Tags.RenameTag(ctx, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	for _, id := range ids {
		assert.Equal(t, []string{"new"}, quoteTags(t, svc, id))
	}

	assert.Equal(t, map[string]int64{"new": 4}, tagCounts(t, svc))
	assertCountsMatchMappings(t, flaky.Store)
}

func TestSynchronizer_RenameTag_ClearsLeftoverMarker(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, &domain.Tag{
		Name: "new", Key: "new", CreatedAt: baseTime, UpdatedAt: baseTime, RenamedFrom: "old",
	}))

	affected, err := svc.Tags.RenameTag(admin(), "old", "new")
	require.NoError(t, err)
	assert.Zero(t, affected)

	tag, err := store.GetTag(ctx, "new")
	require.NoError(t, err)
	assert.Empty(t, tag.RenamedFrom)

	_, err = svc.Tags.RenameTag(admin(), "old", "new")
	assert.True(t, domain.IsNotFound(err))
}

func TestSynchronizer_DeleteTag(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := admin()

	ids := seedTagged(t, svc, 3, "Inspiration", "Keep")

	affected, err := svc.Tags.DeleteTag(ctx, "INSPIRATION")
	require.NoError(t, err)
	assert.Equal(t, 3, affected)

	for _, id := range ids {
		assert.Equal(t, []string{"Keep"}, quoteTags(t, svc, id))
	}

	assert.Equal(t, map[string]int64{"Keep": 3}, tagCounts(t, svc))

	_, err = store.GetTag(context.Background(), "inspiration")
	assert.True(t, domain.IsNotFound(err))

	_, err = svc.Tags.DeleteTag(ctx, "inspiration")
	assert.True(t, domain.IsNotFound(err))

	assertCountsMatchMappings(t, store)
}

func TestSynchronizer_DeleteTag_ResumesAfterPartialFailure(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(t)}
	svc := newTestServices(t, flaky)
	ctx := admin()

	ids := seedTagged(t, svc, 3, "gone")
	flaky.failFor(ids[0], ids[2])

	affected, err := svc.Tags.DeleteTag(ctx, "gone")
	require.Error(t, err)
	assert.True(t, domain.IsPartialCascade(err))
	assert.Equal(t, 1, affected)
	assert.Equal(t, int64(2), tagCounts(t, svc)["gone"])

	flaky.failFor()

	affected, err = svc.Tags.DeleteTag(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, 2, affected)
	assert.Empty(t, tagCounts(t, svc))
}

func TestSynchronizer_CleanupUnused(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := admin()

	seedTagged(t, svc, 1, "used")

	for _, name := range []string{"idle", "Spare"} {
		_, err := svc.Tags.AddTag(ctx, name)
		require.NoError(t, err)
	}

	removed, err := svc.Tags.CleanupUnusedTags(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"idle", "Spare"}, removed)

	assert.Equal(t, map[string]int64{"used": 1}, tagCounts(t, svc))

	removed, err = svc.Tags.CleanupUnusedTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSynchronizer_ApplyQuoteTagDiff_RecreatesDeletedTag(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := context.Background()

	q, err := domain.NewQuote("q1", "text", "Author", []string{"late"}, "tester", baseTime)
	require.NoError(t, err)
	require.NoError(t, store.PutQuote(ctx, q, nil, ports.WriteOptions{}))

	require.NoError(t, svc.Synchronizer.ApplyQuoteTagDiff(ctx, q, q.Tags, nil))

	tag, err := store.GetTag(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.QuoteCount)

	// Re-applying the same set leaves the count alone.
	require.NoError(t, svc.Synchronizer.ApplyQuoteTagDiff(ctx, q, q.Tags, nil))

	tag, err = store.GetTag(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.QuoteCount)
}

func TestSynchronizer_TagsCache(t *testing.T) {
	store := newTestStore(t)
	svc := New(store, Options{TagCacheTTL: time.Hour, Clock: tickingClock()}, nil, discardLogger())
	ctx := admin()

	tags, err := svc.Tags.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	_, err = svc.Tags.AddTag(ctx, "fresh")
	require.NoError(t, err)

	tags, err = svc.Tags.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	// Writes that bypass the synchronizer are not visible until it invalidates.
	_, _, err = store.EnsureTag(context.Background(), "direct", "tester", baseTime)
	require.NoError(t, err)

	tags, err = svc.Tags.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	tags[0].Name = "mutated"

	tags, err = svc.Tags.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tags[0].Name, "callers get copies")

	_, err = svc.Tags.CleanupUnusedTags(ctx)
	require.NoError(t, err)

	tags, err = svc.Tags.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestSynchronizer_ConcurrentDiffsKeepCounts(t *testing.T) {
	store := newTestStore(t)
	svc := newTestServices(t, store)
	ctx := context.Background()

	const n = 16

	quotes := make([]*domain.Quote, n)
	for i := range n {
		q, err := domain.NewQuote(fmt.Sprintf("q%02d", i), "text", "Author", []string{"hot"}, "tester", baseTime)
		require.NoError(t, err)
		require.NoError(t, store.PutQuote(ctx, q, nil, ports.WriteOptions{}))

		quotes[i] = q
	}

	var wg sync.WaitGroup

	for _, q := range quotes {
		wg.Go(func() {
			assert.NoError(t, svc.Synchronizer.ApplyQuoteTagDiff(ctx, q, q.Tags, nil))
		})
	}

	wg.Wait()

	tag, err := store.GetTag(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(n), tag.QuoteCount)

	for i, q := range quotes {
		if i%2 == 0 {
			wg.Go(func() {
				assert.NoError(t, svc.Synchronizer.ApplyQuoteTagDiff(ctx, q, nil, q.Tags))
			})
		}
	}

	wg.Wait()

	tag, err = store.GetTag(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(n/2), tag.QuoteCount)
	assertCountsMatchMappings(t, store)
}

func pageIDs(page domain.Page[*domain.Quote]) []string {
	out := make([]string, 0, len(page.Items))
	for _, q := range page.Items {
		out = append(out, q.ID)
	}

	return out
}
