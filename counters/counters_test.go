package counters

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/utils"
)

func testHandle(t *testing.T) store.Handle {
	t.Helper()
	r, err := store.OpenRegistry(t.TempDir(), utils.NewDefaultLogger(slog.LevelWarn), false)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	h, err := r.CreateTenant("acme")
	assert.NoError(t, err)
	return h
}

func putRating(t *testing.T, h store.Handle, user, item uint64, ts uint64) {
	t.Helper()
	key := keys.RatingKey("movies", user, item)
	assert.NoError(t, store.Set(h, key, keys.RatingValue(3.5, ts)))
}

func TestBumpAndRead(t *testing.T) {
	h := testHandle(t)

	assert.NoError(t, Bump(h, 7, keys.CounterRating, 1, 100))
	assert.NoError(t, Bump(h, 7, keys.CounterRating, 1, 250))
	assert.NoError(t, Bump(h, 7, keys.CounterView, 1, 300))

	c, err := Read(h, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), c.Ratings)
	assert.Equal(t, int64(1), c.Views)
	assert.Equal(t, int64(0), c.Recommends)
	assert.Equal(t, uint64(250), c.LastRating)
	assert.Equal(t, uint64(300), c.LastView)
}

func TestBumpNegativeKeepsActivity(t *testing.T) {
	h := testHandle(t)
	assert.NoError(t, Bump(h, 7, keys.CounterRating, 1, 100))
	assert.NoError(t, Bump(h, 7, keys.CounterRating, -1, 0))

	c, err := Read(h, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), c.Ratings)
	assert.Equal(t, uint64(100), c.LastRating, "decrements do not touch last activity")
}

func TestReadUnknownUserIsZero(t *testing.T) {
	h := testHandle(t)
	c, err := Read(h, 404)
	assert.NoError(t, err)
	assert.Equal(t, Counts{}, c)
}

func TestRecountFixesDrift(t *testing.T) {
	h := testHandle(t)
	ctx := context.Background()

	putRating(t, h, 7, 1, 100)
	putRating(t, h, 7, 2, 50)
	putRating(t, h, 7, 3, 200)
	putRating(t, h, 8, 1, 999)

	// drift the counter away from the facts
	assert.NoError(t, Bump(h, 7, keys.CounterRating, 10, 1))

	c, err := Recount(ctx, h, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), c.Ratings)
	assert.Equal(t, uint64(200), c.LastRating)

	read, err := Read(h, 7)
	assert.NoError(t, err)
	assert.Equal(t, c, read)
}

func TestRecountAfterDelete(t *testing.T) {
	h := testHandle(t)
	ctx := context.Background()

	putRating(t, h, 7, 1, 100)
	putRating(t, h, 7, 2, 50)
	assert.NoError(t, Bump(h, 7, keys.CounterRating, 2, 100))

	assert.NoError(t, store.Delete(h, keys.RatingKey("movies", 7, 2)))

	c, err := Recount(ctx, h, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), c.Ratings)
}

func TestEpochEmptyTenant(t *testing.T) {
	h := testHandle(t)
	e := NewEpochs()
	ctx := context.Background()

	ts, err := e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), ts)

	// the zero result is not cached, so the first fact establishes a
	// real epoch
	putRating(t, h, 1, 1, 500)
	ts, err = e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(500), ts)
}

func TestEpochObservesEarlierFact(t *testing.T) {
	h := testHandle(t)
	e := NewEpochs()
	ctx := context.Background()

	putRating(t, h, 1, 1, 500)
	ts, err := e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(500), ts)

	putRating(t, h, 1, 2, 200)
	e.Observe(h, 200)
	ts, err = e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(200), ts)

	// the lowered epoch is persisted, a fresh tracker reads it back
	ts, err = NewEpochs().Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(200), ts)

	// a cold tracker consults the persisted row before deciding
	cold := NewEpochs()
	putRating(t, h, 1, 3, 100)
	cold.Observe(h, 100)
	ts, err = cold.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), ts)

	// a later fact leaves the epoch alone
	e.Observe(h, 900)
	ts, err = NewEpochs().Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), ts)
}

func TestEpochMinimumAndInvalidate(t *testing.T) {
	h := testHandle(t)
	e := NewEpochs()
	ctx := context.Background()

	putRating(t, h, 1, 1, 100)
	putRating(t, h, 1, 2, 50)
	putRating(t, h, 2, 1, 200)

	ts, err := e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(50), ts)

	assert.NoError(t, store.Delete(h, keys.RatingKey("movies", 1, 2)))
	// stale until invalidated
	ts, err = e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(50), ts)

	e.Invalidate(h)
	ts, err = e.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), ts)
}

func TestEpochReadsPersistedRow(t *testing.T) {
	h := testHandle(t)
	ctx := context.Background()

	putRating(t, h, 1, 1, 77)
	first := NewEpochs()
	_, err := first.Epoch(ctx, h)
	assert.NoError(t, err)

	// a fresh tracker reads the meta row without rescanning
	second := NewEpochs()
	ts, err := second.Epoch(ctx, h)
	assert.NoError(t, err)
	assert.Equal(t, uint64(77), ts)
}

func TestAllocatorSequence(t *testing.T) {
	h := testHandle(t)
	a := NewTaskAllocator(h)

	for want := uint64(1); want <= 5; want++ {
		id, err := a.Next()
		assert.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestAllocatorConcurrentUnique(t *testing.T) {
	h := testHandle(t)
	a := NewTaskAllocator(h)

	const n = 100
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := a.Next()
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestAllocatorResumesFromRow(t *testing.T) {
	h := testHandle(t)

	a := NewTaskAllocator(h)
	for i := 0; i < 3; i++ {
		_, err := a.Next()
		assert.NoError(t, err)
	}

	// a new allocator over the same row continues past the old ids
	b := NewTaskAllocator(h)
	id, err := b.Next()
	assert.NoError(t, err)
	assert.Equal(t, uint64(4), id)
}
