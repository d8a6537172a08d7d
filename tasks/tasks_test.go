package tasks

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/utils"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

func testTaskStore(t *testing.T) *Store {
	t.Helper()
	r, err := store.OpenRegistry(t.TempDir(), utils.NewDefaultLogger(slog.LevelWarn), false)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return New(r.System())
}

func TestCreateAllocatesID(t *testing.T) {
	s := testTaskStore(t)
	ctx := context.Background()

	task := &Task{Type: TypeCollection, Tenant: "acme", Dimension: "movies", Next: 1000}
	assert.NoError(t, s.Create(ctx, task))
	assert.Equal(t, uint64(1), task.ID)

	second := &Task{Type: TypeCollection, Tenant: "acme", Dimension: "books"}
	assert.NoError(t, s.Create(ctx, second))
	assert.Equal(t, uint64(2), second.ID)
}

func TestTaskRoundTrip(t *testing.T) {
	s := testTaskStore(t)
	ctx := context.Background()

	task := &Task{
		Type: TypeRecommender, Tenant: "acme", Dimension: "similar",
		Next: 5000, Start: 4000, Result: "ok",
		Payload: map[string]string{"model": "item-knn", "k": "50"},
	}
	assert.NoError(t, s.Create(ctx, task))

	got, err := s.Get(ctx, task.ID)
	assert.NoError(t, err)
	assert.Equal(t, *task, got)
}

func TestCreateRejectsBadTask(t *testing.T) {
	s := testTaskStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Create(ctx, &Task{Type: "bogus", Tenant: "acme"}), zieook_errors.ErrInvalidArgument)
	assert.ErrorIs(t, s.Create(ctx, &Task{Type: TypeCollection, Tenant: ""}), zieook_errors.ErrInvalidArgument)
}

func TestUpdateReplaces(t *testing.T) {
	s := testTaskStore(t)
	ctx := context.Background()

	task := &Task{Type: TypeCollection, Tenant: "acme", Dimension: "movies", Next: 1000}
	assert.NoError(t, s.Create(ctx, task))

	task.Start = 1100
	task.Result = "imported 500 items"
	assert.NoError(t, s.Update(ctx, task))

	got, err := s.Get(ctx, task.ID)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1100), got.Start)
	assert.Equal(t, "imported 500 items", got.Result)

	assert.ErrorIs(t, s.Update(ctx, &Task{Type: TypeCollection, Tenant: "acme"}), zieook_errors.ErrInvalidArgument)
}

func TestDeleteTask(t *testing.T) {
	s := testTaskStore(t)
	ctx := context.Background()

	task := &Task{Type: TypeCollection, Tenant: "acme"}
	assert.NoError(t, s.Create(ctx, task))
	assert.NoError(t, s.Delete(ctx, task.ID))

	_, err := s.Get(ctx, task.ID)
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)
}

func seedTasks(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	fixtures := []*Task{
		{Type: TypeCollection, Tenant: "acme", Dimension: "movies", Next: 1000, Start: 900, Result: "ok"},
		{Type: TypeCollection, Tenant: "acme", Dimension: "movies", Next: 2000},
		{Type: TypeCollection, Tenant: "acme", Dimension: "books", Next: 1500, Start: 1400, Result: "failed"},
		{Type: TypeRecommender, Tenant: "acme", Dimension: "similar", Next: 1200, Start: 1100, Result: "ok"},
		{Type: TypeCollection, Tenant: "beta", Dimension: "movies", Next: 1000},
	}
	for _, task := range fixtures {
		assert.NoError(t, s.Create(ctx, task))
	}
}

func TestSearchByTypeAndTenant(t *testing.T) {
	s := testTaskStore(t)
	seedTasks(t, s)
	ctx := context.Background()

	ids, err := s.Search(ctx, Query{Type: TypeCollection, Tenant: "acme"})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	ids, err = s.Search(ctx, Query{Type: TypeRecommender, Tenant: "acme"})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{4}, ids)

	ids, err = s.Search(ctx, Query{Type: TypeStatistics, Tenant: "acme"})
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearchByDimensionAndWindow(t *testing.T) {
	s := testTaskStore(t)
	seedTasks(t, s)
	ctx := context.Background()

	ids, err := s.Search(ctx, Query{Type: TypeCollection, Tenant: "acme", Dimension: "movies"})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)

	ids, err = s.Search(ctx, Query{
		Type: TypeCollection, Tenant: "acme",
		Field: ByNext, From: 1100, To: 1600,
	})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids)

	ids, err = s.Search(ctx, Query{
		Type: TypeCollection, Tenant: "acme",
		Field: ByStart, From: 900, To: 900,
	})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids, "window bounds are inclusive")
}

func TestSearchCompletedAndResult(t *testing.T) {
	s := testTaskStore(t)
	seedTasks(t, s)
	ctx := context.Background()

	ids, err := s.SearchCompleted(ctx, TypeCollection, "acme", "")
	assert.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids)

	ids, err = s.Search(ctx, Query{Type: TypeCollection, Tenant: "acme", Result: "failed"})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids)
}

func TestSearchFuture(t *testing.T) {
	s := testTaskStore(t)
	seedTasks(t, s)
	ctx := context.Background()

	ids, err := s.SearchFuture(ctx, TypeCollection, "acme", "", 1000)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, ids, "strictly after now")
}

func TestSearchLatest(t *testing.T) {
	s := testTaskStore(t)
	seedTasks(t, s)
	ctx := context.Background()

	task, err := s.SearchLatest(ctx, TypeCollection, "acme", "")
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), task.ID)
	assert.Equal(t, uint64(1400), task.Start)

	_, err = s.SearchLatest(ctx, TypeStatistics, "acme", "")
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)
}

func TestSearchRejectsBadQuery(t *testing.T) {
	s := testTaskStore(t)
	ctx := context.Background()

	_, err := s.Search(ctx, Query{Type: "bogus", Tenant: "acme"})
	assert.ErrorIs(t, err, zieook_errors.ErrInvalidArgument)
	_, err = s.Search(ctx, Query{Type: TypeCollection, Tenant: ""})
	assert.ErrorIs(t, err, zieook_errors.ErrInvalidArgument)
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"collection", "recommender", "statistics"} {
		typ, err := ParseType(s)
		assert.NoError(t, err)
		assert.Equal(t, Type(s), typ)
	}
	_, err := ParseType("cleanup")
	assert.ErrorIs(t, err, zieook_errors.ErrInvalidArgument)
}
