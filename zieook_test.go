package zieook

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/sampler"
	"github.com/siemvaessen/zieook-sub000/tasks"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), Options{SamplerSeed: 42})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineRatingScenario(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	assert.NoError(t, e.CreateTenant(ctx, "acme"))

	r := model.Rating{Collection: "movies", User: 1, Item: 42, Value: 4.5, Stamp: 1000}
	assert.NoError(t, e.PutRating(ctx, "acme", r))

	got, err := e.GetRating(ctx, "acme", "movies", 1, 42)
	assert.NoError(t, err)
	assert.Equal(t, r, got)

	epoch, err := e.Epoch(ctx, "acme")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1000), epoch)

	assert.NoError(t, e.DeleteRating(ctx, "acme", "movies", 1, 42))
	_, err = e.GetRating(ctx, "acme", "movies", 1, 42)
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)
}

func TestEngineUnknownTenant(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.GetRating(ctx, "ghost", "movies", 1, 1)
	assert.ErrorIs(t, err, zieook_errors.ErrTenantUnknown)
}

func TestEngineTenantIsolation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	assert.NoError(t, e.CreateTenant(ctx, "acme"))
	assert.NoError(t, e.CreateTenant(ctx, "beta"))

	assert.NoError(t, e.PutRating(ctx, "acme", model.Rating{Collection: "movies", User: 1, Item: 1, Value: 5, Stamp: 1}))

	_, err := e.GetRating(ctx, "beta", "movies", 1, 1)
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)
}

func TestEngineItemLifecycle(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	assert.NoError(t, e.CreateTenant(ctx, "acme"))

	item := model.Item{ID: 42, Title: "The Matrix", Categories: []string{"scifi"}}
	assert.NoError(t, e.PutItem(ctx, "acme", item))

	got, err := e.GetItem(ctx, "acme", 42)
	assert.NoError(t, err)
	assert.Equal(t, item, got)

	assert.NoError(t, e.PutItem(ctx, "acme", model.Item{ID: 50, Title: "Blade Runner"}))
	items, err := e.GetItems(ctx, "acme", 0, 10)
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, uint64(42), items[0].ID)

	items, err = e.GetItems(ctx, "acme", 43, 10)
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, uint64(50), items[0].ID)

	found, err := e.SearchItems(ctx, "acme", "(?i)matrix", 0)
	assert.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, uint64(42), found[0].ID)

	assert.NoError(t, e.DeleteItem(ctx, "acme", 42))
	_, err = e.GetItem(ctx, "acme", 42)
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)

	assert.ErrorIs(t, e.PutItem(ctx, "acme", model.Item{}), zieook_errors.ErrInvalidArgument)
}

func TestEngineRawItemChangeDetection(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	assert.NoError(t, e.CreateTenant(ctx, "acme"))

	payload := []byte(`<record id="42"><title>The Matrix</title></record>`)
	written, err := e.PutItemRaw(ctx, "acme", 42, payload)
	assert.NoError(t, err)
	assert.True(t, written)

	// unchanged payload is skipped
	written, err = e.PutItemRaw(ctx, "acme", 42, payload)
	assert.NoError(t, err)
	assert.False(t, written)

	changed := []byte(`<record id="42"><title>The Matrix (1999)</title></record>`)
	written, err = e.PutItemRaw(ctx, "acme", 42, changed)
	assert.NoError(t, err)
	assert.True(t, written)

	got, err := e.GetItemRaw(ctx, "acme", 42)
	assert.NoError(t, err)
	assert.Equal(t, changed, got)
}

func TestEngineUserAndCollection(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	assert.NoError(t, e.CreateTenant(ctx, "acme"))

	u := model.User{ID: 7, Name: "alex", Email: "alex@example.org"}
	assert.NoError(t, e.PutUser(ctx, "acme", u))
	got, err := e.GetUser(ctx, "acme", 7)
	assert.NoError(t, err)
	assert.Equal(t, u, got)
	assert.NoError(t, e.DeleteUser(ctx, "acme", 7))
	_, err = e.GetUser(ctx, "acme", 7)
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)

	c := model.Collection{Name: "movies", SourceType: "oai-pmh", SourceURL: "https://example.org/oai"}
	assert.NoError(t, e.PutCollection(ctx, "acme", c))
	cols, err := e.Collections(ctx, "acme")
	assert.NoError(t, err)
	assert.Len(t, cols, 1)
	assert.Equal(t, c, cols[0])
	assert.NoError(t, e.DeleteCollection(ctx, "acme", "movies"))
	_, err = e.GetCollection(ctx, "acme", "movies")
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)
}

func TestEngineRecommendationFlow(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	assert.NoError(t, e.CreateTenant(ctx, "acme"))

	entries := make([]sampler.Entry, 20)
	for i := range entries {
		entries[i] = sampler.Entry{Score: 1 - float64(i)/20, Rank: uint32(i), Item: uint64(100 + i)}
	}
	assert.NoError(t, e.PutRecommendation(ctx, "acme", "movies", "similar", 7, entries))

	sampled, err := e.Recommend(ctx, "acme", "movies", "similar", 7, 5, sampler.Ordered)
	assert.NoError(t, err)
	assert.Len(t, sampled, 5)
	assert.Equal(t, uint64(100), sampled[0].Item)

	// serving is logged as a recommended fact, views follow
	assert.NoError(t, e.PutRecommended(ctx, "acme", model.Recommended{
		Recommender: "similar", User: 7, Type: model.RecTypeUser, Size: 5, Stamp: 2000,
	}))
	assert.NoError(t, e.PutView(ctx, "acme", model.View{
		Recommender: "similar", Collection: "movies", User: 7, Item: 100, Source: 0, Rank: 0, Stamp: 2100,
	}))

	views, err := e.GetViews(ctx, "acme", "similar", 7, 0, ^uint64(0), 10)
	assert.NoError(t, err)
	assert.Len(t, views, 1)

	counts, err := e.UserCounts(ctx, "acme", 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), counts.Views)
	assert.Equal(t, int64(1), counts.Recommends)
}

func TestEngineTaskFlow(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	task := &tasks.Task{Type: tasks.TypeCollection, Tenant: "acme", Dimension: "movies", Next: 1000}
	assert.NoError(t, e.CreateTask(ctx, task))
	assert.NotZero(t, task.ID)

	ids, err := e.SearchTasks(ctx, tasks.Query{Type: tasks.TypeCollection, Tenant: "acme"})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{task.ID}, ids)

	task.Result = "ok"
	assert.NoError(t, e.UpdateTask(ctx, task))
	got, err := e.GetTask(ctx, task.ID)
	assert.NoError(t, err)
	assert.Equal(t, "ok", got.Result)

	assert.NoError(t, e.DeleteTask(ctx, task.ID))
	_, err = e.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, zieook_errors.ErrNotFound)
}

func TestEngineClosed(t *testing.T) {
	e, err := Open(t.TempDir(), Options{})
	assert.NoError(t, err)
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close(), "double close is a no-op")

	ctx := context.Background()
	assert.ErrorIs(t, e.CreateTenant(ctx, "acme"), zieook_errors.ErrClosed)
	_, err = e.GetRating(ctx, "acme", "movies", 1, 1)
	assert.ErrorIs(t, err, zieook_errors.ErrClosed)
	_, err = e.SearchTasks(ctx, tasks.Query{Type: tasks.TypeCollection, Tenant: "acme"})
	assert.ErrorIs(t, err, zieook_errors.ErrClosed)
}

func TestEngineMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, err := Open(t.TempDir(), Options{Metrics: reg})
	assert.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	assert.NoError(t, e.CreateTenant(ctx, "acme"))
	assert.NoError(t, e.PutRating(ctx, "acme", model.Rating{Collection: "movies", User: 1, Item: 1, Value: 5, Stamp: 1}))

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["zieook_pebble_disk_usage_bytes"])

	// a second engine registering the shared collectors must not fail
	e2, err := Open(t.TempDir(), Options{Metrics: reg})
	assert.NoError(t, err)
	assert.NoError(t, e2.Close())
}

func TestEngineRepairAndRecount(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	assert.NoError(t, e.CreateTenant(ctx, "acme"))

	for ts := uint64(1); ts <= 3; ts++ {
		assert.NoError(t, e.PutView(ctx, "acme", model.View{
			Recommender: "similar", Collection: "movies", User: 1, Item: ts, Stamp: ts * 10,
		}))
	}

	inserted, err := e.RepairIndexes(ctx, "acme")
	assert.NoError(t, err)
	assert.Equal(t, 0, inserted, "indexes are consistent after clean writes")

	counts, err := e.RecountUser(ctx, "acme", 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), counts.Views)
}
