// Package zieook is a multi-tenant recommendation storage and query
// engine on top of Pebble. Content providers (tenants) import item
// collections, log rating, view, and recommendation-served facts, and
// read back ranked recommendations and usage statistics.
//
// Engine is the facade the REST and job layers call into. Every method
// resolves the tenant to its store handle once and delegates to the
// component packages: keys (row-key codec), scan (filters, bulk
// delete), facts (event rows and their time indexes), counters (derived
// aggregates, epoch), recs (ranked lists and sampling), tasks (the
// scheduler store).
//
// All calls are synchronous and there are no cross-row transactions:
// a fact row and its index row, or a fact row and its counters, can go
// out of sync under partial failure. Repair and Recount exist to
// restore consistency; see the facts and counters packages.
package zieook

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemvaessen/zieook-sub000/counters"
	"github.com/siemvaessen/zieook-sub000/facts"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/recs"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/tasks"
	"github.com/siemvaessen/zieook-sub000/utils"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

type Options struct {
	// SyncWrites makes every write wait for the WAL; durable but slower.
	SyncWrites bool
	// SamplerSeed pins the recommendation sampler RNG, 0 means
	// time-seeded.
	SamplerSeed int64
	LogLevel    slog.Level
	Logger      utils.Logger
	// Metrics, when set, receives the engine collectors.
	Metrics prometheus.Registerer
}

type Engine struct {
	log      utils.Logger
	registry *store.Registry
	epochs   *counters.Epochs
	facts    *facts.Store
	recs     *recs.Store
	tasks    *tasks.Store

	// instance tags metrics and logs when several engines share a
	// process, as tests do
	instance string
	closed   atomic.Bool
}

// Open starts an engine over the databases under dir, creating the
// system database when absent.
func Open(dir string, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = utils.NewDefaultLogger(opts.LogLevel)
	}
	registry, err := store.OpenRegistry(dir, log, opts.SyncWrites)
	if err != nil {
		return nil, err
	}
	epochs := counters.NewEpochs()
	e := &Engine{
		log:      log,
		registry: registry,
		epochs:   epochs,
		facts:    facts.New(epochs),
		recs:     recs.New(opts.SamplerSeed),
		tasks:    tasks.New(registry.System()),
		instance: uuid.NewString(),
	}
	if opts.Metrics != nil {
		e.register(opts.Metrics)
	}
	e.log.Info("engine open", "dir", dir, "instance", e.instance)
	return e, nil
}

func (e *Engine) register(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		scan.BulkDeleteFlushes,
		scan.BulkDeleteRows,
		counters.WriteFailures,
		counters.Recounts,
		facts.DecodeErrors,
		facts.RepairInserted,
		facts.RepairDuration,
		recs.DecodeErrors,
		NewPebbleCollector(e.registry),
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				e.log.Warn("metrics registration failed", "err", err)
			}
		}
	}
}

func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.log.Info("engine closing", "instance", e.instance)
	return e.registry.Close()
}

func (e *Engine) handle(tenant string) (store.Handle, error) {
	if e.closed.Load() {
		return nil, zieook_errors.ErrClosed
	}
	return e.registry.Resolve(tenant)
}

// ---- tenants ----

// CreateTenant registers a content provider; a no-op when it already
// exists.
func (e *Engine) CreateTenant(ctx context.Context, tenant string) error {
	if e.closed.Load() {
		return zieook_errors.ErrClosed
	}
	_, err := e.registry.CreateTenant(tenant)
	return err
}

func (e *Engine) Tenants(ctx context.Context) ([]store.TenantInfo, error) {
	if e.closed.Load() {
		return nil, zieook_errors.ErrClosed
	}
	return e.registry.Tenants()
}

// ---- ratings ----

func (e *Engine) PutRating(ctx context.Context, tenant string, r model.Rating) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return e.facts.PutRating(ctx, h, r)
}

func (e *Engine) GetRating(ctx context.Context, tenant, collection string, user, item uint64) (model.Rating, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return model.Rating{}, err
	}
	return e.facts.GetRating(ctx, h, collection, user, item)
}

func (e *Engine) DeleteRating(ctx context.Context, tenant, collection string, user, item uint64) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return e.facts.DeleteRating(ctx, h, collection, user, item)
}

// GetRatings returns up to size recent ratings of a user, searching an
// adaptively expanding time window.
func (e *Engine) GetRatings(ctx context.Context, tenant, collection string, user uint64, size int) ([]model.Rating, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.GetRatings(ctx, h, collection, user, size)
}

func (e *Engine) GetRatingsFor(ctx context.Context, tenant, collection string, user uint64) ([]model.Rating, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.GetRatingsFor(ctx, h, collection, user)
}

// DeleteRatings purges all ratings of a user in a collection and
// returns how many were removed.
func (e *Engine) DeleteRatings(ctx context.Context, tenant, collection string, user uint64) (int, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return 0, err
	}
	return e.facts.DeleteRatings(ctx, h, collection, user)
}

func (e *Engine) SearchRatingsByTitle(ctx context.Context, tenant, collection string, user uint64, titlePattern string, limit int) ([]model.Rating, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.SearchRatingsByTitle(ctx, h, collection, user, titlePattern, limit)
}

// ---- views and recommendation-served facts ----

func (e *Engine) PutView(ctx context.Context, tenant string, v model.View) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return e.facts.PutView(ctx, h, v)
}

func (e *Engine) GetViews(ctx context.Context, tenant, recommender string, user uint64, from, to uint64, size int) ([]model.View, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.GetViews(ctx, h, recommender, user, from, to, size)
}

func (e *Engine) PutRecommended(ctx context.Context, tenant string, r model.Recommended) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return e.facts.PutRecommended(ctx, h, r)
}

func (e *Engine) GetRecommended(ctx context.Context, tenant, recommender string, user uint64, from, to uint64, size int) ([]model.Recommended, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.GetRecommended(ctx, h, recommender, user, from, to, size)
}

// RepairIndexes re-derives the secondary time indexes of a tenant from
// its fact rows and returns how many missing index rows were inserted.
func (e *Engine) RepairIndexes(ctx context.Context, tenant string) (int, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return 0, err
	}
	return e.facts.Repair(ctx, h)
}

// ---- statistics ----

func (e *Engine) TopRated(ctx context.Context, tenant, collection string, size int, from uint64) ([]model.GroupedData, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.TopRated(ctx, h, collection, size, from)
}

func (e *Engine) TopViewed(ctx context.Context, tenant, collection string, size int, from uint64) ([]model.GroupedData, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.TopViewed(ctx, h, collection, size, from)
}

func (e *Engine) TopSources(ctx context.Context, tenant, collection string, size int, from uint64) ([]model.GroupedData, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.facts.TopSources(ctx, h, collection, size, from)
}

func (e *Engine) MostPopularItem(ctx context.Context, tenant, collection string, from uint64) (model.GroupedData, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return model.GroupedData{}, err
	}
	return e.facts.MostPopularItem(ctx, h, collection, from)
}

// Epoch returns the earliest known rating timestamp of a tenant.
func (e *Engine) Epoch(ctx context.Context, tenant string) (uint64, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return 0, err
	}
	return e.epochs.Epoch(ctx, h)
}

// RecomputeEpoch forces a rescan of the tenant epoch.
func (e *Engine) RecomputeEpoch(ctx context.Context, tenant string) (uint64, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return 0, err
	}
	return e.epochs.Recompute(ctx, h)
}

// UserCounts returns the derived activity counters of a user.
func (e *Engine) UserCounts(ctx context.Context, tenant string, user uint64) (counters.Counts, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return counters.Counts{}, err
	}
	return counters.Read(h, user)
}

// RecountUser re-derives a user's counters from the fact rows.
func (e *Engine) RecountUser(ctx context.Context, tenant string, user uint64) (counters.Counts, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return counters.Counts{}, err
	}
	return counters.Recount(ctx, h, user)
}
