package zieook

import (
	"context"

	"github.com/siemvaessen/zieook-sub000/sampler"
	"github.com/siemvaessen/zieook-sub000/tasks"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// ---- recommendation lists ----

// PutRecommendation stores the ranked list a recommender computed for a
// subject (a user id or an item id, depending on the recommender type).
func (e *Engine) PutRecommendation(ctx context.Context, tenant, collection, recommender string, subject uint64, entries []sampler.Entry) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return e.recs.Put(ctx, h, collection, recommender, subject, entries)
}

// GetRecommendation returns the full stored list in rank order.
func (e *Engine) GetRecommendation(ctx context.Context, tenant, collection, recommender string, subject uint64) ([]sampler.Entry, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.recs.Get(ctx, h, collection, recommender, subject)
}

// Recommend samples size entries from the stored list under the given
// policy. This is the serving path.
func (e *Engine) Recommend(ctx context.Context, tenant, collection, recommender string, subject uint64, size int, policy sampler.Policy) ([]sampler.Entry, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.recs.Sample(ctx, h, collection, recommender, subject, size, policy)
}

func (e *Engine) DeleteRecommendation(ctx context.Context, tenant, collection, recommender string, subject uint64) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return e.recs.Delete(ctx, h, collection, recommender, subject)
}

// DeleteRecommender drops every stored list of a recommender and
// returns how many rows were removed.
func (e *Engine) DeleteRecommender(ctx context.Context, tenant, collection, recommender string) (int, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return 0, err
	}
	return e.recs.DeleteRecommender(ctx, h, collection, recommender)
}

// Recommenders lists the distinct recommender names that have stored
// lists in a collection.
func (e *Engine) Recommenders(ctx context.Context, tenant, collection string) ([]string, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	return e.recs.Recommenders(ctx, h, collection)
}

// ---- tasks ----
//
// Tasks live in the system database, not in a tenant database; the
// tenant in a task row is a column, not a routing key.

func (e *Engine) Tasks() *tasks.Store {
	return e.tasks
}

func (e *Engine) CreateTask(ctx context.Context, t *tasks.Task) error {
	if e.closed.Load() {
		return zieook_errors.ErrClosed
	}
	return e.tasks.Create(ctx, t)
}

func (e *Engine) GetTask(ctx context.Context, id uint64) (tasks.Task, error) {
	if e.closed.Load() {
		return tasks.Task{}, zieook_errors.ErrClosed
	}
	return e.tasks.Get(ctx, id)
}

func (e *Engine) UpdateTask(ctx context.Context, t *tasks.Task) error {
	if e.closed.Load() {
		return zieook_errors.ErrClosed
	}
	return e.tasks.Update(ctx, t)
}

func (e *Engine) DeleteTask(ctx context.Context, id uint64) error {
	if e.closed.Load() {
		return zieook_errors.ErrClosed
	}
	return e.tasks.Delete(ctx, id)
}

func (e *Engine) SearchTasks(ctx context.Context, q tasks.Query) ([]uint64, error) {
	if e.closed.Load() {
		return nil, zieook_errors.ErrClosed
	}
	return e.tasks.Search(ctx, q)
}
