package counters

import (
	"context"
	"errors"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// Epochs tracks the earliest known rating timestamp per tenant. The
// value is cached in process and in a meta row; the full scan computing
// it is a rare, amortized-cost path that only runs on a cold cache.
type Epochs struct {
	cache *xsync.MapOf[string, uint64]
}

func NewEpochs() *Epochs {
	return &Epochs{cache: xsync.NewMapOf[string, uint64]()}
}

// Epoch returns the tenant epoch, computing and caching it when unknown.
// A tenant without any rating facts has epoch 0; that result is not
// cached so the first fact establishes a real epoch.
func (e *Epochs) Epoch(ctx context.Context, h store.Handle) (uint64, error) {
	if ts, ok := e.cache.Load(h.Tenant()); ok {
		return ts, nil
	}
	value, err := store.Get(h, keys.EpochKey())
	if err == nil {
		if ts, perr := keys.ParseTimeValue(value); perr == nil {
			e.cache.Store(h.Tenant(), ts)
			return ts, nil
		}
		// malformed cache row, fall through to a recompute
	} else if !errors.Is(err, zieook_errors.ErrNotFound) {
		return 0, err
	}
	return e.Recompute(ctx, h)
}

// Observe lowers the known epoch when a new fact predates it. Without
// this a backdated rating would sit below the bound that window
// expansion stops at and could never be read back.
func (e *Epochs) Observe(h store.Handle, ts uint64) {
	cur, ok := e.cache.Load(h.Tenant())
	if !ok {
		value, err := store.Get(h, keys.EpochKey())
		if err != nil {
			// no persisted epoch, the next Epoch call rescans and
			// sees this fact
			return
		}
		cur, err = keys.ParseTimeValue(value)
		if err != nil {
			return
		}
		e.cache.Store(h.Tenant(), cur)
	}
	if ts >= cur {
		return
	}
	e.cache.Store(h.Tenant(), ts)
	if err := store.Set(h, keys.EpochKey(), keys.TimeValue(ts)); err != nil {
		h.Logger().Warn("epoch cache row write failed", "tenant", h.Tenant(), "err", err)
	}
}

// Invalidate drops the cached epoch, forcing the next Epoch call to
// rescan. Called after deletes that may have removed the earliest fact.
func (e *Epochs) Invalidate(h store.Handle) {
	e.cache.Delete(h.Tenant())
	if err := store.Delete(h, keys.EpochKey()); err != nil {
		h.Logger().Warn("epoch cache row delete failed", "tenant", h.Tenant(), "err", err)
	}
}

// Recompute scans the rating facts for the minimum timestamp and caches
// the result.
func (e *Epochs) Recompute(ctx context.Context, h store.Handle) (uint64, error) {
	min := keys.MaxTime
	found := false
	snap := h.Snapshot()
	defer snap.Close()
	err := scan.Range(keys.FamilyPrefix(keys.FamRating)).Run(snap, func(key, value []byte) bool {
		_, ts, err := keys.ParseRatingValue(value)
		if err != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed rating row", "tenant", h.Tenant(), "err", err)
			return true
		}
		found = true
		if ts < min {
			min = ts
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if err := store.Set(h, keys.EpochKey(), keys.TimeValue(min)); err != nil {
		h.Logger().Warn("epoch cache row write failed", "tenant", h.Tenant(), "err", err)
	}
	e.cache.Store(h.Tenant(), min)
	return min, nil
}
