package facts

import (
	"context"
	"errors"
	"fmt"

	"github.com/siemvaessen/zieook-sub000/counters"
	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// PutView stores a view fact plus its time-index row. The index write
// follows the fact write; a failure in between leaves a fact without an
// index entry, which Repair reinstates.
func (s *Store) PutView(ctx context.Context, h store.Handle, v model.View) error {
	if !keys.ValidName(v.Recommender) {
		return fmt.Errorf("%w: recommender %q", zieook_errors.ErrInvalidArgument, v.Recommender)
	}
	factKey := keys.ViewKey(v.Recommender, v.User, v.Item, v.Stamp)
	if err := store.Set(h, factKey, keys.ViewValue(v.Source, v.Rank, v.Collection)); err != nil {
		return err
	}
	if err := store.Set(h, keys.ViewIndexKey(v.Recommender, v.User, v.Stamp, v.Item), factKey); err != nil {
		return err
	}
	_ = counters.Bump(h, v.User, keys.CounterView, 1, v.Stamp)
	if v.Collection != "" {
		if err := store.IncrementStamped(h, keys.PopularityKey(v.Collection, keys.PopViewed, v.Item), 1, v.Stamp); err != nil {
			h.Logger().WarnCtx(ctx, "popularity bump failed", "tenant", h.Tenant(), "item", v.Item, "err", err)
		}
		if v.Source != 0 {
			if err := store.IncrementStamped(h, keys.PopularityKey(v.Collection, keys.PopSource, v.Source), 1, v.Stamp); err != nil {
				h.Logger().WarnCtx(ctx, "source bump failed", "tenant", h.Tenant(), "source", v.Source, "err", err)
			}
		}
	}
	return nil
}

// GetViews returns up to size views of (recommender, user) within
// [from, to], newest first. The scan walks the time index and
// dereferences each pointer with a point get, stopping as soon as size
// facts are collected.
func (s *Store) GetViews(ctx context.Context, h store.Handle, recommender string, user uint64, from, to uint64, size int) ([]model.View, error) {
	var out []model.View
	var firstErr error
	sc := scan.Window(keys.ViewIndexPrefix(recommender, user), from, to)
	snap := h.Snapshot()
	defer snap.Close()
	err := sc.Run(snap, func(key, factKey []byte) bool {
		value, err := store.Get(h, factKey)
		if errors.Is(err, zieook_errors.ErrNotFound) {
			// dangling pointer, the fact write was lost or purged
			h.Logger().WarnCtx(ctx, "dangling view index row", "tenant", h.Tenant())
			DecodeErrors.WithLabelValues(h.Tenant(), "view_index").Inc()
			return true
		}
		if err != nil {
			firstErr = err
			return false
		}
		v, ok := s.decodeView(ctx, h, factKey, value)
		if !ok {
			return true
		}
		out = append(out, v)
		return size <= 0 || len(out) < size
	})
	if err == nil {
		err = firstErr
	}
	return out, err
}

func (s *Store) decodeView(ctx context.Context, h store.Handle, key, value []byte) (model.View, bool) {
	recommender, user, item, ts, err := keys.ParseViewKey(key)
	if err == nil {
		var source uint64
		var rank uint32
		var collection string
		if source, rank, collection, err = keys.ParseViewValue(value); err == nil {
			return model.View{
				Recommender: recommender,
				Collection:  collection,
				User:        user,
				Item:        item,
				Source:      source,
				Rank:        rank,
				Stamp:       ts,
			}, true
		}
	}
	h.Logger().WarnCtx(ctx, "skipping malformed view row", "tenant", h.Tenant(), "err", err)
	DecodeErrors.WithLabelValues(h.Tenant(), "view").Inc()
	return model.View{}, false
}

// PutRecommended stores a recommendation-served fact plus its index row.
func (s *Store) PutRecommended(ctx context.Context, h store.Handle, r model.Recommended) error {
	if !keys.ValidName(r.Recommender) {
		return fmt.Errorf("%w: recommender %q", zieook_errors.ErrInvalidArgument, r.Recommender)
	}
	if r.Type != model.RecTypeUser && r.Type != model.RecTypeItem {
		return fmt.Errorf("%w: recommender type %q", zieook_errors.ErrInvalidArgument, r.Type)
	}
	factKey := keys.RecommendedKey(r.Recommender, r.User, r.Stamp)
	if err := store.Set(h, factKey, keys.RecommendedValue(r.Type, r.Size)); err != nil {
		return err
	}
	if err := store.Set(h, keys.RecIndexKey(r.Recommender, r.User, r.Stamp), factKey); err != nil {
		return err
	}
	_ = counters.Bump(h, r.User, keys.CounterRecommend, 1, r.Stamp)
	return nil
}

// GetRecommended returns up to size recommendation-served facts of
// (recommender, user) within [from, to], newest first.
func (s *Store) GetRecommended(ctx context.Context, h store.Handle, recommender string, user uint64, from, to uint64, size int) ([]model.Recommended, error) {
	var out []model.Recommended
	var firstErr error
	sc := scan.Window(keys.RecIndexPrefix(recommender, user), from, to)
	snap := h.Snapshot()
	defer snap.Close()
	err := sc.Run(snap, func(key, factKey []byte) bool {
		value, err := store.Get(h, factKey)
		if errors.Is(err, zieook_errors.ErrNotFound) {
			h.Logger().WarnCtx(ctx, "dangling recommended index row", "tenant", h.Tenant())
			DecodeErrors.WithLabelValues(h.Tenant(), "recommended_index").Inc()
			return true
		}
		if err != nil {
			firstErr = err
			return false
		}
		rec, user2, ts, kerr := keys.ParseRecommendedKey(factKey)
		if kerr != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed recommended row", "tenant", h.Tenant(), "err", kerr)
			DecodeErrors.WithLabelValues(h.Tenant(), "recommended").Inc()
			return true
		}
		rectype, rsize, verr := keys.ParseRecommendedValue(value)
		if verr != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed recommended row", "tenant", h.Tenant(), "err", verr)
			DecodeErrors.WithLabelValues(h.Tenant(), "recommended").Inc()
			return true
		}
		out = append(out, model.Recommended{
			Recommender: rec,
			User:        user2,
			Type:        rectype,
			Size:        rsize,
			Stamp:       ts,
		})
		return size <= 0 || len(out) < size
	})
	if err == nil {
		err = firstErr
	}
	return out, err
}
