package facts

import (
	"context"
	"fmt"
	"sort"

	"github.com/siemvaessen/zieook-sub000/counters"
	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// PutRating stores a rating fact and bumps the derived aggregates.
func (s *Store) PutRating(ctx context.Context, h store.Handle, r model.Rating) error {
	if !keys.ValidName(r.Collection) {
		return fmt.Errorf("%w: collection %q", zieook_errors.ErrInvalidArgument, r.Collection)
	}
	key := keys.RatingKey(r.Collection, r.User, r.Item)
	overwrite, err := store.Exists(h, key)
	if err != nil {
		return err
	}
	if err := store.Set(h, key, keys.RatingValue(r.Value, r.Stamp)); err != nil {
		return err
	}
	// an overwrite replaces the fact, the aggregates already count it
	if !overwrite {
		// best-effort side writes, repaired by recount if they fail
		_ = counters.Bump(h, r.User, keys.CounterRating, 1, r.Stamp)
		if err := store.IncrementStamped(h, keys.PopularityKey(r.Collection, keys.PopRated, r.Item), 1, r.Stamp); err != nil {
			h.Logger().WarnCtx(ctx, "popularity bump failed", "tenant", h.Tenant(), "item", r.Item, "err", err)
		}
	}
	s.epochs.Observe(h, r.Stamp)
	return nil
}

// GetRating returns one rating fact, ErrNotFound when absent.
func (s *Store) GetRating(ctx context.Context, h store.Handle, collection string, user, item uint64) (model.Rating, error) {
	value, err := store.Get(h, keys.RatingKey(collection, user, item))
	if err != nil {
		return model.Rating{}, err
	}
	v, ts, err := keys.ParseRatingValue(value)
	if err != nil {
		return model.Rating{}, err
	}
	return model.Rating{Collection: collection, User: user, Item: item, Value: v, Stamp: ts}, nil
}

// DeleteRating removes a rating fact and decrements the aggregates. The
// tenant epoch is invalidated when the removed fact could have been the
// earliest one.
func (s *Store) DeleteRating(ctx context.Context, h store.Handle, collection string, user, item uint64) error {
	r, err := s.GetRating(ctx, h, collection, user, item)
	if err != nil {
		return err
	}
	if err := store.Delete(h, keys.RatingKey(collection, user, item)); err != nil {
		return err
	}
	_ = counters.Bump(h, user, keys.CounterRating, -1, 0)
	if err := store.IncrementStamped(h, keys.PopularityKey(collection, keys.PopRated, item), -1, 0); err != nil {
		h.Logger().WarnCtx(ctx, "popularity decrement failed", "tenant", h.Tenant(), "item", item, "err", err)
	}
	if epoch, eerr := s.epochs.Epoch(ctx, h); eerr == nil && r.Stamp <= epoch {
		s.epochs.Invalidate(h)
	}
	return nil
}

// GetRatingsFor returns every rating of one user in a collection.
func (s *Store) GetRatingsFor(ctx context.Context, h store.Handle, collection string, user uint64) ([]model.Rating, error) {
	var out []model.Rating
	snap := h.Snapshot()
	defer snap.Close()
	err := scan.Range(keys.RatingUserPrefix(collection, user)).Run(snap, func(key, value []byte) bool {
		r, ok := s.decodeRating(ctx, h, key, value)
		if ok {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

// GetRatings gathers up to size recent ratings of a user. The time
// window expands geometrically outward from now (one day first) until
// enough results are found or the window reaches the tenant epoch, so a
// typically-recent result set never pays for a full history scan.
func (s *Store) GetRatings(ctx context.Context, h store.Handle, collection string, user uint64, size int) ([]model.Rating, error) {
	if size <= 0 {
		return nil, nil
	}
	epoch, err := s.epochs.Epoch(ctx, h)
	if err != nil {
		return nil, err
	}
	now := s.now()
	const day = uint64(24 * 60 * 60 * 1000)
	span := day

	var out []model.Rating
	for {
		from := uint64(0)
		if now > span {
			from = now - span
		}
		if from < epoch {
			from = epoch
		}
		out, err = s.ratingsInWindow(ctx, h, collection, user, from, now)
		if err != nil {
			return nil, err
		}
		if len(out) >= size || from <= epoch {
			break
		}
		span *= 4
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stamp > out[j].Stamp })
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

func (s *Store) ratingsInWindow(ctx context.Context, h store.Handle, collection string, user uint64, from, to uint64) ([]model.Rating, error) {
	// rating rows are keyed by item, not time: the window lives in a
	// value filter over the packed timestamp column
	notOlder := scan.Or(
		scan.ValueCmp(keys.RatingValueTS, scan.OpGt, keys.TimeValue(from)),
		scan.ValueCmp(keys.RatingValueTS, scan.OpEq, keys.TimeValue(from)),
	)
	notNewer := scan.Or(
		scan.ValueCmp(keys.RatingValueTS, scan.OpLt, keys.TimeValue(to)),
		scan.ValueCmp(keys.RatingValueTS, scan.OpEq, keys.TimeValue(to)),
	)
	sc := &scan.Scanner{
		Lower:  keys.RatingUserPrefix(collection, user),
		Filter: scan.And(notOlder, notNewer),
	}
	var out []model.Rating
	snap := h.Snapshot()
	defer snap.Close()
	err := sc.Run(snap, func(key, value []byte) bool {
		r, ok := s.decodeRating(ctx, h, key, value)
		if ok {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

func (s *Store) decodeRating(ctx context.Context, h store.Handle, key, value []byte) (model.Rating, bool) {
	collection, user, item, err := keys.ParseRatingKey(key)
	if err == nil {
		var v float64
		var ts uint64
		if v, ts, err = keys.ParseRatingValue(value); err == nil {
			return model.Rating{Collection: collection, User: user, Item: item, Value: v, Stamp: ts}, true
		}
	}
	// tolerate partial corruption: skip the row, keep the scan alive
	h.Logger().WarnCtx(ctx, "skipping malformed rating row", "tenant", h.Tenant(), "err", err)
	DecodeErrors.WithLabelValues(h.Tenant(), "rating").Inc()
	return model.Rating{}, false
}

// DeleteRatings purges every rating of a user in a collection through
// the batched bulk deleter and reconciles the user's rating counter with
// the removed count. Returns the number of facts removed.
func (s *Store) DeleteRatings(ctx context.Context, h store.Handle, collection string, user uint64) (int, error) {
	removed, err := scan.BulkDelete(h, scan.Range(keys.RatingUserPrefix(collection, user)))
	if removed > 0 {
		_ = counters.Bump(h, user, keys.CounterRating, -int64(removed), 0)
		s.epochs.Invalidate(h)
	}
	return removed, err
}
