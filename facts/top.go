package facts

import (
	"context"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/topk"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// stampedTS extracts the timestamp column of a popularity row for value
// filters; rows that are not stamped counters never match.
func stampedTS(_ []byte, value []byte) ([]byte, bool) {
	if len(value) != 16 {
		return nil, false
	}
	return value[8:], true
}

// topGrouped scans one popularity dimension into a bounded aggregator.
// A non-zero from drops rows whose latest activity predates the window.
func (s *Store) topGrouped(ctx context.Context, h store.Handle, collection string, kind byte, size int, from uint64) ([]model.GroupedData, error) {
	if size <= 0 {
		return nil, nil
	}
	sc := scan.Range(keys.PopularityPrefix(collection, kind))
	if from > 0 {
		sc.Filter = scan.Or(
			scan.ValueCmp(stampedTS, scan.OpGt, keys.TimeValue(from)),
			scan.ValueCmp(stampedTS, scan.OpEq, keys.TimeValue(from)),
		)
	}
	agg := topk.New(size, model.GroupedData.Better)
	snap := h.Snapshot()
	defer snap.Close()
	err := sc.Run(snap, func(key, value []byte) bool {
		coll, _, id, kerr := keys.ParsePopularityKey(key)
		if kerr != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed popularity row", "tenant", h.Tenant(), "err", kerr)
			DecodeErrors.WithLabelValues(h.Tenant(), "popularity").Inc()
			return true
		}
		count, ts, ok := store.DecodeStamped(value)
		if !ok || count <= 0 {
			return true
		}
		agg.Offer(model.GroupedData{Collection: coll, Item: id, Count: count, Stamp: ts})
		return true
	})
	if err != nil {
		return nil, err
	}
	return agg.Ranked(), nil
}

// TopRated returns the size most-rated items of a collection, rating
// activity since from (0 means all time).
func (s *Store) TopRated(ctx context.Context, h store.Handle, collection string, size int, from uint64) ([]model.GroupedData, error) {
	return s.topGrouped(ctx, h, collection, keys.PopRated, size, from)
}

// TopViewed returns the size most-viewed items of a collection.
func (s *Store) TopViewed(ctx context.Context, h store.Handle, collection string, size int, from uint64) ([]model.GroupedData, error) {
	return s.topGrouped(ctx, h, collection, keys.PopViewed, size, from)
}

// TopSources returns the size items that most often led users to view
// something else.
func (s *Store) TopSources(ctx context.Context, h store.Handle, collection string, size int, from uint64) ([]model.GroupedData, error) {
	return s.topGrouped(ctx, h, collection, keys.PopSource, size, from)
}

// MostPopularItem is the K=1 case of TopViewed.
func (s *Store) MostPopularItem(ctx context.Context, h store.Handle, collection string, from uint64) (model.GroupedData, error) {
	top, err := s.TopViewed(ctx, h, collection, 1, from)
	if err != nil {
		return model.GroupedData{}, err
	}
	if len(top) == 0 {
		return model.GroupedData{}, zieook_errors.ErrNotFound
	}
	return top[0], nil
}
