package facts

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
)

// Repair re-derives every time-index row from the fact rows of a
// tenant. It is idempotent (existing index rows are left alone) and is
// the documented recovery from a fact write whose index write failed, or
// from bootstrapping the index after a schema change. Recommenders are
// repaired concurrently.
func (s *Store) Repair(ctx context.Context, h store.Handle) (inserted int, err error) {
	start := time.Now()
	defer func() {
		RepairDuration.WithLabelValues(h.Tenant()).Observe(time.Since(start).Seconds())
	}()

	viewRecs, err := s.recommenders(ctx, h, keys.FamView)
	if err != nil {
		return 0, err
	}
	recRecs, err := s.recommenders(ctx, h, keys.FamRecommended)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan int, len(viewRecs)+len(recRecs))
	for _, recommender := range viewRecs {
		recommender := recommender
		g.Go(func() error {
			n, err := s.repairViews(gctx, h, recommender)
			results <- n
			return err
		})
	}
	for _, recommender := range recRecs {
		recommender := recommender
		g.Go(func() error {
			n, err := s.repairRecommended(gctx, h, recommender)
			results <- n
			return err
		})
	}
	err = g.Wait()
	close(results)
	for n := range results {
		inserted += n
	}
	return inserted, err
}

// recommenders lists the distinct recommender names present in a fact
// family by seeking to the next name after each one found. A row whose
// key fails to parse is logged and stepped over so one corrupt row does
// not hide every recommender sorting after it.
func (s *Store) recommenders(ctx context.Context, h store.Handle, fam byte) ([]string, error) {
	var out []string
	prefix := keys.FamilyPrefix(fam)
	snap := h.Snapshot()
	defer snap.Close()
	for {
		var name string
		var badKey []byte
		err := (&scan.Scanner{Lower: prefix, Upper: keys.PrefixEnd(keys.FamilyPrefix(fam)), Limit: 1}).
			Run(snap, func(key, _ []byte) bool {
				var perr error
				switch fam {
				case keys.FamView:
					name, _, _, _, perr = keys.ParseViewKey(key)
				default:
					name, _, _, perr = keys.ParseRecommendedKey(key)
				}
				if perr != nil {
					badKey = append([]byte(nil), key...)
				}
				return false
			})
		if err != nil {
			return nil, err
		}
		if badKey != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed fact row",
				"tenant", h.Tenant(), "family", famName(fam), "key", fmt.Sprintf("%x", badKey))
			DecodeErrors.WithLabelValues(h.Tenant(), famName(fam)).Inc()
			if prefix = keys.PrefixEnd(badKey); prefix == nil {
				return out, nil
			}
			continue
		}
		if name == "" {
			return out, nil
		}
		out = append(out, name)
		// jump past every row of this recommender
		next := append([]byte{fam}, name...)
		prefix = keys.PrefixEnd(append(next, keys.Terminator))
		if prefix == nil {
			return out, nil
		}
	}
}

func famName(fam byte) string {
	if fam == keys.FamView {
		return "view"
	}
	return "recommended"
}

func (s *Store) repairViews(ctx context.Context, h store.Handle, recommender string) (int, error) {
	inserted := 0
	var repairErr error
	snap := h.Snapshot()
	defer snap.Close()
	err := scan.Range(keys.ViewPrefix(recommender)).Run(snap, func(key, _ []byte) bool {
		rec, user, item, ts, err := keys.ParseViewKey(key)
		if err != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed view row", "tenant", h.Tenant(), "err", err)
			DecodeErrors.WithLabelValues(h.Tenant(), "view").Inc()
			return true
		}
		indexKey := keys.ViewIndexKey(rec, user, ts, item)
		ok, err := store.Exists(h, indexKey)
		if err != nil {
			repairErr = err
			return false
		}
		if ok {
			return true
		}
		if err := store.Set(h, indexKey, key); err != nil {
			repairErr = err
			return false
		}
		inserted++
		RepairInserted.WithLabelValues(h.Tenant(), "view_index").Inc()
		return true
	})
	if err == nil {
		err = repairErr
	}
	return inserted, err
}

func (s *Store) repairRecommended(ctx context.Context, h store.Handle, recommender string) (int, error) {
	inserted := 0
	var repairErr error
	snap := h.Snapshot()
	defer snap.Close()
	err := scan.Range(keys.RecommendedPrefix(recommender)).Run(snap, func(key, _ []byte) bool {
		rec, user, ts, err := keys.ParseRecommendedKey(key)
		if err != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed recommended row", "tenant", h.Tenant(), "err", err)
			DecodeErrors.WithLabelValues(h.Tenant(), "recommended").Inc()
			return true
		}
		indexKey := keys.RecIndexKey(rec, user, ts)
		ok, err := store.Exists(h, indexKey)
		if err != nil {
			repairErr = err
			return false
		}
		if ok {
			return true
		}
		if err := store.Set(h, indexKey, key); err != nil {
			repairErr = err
			return false
		}
		inserted++
		RepairInserted.WithLabelValues(h.Tenant(), "recommended_index").Inc()
		return true
	})
	if err == nil {
		err = repairErr
	}
	return inserted, err
}
