// Package counters maintains the derived per-user activity counters and
// the lazily computed tenant epoch.
//
// Counters are best-effort: they are bumped by row-level atomic
// increments next to fact writes, with no transaction tying the two
// together, and may drift under partial failure. Recount is the
// reconciliation procedure; tests must not assume exactness beyond
// "matches after recount".
package counters

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

var WriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "counters",
	Name:      "write_failures",
}, []string{"tenant", "kind"})

var Recounts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "counters",
	Name:      "recounts",
}, []string{"tenant"})

func kindName(kind byte) string {
	switch kind {
	case keys.CounterRating:
		return "rating"
	case keys.CounterView:
		return "view"
	case keys.CounterRecommend:
		return "recommend"
	}
	return "unknown"
}

// Bump applies a best-effort counter delta plus, for increments, the
// matching last-activity timestamp. Failures are logged and surface in
// metrics; callers on the fact write path ignore them since a recount
// repairs any drift.
func Bump(h store.Handle, user uint64, kind byte, delta int64, ts uint64) error {
	if err := store.Increment(h, keys.CounterKey(user, kind), delta); err != nil {
		h.Logger().Warn("counter increment failed",
			"tenant", h.Tenant(), "user", user, "kind", kindName(kind), "err", err)
		WriteFailures.WithLabelValues(h.Tenant(), kindName(kind)).Inc()
		return err
	}
	if delta > 0 {
		if err := store.Set(h, keys.CounterKey(user, kind|keys.ActivityBit), keys.TimeValue(ts)); err != nil {
			h.Logger().Warn("last-activity write failed",
				"tenant", h.Tenant(), "user", user, "kind", kindName(kind), "err", err)
			WriteFailures.WithLabelValues(h.Tenant(), kindName(kind)).Inc()
			return err
		}
	}
	return nil
}

// Counts are the three derived counters and last-activity stamps of one
// user.
type Counts struct {
	Ratings    int64
	Views      int64
	Recommends int64

	LastRating    uint64
	LastView      uint64
	LastRecommend uint64
}

func readCounter(h store.Handle, user uint64, kind byte) (int64, error) {
	value, err := store.Get(h, keys.CounterKey(user, kind))
	if errors.Is(err, zieook_errors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	total, ok := store.DecodeCounter(value)
	if !ok {
		return 0, nil
	}
	return total, nil
}

func readActivity(h store.Handle, user uint64, kind byte) (uint64, error) {
	value, err := store.Get(h, keys.CounterKey(user, kind|keys.ActivityBit))
	if errors.Is(err, zieook_errors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ts, perr := keys.ParseTimeValue(value)
	if perr != nil {
		return 0, nil
	}
	return ts, nil
}

// Read returns the stored counters of a user, zero for absent rows.
func Read(h store.Handle, user uint64) (Counts, error) {
	var c Counts
	var err error
	if c.Ratings, err = readCounter(h, user, keys.CounterRating); err != nil {
		return c, err
	}
	if c.Views, err = readCounter(h, user, keys.CounterView); err != nil {
		return c, err
	}
	if c.Recommends, err = readCounter(h, user, keys.CounterRecommend); err != nil {
		return c, err
	}
	if c.LastRating, err = readActivity(h, user, keys.CounterRating); err != nil {
		return c, err
	}
	if c.LastView, err = readActivity(h, user, keys.CounterView); err != nil {
		return c, err
	}
	c.LastRecommend, err = readActivity(h, user, keys.CounterRecommend)
	return c, err
}

// Recount re-derives a user's counters from the fact rows and rewrites
// the counter rows with absolute values, clearing any drift.
func Recount(ctx context.Context, h store.Handle, user uint64) (Counts, error) {
	var c Counts
	snap := h.Snapshot()
	defer snap.Close()

	err := scan.Range(keys.FamilyPrefix(keys.FamRating)).Run(snap, func(key, value []byte) bool {
		_, u, _, err := keys.ParseRatingKey(key)
		if err != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed rating row", "tenant", h.Tenant(), "err", err)
			return true
		}
		if u != user {
			return true
		}
		c.Ratings++
		if _, ts, err := keys.ParseRatingValue(value); err == nil && ts > c.LastRating {
			c.LastRating = ts
		}
		return true
	})
	if err != nil {
		return c, err
	}

	err = scan.Range(keys.FamilyPrefix(keys.FamView)).Run(snap, func(key, _ []byte) bool {
		_, u, _, ts, err := keys.ParseViewKey(key)
		if err != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed view row", "tenant", h.Tenant(), "err", err)
			return true
		}
		if u != user {
			return true
		}
		c.Views++
		if ts > c.LastView {
			c.LastView = ts
		}
		return true
	})
	if err != nil {
		return c, err
	}

	err = scan.Range(keys.FamilyPrefix(keys.FamRecommended)).Run(snap, func(key, _ []byte) bool {
		_, u, ts, err := keys.ParseRecommendedKey(key)
		if err != nil {
			h.Logger().WarnCtx(ctx, "skipping malformed recommended row", "tenant", h.Tenant(), "err", err)
			return true
		}
		if u != user {
			return true
		}
		c.Recommends++
		if ts > c.LastRecommend {
			c.LastRecommend = ts
		}
		return true
	})
	if err != nil {
		return c, err
	}

	for kind, pair := range map[byte][2]uint64{
		keys.CounterRating:    {uint64(c.Ratings), c.LastRating},
		keys.CounterView:      {uint64(c.Views), c.LastView},
		keys.CounterRecommend: {uint64(c.Recommends), c.LastRecommend},
	} {
		if err := store.Set(h, keys.CounterKey(user, kind), store.CounterValue(int64(pair[0]))); err != nil {
			return c, err
		}
		if pair[1] != 0 {
			if err := store.Set(h, keys.CounterKey(user, kind|keys.ActivityBit), keys.TimeValue(pair[1])); err != nil {
				return c, err
			}
		}
	}
	Recounts.WithLabelValues(h.Tenant()).Inc()
	return c, nil
}
