// Package recs stores the ranked recommendation lists computed offline
// per (collection, recommender, subject) and serves sampled slices of
// them.
package recs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/sampler"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

var DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "recs",
	Name:      "decode_errors",
}, []string{"tenant"})

type Store struct {
	sampler *sampler.Sampler
}

// New builds a recommendation store; seed 0 means time-seeded sampling.
func New(seed int64) *Store {
	return &Store{sampler: sampler.New(seed)}
}

func checkNames(collection, recommender string) error {
	if !keys.ValidName(collection) {
		return fmt.Errorf("%w: collection %q", zieook_errors.ErrInvalidArgument, collection)
	}
	if !keys.ValidName(recommender) {
		return fmt.Errorf("%w: recommender %q", zieook_errors.ErrInvalidArgument, recommender)
	}
	return nil
}

// Put replaces the stored ranked list for a subject. Entries are stored
// packed in the given order; rank order is the caller's contract.
func (s *Store) Put(ctx context.Context, h store.Handle, collection, recommender string, subject uint64, entries []sampler.Entry) error {
	if err := checkNames(collection, recommender); err != nil {
		return err
	}
	return store.Set(h, keys.RecListKey(collection, recommender, subject), sampler.Pack(entries))
}

// Get returns the full stored list, ErrNotFound when no list exists.
func (s *Store) Get(ctx context.Context, h store.Handle, collection, recommender string, subject uint64) ([]sampler.Entry, error) {
	list, err := s.list(h, collection, recommender, subject)
	if err != nil {
		return nil, err
	}
	out := make([]sampler.Entry, list.Len())
	for i := range out {
		out[i] = list.At(i)
	}
	return out, nil
}

// Sample returns size entries from the stored list under the spread
// policy.
func (s *Store) Sample(ctx context.Context, h store.Handle, collection, recommender string, subject uint64, size int, policy sampler.Policy) ([]sampler.Entry, error) {
	list, err := s.list(h, collection, recommender, subject)
	if err != nil {
		return nil, err
	}
	return s.sampler.Sample(list, size, policy), nil
}

func (s *Store) list(h store.Handle, collection, recommender string, subject uint64) (sampler.List, error) {
	if err := checkNames(collection, recommender); err != nil {
		return nil, err
	}
	value, err := store.Get(h, keys.RecListKey(collection, recommender, subject))
	if err != nil {
		return nil, err
	}
	return sampler.ParseList(value)
}

// Delete removes one subject's list.
func (s *Store) Delete(ctx context.Context, h store.Handle, collection, recommender string, subject uint64) error {
	if err := checkNames(collection, recommender); err != nil {
		return err
	}
	return store.Delete(h, keys.RecListKey(collection, recommender, subject))
}

// DeleteRecommender bulk-removes every list of a recommender, returning
// the number of subjects dropped.
func (s *Store) DeleteRecommender(ctx context.Context, h store.Handle, collection, recommender string) (int, error) {
	if err := checkNames(collection, recommender); err != nil {
		return 0, err
	}
	return scan.BulkDelete(h, scan.Range(keys.RecListRecommenderPrefix(collection, recommender)))
}

// Recommenders lists the distinct recommender names that have stored
// lists in a collection.
func (s *Store) Recommenders(ctx context.Context, h store.Handle, collection string) ([]string, error) {
	if !keys.ValidName(collection) {
		return nil, fmt.Errorf("%w: collection %q", zieook_errors.ErrInvalidArgument, collection)
	}
	var out []string
	prefix := keys.RecListPrefix(collection)
	snap := h.Snapshot()
	defer snap.Close()
	for {
		var name string
		var badKey []byte
		err := (&scan.Scanner{Lower: prefix, Upper: keys.PrefixEnd(keys.RecListPrefix(collection))}).
			Run(snap, func(key, _ []byte) bool {
				var perr error
				if _, name, _, perr = keys.ParseRecListKey(key); perr != nil {
					badKey = append([]byte(nil), key...)
				}
				return false
			})
		if err != nil {
			return nil, err
		}
		if badKey != nil {
			// step over the corrupt row, the names after it are still valid
			h.Logger().WarnCtx(ctx, "skipping malformed list row",
				"tenant", h.Tenant(), "collection", collection, "key", fmt.Sprintf("%x", badKey))
			DecodeErrors.WithLabelValues(h.Tenant()).Inc()
			if prefix = keys.PrefixEnd(badKey); prefix == nil {
				return out, nil
			}
			continue
		}
		if name == "" {
			return out, nil
		}
		out = append(out, name)
		next := append(keys.RecListPrefix(collection), name...)
		prefix = keys.PrefixEnd(append(next, keys.Terminator))
		if prefix == nil {
			return out, nil
		}
	}
}
