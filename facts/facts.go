// Package facts stores the immutable event rows of the platform:
// ratings, views, and recommendation-served events, together with the
// maintained secondary time indexes over the high-volume kinds.
//
// Ratings are written once under (collection, user, item); point lookups
// and per-user scans use that key directly. Views and recommended events
// are queried by time range, so every write produces two rows: the fact
// row and an index row keyed by inverted timestamp whose value is the
// fact row's key. The two writes are not tied by a transaction; Repair
// re-derives every index row from the fact rows to fix any divergence.
//
// A rating write also bumps the user's derived counters and the grouped
// popularity rows. Those side writes are best-effort: a failure is
// logged and counted but never rolls back the fact write.
package facts

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemvaessen/zieook-sub000/counters"
	"github.com/siemvaessen/zieook-sub000/model"
)

var DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "facts",
	Name:      "decode_errors",
}, []string{"tenant", "family"})

var RepairInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "facts",
	Name:      "repair_inserted_rows",
}, []string{"tenant", "family"})

var RepairDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "zieook",
	Subsystem: "facts",
	Name:      "repair_duration_seconds",
	Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
}, []string{"tenant"})

// Store is the fact store. It carries the epoch tracker that bounds
// adaptive time-window queries and a small metadata cache for the
// title-search path.
type Store struct {
	epochs *counters.Epochs
	items  *lru.Cache[itemRef, model.Item]

	// now is swappable for adaptive-window tests
	now func() uint64
}

// itemRef keys the metadata cache; item ids are only unique per tenant.
type itemRef struct {
	tenant string
	id     uint64
}

const itemCacheSize = 4096

func New(epochs *counters.Epochs) *Store {
	cache, _ := lru.New[itemRef, model.Item](itemCacheSize)
	return &Store{
		epochs: epochs,
		items:  cache,
		now:    func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

// InvalidateItem drops the cached metadata of an item after an update
// or delete.
func (s *Store) InvalidateItem(tenant string, id uint64) {
	s.items.Remove(itemRef{tenant, id})
}
