package scan

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// DeleteBatchSize is the flush threshold of the bulk delete executor.
const DeleteBatchSize = 1000

var BulkDeleteFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "bulk_delete",
	Name:      "flushes",
}, []string{"tenant"})

var BulkDeleteRows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zieook",
	Subsystem: "bulk_delete",
	Name:      "rows",
}, []string{"tenant"})

// Deleter accumulates row keys and flushes them as batched deletes, so
// memory use stays bounded by the batch size no matter how many rows are
// removed. A caller may abort between flushes; already-flushed deletes
// stay applied.
type Deleter struct {
	BatchSize int

	h       store.Handle
	pending [][]byte
	total   int
	flushes int
}

func NewDeleter(h store.Handle) *Deleter {
	return &Deleter{BatchSize: DeleteBatchSize, h: h}
}

func (d *Deleter) Add(key []byte) error {
	d.pending = append(d.pending, append([]byte(nil), key...))
	if len(d.pending) >= d.BatchSize {
		return d.Flush()
	}
	return nil
}

func (d *Deleter) Flush() error {
	if len(d.pending) == 0 {
		return nil
	}
	batch := d.h.Database().NewBatch()
	defer batch.Close()
	for _, key := range d.pending {
		if err := batch.Delete(key, nil); err != nil {
			return fmt.Errorf("%w: batch delete: %v", zieook_errors.ErrStoreUnavailable, err)
		}
	}
	if err := batch.Commit(d.h.WriteOptions()); err != nil {
		return fmt.Errorf("%w: batch commit: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	d.total += len(d.pending)
	d.flushes++
	BulkDeleteFlushes.WithLabelValues(d.h.Tenant()).Inc()
	BulkDeleteRows.WithLabelValues(d.h.Tenant()).Add(float64(len(d.pending)))
	d.pending = d.pending[:0]
	return nil
}

// Pending returns the keys currently buffered, always < BatchSize after
// a successful Add.
func (d *Deleter) Pending() int { return len(d.pending) }

// Total returns rows removed so far, for caller-side counter
// reconciliation.
func (d *Deleter) Total() int { return d.total }

// Flushes returns the number of delete batches issued.
func (d *Deleter) Flushes() int { return d.flushes }

// BulkDelete removes every row the scanner yields and returns the count
// removed.
func BulkDelete(h store.Handle, s *Scanner) (int, error) {
	d := NewDeleter(h)
	var addErr error
	err := s.Run(h.Database(), func(key, _ []byte) bool {
		if addErr = d.Add(key); addErr != nil {
			return false
		}
		return true
	})
	if err == nil {
		err = addErr
	}
	if err != nil {
		return d.Total(), err
	}
	if err := d.Flush(); err != nil {
		return d.Total(), err
	}
	return d.Total(), nil
}
