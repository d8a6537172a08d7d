package counters

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// Allocator hands out unique, strictly increasing ids. The last
// allocated id is loaded from its backing row once, increments then run
// on an in-process atomic and are persisted write-through as row-level
// increments, so the stored row converges to the highest allocated id.
type Allocator struct {
	h   store.Handle
	key []byte

	mu     sync.Mutex
	loaded atomic.Bool
	next   atomic.Uint64
}

// NewTaskAllocator allocates task ids from the system database.
func NewTaskAllocator(h store.Handle) *Allocator {
	return &Allocator{h: h, key: keys.TaskSeqKey()}
}

func (a *Allocator) load() error {
	if a.loaded.Load() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded.Load() {
		return nil
	}
	value, err := store.Get(a.h, a.key)
	switch {
	case errors.Is(err, zieook_errors.ErrNotFound):
		// fresh database, ids start at 1
	case err != nil:
		return err
	default:
		if last, ok := store.DecodeCounter(value); ok {
			a.next.Store(uint64(last))
		}
	}
	a.loaded.Store(true)
	return nil
}

// Next returns the next id, starting at 1 on a fresh database.
func (a *Allocator) Next() (uint64, error) {
	if err := a.load(); err != nil {
		return 0, err
	}
	id := a.next.Add(1)
	if err := store.Increment(a.h, a.key, 1); err != nil {
		// the id is already claimed in memory; uniqueness holds for this
		// process but durability is at risk, so surface the error
		return id, err
	}
	return id, nil
}
