// Package store owns the Pebble handles of the zieook engine: one database
// per tenant, one system database, and a registry resolving tenant names to
// open handles. Components never touch Pebble directly for point ops; the
// helpers here map backend errors into the zieook error taxonomy.
package store

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/siemvaessen/zieook-sub000/utils"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

type Handle interface {
	Tenant() string
	Database() *pebble.DB
	Logger() utils.Logger
	WriteOptions() *pebble.WriteOptions
	Snapshot() pebble.Reader
}

// Get returns a copy of the value at key. Absent rows yield ErrNotFound,
// backend failures ErrStoreUnavailable.
func Get(h Handle, key []byte) ([]byte, error) {
	value, closer, err := h.Database().Get(key)
	if err == pebble.ErrNotFound {
		return nil, zieook_errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	out := append([]byte(nil), value...)
	_ = closer.Close()
	return out, nil
}

// Exists reports whether a row is present without copying its value.
func Exists(h Handle, key []byte) (bool, error) {
	_, closer, err := h.Database().Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	_ = closer.Close()
	return true, nil
}

func Set(h Handle, key, value []byte) error {
	if err := h.Database().Set(key, value, h.WriteOptions()); err != nil {
		return fmt.Errorf("%w: set: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	return nil
}

func Delete(h Handle, key []byte) error {
	if err := h.Database().Delete(key, h.WriteOptions()); err != nil {
		return fmt.Errorf("%w: delete: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	return nil
}

// Increment applies a row-level atomic delta through the counter merger.
// The merge is atomic per row, so concurrent increments never lose updates.
func Increment(h Handle, key []byte, delta int64) error {
	if err := h.Database().Merge(key, CounterValue(delta), h.WriteOptions()); err != nil {
		return fmt.Errorf("%w: merge: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	return nil
}

// IncrementStamped bumps a count-and-timestamp row (popularity rows).
func IncrementStamped(h Handle, key []byte, delta int64, ts uint64) error {
	if err := h.Database().Merge(key, StampedValue(delta, ts), h.WriteOptions()); err != nil {
		return fmt.Errorf("%w: merge: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	return nil
}
