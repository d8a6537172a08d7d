package scan

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// Scanner streams matching rows from a bounded forward iteration.
// Upper defaults to PrefixEnd(Lower). Limit counts matches, 0 means
// unlimited. The callback may stop the scan early by returning false.
type Scanner struct {
	Lower  []byte
	Upper  []byte
	Filter Filter
	Limit  int
}

// Range scans every row under prefix.
func Range(prefix []byte) *Scanner {
	return &Scanner{Lower: prefix}
}

// Window scans an inverted-timestamp range under prefix, newest first.
func Window(prefix []byte, from, to uint64) *Scanner {
	lo, hi := keys.TimeWindow(prefix, from, to)
	return &Scanner{Lower: lo, Upper: hi}
}

func (s *Scanner) bounds() (lo, hi []byte) {
	hi = s.Upper
	if hi == nil {
		hi = keys.PrefixEnd(s.Lower)
	}
	return s.Lower, hi
}

// Run iterates the scan against a reader (database or snapshot). Key and
// value slices passed to fn are only valid for the duration of the call.
func (s *Scanner) Run(reader pebble.Reader, fn func(key, value []byte) bool) error {
	lo, hi := s.bounds()
	it, err := reader.NewIter(&pebble.IterOptions{
		LowerBound: lo,
		UpperBound: hi,
	})
	if err != nil {
		return fmt.Errorf("%w: iter: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	defer it.Close()

	matched := 0
	for valid := it.First(); valid; valid = it.Next() {
		if s.Filter != nil && !s.Filter(it.Key(), it.Value()) {
			continue
		}
		if !fn(it.Key(), it.Value()) {
			return nil
		}
		matched++
		if s.Limit > 0 && matched >= s.Limit {
			return nil
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("%w: iter: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	return nil
}

// Collect runs the scan and copies matching rows out.
func (s *Scanner) Collect(reader pebble.Reader) (rows [][2][]byte, err error) {
	err = s.Run(reader, func(key, value []byte) bool {
		rows = append(rows, [2][]byte{
			append([]byte(nil), key...),
			append([]byte(nil), value...),
		})
		return true
	})
	return rows, err
}

// Rows fetches an explicit key set with point gets in one pass. Absent
// rows are skipped; the callback receives the rows in argument order.
func Rows(h store.Handle, rowKeys [][]byte, fn func(key, value []byte) bool) error {
	for _, key := range rowKeys {
		value, err := store.Get(h, key)
		if errors.Is(err, zieook_errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !fn(key, value) {
			return nil
		}
	}
	return nil
}
