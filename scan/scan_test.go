package scan

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/utils"
)

func testHandle(t *testing.T) store.Handle {
	t.Helper()
	r, err := store.OpenRegistry(t.TempDir(), utils.NewDefaultLogger(slog.LevelWarn), false)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	h, err := r.CreateTenant("acme")
	assert.NoError(t, err)
	return h
}

func put(t *testing.T, h store.Handle, key, value string) {
	t.Helper()
	assert.NoError(t, store.Set(h, []byte(key), []byte(value)))
}

func TestScannerRange(t *testing.T) {
	h := testHandle(t)
	put(t, h, "Fa1", "one")
	put(t, h, "Fa2", "two")
	put(t, h, "Fb1", "other prefix")
	put(t, h, "G01", "other family")

	rows, err := Range([]byte("Fa")).Collect(h.Database())
	assert.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, []byte("Fa1"), rows[0][0])
	assert.Equal(t, []byte("two"), rows[1][1])
}

func TestScannerEarlyStop(t *testing.T) {
	h := testHandle(t)
	for i := 0; i < 10; i++ {
		put(t, h, fmt.Sprintf("Fa%02d", i), "x")
	}

	var seen int
	err := Range([]byte("Fa")).Run(h.Database(), func(_, _ []byte) bool {
		seen++
		return seen < 3
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, seen)
}

func TestScannerLimit(t *testing.T) {
	h := testHandle(t)
	for i := 0; i < 10; i++ {
		put(t, h, fmt.Sprintf("Fa%02d", i), "x")
	}

	s := Range([]byte("Fa"))
	s.Limit = 4
	rows, err := s.Collect(h.Database())
	assert.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestFilterComposition(t *testing.T) {
	col := func(_, value []byte) ([]byte, bool) {
		if len(value) != 8 {
			return nil, false
		}
		return value, true
	}
	num := func(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

	gt5 := ValueCmp(col, OpGt, num(5))
	lt9 := ValueCmp(col, OpLt, num(9))
	both := And(gt5, lt9)

	assert.True(t, both(nil, num(7)))
	assert.False(t, both(nil, num(5)))
	assert.False(t, both(nil, num(9)))
	assert.False(t, both(nil, []byte("short")), "rows lacking the column never match")

	either := Or(ValueCmp(col, OpEq, num(1)), ValueCmp(col, OpEq, num(2)))
	assert.True(t, either(nil, num(2)))
	assert.False(t, either(nil, num(3)))
}

func TestRowsSkipsAbsentKeys(t *testing.T) {
	h := testHandle(t)
	put(t, h, "Fa1", "one")
	put(t, h, "Fa3", "three")

	var got []string
	err := Rows(h, [][]byte{[]byte("Fa3"), []byte("Fa2"), []byte("Fa1")}, func(key, value []byte) bool {
		got = append(got, string(value))
		return true
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"three", "one"}, got)
}

func TestRowsEarlyStop(t *testing.T) {
	h := testHandle(t)
	put(t, h, "Fa1", "one")
	put(t, h, "Fa2", "two")

	var visited int
	err := Rows(h, [][]byte{[]byte("Fa1"), []byte("Fa2")}, func(key, value []byte) bool {
		visited++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, visited)
}

func TestRowIn(t *testing.T) {
	f := RowIn([]byte("a"), []byte("c"))
	assert.True(t, f([]byte("a"), nil))
	assert.False(t, f([]byte("b"), nil))
	assert.True(t, f([]byte("c"), nil))
}

func TestBulkDeleteBatches(t *testing.T) {
	h := testHandle(t)
	const rows = 10050
	for i := 0; i < rows; i++ {
		put(t, h, fmt.Sprintf("Fa%08d", i), "x")
	}
	put(t, h, "Fb0", "survivor")

	removed, err := BulkDelete(h, Range([]byte("Fa")))
	assert.NoError(t, err)
	assert.Equal(t, rows, removed)

	left, err := Range([]byte("F")).Collect(h.Database())
	assert.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Equal(t, []byte("Fb0"), left[0][0])
}

func TestDeleterBoundedPending(t *testing.T) {
	h := testHandle(t)
	d := NewDeleter(h)
	d.BatchSize = 100
	for i := 0; i < 1001; i++ {
		assert.NoError(t, d.Add([]byte(fmt.Sprintf("Fa%08d", i))))
		assert.Less(t, d.Pending(), 100)
	}
	assert.Equal(t, 10, d.Flushes())
	assert.NoError(t, d.Flush())
	assert.Equal(t, 11, d.Flushes())
	assert.Equal(t, 1001, d.Total())
}
