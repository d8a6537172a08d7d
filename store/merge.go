package store

import (
	"encoding/binary"
	"io"
	"slices"

	"github.com/cockroachdb/pebble"
)

// MergerName identifies the counter merger; it is persisted in the Pebble
// manifest, so it must never change for existing databases.
const MergerName = "zieook.counters"

// CounterValue encodes an additive delta for a plain counter row.
func CounterValue(delta int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(delta))
}

// DecodeCounter reads a merged counter row.
func DecodeCounter(value []byte) (int64, bool) {
	if len(value) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(value)), true
}

// StampedValue encodes a delta plus an event timestamp for a
// count-and-timestamp row. Merging sums the counts and keeps the latest
// timestamp.
func StampedValue(delta int64, ts uint64) []byte {
	value := binary.BigEndian.AppendUint64(nil, uint64(delta))
	return binary.BigEndian.AppendUint64(value, ts)
}

// DecodeStamped reads a merged count-and-timestamp row.
func DecodeStamped(value []byte) (count int64, ts uint64, ok bool) {
	if len(value) != 16 {
		return 0, 0, false
	}
	return int64(binary.BigEndian.Uint64(value)), binary.BigEndian.Uint64(value[8:]), true
}

// Merger builds the Pebble merge operator for counter rows. Plain
// counters are 8-byte signed sums; stamped counters are 16 bytes, count
// sum plus max timestamp. Malformed operands are dropped rather than
// poisoning the row.
func Merger() *pebble.Merger {
	return &pebble.Merger{
		Name: MergerName,
		Merge: func(key, value []byte) (pebble.ValueMerger, error) {
			adaptor := &mergeAdaptor{}
			return adaptor, adaptor.MergeNewer(value)
		},
	}
}

type mergeAdaptor struct {
	old  bool
	vals [][]byte
}

func (a *mergeAdaptor) MergeNewer(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	return nil
}

func (a *mergeAdaptor) MergeOlder(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	a.old = true
	return nil
}

func (a *mergeAdaptor) Finish(includesBase bool) (res []byte, cl io.Closer, err error) {
	if a.old {
		slices.Reverse(a.vals)
	}
	if len(a.vals) == 0 {
		return nil, nil, nil
	}
	stamped := false
	var sum int64
	var latest uint64
	for _, value := range a.vals {
		switch len(value) {
		case 8:
			sum += int64(binary.BigEndian.Uint64(value))
		case 16:
			stamped = true
			sum += int64(binary.BigEndian.Uint64(value))
			if ts := binary.BigEndian.Uint64(value[8:]); ts > latest {
				latest = ts
			}
		}
	}
	if stamped {
		return StampedValue(sum, latest), nil, nil
	}
	return CounterValue(sum), nil, nil
}
