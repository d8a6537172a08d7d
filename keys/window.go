package keys

import "encoding/binary"

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, for use as an exclusive scan upper bound. Returns nil when the
// prefix is all 0xff, meaning "no upper bound".
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// TimeWindow returns scan bounds over an inverted-timestamp key range.
// The range covers every key under prefix whose timestamp t satisfies
// from <= t <= to; because timestamps are stored inverted the scan visits
// them newest first. Keys may carry arbitrary suffixes after the
// timestamp component.
func TimeWindow(prefix []byte, from, to uint64) (lo, hi []byte) {
	lo = binary.BigEndian.AppendUint64(append([]byte(nil), prefix...), InvertTime(to))
	invFrom := InvertTime(from)
	if invFrom == ^uint64(0) {
		return lo, PrefixEnd(prefix)
	}
	hi = binary.BigEndian.AppendUint64(append([]byte(nil), prefix...), invFrom+1)
	return lo, hi
}
