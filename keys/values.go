package keys

import (
	"encoding/binary"
	"math"
)

// Packed fact values. Like the keys they are fixed-width big-endian, so
// filters can compare them as raw bytes.

// RatingValue packs a rating fact value: value f64, ts u64.
func RatingValue(value float64, ts uint64) []byte {
	buf := binary.BigEndian.AppendUint64(nil, math.Float64bits(value))
	return binary.BigEndian.AppendUint64(buf, ts)
}

func ParseRatingValue(v []byte) (value float64, ts uint64, err error) {
	if len(v) != 16 {
		return 0, 0, badKey("rating value", v)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(v)), binary.BigEndian.Uint64(v[8:]), nil
}

// RatingValueTS extracts the timestamp column of a rating value for scan
// filters, still encoded big-endian.
func RatingValueTS(_, v []byte) ([]byte, bool) {
	if len(v) != 16 {
		return nil, false
	}
	return v[8:], true
}

// ViewValue packs a view fact value: source item u64, rank u32,
// collection.
func ViewValue(source uint64, rank uint32, collection string) []byte {
	buf := binary.BigEndian.AppendUint64(nil, source)
	buf = binary.BigEndian.AppendUint32(buf, rank)
	return appendName(buf, collection)
}

func ParseViewValue(v []byte) (source uint64, rank uint32, collection string, err error) {
	if len(v) < 13 {
		return 0, 0, "", badKey("view value", v)
	}
	source = binary.BigEndian.Uint64(v)
	rank = binary.BigEndian.Uint32(v[8:])
	collection, rest, ok := takeName(v[12:])
	if !ok || len(rest) != 0 {
		return 0, 0, "", badKey("view value", v)
	}
	return source, rank, collection, nil
}

// RecommendedValue packs a recommendation-served fact value: recommender
// type byte, requested size u32.
func RecommendedValue(rectype byte, size uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{rectype}, size)
}

func ParseRecommendedValue(v []byte) (rectype byte, size uint32, err error) {
	if len(v) != 5 {
		return 0, 0, badKey("recommended value", v)
	}
	return v[0], binary.BigEndian.Uint32(v[1:]), nil
}

// RawValue packs a verbatim item payload behind its xxhash sum, so an
// unchanged re-import can be detected without comparing payloads.
func RawValue(sum uint64, payload []byte) []byte {
	buf := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(payload)), sum)
	return append(buf, payload...)
}

func ParseRawValue(v []byte) (sum uint64, payload []byte, ok bool) {
	if len(v) < 8 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint64(v), v[8:], true
}

// TimeValue packs a bare timestamp row (last activity, tenant epoch).
func TimeValue(ts uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, ts)
}

func ParseTimeValue(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, badKey("time value", v)
	}
	return binary.BigEndian.Uint64(v), nil
}
