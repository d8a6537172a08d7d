// Package keys encodes and decodes the composite row keys of the zieook
// storage engine.
//
// # Layout rules
//
// Every row key starts with a one-byte family tag, the embedded store's
// stand-in for a column family. String components are NUL-free and
// terminated by 0x00, so the terminator can never collide with content.
// Numeric components are fixed-width big-endian, which makes the
// lexicographic order of encoded keys equal to the numeric order of their
// components. Timestamps that back "most recent first" queries are stored
// inverted (MaxTime - ts), so a forward scan yields descending time order.
//
// # Families, per tenant database
//
//	'I' item fields            'R' item raw payload
//	'U' user profile           'C' user counters / last activity
//	'F' rating facts           'G' item popularity counters
//	'V' view facts             'W' view time index
//	'D' recommended facts      'E' recommended time index
//	'L' recommendation lists   'M' tenant meta (epoch, collections)
//
// # Families, system database
//
//	'T' tasks    'N' task id sequence    'P' tenant registry
//
// Decoding a key whose length or terminators do not match the layout of
// the requested kind fails with zieook_errors.ErrKeyFormat.
package keys

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

const (
	FamItem        byte = 'I'
	FamItemRaw     byte = 'R'
	FamUser        byte = 'U'
	FamCounter     byte = 'C'
	FamRating      byte = 'F'
	FamPopularity  byte = 'G'
	FamView        byte = 'V'
	FamViewIndex   byte = 'W'
	FamRecommended byte = 'D'
	FamRecIndex    byte = 'E'
	FamRecList     byte = 'L'
	FamMeta        byte = 'M'

	FamTask    byte = 'T'
	FamTaskSeq byte = 'N'
	FamTenant  byte = 'P'
)

// Terminator closes every string component. Components must not contain it.
const Terminator byte = 0x00

// MaxTime is the largest encodable timestamp (milliseconds since epoch).
const MaxTime = ^uint64(0)

// InvertTime maps a timestamp so that later times sort first.
// MaxTime - ts equals ^ts for uint64.
func InvertTime(ts uint64) uint64 { return ^ts }

// RevertTime undoes InvertTime.
func RevertTime(inv uint64) uint64 { return ^inv }

// ValidName reports whether s may be used as a string key component.
func ValidName(s string) bool {
	return len(s) > 0 && !bytes.ContainsRune([]byte(s), rune(Terminator))
}

func badKey(kind string, key []byte) error {
	return fmt.Errorf("%w: %s key of %d bytes", zieook_errors.ErrKeyFormat, kind, len(key))
}

func appendName(key []byte, s string) []byte {
	key = append(key, s...)
	return append(key, Terminator)
}

// takeName splits off one terminated string component.
func takeName(b []byte) (string, []byte, bool) {
	i := bytes.IndexByte(b, Terminator)
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}

// FamilyPrefix scans a whole family.
func FamilyPrefix(fam byte) []byte { return []byte{fam} }

// ---- ratings: 'F' collection 0x00 user item ----

func RatingKey(collection string, user, item uint64) []byte {
	key := appendName([]byte{FamRating}, collection)
	key = binary.BigEndian.AppendUint64(key, user)
	return binary.BigEndian.AppendUint64(key, item)
}

func RatingPrefix(collection string) []byte {
	return appendName([]byte{FamRating}, collection)
}

func RatingUserPrefix(collection string, user uint64) []byte {
	key := appendName([]byte{FamRating}, collection)
	return binary.BigEndian.AppendUint64(key, user)
}

func ParseRatingKey(key []byte) (collection string, user, item uint64, err error) {
	if len(key) < 1 || key[0] != FamRating {
		return "", 0, 0, badKey("rating", key)
	}
	collection, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 16 {
		return "", 0, 0, badKey("rating", key)
	}
	user = binary.BigEndian.Uint64(rest)
	item = binary.BigEndian.Uint64(rest[8:])
	return collection, user, item, nil
}

// ---- view facts: 'V' recommender 0x00 user item inv(ts) ----

func ViewKey(recommender string, user, item, ts uint64) []byte {
	key := appendName([]byte{FamView}, recommender)
	key = binary.BigEndian.AppendUint64(key, user)
	key = binary.BigEndian.AppendUint64(key, item)
	return binary.BigEndian.AppendUint64(key, InvertTime(ts))
}

func ViewPrefix(recommender string) []byte {
	return appendName([]byte{FamView}, recommender)
}

func ParseViewKey(key []byte) (recommender string, user, item, ts uint64, err error) {
	if len(key) < 1 || key[0] != FamView {
		return "", 0, 0, 0, badKey("view", key)
	}
	recommender, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 24 {
		return "", 0, 0, 0, badKey("view", key)
	}
	user = binary.BigEndian.Uint64(rest)
	item = binary.BigEndian.Uint64(rest[8:])
	ts = RevertTime(binary.BigEndian.Uint64(rest[16:]))
	return recommender, user, item, ts, nil
}

// ---- view index: 'W' recommender 0x00 user inv(ts) item -> fact key ----

func ViewIndexKey(recommender string, user, ts, item uint64) []byte {
	key := appendName([]byte{FamViewIndex}, recommender)
	key = binary.BigEndian.AppendUint64(key, user)
	key = binary.BigEndian.AppendUint64(key, InvertTime(ts))
	return binary.BigEndian.AppendUint64(key, item)
}

func ViewIndexPrefix(recommender string, user uint64) []byte {
	key := appendName([]byte{FamViewIndex}, recommender)
	return binary.BigEndian.AppendUint64(key, user)
}

func ParseViewIndexKey(key []byte) (recommender string, user, ts, item uint64, err error) {
	if len(key) < 1 || key[0] != FamViewIndex {
		return "", 0, 0, 0, badKey("view index", key)
	}
	recommender, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 24 {
		return "", 0, 0, 0, badKey("view index", key)
	}
	user = binary.BigEndian.Uint64(rest)
	ts = RevertTime(binary.BigEndian.Uint64(rest[8:]))
	item = binary.BigEndian.Uint64(rest[16:])
	return recommender, user, ts, item, nil
}

// ---- recommended facts: 'D' recommender 0x00 user inv(ts) ----

func RecommendedKey(recommender string, user, ts uint64) []byte {
	key := appendName([]byte{FamRecommended}, recommender)
	key = binary.BigEndian.AppendUint64(key, user)
	return binary.BigEndian.AppendUint64(key, InvertTime(ts))
}

func RecommendedPrefix(recommender string) []byte {
	return appendName([]byte{FamRecommended}, recommender)
}

func ParseRecommendedKey(key []byte) (recommender string, user, ts uint64, err error) {
	if len(key) < 1 || key[0] != FamRecommended {
		return "", 0, 0, badKey("recommended", key)
	}
	recommender, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 16 {
		return "", 0, 0, badKey("recommended", key)
	}
	user = binary.BigEndian.Uint64(rest)
	ts = RevertTime(binary.BigEndian.Uint64(rest[8:]))
	return recommender, user, ts, nil
}

// ---- recommended index: 'E' recommender 0x00 user inv(ts) -> fact key ----

func RecIndexKey(recommender string, user, ts uint64) []byte {
	key := appendName([]byte{FamRecIndex}, recommender)
	key = binary.BigEndian.AppendUint64(key, user)
	return binary.BigEndian.AppendUint64(key, InvertTime(ts))
}

func RecIndexPrefix(recommender string, user uint64) []byte {
	key := appendName([]byte{FamRecIndex}, recommender)
	return binary.BigEndian.AppendUint64(key, user)
}

func ParseRecIndexKey(key []byte) (recommender string, user, ts uint64, err error) {
	if len(key) < 1 || key[0] != FamRecIndex {
		return "", 0, 0, badKey("recommended index", key)
	}
	recommender, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 16 {
		return "", 0, 0, badKey("recommended index", key)
	}
	user = binary.BigEndian.Uint64(rest)
	ts = RevertTime(binary.BigEndian.Uint64(rest[8:]))
	return recommender, user, ts, nil
}

// ---- items and users ----

func ItemKey(item uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{FamItem}, item)
}

func ParseItemKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != FamItem {
		return 0, badKey("item", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

func ItemRawKey(item uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{FamItemRaw}, item)
}

func ParseItemRawKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != FamItemRaw {
		return 0, badKey("item raw", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

func UserKey(user uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{FamUser}, user)
}

func ParseUserKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != FamUser {
		return 0, badKey("user", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

// ---- user counters: 'C' user kind ----

// Counter kinds. ActivityBit turns a counter row into the matching
// last-activity timestamp row.
const (
	CounterRating    byte = 0x01
	CounterView      byte = 0x02
	CounterRecommend byte = 0x03
	ActivityBit      byte = 0x10
)

func CounterKey(user uint64, kind byte) []byte {
	key := binary.BigEndian.AppendUint64([]byte{FamCounter}, user)
	return append(key, kind)
}

func ParseCounterKey(key []byte) (user uint64, kind byte, err error) {
	if len(key) != 10 || key[0] != FamCounter {
		return 0, 0, badKey("counter", key)
	}
	return binary.BigEndian.Uint64(key[1:9]), key[9], nil
}

// ---- recommendation lists: 'L' collection 0x00 recommender 0x00 subject ----

func RecListKey(collection, recommender string, subject uint64) []byte {
	key := appendName([]byte{FamRecList}, collection)
	key = appendName(key, recommender)
	return binary.BigEndian.AppendUint64(key, subject)
}

func RecListPrefix(collection string) []byte {
	return appendName([]byte{FamRecList}, collection)
}

func RecListRecommenderPrefix(collection, recommender string) []byte {
	key := appendName([]byte{FamRecList}, collection)
	return appendName(key, recommender)
}

func ParseRecListKey(key []byte) (collection, recommender string, subject uint64, err error) {
	if len(key) < 1 || key[0] != FamRecList {
		return "", "", 0, badKey("recommendation list", key)
	}
	collection, rest, ok := takeName(key[1:])
	if !ok {
		return "", "", 0, badKey("recommendation list", key)
	}
	recommender, rest, ok = takeName(rest)
	if !ok || len(rest) != 8 {
		return "", "", 0, badKey("recommendation list", key)
	}
	return collection, recommender, binary.BigEndian.Uint64(rest), nil
}

// ---- popularity counters: 'G' collection 0x00 kind id ----

// Popularity dimensions. Rated counts rating facts per item, Viewed
// counts view facts per item, Source counts view facts per source item.
const (
	PopRated  byte = 'r'
	PopViewed byte = 'v'
	PopSource byte = 's'
)

func PopularityKey(collection string, kind byte, id uint64) []byte {
	key := appendName([]byte{FamPopularity}, collection)
	key = append(key, kind)
	return binary.BigEndian.AppendUint64(key, id)
}

func PopularityPrefix(collection string, kind byte) []byte {
	key := appendName([]byte{FamPopularity}, collection)
	return append(key, kind)
}

func ParsePopularityKey(key []byte) (collection string, kind byte, id uint64, err error) {
	if len(key) < 1 || key[0] != FamPopularity {
		return "", 0, 0, badKey("popularity", key)
	}
	collection, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 9 {
		return "", 0, 0, badKey("popularity", key)
	}
	return collection, rest[0], binary.BigEndian.Uint64(rest[1:]), nil
}

// ---- tenant meta: 'M' sub ... ----

func EpochKey() []byte { return []byte{FamMeta, 'E'} }

func CollectionKey(name string) []byte {
	return appendName([]byte{FamMeta, 'C'}, name)
}

func CollectionPrefix() []byte { return []byte{FamMeta, 'C'} }

func ParseCollectionKey(key []byte) (string, error) {
	if len(key) < 2 || key[0] != FamMeta || key[1] != 'C' {
		return "", badKey("collection", key)
	}
	name, rest, ok := takeName(key[2:])
	if !ok || len(rest) != 0 {
		return "", badKey("collection", key)
	}
	return name, nil
}

// ---- system database ----

func TaskKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{FamTask}, id)
}

func ParseTaskKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != FamTask {
		return 0, badKey("task", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

// TaskSeqKey is the single row backing task id allocation.
func TaskSeqKey() []byte { return []byte{FamTaskSeq} }

func TenantKey(name string) []byte {
	return appendName([]byte{FamTenant}, name)
}

func TenantPrefix() []byte { return []byte{FamTenant} }

func ParseTenantKey(key []byte) (string, error) {
	if len(key) < 1 || key[0] != FamTenant {
		return "", badKey("tenant", key)
	}
	name, rest, ok := takeName(key[1:])
	if !ok || len(rest) != 0 {
		return "", badKey("tenant", key)
	}
	return name, nil
}
