package sampler

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// EntrySize is the fixed width of one packed candidate:
// score f64, rank u32, item u64.
const EntrySize = 8 + 4 + 8

type Entry struct {
	Score float64
	Rank  uint32
	Item  uint64
}

// List is a packed ranked candidate list as stored in a recommendation
// row: fixed-width entries in insertion (rank) order. Entries decode in
// place, no allocation per entry.
type List []byte

// ParseList validates the byte length of a stored list.
func ParseList(value []byte) (List, error) {
	if len(value)%EntrySize != 0 {
		return nil, fmt.Errorf("%w: recommendation list of %d bytes", zieook_errors.ErrKeyFormat, len(value))
	}
	return List(value), nil
}

func (l List) Len() int { return len(l) / EntrySize }

func (l List) At(i int) Entry {
	off := i * EntrySize
	return Entry{
		Score: math.Float64frombits(binary.BigEndian.Uint64(l[off:])),
		Rank:  binary.BigEndian.Uint32(l[off+8:]),
		Item:  binary.BigEndian.Uint64(l[off+12:]),
	}
}

// Append packs one entry onto buf.
func Append(buf []byte, e Entry) []byte {
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(e.Score))
	buf = binary.BigEndian.AppendUint32(buf, e.Rank)
	return binary.BigEndian.AppendUint64(buf, e.Item)
}

// Pack encodes entries in the given order.
func Pack(entries []Entry) List {
	buf := make([]byte, 0, len(entries)*EntrySize)
	for _, e := range entries {
		buf = Append(buf, e)
	}
	return List(buf)
}
