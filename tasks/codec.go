package tasks

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// Task rows pack the searchable columns into a fixed-layout binary
// header so scan value filters can compare them without JSON decoding;
// only the free-form payload map is JSON.
//
//	type:u8 | tenant 0x00 | dimension 0x00 | next:u64 start:u64 | result 0x00 | payload JSON
func taskValue(t *Task) ([]byte, error) {
	buf := []byte{byte(taskTypeTag(t.Type))}
	buf = append(buf, t.Tenant...)
	buf = append(buf, keys.Terminator)
	buf = append(buf, t.Dimension...)
	buf = append(buf, keys.Terminator)
	buf = binary.BigEndian.AppendUint64(buf, t.Next)
	buf = binary.BigEndian.AppendUint64(buf, t.Start)
	buf = append(buf, t.Result...)
	buf = append(buf, keys.Terminator)
	if len(t.Payload) > 0 {
		payload, err := json.Marshal(t.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: task payload: %v", zieook_errors.ErrInvalidArgument, err)
		}
		buf = append(buf, payload...)
	}
	return buf, nil
}

func parseTaskValue(id uint64, value []byte) (Task, error) {
	bad := func() (Task, error) {
		return Task{}, fmt.Errorf("%w: task value of %d bytes", zieook_errors.ErrKeyFormat, len(value))
	}
	if len(value) < 1 {
		return bad()
	}
	typ, ok := taskTypeFromTag(value[0])
	if !ok {
		return bad()
	}
	rest := value[1:]
	i := bytes.IndexByte(rest, keys.Terminator)
	if i < 0 {
		return bad()
	}
	tenant := string(rest[:i])
	rest = rest[i+1:]
	i = bytes.IndexByte(rest, keys.Terminator)
	if i < 0 || len(rest) < i+1+16 {
		return bad()
	}
	dimension := string(rest[:i])
	rest = rest[i+1:]
	next := binary.BigEndian.Uint64(rest)
	start := binary.BigEndian.Uint64(rest[8:])
	rest = rest[16:]
	i = bytes.IndexByte(rest, keys.Terminator)
	if i < 0 {
		return bad()
	}
	result := string(rest[:i])
	rest = rest[i+1:]

	t := Task{
		ID:        id,
		Type:      typ,
		Tenant:    tenant,
		Dimension: dimension,
		Next:      next,
		Start:     start,
		Result:    result,
	}
	if len(rest) > 0 {
		if err := json.Unmarshal(rest, &t.Payload); err != nil {
			return Task{}, fmt.Errorf("%w: task payload: %v", zieook_errors.ErrKeyFormat, err)
		}
	}
	return t, nil
}

// Column extractors for scan value filters. Each returns ok=false on a
// row that does not carry the column, which rejects the row.

func columnType(_ []byte, value []byte) ([]byte, bool) {
	if len(value) < 1 {
		return nil, false
	}
	return value[:1], true
}

func columnTenant(_ []byte, value []byte) ([]byte, bool) {
	if len(value) < 2 {
		return nil, false
	}
	i := bytes.IndexByte(value[1:], keys.Terminator)
	if i < 0 {
		return nil, false
	}
	return value[1 : 1+i], true
}

func columnDimension(_ []byte, value []byte) ([]byte, bool) {
	if len(value) < 2 {
		return nil, false
	}
	rest := value[1:]
	i := bytes.IndexByte(rest, keys.Terminator)
	if i < 0 {
		return nil, false
	}
	rest = rest[i+1:]
	j := bytes.IndexByte(rest, keys.Terminator)
	if j < 0 {
		return nil, false
	}
	return rest[:j], true
}

// afterDimension returns the bytes following the dimension terminator.
func afterDimension(value []byte) ([]byte, bool) {
	if len(value) < 2 {
		return nil, false
	}
	rest := value[1:]
	for n := 0; n < 2; n++ {
		i := bytes.IndexByte(rest, keys.Terminator)
		if i < 0 {
			return nil, false
		}
		rest = rest[i+1:]
	}
	if len(rest) < 16 {
		return nil, false
	}
	return rest, true
}

func columnNext(_ []byte, value []byte) ([]byte, bool) {
	rest, ok := afterDimension(value)
	if !ok {
		return nil, false
	}
	return rest[:8], true
}

func columnStart(_ []byte, value []byte) ([]byte, bool) {
	rest, ok := afterDimension(value)
	if !ok {
		return nil, false
	}
	return rest[8:16], true
}

func columnResult(_ []byte, value []byte) ([]byte, bool) {
	rest, ok := afterDimension(value)
	if !ok {
		return nil, false
	}
	rest = rest[16:]
	i := bytes.IndexByte(rest, keys.Terminator)
	if i < 0 {
		return nil, false
	}
	return rest[:i], true
}
