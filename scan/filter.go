// Package scan expresses every range query of the engine as a prefix
// bound plus AND-composed filters over scanned rows, and hosts the
// memory-bounded bulk delete executor. There is no ad-hoc row parsing
// here; key layout knowledge stays in the keys package and in the
// extractors supplied by callers.
package scan

import "bytes"

// Filter decides whether a scanned row matches.
type Filter func(key, value []byte) bool

// Extractor pulls one comparable column out of a row. ok=false means the
// row does not carry the column; such rows never match a value filter.
type Extractor func(key, value []byte) (column []byte, ok bool)

type Op byte

const (
	OpEq Op = iota
	OpGt
	OpLt
)

// Prefix matches rows whose key starts with p.
func Prefix(p []byte) Filter {
	return func(key, _ []byte) bool {
		return bytes.HasPrefix(key, p)
	}
}

// ValueCmp compares an extracted column against operand. Both sides are
// compared as bytes; with the fixed-width big-endian encodings used for
// all numeric columns this equals numeric comparison. Rows lacking the
// column are rejected.
func ValueCmp(extract Extractor, op Op, operand []byte) Filter {
	return func(key, value []byte) bool {
		column, ok := extract(key, value)
		if !ok {
			return false
		}
		c := bytes.Compare(column, operand)
		switch op {
		case OpEq:
			return c == 0
		case OpGt:
			return c > 0
		case OpLt:
			return c < 0
		}
		return false
	}
}

// RowIn matches rows whose key equals one of the given keys; the OR-list
// primitive used to fetch an explicit id set in one pass.
func RowIn(rows ...[]byte) Filter {
	return func(key, _ []byte) bool {
		for _, row := range rows {
			if bytes.Equal(key, row) {
				return true
			}
		}
		return false
	}
}

func And(filters ...Filter) Filter {
	return func(key, value []byte) bool {
		for _, f := range filters {
			if !f(key, value) {
				return false
			}
		}
		return true
	}
}

func Or(filters ...Filter) Filter {
	return func(key, value []byte) bool {
		for _, f := range filters {
			if f(key, value) {
				return true
			}
		}
		return false
	}
}
