// Package topk provides a capacity-bounded aggregator keeping the K best
// elements of an arbitrarily long scan under a domain comparator. Memory
// use is O(K) regardless of input size.
package topk

import "sort"

// Agg holds at most K live elements. The comparator reports whether a
// ranks strictly better than b. Internally the buffer is a binary heap
// with the worst element at the root, so a candidate only ever has to be
// compared against the current worst.
type Agg[T any] struct {
	k      int
	better func(a, b T) bool
	buf    []T
}

func New[T any](k int, better func(a, b T) bool) *Agg[T] {
	if k < 0 {
		k = 0
	}
	return &Agg[T]{k: k, better: better}
}

func (a *Agg[T]) Len() int { return len(a.buf) }

// Offer considers a candidate: inserted while below capacity, otherwise
// it replaces the current worst element only if strictly better.
func (a *Agg[T]) Offer(x T) {
	if a.k == 0 {
		return
	}
	if len(a.buf) < a.k {
		a.buf = append(a.buf, x)
		a.up(len(a.buf) - 1)
		return
	}
	if a.better(x, a.buf[0]) {
		a.buf[0] = x
		a.down(0, len(a.buf))
	}
}

// Ranked returns the retained elements best first.
func (a *Agg[T]) Ranked() []T {
	out := make([]T, len(a.buf))
	copy(out, a.buf)
	sort.Slice(out, func(i, j int) bool { return a.better(out[i], out[j]) })
	return out
}

// worse is the heap order: the root must be the element every candidate
// is compared against.
func (a *Agg[T]) worse(i, j int) bool {
	return a.better(a.buf[j], a.buf[i])
}

func (a *Agg[T]) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !a.worse(j, i) {
			break
		}
		a.buf[i], a.buf[j] = a.buf[j], a.buf[i]
		j = i
	}
}

func (a *Agg[T]) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n && a.worse(j2, j1) {
			j = j2 // = 2*i + 2  // right child
		}
		if !a.worse(j, i) {
			break
		}
		a.buf[i], a.buf[j] = a.buf[j], a.buf[i]
		i = j
	}
}
