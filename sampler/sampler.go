// Package sampler selects K candidates from a stored ranked
// recommendation list under a spread policy.
package sampler

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

type Policy byte

const (
	// Ordered takes the first K entries in stored rank order.
	Ordered Policy = iota
	// Uniform picks K candidates uniformly without replacement.
	Uniform
	// Gaussian biases picks toward the front of the remaining list while
	// keeping randomness, so repeated calls do not always return the
	// identical top K.
	Gaussian
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "ordered", "":
		return Ordered, nil
	case "uniform", "random":
		return Uniform, nil
	case "gaussian":
		return Gaussian, nil
	}
	return Ordered, fmt.Errorf("%w: spread policy %q", zieook_errors.ErrInvalidArgument, s)
}

func (p Policy) String() string {
	switch p {
	case Uniform:
		return "uniform"
	case Gaussian:
		return "gaussian"
	}
	return "ordered"
}

// Sampler owns the random source; safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a sampler. seed 0 means time-seeded.
func New(seed int64) *Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample selects k entries from the list under the policy. k greater
// than the candidate count returns all candidates.
func (s *Sampler) Sample(list List, k int, policy Policy) []Entry {
	n := list.Len()
	if k < 0 {
		k = 0
	}
	if k >= n {
		k = n
	}
	switch policy {
	case Uniform:
		return s.uniform(list, k)
	case Gaussian:
		return s.gaussian(list, k)
	}
	out := make([]Entry, k)
	for i := 0; i < k; i++ {
		out[i] = list.At(i)
	}
	return out
}

func (s *Sampler) uniform(list List, k int) []Entry {
	n := list.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	out := make([]Entry, k)
	s.mu.Lock()
	for i := 0; i < k; i++ {
		j := i + s.rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = list.At(idx[i])
	}
	s.mu.Unlock()
	return out
}

// gaussian draws abs(gauss()/2) and maps it onto the remaining
// candidates by round(draw * remaining), clamped to bounds. Removal
// keeps the remaining list in rank order so the bias stays on the
// best-ranked entries. The literal draw-and-round scheme is kept as is.
func (s *Sampler) gaussian(list List, k int) []Entry {
	remaining := make([]int, list.Len())
	for i := range remaining {
		remaining[i] = i
	}
	out := make([]Entry, 0, k)
	s.mu.Lock()
	for len(out) < k && len(remaining) > 0 {
		draw := math.Abs(s.rng.NormFloat64() / 2)
		pos := int(math.Round(draw * float64(len(remaining))))
		if pos >= len(remaining) {
			pos = len(remaining) - 1
		}
		out = append(out, list.At(remaining[pos]))
		remaining = append(remaining[:pos], remaining[pos+1:]...)
	}
	s.mu.Unlock()
	return out
}
