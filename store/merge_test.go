package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterValueRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 40, -(1 << 40)} {
		got, ok := DecodeCounter(CounterValue(v))
		assert.True(t, ok)
		assert.Equal(t, v, got)
	}
	_, ok := DecodeCounter([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestStampedValueRoundTrip(t *testing.T) {
	count, ts, ok := DecodeStamped(StampedValue(7, 1234))
	assert.True(t, ok)
	assert.Equal(t, int64(7), count)
	assert.Equal(t, uint64(1234), ts)
}

func TestMergeAddsCounters(t *testing.T) {
	r := testRegistry(t)
	h, err := r.CreateTenant("acme")
	assert.NoError(t, err)

	key := []byte{'G', 'x'}
	assert.NoError(t, Increment(h, key, 5))
	assert.NoError(t, Increment(h, key, -2))
	assert.NoError(t, Increment(h, key, 10))

	value, err := Get(h, key)
	assert.NoError(t, err)
	got, ok := DecodeCounter(value)
	assert.True(t, ok)
	assert.Equal(t, int64(13), got)
}

func TestMergeConcurrentIncrements(t *testing.T) {
	r := testRegistry(t)
	h, err := r.CreateTenant("acme")
	assert.NoError(t, err)

	key := []byte{'G', 'y'}
	const workers, perWorker = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, Increment(h, key, 1))
			}
		}()
	}
	wg.Wait()

	value, err := Get(h, key)
	assert.NoError(t, err)
	got, ok := DecodeCounter(value)
	assert.True(t, ok)
	assert.Equal(t, int64(workers*perWorker), got)
}

func TestMergeStampedKeepsLatestTimestamp(t *testing.T) {
	r := testRegistry(t)
	h, err := r.CreateTenant("acme")
	assert.NoError(t, err)

	key := []byte{'G', 'z'}
	assert.NoError(t, IncrementStamped(h, key, 1, 300))
	assert.NoError(t, IncrementStamped(h, key, 1, 100))
	assert.NoError(t, IncrementStamped(h, key, 1, 200))

	value, err := Get(h, key)
	assert.NoError(t, err)
	count, ts, ok := DecodeStamped(value)
	assert.True(t, ok)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, uint64(300), ts)
}
