package blockring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(value float64, size int) []float64 {
	b := make([]float64, size)
	for i := range b {
		b[i] = value
	}
	return b
}

func TestNewValidation(t *testing.T) {
	_, err := New(0, 16)
	assert.Error(t, err)

	_, err = New(4, 0)
	assert.Error(t, err)

	r, err := New(4, 16)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Capacity())
	assert.Equal(t, 16, r.BlockSize())
}

func TestPushPopOrder(t *testing.T) {
	r, err := New(4, 8)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Push(block(float64(i), 8)))
	}
	assert.Equal(t, 3, r.Len())

	dst := make([]float64, 8)
	for i := 1; i <= 3; i++ {
		ok, err := r.Pop(dst)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, float64(i), dst[0])
	}
	assert.Equal(t, 0, r.Len())
}

func TestLengthMismatchRejected(t *testing.T) {
	r, err := New(2, 8)
	require.NoError(t, err)

	assert.Error(t, r.Push(make([]float64, 7)))

	_, err = r.Pop(make([]float64, 9))
	assert.Error(t, err)
}

func TestOverwriteOldestOnFull(t *testing.T) {
	r, err := New(2, 4)
	require.NoError(t, err)

	require.NoError(t, r.Push(block(1, 4)))
	require.NoError(t, r.Push(block(2, 4)))
	require.NoError(t, r.Push(block(3, 4))) // overwrites block 1

	assert.EqualValues(t, 1, r.Dropped())
	assert.Equal(t, 2, r.Len())

	dst := make([]float64, 4)
	ok, err := r.Pop(dst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.0, dst[0])

	ok, err = r.Pop(dst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.0, dst[0])
}

func TestUnderrunZeroesDestination(t *testing.T) {
	r, err := New(2, 4)
	require.NoError(t, err)

	dst := block(9, 4)
	ok, err := r.Pop(dst)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, r.Underruns())
	for _, v := range dst {
		assert.Zero(t, v)
	}
}

func TestCountersMonotonic(t *testing.T) {
	r, err := New(1, 4)
	require.NoError(t, err)

	dst := make([]float64, 4)
	for range 5 {
		_, _ = r.Pop(dst)
	}
	assert.EqualValues(t, 5, r.Underruns())

	for i := range 5 {
		require.NoError(t, r.Push(block(float64(i), 4)))
	}
	assert.EqualValues(t, 4, r.Dropped())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r, err := New(8, 16)
	require.NoError(t, err)

	const total = 10000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := range total {
			_ = r.Push(block(float64(i), 16))
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		dst := make([]float64, 16)
		for received+int(r.Dropped()) < total {
			if ok, _ := r.Pop(dst); ok {
				received++
			}
		}
	}()

	wg.Wait()

	assert.Equal(t, total, received+int(r.Dropped()))
}
