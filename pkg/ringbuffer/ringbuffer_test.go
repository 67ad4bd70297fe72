package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	b := New[int](5, 3)
	for i := 1; i <= 5; i++ {
		b.Append(i)
	}
	require.Equal(t, 5, b.Len())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, b.Snapshot())
}

func TestBuffer_OverflowTrimsToHalf(t *testing.T) {
	b := New[int](1000, 500)
	for i := 0; i < 1001; i++ {
		b.Append(i)
	}
	assert.Equal(t, 500, b.Len())
	snap := b.Snapshot()
	assert.Equal(t, 501, snap[0])
	assert.Equal(t, 1000, snap[len(snap)-1])
}

func TestBuffer_Latest(t *testing.T) {
	b := New[string](3, 3)
	_, ok := b.Latest()
	assert.False(t, ok)

	b.Append("a")
	b.Append("b")
	v, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	b := New[int](200, 100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Append(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}
