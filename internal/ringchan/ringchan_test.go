package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingDeliversInOrder(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 3; i++ {
		r.Send(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 4, r.Cap())

	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, <-r.C())
	}
}

func TestRingDropsOldestWhenFull(t *testing.T) {
	r := New[int](2)
	r.Send(1)
	r.Send(2)
	// Full: this must evict 1, never block.
	r.Send(3)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, <-r.C())
	assert.Equal(t, 3, <-r.C())
}

func TestRingTrySend(t *testing.T) {
	r := New[string](1)
	assert.True(t, r.TrySend("a"))
	assert.False(t, r.TrySend("b"), "TrySend must refuse when full")
	assert.Equal(t, "a", <-r.C())
}

func TestRingClose(t *testing.T) {
	r := New[int](1)
	r.Send(42)
	r.Close()

	v, ok := <-r.C()
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = <-r.C()
	assert.False(t, ok, "closed ring drains then reports closed")
}

func TestRingRejectsNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
