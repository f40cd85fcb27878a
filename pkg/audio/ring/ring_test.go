// ABOUTME: Tests for the circular byte buffer
// ABOUTME: Covers wrap splitting, clamping and used/free accounting
package ring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBufferIsEmpty(t *testing.T) {
	b := New(64)

	assert.Equal(t, 64, b.Cap())
	assert.Equal(t, 0, b.Used())
	assert.Equal(t, 64, b.Free())
	assert.Empty(t, b.Readable())
	assert.Len(t, b.Writable(), 64)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

func TestWriteStopsAtCapacity(t *testing.T) {
	b := New(16)

	n := b.Write(make([]byte, 24))

	assert.Equal(t, 16, n)
	assert.Equal(t, 16, b.Used())
	assert.Equal(t, 0, b.Free())
	assert.Equal(t, 0, b.Write([]byte{1}))
}

func TestWrapAwareCopies(t *testing.T) {
	b := New(8)
	require.Equal(t, 6, b.Write([]byte{1, 2, 3, 4, 5, 6}))
	require.Equal(t, 4, b.AdvanceRead(4))

	// 2 unread bytes at cursor 4, write wraps around the end
	require.Equal(t, 6, b.Write([]byte{7, 8, 9, 10, 11, 12}))
	assert.Equal(t, 8, b.Used())
	assert.Equal(t, 4, b.BytesUntilReadWrap())

	first := b.Readable()
	assert.Equal(t, []byte{5, 6, 7, 8}, first)

	out := make([]byte, 8)
	assert.Equal(t, 8, b.Read(out))
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11, 12}, out)
	assert.Equal(t, 0, b.Used())
}

func TestCursorsStayInRange(t *testing.T) {
	b := New(10)
	for i := 0; i < 25; i++ {
		b.Write([]byte{1, 2, 3})
		b.AdvanceRead(3)
		assert.GreaterOrEqual(t, b.ReadCursor(), 0)
		assert.Less(t, b.ReadCursor(), 10)
		assert.Less(t, b.WriteCursor(), 10)
	}
	assert.Equal(t, uint64(75), b.ReadTotal())
	assert.Equal(t, uint64(75), b.WriteTotal())
}

func TestAdvanceClamps(t *testing.T) {
	b := New(8)
	b.Write([]byte{1, 2, 3})

	assert.Equal(t, 3, b.AdvanceRead(100))
	assert.Equal(t, 0, b.AdvanceRead(-1))
	assert.Equal(t, 8, b.AdvanceWrite(100))
	assert.Equal(t, 8, b.Used())
}

func TestWritableAdvanceWrite(t *testing.T) {
	b := New(8)
	b.Write(make([]byte, 5))
	b.AdvanceRead(5)

	dst := b.Writable()
	require.Len(t, dst, 3)
	copy(dst, []byte{7, 7, 7})
	b.AdvanceWrite(3)

	assert.Equal(t, []byte{7, 7, 7}, b.Readable())
	assert.Equal(t, 0, b.WriteCursor())
}

func TestResetKeepsTotalsMonotonic(t *testing.T) {
	b := New(8)
	b.Write([]byte{1, 2, 3, 4})
	b.Reset()

	assert.Equal(t, 0, b.Used())
	assert.Equal(t, uint64(4), b.ReadTotal())
	assert.Equal(t, uint64(4), b.WriteTotal())
}

func TestUsedAccountingUnderRandomTraffic(t *testing.T) {
	const capacity = 4096
	b := New(capacity)
	rng := rand.New(rand.NewSource(7))
	scratch := make([]byte, capacity)

	for i := 0; i < 5000; i++ {
		if rng.Intn(2) == 0 {
			before := b.Used()
			n := b.Write(scratch[:rng.Intn(capacity)])
			assert.Equal(t, before+n, b.Used())
		} else {
			before := b.Used()
			k := b.Read(scratch[:rng.Intn(capacity)])
			assert.Equal(t, before-k, b.Used())
		}
		require.LessOrEqual(t, b.Used(), capacity)
		require.Equal(t, capacity, b.Used()+b.Free())
		// modular cursor relation holds whenever the buffer is not full
		if b.Used() < capacity {
			assert.Equal(t, b.Used(), (b.WriteCursor()-b.ReadCursor()+capacity)%capacity)
		}
	}
}
