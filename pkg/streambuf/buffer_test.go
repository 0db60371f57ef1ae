package streambuf

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestBufferGrowsInStrides(t *testing.T) {
	b := NewWithCapacity(0, 16)
	require.Equal(t, 16, b.Cap())

	_, err := b.Write(make([]byte, 16))
	require.NoError(t, err)
	require.Equal(t, 16, b.Cap())

	_, err = b.Write([]byte{1})
	require.NoError(t, err)
	require.Equal(t, 32, b.Cap())

	_, err = b.Write(make([]byte, 40))
	require.NoError(t, err)
	require.Equal(t, 64, b.Cap())
	require.Equal(t, 57, b.Len())

	// Capacity never shrinks.
	b.Reset()
	require.Equal(t, 64, b.Cap())
	require.Equal(t, 0, b.Len())

	require.Equal(t, DefaultStride, NewWithCapacity(10, 0).Cap())
	require.Equal(t, 2*DefaultStride, NewWithCapacity(DefaultStride+1, -1).Cap())
}

func TestBufferScalarsRoundTrip(t *testing.T) {
	b := New()
	b.PutBool(true)
	b.PutBool(false)
	b.PutInt32(-7)
	b.PutUint32(math.MaxUint32)
	b.PutInt64(math.MinInt64)
	b.PutUint64(42)
	b.PutFloat64(math.Pi)
	b.PutFloat64(math.Inf(-1))

	// 2 bools, 2 four-byte and 4 eight-byte values.
	require.Equal(t, 2+2*4+4*8, b.Len())

	v1, err := b.ReadBool()
	require.NoError(t, err)
	require.True(t, v1)
	v2, err := b.ReadBool()
	require.NoError(t, err)
	require.False(t, v2)
	i32, err := b.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-7), i32)
	u32, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), u32)
	i64, err := b.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, int64(math.MinInt64), i64)
	u64, err := b.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), u64)
	f, err := b.ReadFloat64()
	require.NoError(t, err)
	require.Equal(t, math.Pi, f)
	f, err = b.ReadFloat64()
	require.NoError(t, err)
	require.True(t, math.IsInf(f, -1))

	require.Equal(t, 0, b.Len())
}

func TestBufferLittleEndianLayout(t *testing.T) {
	b := New()
	b.PutInt32(1)
	b.PutUint64(0x0102030405060708)
	require.Equal(t, []byte{1, 0, 0, 0, 8, 7, 6, 5, 4, 3, 2, 1}, b.Bytes())
}

func TestBufferVariableSize(t *testing.T) {
	b := New()
	b.PutString("")
	b.PutString("héllo")
	b.PutBytes([]byte{9, 8, 7})
	b.PutFloat64s(nil)
	b.PutFloat64s([]float64{1.0, -2.5, 1e300})

	s, err := b.ReadString()
	require.NoError(t, err)
	require.Equal(t, "", s)
	s, err = b.ReadString()
	require.NoError(t, err)
	require.Equal(t, "héllo", s)
	p, err := b.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7}, p)
	vs, err := b.ReadFloat64s()
	require.NoError(t, err)
	require.Empty(t, vs)
	vs, err = b.ReadFloat64s()
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{1.0, -2.5, 1e300}, vs); diff != "" {
		t.Fatalf("unexpected vector (-want +got):\n%s", diff)
	}
}

func TestBufferUnderflowLeavesCursor(t *testing.T) {
	b := New()
	b.PutInt32(5)

	_, err := b.ReadInt64()
	require.ErrorIs(t, err, ErrBufferUnderflow)
	require.Equal(t, 0, b.OutPosition())
	require.Equal(t, 4, b.Len())

	// The bytes are still there for a correctly sized read.
	v, err := b.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(5), v)

	// Reading past the written region never hands out stale capacity bytes.
	_, err = b.ReadBool()
	require.ErrorIs(t, err, ErrBufferUnderflow)
	require.Error(t, b.ReadFull(make([]byte, 1)))
	require.NoError(t, b.ReadFull(nil))
}

func TestBufferTruncatedLengthPrefix(t *testing.T) {
	b := New()
	b.PutUint64(10)
	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)

	_, err = b.ReadString()
	require.ErrorIs(t, err, ErrBufferUnderflow)
	require.Equal(t, 0, b.OutPosition())

	b = New()
	b.PutUint32(3)
	b.PutFloat64(1)
	_, err = b.ReadFloat64s()
	require.ErrorIs(t, err, ErrBufferUnderflow)
	require.Equal(t, 0, b.OutPosition())
}

func TestBufferPositions(t *testing.T) {
	b := New()
	b.PutInt32(1)
	b.PutInt32(2)

	require.Equal(t, 8, b.InPosition())
	require.NoError(t, b.SetOutPosition(4))
	v, err := b.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(2), v)

	// Rewind and read again.
	require.NoError(t, b.SetOutPosition(0))
	v, err = b.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(1), v)

	require.Error(t, b.SetOutPosition(9))
	require.Error(t, b.SetInPosition(2))
	require.Error(t, b.SetInPosition(b.Cap()+1))

	// Truncate the written region.
	require.NoError(t, b.SetInPosition(4))
	require.Equal(t, 0, b.Len())
}

func TestFromBytesCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	b := FromBytes(src)
	src[0] = 9
	require.Equal(t, []byte{1, 2, 3}, b.Bytes())
}
