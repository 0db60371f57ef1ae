// Package streambuf implements the byte buffer every payload crossing a process boundary is
// serialized into. Values are encoded little-endian with fixed widths; variable-size values
// (strings, byte slices, vectors) carry a length prefix ahead of their elements.
package streambuf

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// DefaultStride is the granularity, in bytes, by which a Buffer grows.
const DefaultStride = 256

// ErrBufferUnderflow is returned when a read asks for more bytes than remain unread. The read
// cursor is left where it was.
var ErrBufferUnderflow = errors.New("buffer underflow")

var order = binary.LittleEndian

// Buffer is a growable byte buffer with independent write (in) and read (out) cursors. Capacity
// only ever grows, in multiples of the stride. A Buffer is not safe for concurrent use.
type Buffer struct {
	data   []byte
	head   int
	tail   int
	stride int
}

// New returns an empty buffer with the default stride.
func New() *Buffer {
	return NewWithCapacity(0, DefaultStride)
}

// NewWithCapacity returns an empty buffer holding at least capacity bytes before it has to grow.
// A non-positive stride selects DefaultStride.
func NewWithCapacity(capacity, stride int) *Buffer {
	if stride <= 0 {
		stride = DefaultStride
	}
	b := &Buffer{stride: stride}
	b.grow(capacity)
	return b
}

// FromBytes returns a buffer whose unread region is a copy of p.
func FromBytes(p []byte) *Buffer {
	b := NewWithCapacity(len(p), DefaultStride)
	_, _ = b.Write(p)
	return b
}

func (b *Buffer) grow(capacity int) {
	n := capacity / b.stride
	if capacity%b.stride != 0 || n == 0 {
		n++
	}
	if n*b.stride <= len(b.data) {
		return
	}
	data := make([]byte, n*b.stride)
	copy(data, b.data[:b.tail])
	b.data = data
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return b.tail - b.head }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Stride returns the growth granularity.
func (b *Buffer) Stride() int { return b.stride }

// Bytes returns the unread region. It aliases the buffer and is only valid until the next write.
func (b *Buffer) Bytes() []byte { return b.data[b.head:b.tail] }

// InPosition returns the write cursor.
func (b *Buffer) InPosition() int { return b.tail }

// SetInPosition moves the write cursor; it may not move before the read cursor or past capacity.
func (b *Buffer) SetInPosition(pos int) error {
	if pos < b.head || pos > len(b.data) {
		return errors.Errorf("write position %d outside [%d, %d]", pos, b.head, len(b.data))
	}
	b.tail = pos
	return nil
}

// OutPosition returns the read cursor.
func (b *Buffer) OutPosition() int { return b.head }

// SetOutPosition moves the read cursor; it may not move past the write cursor.
func (b *Buffer) SetOutPosition(pos int) error {
	if pos < 0 || pos > b.tail {
		return errors.Errorf("read position %d outside [0, %d]", pos, b.tail)
	}
	b.head = pos
	return nil
}

// Reset empties the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	b.head, b.tail = 0, 0
}

// Write appends p at the write cursor. It implements io.Writer and never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if end := b.tail + len(p); end > len(b.data) {
		b.grow(end)
	}
	b.tail += copy(b.data[b.tail:], p)
	return len(p), nil
}

// ReadFull copies exactly len(p) bytes from the read cursor into p.
func (b *Buffer) ReadFull(p []byte) error {
	src, err := b.Next(len(p))
	if err != nil {
		return err
	}
	copy(p, src)
	return nil
}

// Next returns the next n unread bytes and advances past them. The result aliases the buffer.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Errorf("negative read size %d", n)
	}
	if n > b.Len() {
		return nil, errors.Wrapf(ErrBufferUnderflow, "want %d bytes, have %d", n, b.Len())
	}
	p := b.data[b.head : b.head+n]
	b.head += n
	return p, nil
}

func (b *Buffer) put(n int, fill func(p []byte)) {
	if end := b.tail + n; end > len(b.data) {
		b.grow(end)
	}
	fill(b.data[b.tail : b.tail+n])
	b.tail += n
}

// PutBool appends a single byte, 1 for true.
func (b *Buffer) PutBool(v bool) {
	var x byte
	if v {
		x = 1
	}
	b.put(1, func(p []byte) { p[0] = x })
}

// PutInt32 appends v as 4 bytes.
func (b *Buffer) PutInt32(v int32) { b.PutUint32(uint32(v)) }

// PutUint32 appends v as 4 bytes.
func (b *Buffer) PutUint32(v uint32) { b.put(4, func(p []byte) { order.PutUint32(p, v) }) }

// PutInt64 appends v as 8 bytes.
func (b *Buffer) PutInt64(v int64) { b.PutUint64(uint64(v)) }

// PutUint64 appends v as 8 bytes.
func (b *Buffer) PutUint64(v uint64) { b.put(8, func(p []byte) { order.PutUint64(p, v) }) }

// PutFloat64 appends the IEEE 754 bits of v.
func (b *Buffer) PutFloat64(v float64) { b.PutUint64(math.Float64bits(v)) }

// PutBytes appends an 8 byte length followed by p.
func (b *Buffer) PutBytes(p []byte) {
	b.PutUint64(uint64(len(p)))
	_, _ = b.Write(p)
}

// PutString appends an 8 byte length followed by the bytes of s.
func (b *Buffer) PutString(s string) {
	b.PutUint64(uint64(len(s)))
	b.put(len(s), func(p []byte) { copy(p, s) })
}

// PutFloat64s appends a 4 byte element count followed by each element.
func (b *Buffer) PutFloat64s(vs []float64) {
	b.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		b.PutFloat64(v)
	}
}

// ReadBool reads a value written by PutBool.
func (b *Buffer) ReadBool() (bool, error) {
	p, err := b.Next(1)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

// ReadInt32 reads a value written by PutInt32.
func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

// ReadUint32 reads a value written by PutUint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(p), nil
}

// ReadInt64 reads a value written by PutInt64.
func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

// ReadUint64 reads a value written by PutUint64.
func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.Next(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(p), nil
}

// ReadFloat64 reads a value written by PutFloat64.
func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBytes reads a value written by PutBytes. The result is a copy.
func (b *Buffer) ReadBytes() ([]byte, error) {
	start := b.head
	n, err := b.ReadUint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(b.Len()) {
		b.head = start
		return nil, errors.Wrapf(ErrBufferUnderflow, "byte slice of %d bytes, have %d", n, b.Len())
	}
	p, _ := b.Next(int(n))
	return append([]byte(nil), p...), nil
}

// ReadString reads a value written by PutString.
func (b *Buffer) ReadString() (string, error) {
	p, err := b.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadFloat64s reads a value written by PutFloat64s.
func (b *Buffer) ReadFloat64s() ([]float64, error) {
	start := b.head
	n, err := b.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n)*8 > uint64(b.Len()) {
		b.head = start
		return nil, errors.Wrapf(ErrBufferUnderflow, "vector of %d elements, have %d bytes", n, b.Len())
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i], _ = b.ReadFloat64()
	}
	return vs, nil
}
