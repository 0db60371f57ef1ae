package streambuf

import (
	"github.com/pkg/errors"
)

// Streamable is implemented by every payload that crosses a process boundary. Serialize and
// Deserialize must visit the same fields in the same order.
type Streamable interface {
	Serialize(b *Buffer)
	Deserialize(b *Buffer) error
}

// Encode serializes s into a fresh buffer and returns its bytes.
func Encode(s Streamable) []byte {
	b := New()
	s.Serialize(b)
	return b.Bytes()
}

// Decode deserializes s from p. Bytes left unread after s is complete are an error, since both
// sides agree on the exact layout.
func Decode(p []byte, s Streamable) error {
	b := FromBytes(p)
	if err := s.Deserialize(b); err != nil {
		return err
	}
	if b.Len() != 0 {
		return errors.Errorf("%d trailing bytes after %T", b.Len(), s)
	}
	return nil
}

// Decoder reads a sequence of fields from a Buffer and remembers the first failure, after which
// every read is a no-op returning the zero value. It keeps Deserialize implementations linear.
type Decoder struct {
	b   *Buffer
	err error
}

// NewDecoder returns a decoder reading from b.
func NewDecoder(b *Buffer) *Decoder {
	return &Decoder{b: b}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) fail(err error, field string) {
	if err != nil && d.err == nil {
		d.err = errors.Wrapf(err, "reading %s", field)
	}
}

// Bool reads a bool.
func (d *Decoder) Bool(field string) bool {
	if d.err != nil {
		return false
	}
	v, err := d.b.ReadBool()
	d.fail(err, field)
	return v
}

// Int32 reads an int32.
func (d *Decoder) Int32(field string) int32 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.ReadInt32()
	d.fail(err, field)
	return v
}

// Int64 reads an int64.
func (d *Decoder) Int64(field string) int64 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.ReadInt64()
	d.fail(err, field)
	return v
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32(field string) uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.ReadUint32()
	d.fail(err, field)
	return v
}

// Float64 reads a float64.
func (d *Decoder) Float64(field string) float64 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.ReadFloat64()
	d.fail(err, field)
	return v
}

// String reads a length-prefixed string.
func (d *Decoder) String(field string) string {
	if d.err != nil {
		return ""
	}
	v, err := d.b.ReadString()
	d.fail(err, field)
	return v
}

// Bytes reads a length-prefixed byte slice.
func (d *Decoder) Bytes(field string) []byte {
	if d.err != nil {
		return nil
	}
	v, err := d.b.ReadBytes()
	d.fail(err, field)
	return v
}

// Float64s reads a count-prefixed vector.
func (d *Decoder) Float64s(field string) []float64 {
	if d.err != nil {
		return nil
	}
	v, err := d.b.ReadFloat64s()
	d.fail(err, field)
	return v
}

// Streamable reads a nested value.
func (d *Decoder) Streamable(field string, s Streamable) {
	if d.err != nil {
		return
	}
	d.fail(s.Deserialize(d.b), field)
}
