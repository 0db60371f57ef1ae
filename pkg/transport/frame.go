package transport

import (
	"github.com/paratune/paratune/pkg/streambuf"
)

// frame is the unit carried over a websocket: one message plus its routing header.
type frame struct {
	Dest   int
	Source int
	Tag    int
	Body   []byte
}

// Serialize implements streambuf.Streamable.
func (f *frame) Serialize(b *streambuf.Buffer) {
	b.PutInt32(int32(f.Dest))
	b.PutInt32(int32(f.Source))
	b.PutInt64(int64(f.Tag))
	b.PutBytes(f.Body)
}

// Deserialize implements streambuf.Streamable.
func (f *frame) Deserialize(b *streambuf.Buffer) error {
	d := streambuf.NewDecoder(b)
	f.Dest = int(d.Int32("dest"))
	f.Source = int(d.Int32("source"))
	f.Tag = int(d.Int64("tag"))
	f.Body = d.Bytes("body")
	return d.Err()
}

func (f *frame) message() Message {
	return Message{Source: f.Source, Tag: f.Tag, Body: f.Body}
}

func decodeFrame(p []byte) (frame, error) {
	var f frame
	err := streambuf.Decode(p, &f)
	return f, err
}
