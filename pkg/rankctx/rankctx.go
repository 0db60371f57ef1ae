// Package rankctx layers typed messages over a transport: zero-payload control tags, fixed-width
// scalars, strings and Streamable payloads. Every call blocks until the transfer completes or
// ctx is done; there are no retries.
package rankctx

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/streambuf"
	"github.com/paratune/paratune/pkg/transport"
)

// Reserved tags.
const (
	TagExit = 0
	TagOK   = 1
	TagFail = 2
	// TagUser is the first tag available to applications.
	TagUser = 1000
)

// MasterRank is the rank of the coordinating process.
const MasterRank = 0

// AnySource matches a message from any rank.
const AnySource = transport.AnySource

// Scalar is a fixed-width value sent byte for byte, without a header.
type Scalar interface {
	~bool | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 |
		~float32 | ~float64
}

// Context is one process's handle on the group.
type Context struct {
	t   transport.Transport
	log *logrus.Entry
}

// New wraps t.
func New(t transport.Transport, log *logrus.Entry) *Context {
	return &Context{
		t:   t,
		log: logger.Component(log, "rankctx").WithField("rank", t.Rank()),
	}
}

// GroupSize returns the number of ranks.
func (c *Context) GroupSize() int { return c.t.Size() }

// SelfRank returns this process's rank.
func (c *Context) SelfRank() int { return c.t.Rank() }

// IsMaster reports whether this process is rank 0.
func (c *Context) IsMaster() bool { return c.t.Rank() == MasterRank }

// Transport returns the underlying transport.
func (c *Context) Transport() transport.Transport { return c.t }

// SendTag sends a control message.
func (c *Context) SendTag(ctx context.Context, rank, tag int) error {
	c.log.Tracef("send tag %d to rank %d", tag, rank)
	if err := c.t.Send(ctx, rank, tag, nil); err != nil {
		return errors.Wrapf(err, "sending tag %d to rank %d", tag, rank)
	}
	return nil
}

// ReceiveTag receives the next control message from rank, which may be AnySource, and returns
// its tag.
func (c *Context) ReceiveTag(ctx context.Context, rank int) (int, error) {
	tag, _, err := c.ReceiveTagFrom(ctx, rank)
	return tag, err
}

// ReceiveTagFrom is ReceiveTag that also reports the sender.
func (c *Context) ReceiveTagFrom(ctx context.Context, rank int) (tag, source int, err error) {
	msg, err := c.t.Recv(ctx, rank, transport.AnyTag)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "receiving tag from rank %d", rank)
	}
	if len(msg.Body) != 0 {
		return 0, 0, errors.Errorf(
			"expected control message from rank %d, got %d byte body with tag %d",
			msg.Source, len(msg.Body), msg.Tag)
	}
	c.log.Tracef("received tag %d from rank %d", msg.Tag, msg.Source)
	return msg.Tag, msg.Source, nil
}

// ExpectTag receives a control message from rank and fails unless it carries one of tags.
func (c *Context) ExpectTag(ctx context.Context, rank int, tags ...int) (int, error) {
	tag, err := c.ReceiveTag(ctx, rank)
	if err != nil {
		return 0, err
	}
	for _, t := range tags {
		if t == tag {
			return tag, nil
		}
	}
	return tag, errors.Errorf("unexpected tag %d from rank %d, want one of %v", tag, rank, tags)
}

// Send serializes s and sends it to rank as an 8 byte size message followed by the body.
func (c *Context) Send(ctx context.Context, s streambuf.Streamable, rank, tag int) error {
	body := streambuf.Encode(s)
	if err := SendScalar(ctx, c, int64(len(body)), rank, tag); err != nil {
		return errors.Wrapf(err, "sending %T size", s)
	}
	if err := c.t.Send(ctx, rank, tag, body); err != nil {
		return errors.Wrapf(err, "sending %T to rank %d", s, rank)
	}
	return nil
}

// Receive receives a payload sent with Send and deserializes it into s. With AnySource, the body
// is taken from whichever rank sent the size.
func (c *Context) Receive(ctx context.Context, s streambuf.Streamable, rank, tag int) error {
	msg, err := c.t.Recv(ctx, rank, tag)
	if err != nil {
		return errors.Wrapf(err, "receiving %T size from rank %d", s, rank)
	}
	var size int64
	if err := decodeScalar(msg.Body, &size); err != nil {
		return errors.Wrapf(err, "decoding %T size from rank %d", s, msg.Source)
	}
	if size < 0 {
		return errors.Errorf("negative payload size %d from rank %d", size, msg.Source)
	}

	body, err := c.t.Recv(ctx, msg.Source, tag)
	if err != nil {
		return errors.Wrapf(err, "receiving %T from rank %d", s, msg.Source)
	}
	if int64(len(body.Body)) != size {
		return errors.Errorf("payload from rank %d is %d bytes, announced %d",
			msg.Source, len(body.Body), size)
	}
	if err := streambuf.Decode(body.Body, s); err != nil {
		return errors.Wrapf(err, "decoding %T from rank %d", s, msg.Source)
	}
	return nil
}

// SendString sends a 4 byte length message followed by the bytes of str.
func (c *Context) SendString(ctx context.Context, str string, rank, tag int) error {
	if err := SendScalar(ctx, c, int32(len(str)), rank, tag); err != nil {
		return errors.Wrap(err, "sending string length")
	}
	if err := c.t.Send(ctx, rank, tag, []byte(str)); err != nil {
		return errors.Wrapf(err, "sending string to rank %d", rank)
	}
	return nil
}

// ReceiveString receives a string sent with SendString.
func (c *Context) ReceiveString(ctx context.Context, rank, tag int) (string, error) {
	msg, err := c.t.Recv(ctx, rank, tag)
	if err != nil {
		return "", errors.Wrapf(err, "receiving string length from rank %d", rank)
	}
	var n int32
	if err := decodeScalar(msg.Body, &n); err != nil {
		return "", errors.Wrap(err, "decoding string length")
	}
	body, err := c.t.Recv(ctx, msg.Source, tag)
	if err != nil {
		return "", errors.Wrapf(err, "receiving string from rank %d", msg.Source)
	}
	if int32(len(body.Body)) != n {
		return "", errors.Errorf("string from rank %d is %d bytes, announced %d",
			msg.Source, len(body.Body), n)
	}
	return string(body.Body), nil
}

// BroadcastTerminate sends EXIT to every rank but the master. Every rank is attempted even if
// an earlier send fails.
func (c *Context) BroadcastTerminate(ctx context.Context) error {
	c.log.Infof("sending exit to %d ranks", c.GroupSize()-1)
	var merr *multierror.Error
	for r := 1; r < c.GroupSize(); r++ {
		merr = multierror.Append(merr, c.SendTag(ctx, r, TagExit))
	}
	return merr.ErrorOrNil()
}

// SendScalar sends the raw little-endian bytes of v.
func SendScalar[T Scalar](ctx context.Context, c *Context, v T, rank, tag int) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return errors.Wrapf(err, "encoding %T", v)
	}
	if err := c.t.Send(ctx, rank, tag, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "sending %T to rank %d", v, rank)
	}
	return nil
}

// ReceiveScalar receives a value sent with SendScalar.
func ReceiveScalar[T Scalar](ctx context.Context, c *Context, rank, tag int) (T, error) {
	var v T
	msg, err := c.t.Recv(ctx, rank, tag)
	if err != nil {
		return v, errors.Wrapf(err, "receiving %T from rank %d", v, rank)
	}
	if err := decodeScalar(msg.Body, &v); err != nil {
		return v, errors.Wrapf(err, "decoding %T from rank %d", v, msg.Source)
	}
	return v, nil
}

func decodeScalar[T Scalar](p []byte, v *T) error {
	if want := binary.Size(*v); len(p) != want {
		return errors.Errorf("%T needs %d bytes, got %d", *v, want, len(p))
	}
	return binary.Read(bytes.NewReader(p), binary.LittleEndian, v)
}
