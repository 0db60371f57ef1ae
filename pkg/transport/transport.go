// Package transport moves tagged byte messages between the ranks of a fixed-size process group.
// Sends are addressed to a rank; receives match on source and tag, either of which may be a
// wildcard, and messages between one pair of ranks are never reordered.
package transport

import (
	"context"

	"github.com/pkg/errors"
)

const (
	// AnySource matches a message from any rank.
	AnySource = -1
	// AnyTag matches a message with any tag.
	AnyTag = -1
)

var (
	// ErrClosed is returned by operations on a closed transport, or receives that can no longer be
	// satisfied because a peer went away.
	ErrClosed = errors.New("transport closed")
	// ErrInvalidRank is returned when a rank falls outside the group.
	ErrInvalidRank = errors.New("invalid rank")
)

// Message is a received message.
type Message struct {
	Source int
	Tag    int
	Body   []byte
}

// Transport is one rank's view of the group.
type Transport interface {
	// Size is the number of ranks in the group.
	Size() int
	// Rank is this process's rank.
	Rank() int
	// Send delivers body to dest under tag. The body may be reused once Send returns.
	Send(ctx context.Context, dest, tag int, body []byte) error
	// Recv blocks for the oldest message matching source and tag.
	Recv(ctx context.Context, source, tag int) (Message, error)
	// Close releases the transport. Blocked receives fail with ErrClosed.
	Close() error
}

// CheckRank returns ErrInvalidRank unless 0 <= rank < size.
func CheckRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return errors.Wrapf(ErrInvalidRank, "rank %d outside group of size %d", rank, size)
	}
	return nil
}

func checkSource(source, size int) error {
	if source == AnySource {
		return nil
	}
	return CheckRank(source, size)
}

func checkTag(tag int) error {
	if tag < 0 && tag != AnyTag {
		return errors.Errorf("invalid tag %d", tag)
	}
	return nil
}
