package transport

import (
	"context"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// LocalGroup is a process group whose ranks all live in the current process, one goroutine
// each. It backs in-process runs and tests.
type LocalGroup struct {
	endpoints []*Local
}

// NewLocalGroup creates a group of size ranks.
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size < 1 {
		return nil, errors.Errorf("group size must be at least 1, got %d", size)
	}
	g := &LocalGroup{endpoints: make([]*Local, size)}
	for r := range g.endpoints {
		g.endpoints[r] = &Local{group: g, rank: r, box: newMailbox()}
	}
	return g, nil
}

// Size returns the number of ranks.
func (g *LocalGroup) Size() int { return len(g.endpoints) }

// Endpoint returns the transport of rank.
func (g *LocalGroup) Endpoint(rank int) *Local {
	return g.endpoints[rank]
}

// Close closes every endpoint.
func (g *LocalGroup) Close() error {
	var merr *multierror.Error
	for _, e := range g.endpoints {
		merr = multierror.Append(merr, e.Close())
	}
	return merr.ErrorOrNil()
}

// Local is one rank of a LocalGroup.
type Local struct {
	group *LocalGroup
	rank  int
	box   *mailbox

	mu     sync.Mutex
	closed bool
}

// Size implements Transport.
func (l *Local) Size() int { return l.group.Size() }

// Rank implements Transport.
func (l *Local) Rank() int { return l.rank }

// Send implements Transport.
func (l *Local) Send(ctx context.Context, dest, tag int, body []byte) error {
	if err := CheckRank(dest, l.Size()); err != nil {
		return err
	}
	if tag < 0 {
		return errors.Errorf("invalid tag %d", tag)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isClosed() {
		return ErrClosed
	}
	sent.WithLabelValues(strconv.Itoa(tag)).Inc()
	sentBytes.Add(float64(len(body)))
	l.group.endpoints[dest].box.deliver(Message{
		Source: l.rank,
		Tag:    tag,
		Body:   append([]byte(nil), body...),
	})
	return nil
}

// Recv implements Transport.
func (l *Local) Recv(ctx context.Context, source, tag int) (Message, error) {
	if err := checkSource(source, l.Size()); err != nil {
		return Message{}, err
	}
	if err := checkTag(tag); err != nil {
		return Message{}, err
	}
	return l.box.receive(ctx, source, tag)
}

// Close implements Transport.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		l.box.close(ErrClosed)
	}
	return nil
}

// Pending returns the number of delivered but not yet received messages.
func (l *Local) Pending() int {
	return l.box.pending()
}

func (l *Local) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
