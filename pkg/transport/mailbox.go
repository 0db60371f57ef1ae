package transport

import (
	"context"
	"strconv"

	"github.com/paratune/paratune/pkg/syncx/queue"
)

// mailbox holds the messages delivered to one rank until they are received.
type mailbox struct {
	q *queue.Queue[Message]
}

func newMailbox() *mailbox {
	return &mailbox{q: queue.New[Message]()}
}

func (m *mailbox) deliver(msg Message) {
	received.WithLabelValues(strconv.Itoa(msg.Tag)).Inc()
	m.q.Put(msg)
}

func (m *mailbox) receive(ctx context.Context, source, tag int) (Message, error) {
	return m.q.GetMatching(ctx, func(msg Message) bool {
		return (source == AnySource || msg.Source == source) && (tag == AnyTag || msg.Tag == tag)
	})
}

func (m *mailbox) close(err error) {
	m.q.Close(err)
}

func (m *mailbox) pending() int {
	return m.q.Len()
}
