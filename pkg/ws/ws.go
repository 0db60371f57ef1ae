// Package ws wraps a gorilla websocket connection in a pair of channels carrying binary frames.
package ws

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// pingInterval is the interval at which to send pings.
	pingInterval = 15 * time.Second
	// pongWait is the duration to wait for a pong response to a ping.
	pongWait = time.Minute
	// closeWait is the duration to wait for a close response.
	closeWait = 5 * time.Second
	// inboxBufferSize is the number of frames to read before applying backpressure.
	inboxBufferSize = 64
	// outboxBufferSize is the number of frames to write before applying backpressure.
	outboxBufferSize = 64
	// MaxFrameSize is the largest frame accepted in either direction.
	MaxFrameSize = 64 * 1024 * 1024
)

// Socket is a thread-safe binary websocket. Frames written to Outbox are sent in order; frames
// read from the peer arrive on Inbox, which is closed when the read side ends.
type Socket struct {
	log  *logrus.Entry
	conn *websocket.Conn

	cancel    context.CancelFunc
	closing   atomic.Bool
	errLock   sync.Mutex
	err       error
	closeOnce sync.Once
	closeErr  error

	// Done is closed once both loops have exited. Call Close regardless.
	Done <-chan struct{}
	// Inbox carries incoming frames.
	Inbox <-chan []byte
	// Outbox carries outgoing frames.
	Outbox chan<- []byte
}

// Wrap takes ownership of conn and starts its read and write loops.
func Wrap(log *logrus.Entry, name string, conn *websocket.Conn) *Socket {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())

	inbox := make(chan []byte, inboxBufferSize)
	outbox := make(chan []byte, outboxBufferSize)
	done := make(chan struct{})

	s := &Socket{
		log: log.WithFields(logrus.Fields{
			"component":   "websocket",
			"remote-addr": conn.RemoteAddr(),
			"name":        name,
		}),
		conn: conn,

		cancel: cancel,
		Done:   done,
		Inbox:  inbox,
		Outbox: outbox,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.runWriteLoop(ctx, outbox); err != nil {
			s.setError(errors.Wrap(err, "write loop"))
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.runReadLoop(ctx, inbox); err != nil {
			s.setError(errors.Wrap(err, "read loop"))
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	return s
}

// Send queues a frame, blocking until there is room, the socket ends or ctx is done.
func (s *Socket) Send(ctx context.Context, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return errors.Errorf("frame size %d exceeds maximum size %d", len(frame), MaxFrameSize)
	}
	select {
	case s.Outbox <- frame:
		return nil
	case <-s.Done:
		if err := s.Error(); err != nil {
			return err
		}
		return errors.New("websocket closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the socket is finished and returns its error.
func (s *Socket) Wait() error {
	<-s.Done
	return s.Error()
}

// Error returns the error the socket encountered, if any. Errors from closing are excluded.
func (s *Socket) Error() error {
	s.errLock.Lock()
	defer s.errLock.Unlock()
	return s.err
}

// Close performs the close handshake, falling back to tearing down the connection.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		initialErr := s.Error()

		var err *multierror.Error
		s.log.Trace("attempting graceful close")
		if hErr := s.closeGraceful(); hErr != nil {
			err = multierror.Append(err, errors.Wrap(hErr, "gracefully closing"))
			s.log.Trace("attempting forceful close")
			if fErr := s.closeForced(); fErr != nil {
				err = multierror.Append(err, errors.Wrap(fErr, "forcibly closing"))
			}
		}
		s.log.Trace("socket closed")

		if endingErr := s.Error(); initialErr == nil && endingErr != nil {
			err = multierror.Append(err, endingErr)
		}
		s.closeErr = err.ErrorOrNil()
	})
	return s.closeErr
}

func (s *Socket) runReadLoop(ctx context.Context, inbox chan<- []byte) error {
	s.log.Trace("running socket read loop")
	defer s.cancel()
	defer close(inbox)

	s.conn.SetReadLimit(MaxFrameSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return errors.Wrap(err, "setting initial read deadline")
	}
	s.conn.SetPongHandler(func(string) error {
		// Once closing, the close deadline stands.
		if s.closing.Load() {
			return nil
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.log.WithError(err).Error("setting read deadline")
		}
		return nil
	})

	for {
		switch msgType, msg, err := s.conn.ReadMessage(); {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reading frame")
		case msgType != websocket.BinaryMessage:
			return errors.Errorf("unexpected message type: %d", msgType)
		default:
			if ctx.Err() != nil {
				// Closing; drain until the peer's close arrives.
				continue
			}
			select {
			case inbox <- msg:
			case <-ctx.Done():
			}
		}
	}
}

func (s *Socket) runWriteLoop(ctx context.Context, outbox <-chan []byte) error {
	s.log.Trace("running socket write loop")
	defer s.cancel()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case frame := <-outbox:
			err := s.conn.WriteMessage(websocket.BinaryMessage, frame)
			switch {
			case err == websocket.ErrCloseSent:
				return nil
			case err != nil:
				return errors.Wrap(err, "writing frame")
			}
		case <-ping.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongWait))
			netErr, ok := err.(net.Error)
			switch {
			case ok && netErr.Timeout():
				continue
			case err == websocket.ErrCloseSent:
				return nil
			case err != nil:
				return errors.Wrap(err, "sending ping")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Socket) closeGraceful() error {
	s.cancel()

	s.closing.Store(true)
	closeDeadline := time.Now().Add(closeWait)
	if err := s.conn.SetReadDeadline(closeDeadline); err != nil {
		return errors.Wrap(err, "setting read deadline")
	}

	// Starting the handshake makes the read loop drain until the peer answers or the deadline
	// passes. ErrCloseSent means the peer already closed and the read loop has exited.
	if err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "close called"),
		closeDeadline,
	); err != websocket.ErrCloseSent && err != nil {
		return errors.Wrap(err, "sending close")
	}

	<-s.Done
	if err := s.conn.Close(); err != nil {
		return errors.Wrap(err, "closing underlying conn")
	}
	return nil
}

func (s *Socket) closeForced() error {
	s.cancel()
	err := s.conn.Close()
	<-s.Done
	if err != nil {
		return errors.Wrap(err, "closing underlying conn")
	}
	return nil
}

func (s *Socket) setError(err error) {
	s.errLock.Lock()
	defer s.errLock.Unlock()
	s.err = multierror.Append(s.err, err)
}
