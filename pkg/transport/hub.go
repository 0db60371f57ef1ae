package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/streambuf"
	"github.com/paratune/paratune/pkg/ws"
)

// RanksPath is the route ranks connect to; the query carries the dialing rank and group size.
const RanksPath = "/ranks"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub is the transport of rank 0. Every other rank holds one websocket to the hub, which
// delivers frames addressed to rank 0 locally and forwards the rest.
type Hub struct {
	log  *logrus.Entry
	size int
	box  *mailbox

	mu     sync.Mutex
	peers  map[int]*ws.Socket
	ready  chan struct{}
	left   chan struct{}
	closed bool
}

// NewHub returns the hub of a group of size ranks. It accepts connections once registered on an
// echo server with Register.
func NewHub(log *logrus.Entry, size int) (*Hub, error) {
	if size < 1 {
		return nil, errors.Errorf("group size must be at least 1, got %d", size)
	}
	h := &Hub{
		log:   logger.Component(log, "hub"),
		size:  size,
		box:   newMailbox(),
		peers: make(map[int]*ws.Socket),
		ready: make(chan struct{}),
		left:  make(chan struct{}),
	}
	if size == 1 {
		close(h.ready)
		close(h.left)
	}
	return h, nil
}

// Register adds the hub's route to e.
func (h *Hub) Register(e *echo.Echo) {
	e.GET(RanksPath, h.handleRank)
}

// WaitReady blocks until every rank has connected.
func (h *Hub) WaitReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		n := len(h.peers)
		h.mu.Unlock()
		return errors.Wrapf(ctx.Err(), "waiting for ranks: %d of %d connected", n, h.size-1)
	}
}

// WaitDisconnected blocks until every rank that connected has hung up again. Ranks hang up after
// receiving EXIT, so this lets the master drain its last frames before closing.
func (h *Hub) WaitDisconnected(ctx context.Context) error {
	select {
	case <-h.left:
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		n := len(h.peers)
		h.mu.Unlock()
		return errors.Wrapf(ctx.Err(), "waiting for ranks to disconnect: %d still connected", n)
	}
}

// Size implements Transport.
func (h *Hub) Size() int { return h.size }

// Rank implements Transport.
func (h *Hub) Rank() int { return 0 }

// Send implements Transport.
func (h *Hub) Send(ctx context.Context, dest, tag int, body []byte) error {
	if err := CheckRank(dest, h.size); err != nil {
		return err
	}
	if tag < 0 {
		return errors.Errorf("invalid tag %d", tag)
	}
	sent.WithLabelValues(strconv.Itoa(tag)).Inc()
	sentBytes.Add(float64(len(body)))

	if dest == 0 {
		h.box.deliver(Message{Source: 0, Tag: tag, Body: append([]byte(nil), body...)})
		return nil
	}
	return h.forward(ctx, &frame{Dest: dest, Source: 0, Tag: tag, Body: body})
}

// Recv implements Transport.
func (h *Hub) Recv(ctx context.Context, source, tag int) (Message, error) {
	if err := checkSource(source, h.size); err != nil {
		return Message{}, err
	}
	if err := checkTag(tag); err != nil {
		return Message{}, err
	}
	return h.box.receive(ctx, source, tag)
}

// Close disconnects every rank and fails blocked receives.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*ws.Socket, 0, len(h.peers))
	for _, s := range h.peers {
		peers = append(peers, s)
	}
	h.mu.Unlock()

	var merr *multierror.Error
	for _, s := range peers {
		merr = multierror.Append(merr, s.Close())
	}
	h.box.close(ErrClosed)
	return merr.ErrorOrNil()
}

func (h *Hub) forward(ctx context.Context, f *frame) error {
	h.mu.Lock()
	s, ok := h.peers[f.Dest]
	closed := h.closed
	h.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case !ok:
		return errors.Wrapf(ErrClosed, "rank %d is not connected", f.Dest)
	}
	return s.Send(ctx, streambuf.Encode(f))
}

func (h *Hub) handleRank(c echo.Context) error {
	rank, err := strconv.Atoi(c.QueryParam("rank"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "rank must be an integer")
	}
	size, err := strconv.Atoi(c.QueryParam("size"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "size must be an integer")
	}
	switch {
	case size != h.size:
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("group size mismatch: hub has %d ranks, rank %d expects %d", h.size, rank, size))
	case rank <= 0 || rank >= h.size:
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("rank %d outside [1, %d)", rank, h.size))
	}

	h.mu.Lock()
	_, taken := h.peers[rank]
	closed := h.closed
	h.mu.Unlock()
	switch {
	case closed:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "hub is closed")
	case taken:
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("rank %d is already connected", rank))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the request.
		h.log.WithError(err).Errorf("upgrading connection of rank %d", rank)
		return nil
	}
	s := ws.Wrap(h.log, fmt.Sprintf("rank-%d", rank), conn)

	h.mu.Lock()
	if _, taken = h.peers[rank]; taken || h.closed {
		h.mu.Unlock()
		h.log.Warnf("rejecting duplicate connection from rank %d", rank)
		_ = s.Close()
		return nil
	}
	h.peers[rank] = s
	if len(h.peers) == h.size-1 {
		select {
		case <-h.ready:
		default:
			close(h.ready)
		}
	}
	h.mu.Unlock()
	connectedRanks.Inc()

	log := h.log.WithField("peer", rank)
	log.Info("rank connected")
	h.pump(c.Request().Context(), rank, s)

	h.mu.Lock()
	delete(h.peers, rank)
	closed = h.closed
	if len(h.peers) == 0 {
		select {
		case <-h.ready:
			select {
			case <-h.left:
			default:
				close(h.left)
			}
		default:
		}
	}
	h.mu.Unlock()
	connectedRanks.Dec()

	if err := s.Error(); err != nil && !closed {
		log.WithError(err).Error("rank connection failed")
		h.box.close(errors.Wrapf(ErrClosed, "rank %d disconnected: %s", rank, err))
	} else {
		log.Info("rank disconnected")
	}
	if err := s.Close(); err != nil {
		log.WithError(err).Debug("closing rank connection")
	}
	return nil
}

// pump routes everything rank sends until its socket ends.
func (h *Hub) pump(ctx context.Context, rank int, s *ws.Socket) {
	for data := range s.Inbox {
		f, err := decodeFrame(data)
		if err != nil {
			h.log.WithError(err).Errorf("dropping malformed frame from rank %d", rank)
			continue
		}
		if f.Source != rank {
			h.log.Warnf("frame from rank %d claims source %d", rank, f.Source)
			f.Source = rank
		}
		if err := CheckRank(f.Dest, h.size); err != nil {
			h.log.WithError(err).Errorf("dropping frame from rank %d", rank)
			continue
		}
		if f.Dest == 0 {
			h.box.deliver(f.message())
			continue
		}
		if err := h.forward(ctx, &f); err != nil {
			h.log.WithError(err).Errorf("forwarding frame from rank %d to rank %d", rank, f.Dest)
		}
	}
}
