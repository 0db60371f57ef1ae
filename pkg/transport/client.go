package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/streambuf"
	"github.com/paratune/paratune/pkg/ws"
)

// DialConfig describes how a rank reaches the hub.
type DialConfig struct {
	// Address is the hub's base URL, for example ws://master:8080.
	Address string
	Rank    int
	Size    int
	// Attempts bounds connection retries; zero retries until ctx is done.
	Attempts uint64
	// Interval is the initial retry interval; it grows exponentially up to MaxInterval.
	Interval    time.Duration
	MaxInterval time.Duration
}

func (c DialConfig) url() string {
	base := strings.TrimSuffix(c.Address, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case !strings.Contains(base, "://"):
		base = "ws://" + base
	}
	return fmt.Sprintf("%s%s?rank=%d&size=%d", base, RanksPath, c.Rank, c.Size)
}

func (c DialConfig) backoff(ctx context.Context) backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	if c.Interval > 0 {
		bf.InitialInterval = c.Interval
	}
	if c.MaxInterval > 0 {
		bf.MaxInterval = c.MaxInterval
	}
	bf.MaxElapsedTime = 0
	var b backoff.BackOff = bf
	if c.Attempts > 0 {
		b = backoff.WithMaxRetries(b, c.Attempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// Client is the transport of a rank other than 0. Everything it sends goes through the hub.
type Client struct {
	log  *logrus.Entry
	rank int
	size int
	box  *mailbox
	sock *ws.Socket
	done chan struct{}
}

// Dial connects to the hub, retrying with exponential backoff. Rejections by the hub (a bad rank,
// a size mismatch, a rank already taken) are not retried.
func Dial(ctx context.Context, log *logrus.Entry, cfg DialConfig) (*Client, error) {
	if err := CheckRank(cfg.Rank, cfg.Size); err != nil {
		return nil, err
	}
	if cfg.Rank == 0 {
		return nil, errors.Wrap(ErrInvalidRank, "rank 0 hosts the hub and cannot dial it")
	}
	log = logger.Component(log, "transport").WithField("rank", cfg.Rank)
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}

	addr := cfg.url()
	var conn *websocket.Conn
	op := func() error {
		c, resp, err := dialer.DialContext(ctx, addr, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		switch {
		case err == nil:
			conn = c
			return nil
		case resp != nil && resp.StatusCode >= http.StatusBadRequest &&
			resp.StatusCode < http.StatusInternalServerError:
			return backoff.Permanent(errors.Wrapf(err, "hub rejected rank %d (%s)", cfg.Rank, resp.Status))
		default:
			return errors.Wrapf(err, "connecting to %s", addr)
		}
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Infof("hub not reachable, retrying in %s", wait)
	}
	log.Infof("connecting to hub at %s", addr)
	if err := backoff.RetryNotify(op, cfg.backoff(ctx), notify); err != nil {
		return nil, err
	}
	log.Info("connected to hub")

	c := &Client{
		log:  log,
		rank: cfg.Rank,
		size: cfg.Size,
		box:  newMailbox(),
		sock: ws.Wrap(log, "hub", conn),
		done: make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// Size implements Transport.
func (c *Client) Size() int { return c.size }

// Rank implements Transport.
func (c *Client) Rank() int { return c.rank }

// Send implements Transport.
func (c *Client) Send(ctx context.Context, dest, tag int, body []byte) error {
	if err := CheckRank(dest, c.size); err != nil {
		return err
	}
	if tag < 0 {
		return errors.Errorf("invalid tag %d", tag)
	}
	sent.WithLabelValues(strconv.Itoa(tag)).Inc()
	sentBytes.Add(float64(len(body)))

	if dest == c.rank {
		c.box.deliver(Message{Source: c.rank, Tag: tag, Body: append([]byte(nil), body...)})
		return nil
	}
	return c.sock.Send(ctx, streambuf.Encode(&frame{Dest: dest, Source: c.rank, Tag: tag, Body: body}))
}

// Recv implements Transport.
func (c *Client) Recv(ctx context.Context, source, tag int) (Message, error) {
	if err := checkSource(source, c.size); err != nil {
		return Message{}, err
	}
	if err := checkTag(tag); err != nil {
		return Message{}, err
	}
	return c.box.receive(ctx, source, tag)
}

// Close disconnects from the hub.
func (c *Client) Close() error {
	err := c.sock.Close()
	<-c.done
	return err
}

func (c *Client) pump() {
	defer close(c.done)
	for data := range c.sock.Inbox {
		f, err := decodeFrame(data)
		if err != nil {
			c.log.WithError(err).Error("dropping malformed frame")
			continue
		}
		if f.Dest != c.rank {
			c.log.Warnf("dropping frame addressed to rank %d", f.Dest)
			continue
		}
		c.box.deliver(f.message())
	}
	if err := c.sock.Error(); err != nil {
		c.box.close(errors.Wrapf(ErrClosed, "connection to hub lost: %s", err))
		return
	}
	c.box.close(ErrClosed)
}
