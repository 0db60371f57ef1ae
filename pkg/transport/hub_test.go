package transport

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/paratune/paratune/pkg/logger"
)

func startHub(t *testing.T, size int) (*Hub, *httptest.Server) {
	h, err := NewHub(logger.Discard(), size)
	require.NoError(t, err)
	e := echo.New()
	e.HideBanner = true
	h.Register(e)
	return h, httptest.NewServer(e)
}

func dialRank(t *testing.T, ts *httptest.Server, rank, size int) *Client {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, logger.Discard(), DialConfig{
		Address:  ts.URL,
		Rank:     rank,
		Size:     size,
		Attempts: 3,
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestHubRouting(t *testing.T) {
	h, ts := startHub(t, 3)
	defer ts.Close()

	r1 := dialRank(t, ts, 1, 3)
	r2 := dialRank(t, ts, 2, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.WaitReady(ctx))

	// Master to slave.
	require.NoError(t, h.Send(ctx, 1, 11, []byte("to one")))
	msg, err := r1.Recv(ctx, 0, 11)
	require.NoError(t, err)
	require.Equal(t, Message{Source: 0, Tag: 11, Body: []byte("to one")}, msg)

	// Slave to master.
	require.NoError(t, r2.Send(ctx, 0, 12, []byte{2}))
	msg, err = h.Recv(ctx, AnySource, AnyTag)
	require.NoError(t, err)
	require.Equal(t, 2, msg.Source)
	require.Equal(t, 12, msg.Tag)

	// Slave to slave goes through the hub.
	require.NoError(t, r1.Send(ctx, 2, 13, []byte{1}))
	msg, err = r2.Recv(ctx, AnySource, 13)
	require.NoError(t, err)
	require.Equal(t, 1, msg.Source)

	// Self sends never leave the process.
	require.NoError(t, h.Send(ctx, 0, 14, nil))
	msg, err = h.Recv(ctx, 0, 14)
	require.NoError(t, err)
	require.Equal(t, 0, msg.Source)

	require.NoError(t, r1.Close())
	require.NoError(t, r2.Close())
	require.NoError(t, h.Close())
}

func TestHubOrdering(t *testing.T) {
	h, ts := startHub(t, 2)
	defer ts.Close()
	r1 := dialRank(t, ts, 1, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.WaitReady(ctx))

	for i := 0; i < 50; i++ {
		require.NoError(t, r1.Send(ctx, 0, 1, []byte{byte(i)}))
	}
	for i := 0; i < 50; i++ {
		msg, err := h.Recv(ctx, 1, 1)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, msg.Body)
	}

	require.NoError(t, r1.Close())
	require.NoError(t, h.Close())
}

func TestHubRejectsBadRanks(t *testing.T) {
	h, ts := startHub(t, 2)
	defer ts.Close()
	defer func() { _ = h.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Size mismatch is permanent and fails without exhausting retries.
	_, err := Dial(ctx, logger.Discard(), DialConfig{Address: ts.URL, Rank: 1, Size: 3})
	require.Error(t, err)

	r1 := dialRank(t, ts, 1, 2)
	defer func() { _ = r1.Close() }()
	require.NoError(t, h.WaitReady(ctx))
	_, err = Dial(ctx, logger.Discard(), DialConfig{Address: ts.URL, Rank: 1, Size: 2})
	require.ErrorContains(t, err, "hub rejected rank 1")

	_, err = Dial(ctx, logger.Discard(), DialConfig{Address: ts.URL, Rank: 0, Size: 2})
	require.ErrorIs(t, err, ErrInvalidRank)
}

func TestHubWaitReadyTimesOut(t *testing.T) {
	h, ts := startHub(t, 3)
	defer ts.Close()
	defer func() { _ = h.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.WaitReady(ctx), context.DeadlineExceeded)
}

func TestClientFailsReceivesWhenHubCloses(t *testing.T) {
	h, ts := startHub(t, 2)
	defer ts.Close()
	r1 := dialRank(t, ts, 1, 2)
	defer func() { _ = r1.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.WaitReady(ctx))

	errs := make(chan error)
	go func() {
		_, err := r1.Recv(ctx, 0, AnyTag)
		errs <- err
	}()
	require.NoError(t, h.Close())
	require.ErrorIs(t, <-errs, ErrClosed)
}

func TestDialConfigURL(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"ws://m:1", "ws://m:1/ranks?rank=1&size=2"},
		{"http://m:1/", "ws://m:1/ranks?rank=1&size=2"},
		{"https://m", "wss://m/ranks?rank=1&size=2"},
		{"m:8080", "ws://m:8080/ranks?rank=1&size=2"},
	} {
		require.Equal(t, tc.want, DialConfig{Address: tc.in, Rank: 1, Size: 2}.url())
	}
}

func TestHubWaitDisconnected(t *testing.T) {
	h, ts := startHub(t, 3)
	defer ts.Close()
	defer func() { _ = h.Close() }()

	r1 := dialRank(t, ts, 1, 3)
	r2 := dialRank(t, ts, 2, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.WaitReady(ctx))

	short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, h.WaitDisconnected(short), context.DeadlineExceeded)

	require.NoError(t, r1.Close())
	require.NoError(t, r2.Close())
	require.NoError(t, h.WaitDisconnected(ctx))

	single, err := NewHub(logger.Discard(), 1)
	require.NoError(t, err)
	require.NoError(t, single.WaitDisconnected(ctx))
}
