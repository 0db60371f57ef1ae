package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalSendRecv(t *testing.T) {
	g, err := NewLocalGroup(3)
	require.NoError(t, err)
	defer func() { require.NoError(t, g.Close()) }()

	ctx := context.Background()
	r0, r1, r2 := g.Endpoint(0), g.Endpoint(1), g.Endpoint(2)
	require.Equal(t, 3, r1.Size())
	require.Equal(t, 1, r1.Rank())

	body := []byte{1, 2, 3}
	require.NoError(t, r1.Send(ctx, 0, 7, body))
	// The sender may reuse its buffer.
	body[0] = 9
	require.NoError(t, r2.Send(ctx, 0, 8, []byte{4}))

	msg, err := r0.Recv(ctx, AnySource, 8)
	require.NoError(t, err)
	require.Equal(t, Message{Source: 2, Tag: 8, Body: []byte{4}}, msg)

	msg, err = r0.Recv(ctx, 1, AnyTag)
	require.NoError(t, err)
	require.Equal(t, Message{Source: 1, Tag: 7, Body: []byte{1, 2, 3}}, msg)
	require.Equal(t, 0, r0.Pending())
}

func TestLocalPairwiseOrdering(t *testing.T) {
	g, err := NewLocalGroup(2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, g.Endpoint(1).Send(ctx, 0, 5, []byte{byte(i)}))
	}
	for i := 0; i < 10; i++ {
		msg, err := g.Endpoint(0).Recv(ctx, 1, 5)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, msg.Body)
	}
}

func TestLocalRecvSkipsNonMatching(t *testing.T) {
	g, err := NewLocalGroup(3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Endpoint(1).Send(ctx, 0, 1, nil))
	require.NoError(t, g.Endpoint(2).Send(ctx, 0, 2, nil))

	msg, err := g.Endpoint(0).Recv(ctx, 2, AnyTag)
	require.NoError(t, err)
	require.Equal(t, 2, msg.Tag)

	msg, err = g.Endpoint(0).Recv(ctx, AnySource, AnyTag)
	require.NoError(t, err)
	require.Equal(t, 1, msg.Source)
}

func TestLocalRecvBlocks(t *testing.T) {
	g, err := NewLocalGroup(2)
	require.NoError(t, err)

	got := make(chan Message)
	go func() {
		msg, err := g.Endpoint(1).Recv(context.Background(), 0, 3)
		require.NoError(t, err)
		got <- msg
	}()

	select {
	case <-got:
		require.FailNow(t, "receive should block until a matching message arrives")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, g.Endpoint(0).Send(context.Background(), 1, 3, []byte("x")))
	select {
	case msg := <-got:
		require.Equal(t, []byte("x"), msg.Body)
	case <-time.After(time.Second):
		require.FailNow(t, "receive should have completed")
	}
}

func TestLocalRecvCanceled(t *testing.T) {
	g, err := NewLocalGroup(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Endpoint(0).Recv(ctx, AnySource, AnyTag)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalClose(t *testing.T) {
	g, err := NewLocalGroup(2)
	require.NoError(t, err)
	ctx := context.Background()

	errs := make(chan error)
	go func() {
		_, err := g.Endpoint(1).Recv(ctx, 0, AnyTag)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, g.Endpoint(1).Close())
	require.ErrorIs(t, <-errs, ErrClosed)
	require.ErrorIs(t, g.Endpoint(1).Send(ctx, 0, 1, nil), ErrClosed)
	require.NoError(t, g.Endpoint(1).Close())
}

func TestLocalInvalidArguments(t *testing.T) {
	g, err := NewLocalGroup(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, g.Endpoint(0).Send(ctx, 2, 1, nil), ErrInvalidRank)
	require.ErrorIs(t, g.Endpoint(0).Send(ctx, -1, 1, nil), ErrInvalidRank)
	require.Error(t, g.Endpoint(0).Send(ctx, 1, -3, nil))
	_, err = g.Endpoint(0).Recv(ctx, 5, AnyTag)
	require.ErrorIs(t, err, ErrInvalidRank)
	_, err = g.Endpoint(0).Recv(ctx, AnySource, -2)
	require.Error(t, err)

	_, err = NewLocalGroup(0)
	require.Error(t, err)
}
