package errgroupx

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrgroupxCancelByReturnError(t *testing.T) {
	ctx := context.Background()
	g := WithContext(ctx)

	finished := make(chan bool, 1)
	g.Go(func(ctx context.Context) error {
		return fmt.Errorf("non nil error")
	})
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		finished <- true
		return nil
	})

	require.Error(t, g.Wait())
	require.True(t, <-finished)
	require.NoError(t, ctx.Err()) // Original context not canceled.
}

func TestErrgroupxCancelingParentCancels(t *testing.T) {
	for _, cancelGroup := range []bool{true, false} {
		ctx, cancel := context.WithCancel(context.Background())
		g := WithContext(ctx)

		finished := make(chan bool, 1)
		g.Go(func(ctx context.Context) error {
			<-ctx.Done()
			finished <- true
			return nil
		})

		if cancelGroup {
			g.Cancel()
			require.NoError(t, ctx.Err())
		} else {
			cancel()
			require.Error(t, ctx.Err())
		}
		require.True(t, <-finished)
		require.NoError(t, g.Wait())
		cancel()
	}
}

func TestErrgroupxRecover(t *testing.T) {
	eg := WithContext(context.Background()).WithRecover()
	eg.Go(func(ctx context.Context) error {
		panic("oh no")
	})
	err := eg.Wait()
	require.ErrorContains(t, err, "oh no")
}

func TestErrgroupxGoNamed(t *testing.T) {
	g := WithContext(context.Background())
	g.GoNamed("rank 3", func(ctx context.Context) error {
		return fmt.Errorf("exploded")
	})
	g.GoNamed("rank 4", func(ctx context.Context) error {
		return nil
	})
	require.EqualError(t, g.Wait(), "rank 3: exploded")
}

func TestErrgroupxDetach(t *testing.T) {
	g := WithContext(context.Background())

	var reported atomic.Int32
	g.Detach(func(ctx context.Context) error {
		return fmt.Errorf("worker failed")
	}, func(err error) {
		reported.Add(1)
	})
	g.Go(func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), reported.Load())
}
