package systems

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paratune/paratune/pkg/tuning"
)

func TestNew(t *testing.T) {
	require.Equal(t, []string{QuadraticName, RosenbrockName, TestName}, Names())

	s, err := New(RosenbrockName, []float64{1, 2}, Options{"b": 10})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, s.TunableParameters())
	require.Equal(t, 10.0, s.(*Rosenbrock).B)
	require.Equal(t, 1.0, s.(*Rosenbrock).A)

	_, err = New("nope", nil, nil)
	require.ErrorContains(t, err, "unknown system")
}

func TestTestSystem(t *testing.T) {
	ctx := context.Background()
	var want float64
	for i := 1; i <= 1000; i++ {
		want += math.Log(float64(i))
	}
	lgamma, _ := math.Lgamma(1001)
	require.InDelta(t, lgamma, want, 1e-6)

	s, err := New(TestName, []float64{3}, nil)
	require.NoError(t, err)
	_, err = s.PerformanceScore(ctx)
	require.ErrorIs(t, err, ErrNotScored)

	d := tuning.NewSystemData("only")
	s.SetData(d)
	require.NoError(t, s.UpdatePerformanceScore(ctx))
	score, err := s.PerformanceScore(ctx)
	require.NoError(t, err)
	require.Equal(t, want, score)
	require.Equal(t, want, d.Score)
}

func TestScoresKeptPerExample(t *testing.T) {
	ctx := context.Background()
	s, err := New(QuadraticName, nil, nil)
	require.NoError(t, err)

	a := tuning.NewSystemData("a", 0, 0)
	b := tuning.NewSystemData("b", 1, 2)
	s.SetTunableParameters([]float64{1, 1})
	for _, d := range []*tuning.SystemData{a, b} {
		s.SetData(d)
		require.NoError(t, s.UpdatePerformanceScore(ctx))
	}

	s.SetData(a)
	score, err := s.PerformanceScore(ctx)
	require.NoError(t, err)
	require.Equal(t, 2.0, score)
	s.SetData(b)
	score, err = s.PerformanceScore(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.0, score)

	s.SetData(tuning.NewSystemData("short", 1))
	require.ErrorContains(t, s.UpdatePerformanceScore(ctx), "target values")
}

func TestRosenbrock(t *testing.T) {
	ctx := context.Background()
	s, err := New(RosenbrockName, []float64{1, 1, 1}, nil)
	require.NoError(t, err)
	d := tuning.NewSystemData("shifted", 2, 4)
	s.SetData(d)
	require.NoError(t, s.UpdatePerformanceScore(ctx))
	score, err := s.PerformanceScore(ctx)
	require.NoError(t, err)
	require.Equal(t, 3.0, score)

	s.SetTunableParameters([]float64{0, 0})
	require.NoError(t, s.UpdatePerformanceScore(ctx))
	score, err = s.PerformanceScore(ctx)
	require.NoError(t, err)
	require.Equal(t, 4.0, score)

	s.SetTunableParameters([]float64{0})
	require.Error(t, s.UpdatePerformanceScore(ctx))
}

func TestFailingExample(t *testing.T) {
	ctx := context.Background()
	for _, name := range Names() {
		s, err := New(name, []float64{1, 1}, nil)
		require.NoError(t, err)
		d := tuning.NewSystemData("bad", 1, 1)
		s.SetData(d)
		require.NoError(t, s.UpdatePerformanceScore(ctx), name)

		d.Fail = true
		require.ErrorIs(t, s.UpdatePerformanceScore(ctx), ErrExampleFailed, name)
		_, err = s.PerformanceScore(ctx)
		require.ErrorIs(t, err, ErrNotScored, "a failed update drops the stale score of %s", name)
	}
}
