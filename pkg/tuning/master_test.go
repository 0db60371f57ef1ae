package tuning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/scheduler"
)

// meanTuner evaluates the initial parameters once and keeps the mean score.
type meanTuner struct {
	system System
	data   DataSet
	mean   float64
}

func (m *meanTuner) System() System     { return m.system }
func (m *meanTuner) SetSystem(s System) { m.system = s }
func (m *meanTuner) Data() DataSet      { return m.data }

func (m *meanTuner) Run(ctx context.Context) error {
	params := m.system.TunableParameters()
	for _, d := range m.data {
		m.system.SetData(d)
		m.system.SetTunableParameters(params)
		if err := m.system.UpdatePerformanceScore(ctx); err != nil {
			return err
		}
	}
	var sum float64
	for _, d := range m.data {
		m.system.SetData(d)
		score, err := m.system.PerformanceScore(ctx)
		if err != nil {
			return err
		}
		sum += score
	}
	m.mean = sum / float64(len(m.data))
	return nil
}

func TestMasterRun(t *testing.T) {
	for _, sched := range []scheduler.Scheduler{
		scheduler.NewSynchronous(logger.Discard()),
		scheduler.NewThreaded(logger.Discard()),
	} {
		g := newGroup(t, 4)
		local := &rankSystem{params: []float64{1, 1}}
		tuner := &meanTuner{
			system: local,
			data:   DataSet{NewSystemData("a"), NewSystemData("b"), NewSystemData("c")},
		}
		m := NewMaster(g.master, sched, tuner, logger.Discard())

		require.NoError(t, m.Run(context.Background()))
		require.Equal(t, 112.0, tuner.mean)
		require.IsType(t, &Agent{}, tuner.System())
		for i, d := range tuner.data {
			require.Equal(t, i, d.Rank)
		}
		require.NoError(t, g.eg.Wait(), "slaves exit after the master finishes")
		require.NoError(t, m.Initialize(), "initializing twice is a no-op")
	}
}

func TestMasterTooFewWorkers(t *testing.T) {
	g := newGroup(t, 3)
	tuner := &meanTuner{
		system: &rankSystem{},
		data:   DataSet{NewSystemData("a"), NewSystemData("b"), NewSystemData("c")},
	}
	m := NewMaster(g.master, scheduler.NewSynchronous(logger.Discard()), tuner, logger.Discard())

	require.ErrorIs(t, m.Run(context.Background()), scheduler.ErrInsufficientWorkers)
	require.NoError(t, g.eg.Wait())
	for _, s := range g.slaves {
		require.Zero(t, s.Handled())
	}
}

func TestMasterTuningFailure(t *testing.T) {
	g := newGroup(t, 3)
	bad := NewSystemData("bad")
	bad.Fail = true
	tuner := &meanTuner{
		system: &rankSystem{params: []float64{1}},
		data:   DataSet{NewSystemData("ok"), bad},
	}
	m := NewMaster(g.master, scheduler.NewThreaded(logger.Discard()), tuner, logger.Discard())

	require.ErrorIs(t, m.Run(context.Background()), ErrRemoteFailure)
	require.NoError(t, g.eg.Wait())

	require.Error(t, NewMaster(g.master, scheduler.NewSynchronous(logger.Discard()),
		&meanTuner{}, logger.Discard()).Initialize())
	require.Error(t, NewMaster(g.master, scheduler.NewSynchronous(logger.Discard()),
		&meanTuner{}, logger.Discard()).Execute(context.Background()))
}
