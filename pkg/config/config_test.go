package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/rankctx"
	"github.com/paratune/paratune/pkg/scheduler"
	"github.com/paratune/paratune/pkg/syncx/errgroupx"
	"github.com/paratune/paratune/pkg/systems"
	"github.com/paratune/paratune/pkg/transport"
	"github.com/paratune/paratune/pkg/tuner"
)

const quadraticFile = `
scheduler: synchronous
system:
  type: quadratic
  parameters: [0]
data:
  - name: a
    values: [1]
  - name: b
    values: [3]
optimizer:
  exhaustive:
    step_length: 1
    number_of_steps: [4]
monitor: true
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(quadraticFile))
	require.NoError(t, err)
	require.Equal(t, SynchronousScheduler, f.Scheduler)
	require.Equal(t, systems.QuadraticName, f.System.Type)
	require.Equal(t, []float64{0}, f.System.Parameters)
	require.Len(t, f.Data, 2)
	require.Equal(t, &tuner.Exhaustive{StepLength: 1, NumberOfSteps: []int{4}}, f.Optimizer.Exhaustive)
	require.Equal(t, f.Optimizer.Exhaustive, f.Optimizer.Optimizer())
	require.True(t, f.Monitor)

	set := f.DataSet()
	require.Len(t, set, 2)
	require.Equal(t, "b", set[1].Name)
	require.Equal(t, []float64{3}, set[1].Values)
	require.Equal(t, -1, set[1].Rank)

	f, err = Parse([]byte(`
system:
  type: rosenbrock
  parameters: [0, 0]
  options: {a: 2}
data:
  - name: only
    fail: true
optimizer:
  amoeba:
    max_iterations: 10
`))
	require.NoError(t, err)
	require.Equal(t, ThreadedScheduler, f.Scheduler, "threaded is the default")
	require.IsType(t, &scheduler.Threaded{}, f.NewScheduler(logger.Discard()))
	require.True(t, f.DataSet()[0].Fail)
	s, err := f.NewSystem()
	require.NoError(t, err)
	require.Equal(t, 2.0, s.(*systems.Rosenbrock).A)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		msg  string
	}{
		{"unknown field", "system: {type: test}\nbogus: 1\n", "cannot unmarshal"},
		{"unknown scheduler", "scheduler: mpi\nsystem: {type: test}\noptimizer: {amoeba: {}}\n", "illegal"},
		{"unknown system", "system: {type: nope}\noptimizer: {amoeba: {}}\n", "illegal"},
		{"no optimizer", "system: {type: test}\n", "exactly one"},
		{
			"two optimizers",
			"system: {type: test}\noptimizer: {amoeba: {}, random: {}}\n",
			"exactly one",
		},
		{
			"duplicate example",
			"system: {type: test}\noptimizer: {amoeba: {}}\ndata: [{name: a}, {name: a}]\n",
			"listed twice",
		},
		{
			"unnamed example",
			"system: {type: test}\noptimizer: {amoeba: {}}\ndata: [{values: [1]}]\n",
			"needs a name",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(quadraticFile), 0o600))
	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Data, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "error reading tuning file")
}

func TestBuildRunsEveryRank(t *testing.T) {
	f, err := Parse([]byte(quadraticFile))
	require.NoError(t, err)

	group, err := transport.NewLocalGroup(3)
	require.NoError(t, err)
	defer func() { _ = group.Close() }()

	graphs := make([]*Graph, group.Size())
	for r := range graphs {
		rc := rankctx.New(group.Endpoint(r), logger.Discard())
		graphs[r], err = f.Build(rc, logger.Discard())
		require.NoError(t, err)
	}
	require.NotNil(t, graphs[0].Master)
	require.NotNil(t, graphs[0].Tuner)
	for _, g := range graphs[1:] {
		require.Nil(t, g.Master)
		require.NotNil(t, g.Slave)
	}

	eg := errgroupx.WithContext(context.Background())
	for _, g := range graphs {
		role := g.Role()
		eg.Go(role.Run)
	}
	require.NoError(t, eg.Wait())

	tn := graphs[0].Tuner
	require.Equal(t, []float64{0}, tn.InitialParameters())
	require.Equal(t, []float64{2}, tn.FinalParameters())
	require.Equal(t, 1.0, tn.FinalValue())
	require.Equal(t, 9, tn.Iterations())
}

func TestBuildParticleSwarm(t *testing.T) {
	f, err := Parse([]byte(`
system:
  type: quadratic
  parameters: [-4]
data:
  - name: a
    values: [1]
  - name: b
    values: [3]
optimizer:
  particle_swarm:
    bounds: [{min: -5, max: 5}]
    number_of_particles: 10
    max_iterations: 50
    seed: 11
    inertia_coefficient: 0.7298
    personal_coefficient: 1.496
    global_coefficient: 1.496
`))
	require.NoError(t, err)
	require.Equal(t, "particle_swarm", f.Optimizer.Optimizer().Name())

	group, err := transport.NewLocalGroup(3)
	require.NoError(t, err)
	defer func() { _ = group.Close() }()

	eg := errgroupx.WithContext(context.Background())
	var master *Graph
	for r := 0; r < group.Size(); r++ {
		g, err := f.Build(rankctx.New(group.Endpoint(r), logger.Discard()), logger.Discard())
		require.NoError(t, err)
		if r == rankctx.MasterRank {
			master = g
		}
		eg.Go(g.Role().Run)
	}
	require.NoError(t, eg.Wait())

	tn := master.Tuner
	require.Equal(t, 50, tn.Iterations())
	require.InDelta(t, 2, tn.FinalParameters()[0], 0.05)
	require.InDelta(t, 1, tn.FinalValue(), 0.01)
}
