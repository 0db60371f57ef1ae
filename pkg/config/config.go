// Package config reads tuning files: a declarative description of the system to tune, its
// training data, the optimizer and the scheduler. The same file yields the object graph of every
// rank, a master graph on rank 0 and a slave graph everywhere else.
package config

import (
	"context"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/check"
	"github.com/paratune/paratune/pkg/rankctx"
	"github.com/paratune/paratune/pkg/scheduler"
	"github.com/paratune/paratune/pkg/systems"
	"github.com/paratune/paratune/pkg/tuner"
	"github.com/paratune/paratune/pkg/tuning"
)

// Scheduler kinds.
const (
	SynchronousScheduler = "synchronous"
	ThreadedScheduler    = "threaded"
)

// TuningFile is the root of a tuning file.
type TuningFile struct {
	Scheduler string          `json:"scheduler"`
	System    SystemConfig    `json:"system"`
	Data      []ExampleConfig `json:"data"`
	Optimizer OptimizerConfig `json:"optimizer"`
	// Monitor logs the best result after every iteration.
	Monitor bool `json:"monitor"`
}

// SystemConfig selects a built-in system and its initial parameters.
type SystemConfig struct {
	Type       string          `json:"type"`
	Parameters []float64       `json:"parameters"`
	Options    systems.Options `json:"options"`
}

// ExampleConfig is one training example.
type ExampleConfig struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Fail   bool      `json:"fail"`
}

// OptimizerConfig holds exactly one optimizer.
type OptimizerConfig struct {
	Exhaustive    *tuner.Exhaustive    `json:"exhaustive"`
	Random        *tuner.Random        `json:"random"`
	Amoeba        *tuner.Amoeba        `json:"amoeba"`
	ParticleSwarm *tuner.ParticleSwarm `json:"particle_swarm"`
}

// Validate implements check.Validatable.
func (o OptimizerConfig) Validate() []error {
	set := 0
	for _, isSet := range []bool{
		o.Exhaustive != nil, o.Random != nil, o.Amoeba != nil, o.ParticleSwarm != nil,
	} {
		if isSet {
			set++
		}
	}
	return []error{
		check.Equal(set, 1, "exactly one optimizer must be set"),
	}
}

// Optimizer returns the configured optimizer.
func (o OptimizerConfig) Optimizer() tuner.Optimizer {
	switch {
	case o.Exhaustive != nil:
		return o.Exhaustive
	case o.Random != nil:
		return o.Random
	case o.Amoeba != nil:
		return o.Amoeba
	case o.ParticleSwarm != nil:
		return o.ParticleSwarm
	default:
		return nil
	}
}

// Validate implements check.Validatable.
func (f TuningFile) Validate() []error {
	errs := []error{
		check.In(f.Scheduler, []string{SynchronousScheduler, ThreadedScheduler}),
		check.In(f.System.Type, systems.Names()),
	}
	names := map[string]bool{}
	for _, e := range f.Data {
		errs = append(errs,
			check.NotEmpty(e.Name, "every example needs a name"),
			check.False(names[e.Name], "example %q listed twice", e.Name),
		)
		names[e.Name] = true
	}
	return errs
}

// Parse reads a tuning file from YAML and validates it.
func Parse(bs []byte) (*TuningFile, error) {
	f := &TuningFile{Scheduler: ThreadedScheduler}
	if err := yaml.Unmarshal(bs, f, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal tuning file")
	}
	if err := check.Validate(f); err != nil {
		return nil, errors.Wrap(err, "tuning file specifies an illegal configuration")
	}
	return f, nil
}

// Load reads and parses the tuning file at path.
func Load(path string) (*TuningFile, error) {
	bs, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading tuning file")
	}
	return Parse(bs)
}

// DataSet returns fresh data for every example, in file order.
func (f *TuningFile) DataSet() tuning.DataSet {
	set := make(tuning.DataSet, 0, len(f.Data))
	for _, e := range f.Data {
		d := tuning.NewSystemData(e.Name, e.Values...)
		d.Fail = e.Fail
		set = append(set, d)
	}
	return set
}

// NewSystem returns the configured system with its initial parameters.
func (f *TuningFile) NewSystem() (tuning.System, error) {
	return systems.New(f.System.Type, f.System.Parameters, f.System.Options)
}

// NewScheduler returns an empty scheduler of the configured kind.
func (f *TuningFile) NewScheduler(log *logrus.Entry) scheduler.Scheduler {
	if f.Scheduler == SynchronousScheduler {
		return scheduler.NewSynchronous(log)
	}
	return scheduler.NewThreaded(log)
}

// NewTuner returns a tuner over a local instance of the configured system.
func (f *TuningFile) NewTuner(log *logrus.Entry) (*tuner.Tuner, error) {
	system, err := f.NewSystem()
	if err != nil {
		return nil, err
	}
	t := tuner.New(system, f.DataSet(), f.Optimizer.Optimizer(), log)
	if f.Monitor {
		t.AddMonitor(tuner.LogMonitor(log))
	}
	return t, nil
}

// Role is what a rank runs.
type Role interface {
	Run(ctx context.Context) error
}

// Graph is the object graph of one rank. Exactly one of Master and Slave is set.
type Graph struct {
	Master *tuning.Master
	Tuner  *tuner.Tuner
	Slave  *tuning.Slave
}

// Role returns the part of the graph that runs.
func (g *Graph) Role() Role {
	if g.Master != nil {
		return g.Master
	}
	return g.Slave
}

// Build wires the graph of the rank rc belongs to. Rank 0 gets the master, every other rank a
// slave.
func (f *TuningFile) Build(rc *rankctx.Context, log *logrus.Entry) (*Graph, error) {
	if !rc.IsMaster() {
		system, err := f.NewSystem()
		if err != nil {
			return nil, err
		}
		return &Graph{Slave: tuning.NewSlave(rc, system, log)}, nil
	}

	t, err := f.NewTuner(log)
	if err != nil {
		return nil, err
	}
	return &Graph{
		Master: tuning.NewMaster(rc, f.NewScheduler(log), t, log),
		Tuner:  t,
	}, nil
}
