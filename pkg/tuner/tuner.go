// Package tuner searches for the tunable parameters that minimize a system's mean score over a
// set of training examples.
package tuner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/tuning"
)

// Monitor is notified after every iteration of a tuning run.
type Monitor interface {
	Iteration(t *Tuner, it Iteration)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(t *Tuner, it Iteration)

// Iteration implements Monitor.
func (f MonitorFunc) Iteration(t *Tuner, it Iteration) { f(t, it) }

// Tuner drives an optimizer over the training metric of a system. It implements tuning.Tuner.
type Tuner struct {
	system    tuning.System
	data      tuning.DataSet
	optimizer Optimizer
	monitors  []Monitor
	log       *logrus.Entry

	initial    []float64
	final      []float64
	finalValue float64
	iterations int
}

// New returns a tuner starting from the system's current parameters.
func New(
	system tuning.System, data tuning.DataSet, optimizer Optimizer, log *logrus.Entry,
) *Tuner {
	return &Tuner{
		system:    system,
		data:      data,
		optimizer: optimizer,
		log:       logger.Component(log, "tuner").WithField("optimizer", optimizer.Name()),
	}
}

// AddMonitor registers m.
func (t *Tuner) AddMonitor(m Monitor) { t.monitors = append(t.monitors, m) }

// System implements tuning.Tuner.
func (t *Tuner) System() tuning.System { return t.system }

// SetSystem implements tuning.Tuner.
func (t *Tuner) SetSystem(s tuning.System) { t.system = s }

// Data implements tuning.Tuner.
func (t *Tuner) Data() tuning.DataSet { return t.data }

// InitialParameters returns the position the latest run started from.
func (t *Tuner) InitialParameters() []float64 { return t.initial }

// FinalParameters returns the best position found so far.
func (t *Tuner) FinalParameters() []float64 { return t.final }

// FinalValue returns the metric at FinalParameters.
func (t *Tuner) FinalValue() float64 { return t.finalValue }

// Iterations returns how many iterations the latest run has completed.
func (t *Tuner) Iterations() int { return t.iterations }

// Run implements tuning.Tuner.
func (t *Tuner) Run(ctx context.Context) error {
	if t.system == nil {
		return errors.New("tuner has no system")
	}
	if len(t.data) == 0 {
		t.log.Warn("number of training examples is zero")
	}
	t.initial = slices.Clone(t.system.TunableParameters())
	if len(t.initial) == 0 {
		t.log.Warn("number of parameters to be tuned is zero")
	}
	t.final, t.finalValue, t.iterations = nil, 0, 0

	metric := &TrainingMetric{System: t.system, Data: t.data}
	start := time.Now()
	t.log.Infof("tuning %d parameters over %d examples", len(t.initial), len(t.data))
	if err := t.optimizer.Optimize(ctx, metric.Value, t.initial, t.observe); err != nil {
		return errors.Wrapf(err, "optimizing after %d iterations", t.iterations)
	}
	t.log.WithField("duration", time.Since(start)).Infof(
		"best value %g at %v after %d iterations", t.finalValue, t.final, t.iterations)
	return nil
}

func (t *Tuner) observe(it Iteration) {
	if t.iterations == 0 || it.Value < t.finalValue {
		t.final = slices.Clone(it.Position)
		t.finalValue = it.Value
	}
	t.iterations++
	iterations.WithLabelValues(t.optimizer.Name()).Inc()
	bestValue.WithLabelValues(t.optimizer.Name()).Set(t.finalValue)

	t.log.Debugf("iteration %d: value %g, best %g", t.iterations, it.Value, t.finalValue)
	for _, m := range t.monitors {
		m.Iteration(t, it)
	}
}

// LogMonitor logs the best result after every iteration.
func LogMonitor(log *logrus.Entry) Monitor {
	log = logger.Component(log, "monitor")
	return MonitorFunc(func(t *Tuner, it Iteration) {
		log.WithField("current", it.Value).Infof(
			"%d : %g <- %v", t.Iterations(), t.FinalValue(), t.FinalParameters())
	})
}
