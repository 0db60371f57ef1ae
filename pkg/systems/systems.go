// Package systems holds the scoring systems the tuner can be pointed at.
package systems

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/paratune/paratune/pkg/tuning"
)

// Names of the built-in systems.
const (
	TestName       = "test"
	QuadraticName  = "quadratic"
	RosenbrockName = "rosenbrock"
)

var (
	// ErrExampleFailed is returned when scoring an example marked to fail.
	ErrExampleFailed = errors.New("example marked to fail")
	// ErrNotScored is returned when asking for a score before one was computed.
	ErrNotScored = errors.New("no score computed")
)

// Options configures a system. Keys are system specific.
type Options map[string]float64

func (o Options) get(key string, fallback float64) float64 {
	if v, ok := o[key]; ok {
		return v
	}
	return fallback
}

type factory func(opts Options) tuning.System

var registry = map[string]factory{
	TestName:      func(Options) tuning.System { return &Test{} },
	QuadraticName: func(Options) tuning.System { return &Quadratic{} },
	RosenbrockName: func(opts Options) tuning.System {
		return &Rosenbrock{A: opts.get("a", 1), B: opts.get("b", 100)}
	},
}

// Names returns the names New accepts.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the system called name with the given initial parameters.
func New(name string, params []float64, opts Options) (tuning.System, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown system %q, want one of %v", name, Names())
	}
	s := f(opts)
	s.SetTunableParameters(params)
	return s, nil
}

// base keeps the state every system shares. Scores are kept per example, so every example can
// be updated before any score is collected. Scoring is left to the embedding type.
type base struct {
	data   *tuning.SystemData
	params []float64
	scores map[*tuning.SystemData]float64
}

func (b *base) SetData(d *tuning.SystemData) { b.data = d }

func (b *base) Data() *tuning.SystemData { return b.data }

func (b *base) SetTunableParameters(params []float64) { b.params = slices.Clone(params) }

func (b *base) TunableParameters() []float64 { return b.params }

func (b *base) PerformanceScore(context.Context) (float64, error) {
	score, ok := b.scores[b.data]
	if !ok {
		return 0, ErrNotScored
	}
	return score, nil
}

// update stores the result of compute for the current example unless it is marked to fail.
func (b *base) update(compute func() (float64, error)) error {
	delete(b.scores, b.data)
	if b.data != nil && b.data.Fail {
		return errors.Wrapf(ErrExampleFailed, "example %q", b.data.Name)
	}
	score, err := compute()
	if err != nil {
		return err
	}
	if b.scores == nil {
		b.scores = make(map[*tuning.SystemData]float64)
	}
	b.scores[b.data] = score
	if b.data != nil {
		b.data.Score = score
	}
	return nil
}

// Test scores every example as the sum of log(i) for i in 1..1000, whatever the parameters.
type Test struct{ base }

// UpdatePerformanceScore implements tuning.System.
func (s *Test) UpdatePerformanceScore(context.Context) error {
	return s.update(func() (float64, error) {
		var score float64
		for i := 1; i <= 1000; i++ {
			score += math.Log(float64(i))
		}
		return score, nil
	})
}

// Quadratic scores an example as the squared distance between the parameters and the example's
// values.
type Quadratic struct{ base }

// UpdatePerformanceScore implements tuning.System.
func (s *Quadratic) UpdatePerformanceScore(context.Context) error {
	return s.update(func() (float64, error) {
		var target []float64
		if s.data != nil {
			target = s.data.Values
		}
		if len(target) != len(s.params) {
			return 0, errors.Errorf("%d parameters but %d target values", len(s.params), len(target))
		}
		var score float64
		for i, p := range s.params {
			score += (p - target[i]) * (p - target[i])
		}
		return score, nil
	})
}

// Rosenbrock scores the parameters with the Rosenbrock function
// sum (A - x[i])^2 + B*(x[i+1] - x[i]^2)^2, shifted by the mean of the example's values.
type Rosenbrock struct {
	base
	A, B float64
}

// UpdatePerformanceScore implements tuning.System.
func (s *Rosenbrock) UpdatePerformanceScore(context.Context) error {
	return s.update(func() (float64, error) {
		if len(s.params) < 2 {
			return 0, errors.Errorf("rosenbrock needs at least 2 parameters, got %d", len(s.params))
		}
		var score float64
		for i := 0; i+1 < len(s.params); i++ {
			x, y := s.params[i], s.params[i+1]
			score += (s.A-x)*(s.A-x) + s.B*(y-x*x)*(y-x*x)
		}
		if s.data != nil && len(s.data.Values) > 0 {
			var sum float64
			for _, v := range s.data.Values {
				sum += v
			}
			score += sum / float64(len(s.data.Values))
		}
		return score, nil
	})
}
