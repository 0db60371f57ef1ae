package tuner

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/paratune/paratune/pkg/check"
	"github.com/paratune/paratune/pkg/nprand"
)

// ParticleSwarm moves a swarm of particles through Bounds, each pulled toward the best position
// it has seen and the best position the swarm has seen. Particle zero starts at the initial
// position, the rest at positions sampled from Seed. Each iteration reports the swarm's best.
type ParticleSwarm struct {
	Bounds              []Bound `json:"bounds"`
	NumberOfParticles   int     `json:"number_of_particles"`
	MaxIterations       int     `json:"max_iterations"`
	Seed                uint32  `json:"seed"`
	InertiaCoefficient  float64 `json:"inertia_coefficient"`
	PersonalCoefficient float64 `json:"personal_coefficient"`
	GlobalCoefficient   float64 `json:"global_coefficient"`

	// A particle has converged when it is within ParametersTolerance of the swarm's best on every
	// axis and within FunctionTolerance of its value. The search stops once ConvergedFraction of
	// the swarm has converged; zero disables the check.
	ParametersTolerance []float64 `json:"parameters_tolerance"`
	FunctionTolerance   float64   `json:"function_tolerance"`
	ConvergedFraction   float64   `json:"converged_fraction"`
}

// Validate implements check.Validatable.
func (p *ParticleSwarm) Validate() []error {
	errs := []error{
		check.GreaterThan(float64(p.NumberOfParticles), 0, "number_of_particles must be positive"),
		check.GreaterThan(float64(p.MaxIterations), 0, "max_iterations must be positive"),
		check.GreaterThan(float64(len(p.Bounds)), 0, "bounds must not be empty"),
		check.GreaterThanOrEqualTo(p.InertiaCoefficient, 0, "inertia_coefficient must not be negative"),
		check.GreaterThanOrEqualTo(p.PersonalCoefficient, 0,
			"personal_coefficient must not be negative"),
		check.GreaterThanOrEqualTo(p.GlobalCoefficient, 0, "global_coefficient must not be negative"),
		check.GreaterThanOrEqualTo(p.FunctionTolerance, 0, "function_tolerance must not be negative"),
		check.GreaterThanOrEqualTo(p.ConvergedFraction, 0, "converged_fraction must be in [0, 1]"),
		check.LessThanOrEqualTo(p.ConvergedFraction, 1, "converged_fraction must be in [0, 1]"),
	}
	for _, b := range p.Bounds {
		errs = append(errs, check.LessThanOrEqualTo(b.Min, b.Max, "bound min must not exceed max"))
	}
	for _, tol := range p.ParametersTolerance {
		errs = append(errs, check.GreaterThanOrEqualTo(tol, 0,
			"parameters_tolerance must not be negative"))
	}
	return errs
}

// Name implements Optimizer.
func (p *ParticleSwarm) Name() string { return "particle_swarm" }

type particle struct {
	x, v  []float64
	f     float64
	best  []float64
	bestF float64
}

// Optimize implements Optimizer.
func (p *ParticleSwarm) Optimize(
	ctx context.Context, cost CostFunc, initial []float64, observe Observer,
) error {
	if err := check.Validate(p); err != nil {
		return err
	}
	if err := check.Equal(len(p.Bounds), len(initial), "one bound per parameter"); err != nil {
		return err
	}
	if n := len(p.ParametersTolerance); n != 0 && n != len(initial) {
		return errors.Errorf("%d parameter tolerances for %d parameters", n, len(initial))
	}

	f := func(x []float64) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return cost(ctx, x)
	}

	rng := nprand.New(p.Seed)
	sample := func(b Bound) float64 {
		if b.Min == b.Max {
			return b.Min
		}
		return rng.Uniform(b.Min, b.Max)
	}

	swarm := make([]particle, p.NumberOfParticles)
	var global vertex
	for i := range swarm {
		x := make([]float64, len(initial))
		v := make([]float64, len(initial))
		for d, b := range p.Bounds {
			if i == 0 {
				x[d] = clamp(initial[d], b)
			} else {
				x[d] = sample(b)
			}
			v[d] = (sample(b) - x[d]) / 2
		}
		value, err := f(x)
		if err != nil {
			return err
		}
		swarm[i] = particle{x: x, v: v, f: value, best: append([]float64(nil), x...), bestF: value}
		if i == 0 || value < global.f {
			global = vertex{x: append([]float64(nil), x...), f: value}
		}
	}

	for iteration := 0; iteration < p.MaxIterations; iteration++ {
		for i := range swarm {
			pt := &swarm[i]
			for d, b := range p.Bounds {
				r1, r2 := rng.UnitInterval(), rng.UnitInterval()
				pt.v[d] = p.InertiaCoefficient*pt.v[d] +
					p.PersonalCoefficient*r1*(pt.best[d]-pt.x[d]) +
					p.GlobalCoefficient*r2*(global.x[d]-pt.x[d])
				pt.x[d] = clamp(pt.x[d]+pt.v[d], b)
			}
			value, err := f(pt.x)
			if err != nil {
				return err
			}
			pt.f = value
			if value < pt.bestF {
				pt.bestF = value
				copy(pt.best, pt.x)
			}
		}
		// The swarm's best moves only between sweeps.
		for _, pt := range swarm {
			if pt.bestF < global.f {
				global = vertex{x: append([]float64(nil), pt.best...), f: pt.bestF}
			}
		}

		if observe != nil {
			observe(Iteration{Position: append([]float64(nil), global.x...), Value: global.f})
		}
		if p.converged(swarm, global) {
			break
		}
	}
	return nil
}

func (p *ParticleSwarm) converged(swarm []particle, global vertex) bool {
	if p.ConvergedFraction == 0 {
		return false
	}
	n := 0
	for _, pt := range swarm {
		if p.near(pt, global) {
			n++
		}
	}
	return float64(n) >= p.ConvergedFraction*float64(len(swarm))
}

func (p *ParticleSwarm) near(pt particle, global vertex) bool {
	if math.Abs(pt.f-global.f) > p.FunctionTolerance {
		return false
	}
	for d := range pt.x {
		var tol float64
		if len(p.ParametersTolerance) != 0 {
			tol = p.ParametersTolerance[d]
		}
		if math.Abs(pt.x[d]-global.x[d]) > tol {
			return false
		}
	}
	return true
}

func clamp(x float64, b Bound) float64 {
	return math.Max(b.Min, math.Min(b.Max, x))
}
