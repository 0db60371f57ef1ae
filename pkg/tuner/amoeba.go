package tuner

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/paratune/paratune/pkg/check"
)

// Nelder-Mead coefficients.
const (
	reflection  = 1.0
	expansion   = 2.0
	contraction = 0.5
	shrinkage   = 0.5
)

// Amoeba is the Nelder-Mead downhill simplex method. Each iteration reports the best vertex.
type Amoeba struct {
	MaxIterations       int     `json:"max_iterations"`
	ParametersTolerance float64 `json:"parameters_tolerance"`
	FunctionTolerance   float64 `json:"function_tolerance"`
	// InitialSimplexDelta offsets the initial position along each axis to build the starting
	// simplex. When empty the offsets are 5% of each coordinate, or 0.00025 for a zero one.
	InitialSimplexDelta []float64 `json:"initial_simplex_delta"`
	// Restarts reruns the search from the converged point until it stops improving.
	Restarts bool `json:"restarts"`
}

// Validate implements check.Validatable.
func (a *Amoeba) Validate() []error {
	return []error{
		check.GreaterThan(float64(a.MaxIterations), 0, "max_iterations must be positive"),
		check.GreaterThanOrEqualTo(a.ParametersTolerance, 0,
			"parameters_tolerance must not be negative"),
		check.GreaterThanOrEqualTo(a.FunctionTolerance, 0,
			"function_tolerance must not be negative"),
	}
}

// Name implements Optimizer.
func (a *Amoeba) Name() string { return "amoeba" }

type vertex struct {
	x []float64
	f float64
}

// Optimize implements Optimizer.
func (a *Amoeba) Optimize(
	ctx context.Context, cost CostFunc, initial []float64, observe Observer,
) error {
	if err := check.Validate(a); err != nil {
		return err
	}
	if len(initial) == 0 {
		return errors.New("amoeba needs at least one parameter")
	}
	if n := len(a.InitialSimplexDelta); n != 0 && n != len(initial) {
		return errors.Errorf("%d simplex deltas for %d parameters", n, len(initial))
	}

	budget := a.MaxIterations
	start := append([]float64(nil), initial...)
	var previous *vertex
	for {
		best, used, err := a.search(ctx, cost, start, budget, observe)
		if err != nil {
			return err
		}
		budget -= used
		improved := previous == nil || previous.f-best.f > a.FunctionTolerance
		if !a.Restarts || !improved || budget <= 0 {
			return nil
		}
		previous, start = &best, best.x
	}
}

// search runs one simplex descent from start for at most budget iterations and returns the best
// vertex and the iterations it used.
func (a *Amoeba) search(
	ctx context.Context, cost CostFunc, start []float64, budget int, observe Observer,
) (vertex, int, error) {
	f := func(x []float64) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return cost(ctx, x)
	}

	n := len(start)
	simplex := make([]vertex, n+1)
	for i := range simplex {
		x := append([]float64(nil), start...)
		if i > 0 {
			x[i-1] += a.delta(start, i-1)
		}
		v, err := f(x)
		if err != nil {
			return vertex{}, 0, err
		}
		simplex[i] = vertex{x: x, f: v}
	}

	iteration := 0
	for ; iteration < budget; iteration++ {
		sort.SliceStable(simplex, func(i, j int) bool { return simplex[i].f < simplex[j].f })
		if a.converged(simplex) {
			break
		}

		worst := simplex[n]
		centroid := make([]float64, n)
		for _, v := range simplex[:n] {
			for d := range centroid {
				centroid[d] += v.x[d] / float64(n)
			}
		}
		along := func(coef float64, from []float64) []float64 {
			x := make([]float64, n)
			for d := range x {
				x[d] = centroid[d] + coef*(from[d]-centroid[d])
			}
			return x
		}

		xr := along(-reflection, worst.x)
		fr, err := f(xr)
		if err != nil {
			return vertex{}, iteration, err
		}
		switch {
		case fr < simplex[0].f:
			xe := along(-expansion, worst.x)
			fe, err := f(xe)
			if err != nil {
				return vertex{}, iteration, err
			}
			if fe < fr {
				simplex[n] = vertex{x: xe, f: fe}
			} else {
				simplex[n] = vertex{x: xr, f: fr}
			}
		case fr < simplex[n-1].f:
			simplex[n] = vertex{x: xr, f: fr}
		default:
			var xc []float64
			if fr < worst.f {
				xc = along(contraction, xr)
			} else {
				xc = along(contraction, worst.x)
			}
			fc, err := f(xc)
			if err != nil {
				return vertex{}, iteration, err
			}
			if fc < math.Min(fr, worst.f) {
				simplex[n] = vertex{x: xc, f: fc}
				break
			}
			if err := a.shrink(simplex, f); err != nil {
				return vertex{}, iteration, err
			}
		}

		best := simplex[0]
		for _, v := range simplex[1:] {
			if v.f < best.f {
				best = v
			}
		}
		if observe != nil {
			observe(Iteration{Position: append([]float64(nil), best.x...), Value: best.f})
		}
	}

	sort.SliceStable(simplex, func(i, j int) bool { return simplex[i].f < simplex[j].f })
	return simplex[0], iteration, nil
}

func (a *Amoeba) delta(start []float64, d int) float64 {
	if len(a.InitialSimplexDelta) != 0 {
		return a.InitialSimplexDelta[d]
	}
	if start[d] == 0 {
		return 0.00025
	}
	return 0.05 * start[d]
}

// converged reports whether the sorted simplex has collapsed in both position and value.
func (a *Amoeba) converged(simplex []vertex) bool {
	best := simplex[0]
	for _, v := range simplex[1:] {
		if math.Abs(v.f-best.f) > a.FunctionTolerance {
			return false
		}
		for d := range v.x {
			if math.Abs(v.x[d]-best.x[d]) > a.ParametersTolerance {
				return false
			}
		}
	}
	return true
}

// shrink pulls every vertex halfway toward the best one, which must be simplex[0].
func (a *Amoeba) shrink(simplex []vertex, f func([]float64) (float64, error)) error {
	best := simplex[0].x
	for i := 1; i < len(simplex); i++ {
		x := simplex[i].x
		for d := range x {
			x[d] = best[d] + shrinkage*(x[d]-best[d])
		}
		v, err := f(x)
		if err != nil {
			return err
		}
		simplex[i].f = v
	}
	return nil
}
