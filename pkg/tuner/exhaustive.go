package tuner

import (
	"context"

	"github.com/pkg/errors"

	"github.com/paratune/paratune/pkg/check"
)

// Exhaustive evaluates every point of a grid centered on the initial position. Along dimension
// i the grid has 2*NumberOfSteps[i]+1 points spaced StepLength*Scales[i] apart. The first
// dimension varies fastest.
type Exhaustive struct {
	StepLength    float64   `json:"step_length"`
	NumberOfSteps []int     `json:"number_of_steps"`
	Scales        []float64 `json:"scales"`
}

// Validate implements check.Validatable.
func (e *Exhaustive) Validate() []error {
	errs := []error{
		check.GreaterThan(e.StepLength, 0, "step_length must be positive"),
	}
	for _, n := range e.NumberOfSteps {
		errs = append(errs, check.GreaterThanOrEqualTo(float64(n), 0,
			"number_of_steps must not be negative"))
	}
	return errs
}

// Name implements Optimizer.
func (e *Exhaustive) Name() string { return "exhaustive" }

// GridSize returns how many points a search of n dimensions evaluates.
func (e *Exhaustive) GridSize(n int) int {
	size := 1
	for i := 0; i < n; i++ {
		size *= 2*e.steps(i) + 1
	}
	return size
}

func (e *Exhaustive) steps(i int) int {
	if i < len(e.NumberOfSteps) {
		return e.NumberOfSteps[i]
	}
	return 0
}

func (e *Exhaustive) scale(i int) float64 {
	if i < len(e.Scales) {
		return e.Scales[i]
	}
	return 1
}

// Optimize implements Optimizer.
func (e *Exhaustive) Optimize(
	ctx context.Context, cost CostFunc, initial []float64, observe Observer,
) error {
	if err := check.Validate(e); err != nil {
		return err
	}
	if len(e.NumberOfSteps) > len(initial) {
		return errors.Errorf("%d step counts for %d parameters", len(e.NumberOfSteps), len(initial))
	}

	n := len(initial)
	index := make([]int, n)
	for i := range index {
		index[i] = -e.steps(i)
	}
	position := make([]float64, n)
	for {
		for i := range position {
			position[i] = initial[i] + float64(index[i])*e.StepLength*e.scale(i)
		}
		if _, err := evaluate(ctx, cost, position, observe); err != nil {
			return err
		}

		// Advance like an odometer.
		i := 0
		for ; i < n; i++ {
			if index[i] < e.steps(i) {
				index[i]++
				break
			}
			index[i] = -e.steps(i)
		}
		if i == n {
			return nil
		}
	}
}
