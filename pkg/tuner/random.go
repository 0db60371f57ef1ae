package tuner

import (
	"context"

	"github.com/paratune/paratune/pkg/check"
	"github.com/paratune/paratune/pkg/nprand"
)

// Bound is the closed range a parameter is sampled from.
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Random evaluates MaxTrials positions sampled uniformly within Bounds. The same seed always
// samples the same positions.
type Random struct {
	Bounds    []Bound `json:"bounds"`
	MaxTrials int     `json:"max_trials"`
	Seed      uint32  `json:"seed"`
}

// Validate implements check.Validatable.
func (r *Random) Validate() []error {
	errs := []error{
		check.GreaterThan(float64(r.MaxTrials), 0, "max_trials must be positive"),
		check.GreaterThan(float64(len(r.Bounds)), 0, "bounds must not be empty"),
	}
	for _, b := range r.Bounds {
		errs = append(errs, check.LessThanOrEqualTo(b.Min, b.Max, "bound min must not exceed max"))
	}
	return errs
}

// Name implements Optimizer.
func (r *Random) Name() string { return "random" }

// Optimize implements Optimizer. The initial position only fixes the dimension.
func (r *Random) Optimize(
	ctx context.Context, cost CostFunc, initial []float64, observe Observer,
) error {
	if err := check.Validate(r); err != nil {
		return err
	}
	if err := check.Equal(len(r.Bounds), len(initial), "one bound per parameter"); err != nil {
		return err
	}

	rng := nprand.New(r.Seed)
	position := make([]float64, len(initial))
	for trial := 0; trial < r.MaxTrials; trial++ {
		for i, b := range r.Bounds {
			if b.Min == b.Max {
				position[i] = b.Min
				continue
			}
			position[i] = rng.Uniform(b.Min, b.Max)
		}
		if _, err := evaluate(ctx, cost, position, observe); err != nil {
			return err
		}
	}
	return nil
}
