package tuner

import (
	"context"
)

// Iteration is what an optimizer reports after each step: the position it just settled on and
// the cost there.
type Iteration struct {
	Position []float64
	Value    float64
}

// Observer receives every iteration of an optimization.
type Observer func(it Iteration)

// Optimizer minimizes a cost function starting from an initial position.
type Optimizer interface {
	Name() string
	Optimize(ctx context.Context, cost CostFunc, initial []float64, observe Observer) error
}

func evaluate(
	ctx context.Context, cost CostFunc, position []float64, observe Observer,
) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	value, err := cost(ctx, position)
	if err != nil {
		return 0, err
	}
	if observe != nil {
		observe(Iteration{Position: append([]float64(nil), position...), Value: value})
	}
	return value, nil
}
