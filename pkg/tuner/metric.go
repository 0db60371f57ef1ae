package tuner

import (
	"context"

	"github.com/pkg/errors"

	"github.com/paratune/paratune/pkg/tuning"
)

// CostFunc maps a parameter vector to the value being minimized.
type CostFunc func(ctx context.Context, params []float64) (float64, error)

// TrainingMetric scores a system over a set of training examples as the mean of the per-example
// scores. Every example is updated before any score is collected, so a system that scores
// remotely can evaluate all examples at once.
type TrainingMetric struct {
	System tuning.System
	Data   tuning.DataSet
}

// Value evaluates the system under params.
func (m *TrainingMetric) Value(ctx context.Context, params []float64) (float64, error) {
	if m.System == nil {
		return 0, errors.New("metric has no system")
	}
	if len(m.Data) == 0 {
		return 0, errors.New("metric has no training examples")
	}

	for _, d := range m.Data {
		m.System.SetData(d)
		m.System.SetTunableParameters(params)
		if err := m.System.UpdatePerformanceScore(ctx); err != nil {
			return 0, errors.Wrapf(err, "scoring example %q", d.Name)
		}
	}

	var sum float64
	for _, d := range m.Data {
		m.System.SetData(d)
		score, err := m.System.PerformanceScore(ctx)
		if err != nil {
			return 0, errors.Wrapf(err, "collecting score of example %q", d.Name)
		}
		sum += score
	}
	return sum / float64(len(m.Data)), nil
}
