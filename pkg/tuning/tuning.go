// Package tuning evaluates a system across a group of ranks. The master drives a tuner whose
// system is an Agent: every evaluation the tuner asks for is shipped to a slave rank, which
// scores it with its local System and answers back.
package tuning

import (
	"context"

	"github.com/pkg/errors"

	"github.com/paratune/paratune/pkg/rankctx"
)

// Tags of the tuning protocol. Each command tag also carries the command's payload.
const (
	TagTuningBase  = rankctx.TagUser + 100
	TagUpdateScore = TagTuningBase + 1
	TagGetScore    = TagTuningBase + 2
)

// OpNone marks data with no operation pending.
const OpNone = -1

// ErrRemoteFailure is returned when a slave answers a command with FAIL.
var ErrRemoteFailure = errors.New("remote system failed")

// System is a computation whose performance under a parameter vector can be scored.
type System interface {
	// SetData selects the example the next operations apply to.
	SetData(d *SystemData)
	Data() *SystemData
	SetTunableParameters(params []float64)
	TunableParameters() []float64
	// UpdatePerformanceScore computes the score of the current data under the current
	// parameters. It may return before the score is ready.
	UpdatePerformanceScore(ctx context.Context) error
	// PerformanceScore returns the score computed by the latest update of the current data.
	PerformanceScore(ctx context.Context) (float64, error)
}

// Tuner searches for the parameters minimizing a system's score over a data set.
type Tuner interface {
	System() System
	SetSystem(s System)
	Data() DataSet
	Run(ctx context.Context) error
}

func opName(tag int) string {
	switch tag {
	case TagUpdateScore:
		return "update score"
	case TagGetScore:
		return "get score"
	case OpNone:
		return "none"
	default:
		return "unknown"
	}
}
