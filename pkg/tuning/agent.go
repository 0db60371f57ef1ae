package tuning

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/paratune/paratune/pkg/jobs"
	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/rankctx"
	"github.com/paratune/paratune/pkg/scheduler"
)

// Agent is the master's stand-in for a remote System. Each example of the data set is a job of
// the scheduler; selecting an example with SetData selects the job that evaluations go through,
// and the worker bound to that job does the exchange with its slave.
type Agent struct {
	rc    *rankctx.Context
	sched scheduler.Scheduler
	log   *logrus.Entry

	data   *SystemData
	params []float64
}

// NewAgent returns an agent that runs its jobs through sched.
func NewAgent(rc *rankctx.Context, sched scheduler.Scheduler, log *logrus.Entry) *Agent {
	return &Agent{
		rc:    rc,
		sched: sched,
		log:   logger.Component(log, "agent"),
	}
}

// NewJob returns the job evaluating d. The job's id is d.Rank.
func (a *Agent) NewJob(d *SystemData) *jobs.Job {
	return jobs.NewJob(d.Rank, d, jobs.ExecutorFunc(func(ctx context.Context, rank int) error {
		return a.exchange(ctx, d, rank)
	}))
}

// SetData implements System.
func (a *Agent) SetData(d *SystemData) { a.data = d }

// Data implements System.
func (a *Agent) Data() *SystemData { return a.data }

// SetTunableParameters implements System.
func (a *Agent) SetTunableParameters(params []float64) { a.params = slices.Clone(params) }

// TunableParameters implements System.
func (a *Agent) TunableParameters() []float64 { return a.params }

// UpdatePerformanceScore implements System. It hands the current parameters to a worker and
// returns without waiting for the slave to finish scoring them; a failure is reported by the
// next call on the same data.
func (a *Agent) UpdatePerformanceScore(ctx context.Context) error {
	j, err := a.job()
	if err != nil {
		return err
	}
	// The payload belongs to the worker until the previous run is over.
	if err := a.settle(ctx, j); err != nil {
		return err
	}

	a.data.Parameters = slices.Clone(a.params)
	a.data.OpID = TagUpdateScore
	if err := a.sched.StartJob(j.ID()); err != nil {
		return errors.Wrapf(err, "starting update of %q", a.data.Name)
	}
	if err := a.sched.RunJob(ctx, j.ID(), false); err != nil {
		// Reported here, so the next call on this data must not report it again.
		a.data.OpID = OpNone
		return errors.Wrapf(err, "updating score of %q", a.data.Name)
	}
	return nil
}

// PerformanceScore implements System. It blocks until the score computed by the latest update
// has come back, then releases the worker.
func (a *Agent) PerformanceScore(ctx context.Context) (float64, error) {
	j, err := a.job()
	if err != nil {
		return 0, err
	}
	if err := a.settle(ctx, j); err != nil {
		if endErr := a.sched.EndJob(j.ID()); endErr != nil {
			a.log.WithError(endErr).Warnf("releasing job %d", j.ID())
		}
		return 0, err
	}

	a.data.OpID = TagGetScore
	if err := a.sched.StartJob(j.ID()); err != nil {
		return 0, errors.Wrapf(err, "starting score retrieval of %q", a.data.Name)
	}
	runErr := a.sched.RunJob(ctx, j.ID(), true)
	if err := a.sched.EndJob(j.ID()); err != nil {
		return 0, err
	}
	if runErr != nil {
		return 0, errors.Wrapf(runErr, "getting score of %q", a.data.Name)
	}
	return a.data.Score, nil
}

func (a *Agent) job() (*jobs.Job, error) {
	if a.data == nil {
		return nil, errors.New("agent has no data selected")
	}
	return a.sched.Job(a.data.Rank)
}

// settle waits for the job's previous run. A failed update is reported; any other failure was
// already returned to whoever ran it.
func (a *Agent) settle(ctx context.Context, j *jobs.Job) error {
	err := j.Wait(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case a.data.OpID == TagUpdateScore:
		a.data.OpID = OpNone
		return errors.Wrapf(err, "updating score of %q", a.data.Name)
	default:
		return nil
	}
}

// exchange runs the pending operation of d against the slave at rank.
func (a *Agent) exchange(ctx context.Context, d *SystemData, rank int) error {
	log := a.log.WithFields(logrus.Fields{"job": d.Rank, "worker": rank, "op": opName(d.OpID)})
	log.Trace("exchange started")

	switch d.OpID {
	case TagUpdateScore:
		if err := a.rc.SendTag(ctx, rank, TagUpdateScore); err != nil {
			return err
		}
		if err := a.rc.Send(ctx, d, rank, TagUpdateScore); err != nil {
			return err
		}
		return a.acknowledged(ctx, rank, d)

	case TagGetScore:
		if err := a.rc.SendTag(ctx, rank, TagGetScore); err != nil {
			return err
		}
		if err := a.acknowledged(ctx, rank, d); err != nil {
			return err
		}
		score, err := rankctx.ReceiveScalar[float64](ctx, a.rc, rank, TagGetScore)
		if err != nil {
			return err
		}
		d.Score = score
		log.Debugf("score %g", score)
		return nil

	default:
		return errors.Errorf("job %d has no operation pending", d.Rank)
	}
}

func (a *Agent) acknowledged(ctx context.Context, rank int, d *SystemData) error {
	tag, err := a.rc.ExpectTag(ctx, rank, rankctx.TagOK, rankctx.TagFail)
	if err != nil {
		return err
	}
	if tag == rankctx.TagFail {
		return errors.Wrapf(ErrRemoteFailure, "rank %d failed %s of %q", rank, opName(d.OpID), d.Name)
	}
	return nil
}
