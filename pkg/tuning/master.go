package tuning

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/rankctx"
	"github.com/paratune/paratune/pkg/scheduler"
)

// Master runs a tuner on rank 0 with the scoring done by the slaves.
type Master struct {
	rc    *rankctx.Context
	sched scheduler.Scheduler
	tuner Tuner
	agent *Agent
	log   *logrus.Entry

	RunID       uuid.UUID
	initialized bool
}

// NewMaster returns a master running tuner over sched.
func NewMaster(
	rc *rankctx.Context, sched scheduler.Scheduler, tuner Tuner, log *logrus.Entry,
) *Master {
	runID := uuid.New()
	log = logger.Component(log, "master").WithField("run-id", runID.String())
	return &Master{
		rc:    rc,
		sched: sched,
		tuner: tuner,
		agent: NewAgent(rc, sched, log),
		log:   log,
		RunID: runID,
	}
}

// Initialize adds one job per training example to the scheduler, creates the workers and puts
// the agent in place of the tuner's system.
func (m *Master) Initialize() error {
	if m.initialized {
		m.log.Warn("already initialized")
		return nil
	}
	m.log.Info("initializing")

	system := m.tuner.System()
	if system == nil {
		return errors.New("tuner has no system")
	}
	data := m.tuner.Data()
	if len(data) == 0 {
		m.log.Warn("no training examples")
	}
	for i, d := range data {
		d.Rank = i
		m.sched.AddJob(m.agent.NewJob(d))
	}
	if err := m.sched.Initialize(m.rc.GroupSize()); err != nil {
		return errors.Wrap(err, "initializing scheduler")
	}

	m.agent.SetTunableParameters(system.TunableParameters())
	m.tuner.SetSystem(m.agent)
	m.initialized = true
	return nil
}

// Execute runs the tuner to completion.
func (m *Master) Execute(ctx context.Context) error {
	if !m.initialized {
		return errors.New("master not initialized")
	}
	m.log.Info("tuning started")
	if err := m.sched.Execute(ctx); err != nil {
		return errors.Wrap(err, "starting scheduler")
	}
	err := m.tuner.Run(ctx)
	m.sched.Terminate()
	if err != nil {
		return errors.Wrap(err, "tuning")
	}
	m.log.Info("tuning finished")
	return nil
}

// Finalize waits for work in flight and tells every slave to exit.
func (m *Master) Finalize(ctx context.Context) error {
	var merr *multierror.Error
	if err := m.sched.Wait(ctx); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "waiting for jobs"))
	}
	if err := m.rc.BroadcastTerminate(ctx); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "terminating slaves"))
	}
	return merr.ErrorOrNil()
}

// Run initializes, executes and finalizes. Slaves are told to exit even when tuning fails.
func (m *Master) Run(ctx context.Context) error {
	err := m.Initialize()
	if err == nil {
		err = m.Execute(ctx)
	}
	if fErr := m.Finalize(ctx); fErr != nil {
		if err == nil {
			return fErr
		}
		m.log.WithError(fErr).Error("finalizing")
	}
	return err
}
