package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/jobs"
	"github.com/paratune/paratune/pkg/logger"
)

const synchronousName = "synchronous"

// Synchronous runs every job on the goroutine that calls RunJob. Each job needs a worker of its
// own, so Initialize refuses more jobs than workers.
type Synchronous struct {
	base
}

// NewSynchronous returns an empty synchronous scheduler.
func NewSynchronous(log *logrus.Entry) *Synchronous {
	s := &Synchronous{}
	s.init(logger.Component(log, "scheduler").WithField("scheduler", synchronousName))
	return s
}

// Initialize implements Scheduler.
func (s *Synchronous) Initialize(groupSize int) error {
	nJobs, nWorkers := s.createWorkers(groupSize)
	if nJobs > nWorkers {
		return errors.Wrapf(ErrInsufficientWorkers, "%d jobs but only %d workers", nJobs, nWorkers)
	}
	s.log.Infof("initialized with %d jobs and %d workers", nJobs, nWorkers)
	return nil
}

// StartJob implements Scheduler. It binds the lowest ranked free worker and marks it busy. A job
// that is already bound keeps its worker.
func (s *Synchronous) StartJob(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.jobLocked(id)
	if err != nil {
		return err
	}
	if j.Worker() != jobs.Unbound {
		return nil
	}
	w := s.freeWorkerLocked()
	if w == nil {
		return errors.Wrapf(ErrNoIdleWorker, "starting job %d", id)
	}
	if err := w.Transition(jobs.WorkerBusy); err != nil {
		return err
	}
	s.bindLocked(j, w)
	return nil
}

// EndJob implements Scheduler.
func (s *Synchronous) EndJob(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.jobLocked(id)
	if err != nil {
		return err
	}
	rank := j.Worker()
	if rank == jobs.Unbound {
		return nil
	}
	s.unbindLocked(j)
	if w, err := s.workerLocked(rank); err == nil {
		return w.Transition(jobs.WorkerIdle)
	}
	return nil
}

// RunJob implements Scheduler. The job executes before RunJob returns regardless of wait, and its
// error is returned either way.
func (s *Synchronous) RunJob(ctx context.Context, id int, wait bool) error {
	s.mu.Lock()
	j, err := s.jobLocked(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rank := j.Worker()
	if rank == jobs.Unbound {
		s.mu.Unlock()
		return errors.Wrapf(ErrJobNotBound, "running job %d", id)
	}
	w, err := s.workerLocked(rank)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := j.Submit(); err != nil {
		s.mu.Unlock()
		return errors.Wrapf(ErrJobInFlight, "running job %d: %s", id, err)
	}
	if err := w.Transition(jobs.WorkerBusy); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	jobsDispatched.WithLabelValues(synchronousName).Inc()
	start := time.Now()
	if err := j.Start(); err != nil {
		return err
	}
	runErr := j.Execute(ctx, rank)
	if err := j.Finish(runErr); err != nil {
		return err
	}
	observeRun(synchronousName, start, runErr)

	if err := w.Transition(jobs.WorkerIdle); err != nil {
		return err
	}
	if runErr != nil {
		s.log.WithError(runErr).Debugf("job %d failed on worker %d", id, rank)
	}
	return runErr
}

// Execute implements Scheduler. There is nothing to start.
func (s *Synchronous) Execute(context.Context) error {
	return nil
}

// Terminate implements Scheduler. There is nothing to stop.
func (s *Synchronous) Terminate() {}

// Wait implements Scheduler.
func (s *Synchronous) Wait(ctx context.Context) error {
	return s.waitJobs(ctx)
}
