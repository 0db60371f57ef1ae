package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/jobs"
	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/syncx/errgroupx"
)

const threadedName = "threaded"

// Threaded dispatches submitted jobs from a background loop. Each dispatched job runs on its own
// goroutine, so jobs bound to different workers execute concurrently. A job pinned by StartJob
// keeps its worker across runs until EndJob; any other job borrows a free worker for one run.
type Threaded struct {
	base

	// wake is poked whenever a job is submitted or a worker frees up.
	wake chan struct{}
	stop chan struct{}

	// The following are guarded by mu.
	pending    []int
	pinned     map[int]bool
	group      *errgroupx.Group
	terminated bool
}

// NewThreaded returns an empty threaded scheduler.
func NewThreaded(log *logrus.Entry) *Threaded {
	s := &Threaded{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		pinned: make(map[int]bool),
	}
	s.init(logger.Component(log, "scheduler").WithField("scheduler", threadedName))
	return s
}

// Initialize implements Scheduler. Jobs outnumbering workers only queue longer, so it warns, but
// jobs with no worker at all would never run.
func (s *Threaded) Initialize(groupSize int) error {
	nJobs, nWorkers := s.createWorkers(groupSize)
	switch {
	case nJobs > 0 && nWorkers == 0:
		return errors.Wrapf(ErrInsufficientWorkers, "%d jobs but no workers", nJobs)
	case nJobs > nWorkers:
		s.log.Warnf("%d jobs share %d workers", nJobs, nWorkers)
	}
	s.log.Infof("initialized with %d jobs and %d workers", nJobs, nWorkers)
	return nil
}

// StartJob implements Scheduler. The job is pinned to a worker: a free one now if there is one,
// otherwise whichever one first runs it.
func (s *Threaded) StartJob(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.jobLocked(id)
	if err != nil {
		return err
	}
	s.pinned[id] = true
	if j.Worker() == jobs.Unbound {
		if w := s.freeWorkerLocked(); w != nil {
			s.bindLocked(j, w)
		}
	}
	return nil
}

// EndJob implements Scheduler. A job still in flight keeps its worker until the run finishes.
func (s *Threaded) EndJob(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.jobLocked(id)
	if err != nil {
		return err
	}
	delete(s.pinned, id)
	if j.State().InFlight() || j.Worker() == jobs.Unbound {
		return nil
	}
	s.unbindLocked(j)
	s.poke()
	return nil
}

// RunJob implements Scheduler.
func (s *Threaded) RunJob(ctx context.Context, id int, wait bool) error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return errors.Wrapf(ErrTerminated, "running job %d", id)
	}
	j, err := s.jobLocked(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := j.Submit(); err != nil {
		s.mu.Unlock()
		return errors.Wrapf(ErrJobInFlight, "running job %d: %s", id, err)
	}
	s.pending = append(s.pending, id)
	s.poke()
	s.mu.Unlock()

	if !wait {
		return nil
	}
	return j.Wait(ctx)
}

// Execute implements Scheduler. It starts the dispatch loop and returns. Runs execute under ctx.
func (s *Threaded) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.terminated:
		return ErrTerminated
	case s.group != nil:
		return errors.New("scheduler already executing")
	}

	s.group = errgroupx.WithContext(ctx).WithRecover()
	s.group.GoNamed("dispatch loop", s.dispatchLoop)
	s.log.Info("dispatch loop started")
	return nil
}

// Terminate implements Scheduler.
func (s *Threaded) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	close(s.stop)
	if s.group == nil {
		s.abandonPendingLocked()
	}
	s.log.Info("terminating dispatch loop")
}

// Wait implements Scheduler. After Terminate it also waits for the dispatch loop to exit.
func (s *Threaded) Wait(ctx context.Context) error {
	if err := s.waitJobs(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	group, terminated := s.group, s.terminated
	s.mu.Unlock()
	if group == nil || !terminated {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Threaded) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Threaded) dispatchLoop(ctx context.Context) error {
	defer s.abandonPending()
	for {
		s.dispatchPending()
		select {
		case <-s.wake:
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// abandonPending finishes every job that was submitted but never dispatched with ErrTerminated,
// releasing anyone waiting on it.
func (s *Threaded) abandonPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonPendingLocked()
}

func (s *Threaded) abandonPendingLocked() {
	for _, id := range s.pending {
		j, _ := s.jobs.Get(id)
		if err := j.Start(); err != nil {
			s.log.WithError(err).Errorf("abandoning job %d", id)
			continue
		}
		if err := j.Finish(errors.Wrapf(ErrTerminated, "job %d never dispatched", id)); err != nil {
			s.log.WithError(err).Errorf("abandoning job %d", id)
		}
	}
	if n := len(s.pending); n > 0 {
		s.log.Warnf("abandoned %d pending jobs", n)
	}
	s.pending = nil
}

// dispatchPending hands every pending job that has a worker available to that worker, keeping
// the rest in submission order.
func (s *Threaded) dispatchPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.pending[:0]
	for _, id := range s.pending {
		j, _ := s.jobs.Get(id)
		w := s.workerForLocked(j)
		if w == nil {
			remaining = append(remaining, id)
			continue
		}
		if err := w.Transition(jobs.WorkerDispatching); err != nil {
			s.log.WithError(err).Errorf("dispatching job %d", id)
			remaining = append(remaining, id)
			continue
		}
		s.bindLocked(j, w)
		jobsDispatched.WithLabelValues(threadedName).Inc()
		s.group.Go(func(ctx context.Context) error {
			s.run(ctx, j, w)
			return nil
		})
	}
	s.pending = remaining
}

// workerForLocked returns the worker that should run j now, or nil if j has to wait.
func (s *Threaded) workerForLocked(j *jobs.Job) *jobs.Worker {
	if rank := j.Worker(); rank != jobs.Unbound {
		w, ok := s.workers.Get(rank)
		if !ok || w.State() != jobs.WorkerIdle {
			return nil
		}
		return w
	}
	return s.freeWorkerLocked()
}

func (s *Threaded) run(ctx context.Context, j *jobs.Job, w *jobs.Worker) {
	log := s.log.WithFields(logrus.Fields{"job": j.ID(), "worker": w.Rank()})
	start := time.Now()

	if err := w.Transition(jobs.WorkerBusy); err != nil {
		log.WithError(err).Error("worker refused job")
	}
	runErr := j.Start()
	if runErr == nil {
		runErr = j.Execute(ctx, w.Rank())
	}
	if runErr != nil {
		log.WithError(runErr).Debug("job failed")
	}
	if err := j.Finish(runErr); err != nil {
		log.WithError(err).Error("finishing job")
	}
	observeRun(threadedName, start, runErr)

	s.mu.Lock()
	if !s.pinned[j.ID()] {
		s.unbindLocked(j)
	}
	if err := w.Transition(jobs.WorkerIdle); err != nil {
		log.WithError(err).Error("releasing worker")
	}
	s.mu.Unlock()
	s.poke()
}
