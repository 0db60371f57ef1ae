// Package scheduler matches jobs to the workers that execute them. Two implementations share one
// contract: Synchronous runs each job on the caller's goroutine, Threaded dispatches jobs from a
// background loop onto one goroutine per busy worker.
package scheduler

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/jobs"
)

var (
	// ErrJobNotFound is returned for a job id that was never added.
	ErrJobNotFound = errors.New("job not found")
	// ErrWorkerNotFound is returned for a worker rank that was never added.
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrInsufficientWorkers is returned by Initialize when the workers cannot serve every job.
	ErrInsufficientWorkers = errors.New("insufficient workers")
	// ErrNoIdleWorker is returned by StartJob when every worker is taken.
	ErrNoIdleWorker = errors.New("no idle worker")
	// ErrJobNotBound is returned when running a job that has no worker.
	ErrJobNotBound = errors.New("job not bound to a worker")
	// ErrJobInFlight is returned when running a job whose previous run has not finished.
	ErrJobInFlight = errors.New("job already in flight")
	// ErrTerminated is returned when running a job after Terminate.
	ErrTerminated = errors.New("scheduler terminated")
)

// Scheduler owns a set of jobs and workers and drives jobs through their workers.
type Scheduler interface {
	// AddJob registers j. A duplicate id is logged and ignored.
	AddJob(j *jobs.Job)
	// AddWorker registers w and marks it idle. A duplicate rank is logged and ignored.
	AddWorker(w *jobs.Worker)
	// Job returns the job registered under id.
	Job(id int) (*jobs.Job, error)
	// Worker returns the worker registered under rank.
	Worker(rank int) (*jobs.Worker, error)
	// Jobs returns every job in id order.
	Jobs() []*jobs.Job
	// Workers returns every worker in rank order.
	Workers() []*jobs.Worker

	// Initialize registers a worker for every rank of a group of groupSize but the master.
	Initialize(groupSize int) error
	// StartJob binds a worker to the job. The binding lasts until EndJob.
	StartJob(id int) error
	// EndJob releases the job's binding. It is a no-op for a job that has none.
	EndJob(id int) error
	// RunJob submits the job. With wait it blocks until the run finishes and returns its error.
	RunJob(ctx context.Context, id int, wait bool) error

	// Execute starts dispatching.
	Execute(ctx context.Context) error
	// Terminate stops dispatching new work without waiting for work in flight.
	Terminate()
	// Wait blocks until no job is in flight.
	Wait(ctx context.Context) error
}

// base holds the registries and the bindings between their members. Bindings are always changed
// on both sides under mu.
type base struct {
	log *logrus.Entry

	mu      sync.Mutex
	jobs    *jobs.Registry[*jobs.Job]
	workers *jobs.Registry[*jobs.Worker]
}

func (b *base) init(log *logrus.Entry) {
	b.log = log
	b.jobs = jobs.NewRegistry[*jobs.Job]()
	b.workers = jobs.NewRegistry[*jobs.Worker]()
}

func (b *base) AddJob(j *jobs.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.jobs.Add(j.ID(), j) {
		b.log.Warnf("job %d already added, ignoring", j.ID())
	}
}

func (b *base) AddWorker(w *jobs.Worker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addWorkerLocked(w)
}

func (b *base) addWorkerLocked(w *jobs.Worker) {
	if _, ok := b.workers.Get(w.Rank()); ok {
		b.log.Warnf("worker %d already added, ignoring", w.Rank())
		return
	}
	if err := w.Transition(jobs.WorkerIdle); err != nil {
		b.log.WithError(err).Warnf("worker %d cannot be added, ignoring", w.Rank())
		return
	}
	b.workers.Add(w.Rank(), w)
}

func (b *base) Job(id int) (*jobs.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobLocked(id)
}

func (b *base) jobLocked(id int) (*jobs.Job, error) {
	j, ok := b.jobs.Get(id)
	if !ok {
		return nil, errors.Wrapf(ErrJobNotFound, "job %d", id)
	}
	return j, nil
}

func (b *base) Worker(rank int) (*jobs.Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.workerLocked(rank)
}

func (b *base) workerLocked(rank int) (*jobs.Worker, error) {
	w, ok := b.workers.Get(rank)
	if !ok {
		return nil, errors.Wrapf(ErrWorkerNotFound, "worker %d", rank)
	}
	return w, nil
}

func (b *base) Jobs() []*jobs.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobs.Values()
}

func (b *base) Workers() []*jobs.Worker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.workers.Values()
}

// createWorkers adds a worker for ranks 1..groupSize-1 and returns the job and worker counts.
func (b *base) createWorkers(groupSize int) (nJobs, nWorkers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for r := 1; r < groupSize; r++ {
		if _, ok := b.workers.Get(r); !ok {
			b.addWorkerLocked(jobs.NewWorker(r))
		}
	}
	return b.jobs.Len(), b.workers.Len()
}

// freeWorkerLocked returns the lowest ranked worker that is idle and bound to no job.
func (b *base) freeWorkerLocked() *jobs.Worker {
	var free *jobs.Worker
	b.workers.Each(func(_ int, w *jobs.Worker) bool {
		if w.Job() == jobs.Unbound && w.State() == jobs.WorkerIdle {
			free = w
			return false
		}
		return true
	})
	return free
}

func (b *base) bindLocked(j *jobs.Job, w *jobs.Worker) {
	j.Bind(w.Rank())
	w.Bind(j.ID())
}

func (b *base) unbindLocked(j *jobs.Job) {
	if rank := j.Worker(); rank != jobs.Unbound {
		if w, ok := b.workers.Get(rank); ok && w.Job() == j.ID() {
			w.Unbind()
		}
	}
	j.Unbind()
}

// waitJobs waits for every in-flight job. Run errors belong to whoever submitted the run and are
// not reported here.
func (b *base) waitJobs(ctx context.Context) error {
	for _, j := range b.Jobs() {
		if err := j.Wait(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
