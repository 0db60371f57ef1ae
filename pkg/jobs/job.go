// Package jobs holds the units of schedulable work and the handles of the processes that execute
// them. Both carry a small state machine guarded by their own lock, since the state is read from
// goroutines other than the one changing it.
package jobs

import (
	"context"
	"sync"

	"github.com/paratune/paratune/pkg/streambuf"
)

// Unbound is the worker rank of a job no worker is bound to, and the job id of a free worker.
const Unbound = -1

// Executor is the body of a job. It runs with the rank of the worker the job was dispatched to.
type Executor interface {
	Execute(ctx context.Context, workerRank int) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, workerRank int) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, workerRank int) error {
	return f(ctx, workerRank)
}

// Job is a unit of work with a payload. Schedulers drive its state; applications read it.
type Job struct {
	id      int
	payload streambuf.Streamable
	exec    Executor

	mu     sync.Mutex
	state  JobState
	worker int
	run    *run
	runs   int
}

// run is one submission of a job. err is written before done is closed.
type run struct {
	done chan struct{}
	err  error
}

// NewJob returns a job in the UNKNOWN state, bound to no worker.
func NewJob(id int, payload streambuf.Streamable, exec Executor) *Job {
	return &Job{
		id:      id,
		payload: payload,
		exec:    exec,
		state:   JobUnknown,
		worker:  Unbound,
	}
}

// ID returns the job's id.
func (j *Job) ID() int { return j.id }

// Payload returns the job's payload. It must not be mutated while the job is in flight.
func (j *Job) Payload() streambuf.Streamable { return j.payload }

// State returns the current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Worker returns the rank of the bound worker, or Unbound.
func (j *Job) Worker() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.worker
}

// Runs returns how many executions have finished.
func (j *Job) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// Err returns the error of the current run, nil while it is in flight.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run == nil || j.state != JobDone {
		return nil
	}
	return j.run.err
}

// Bind records rank as the job's worker.
func (j *Job) Bind(rank int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.worker = rank
}

// Unbind clears the job's worker.
func (j *Job) Unbind() {
	j.Bind(Unbound)
}

// Submit moves the job to WAITING, starting a new run.
func (j *Job) Submit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.state.checkTransition(JobWaiting); err != nil {
		return err
	}
	j.state = JobWaiting
	j.run = &run{done: make(chan struct{})}
	return nil
}

// Start moves the job to PROCESSING.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.state.checkTransition(JobProcessing); err != nil {
		return err
	}
	j.state = JobProcessing
	return nil
}

// Finish moves the job to DONE, records the outcome and releases waiters.
func (j *Job) Finish(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if tErr := j.state.checkTransition(JobDone); tErr != nil {
		return tErr
	}
	j.state = JobDone
	j.runs++
	j.run.err = err
	close(j.run.done)
	return nil
}

// Execute runs the job's body on the given worker.
func (j *Job) Execute(ctx context.Context, workerRank int) error {
	return j.exec.Execute(ctx, workerRank)
}

// Wait blocks until the current run finishes and returns its error. A job that was never
// submitted returns immediately.
func (j *Job) Wait(ctx context.Context) error {
	j.mu.Lock()
	r := j.run
	j.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
