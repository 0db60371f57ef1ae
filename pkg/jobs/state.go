package jobs

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/paratune/paratune/pkg/check"
)

// ErrIllegalTransition is returned when a job or worker is asked to move along an edge its state
// machine does not have.
var ErrIllegalTransition = errors.New("illegal state transition")

// JobState is the lifecycle state of a job.
type JobState string

const (
	// JobUnknown is the state of a job that has been registered but never submitted.
	JobUnknown JobState = "UNKNOWN"
	// JobWaiting means the job has been submitted and waits for a worker to pick it up.
	JobWaiting JobState = "WAITING"
	// JobProcessing means a worker is executing the job.
	JobProcessing JobState = "PROCESSING"
	// JobDone means the last execution finished, successfully or not.
	JobDone JobState = "DONE"
)

func (s JobState) String() string {
	return string(s)
}

// Before returns if our state comes before or is equal to another within one run.
func (s JobState) Before(other JobState) bool {
	ordering := []JobState{JobUnknown, JobWaiting, JobProcessing, JobDone}
	return slices.Index(ordering, s) <= slices.Index(ordering, other)
}

// InFlight reports whether the job has been submitted and not yet finished.
func (s JobState) InFlight() bool {
	return s == JobWaiting || s == JobProcessing
}

var validJobTransitions = map[JobState]map[JobState]bool{
	JobUnknown:    {JobWaiting: true},
	JobWaiting:    {JobProcessing: true},
	JobProcessing: {JobDone: true},
	JobDone:       {JobWaiting: true},
}

func (s JobState) checkTransition(next JobState) error {
	valid, ok := validJobTransitions[s][next]
	if err := check.True(valid && ok, "job cannot transition from %s to %s", s, next); err != nil {
		return errors.Wrap(ErrIllegalTransition, err.Error())
	}
	return nil
}

// WorkerState is the lifecycle state of a worker.
type WorkerState string

const (
	// WorkerUnknown is the state of a worker that has not been registered.
	WorkerUnknown WorkerState = "UNKNOWN"
	// WorkerIdle means the worker can take a job.
	WorkerIdle WorkerState = "IDLE"
	// WorkerDispatching means a job has been handed to the worker but it has not started it.
	WorkerDispatching WorkerState = "DISPATCHING"
	// WorkerBusy means the worker is reserved for, or executing, a job.
	WorkerBusy WorkerState = "BUSY"
)

func (s WorkerState) String() string {
	return string(s)
}

var validWorkerTransitions = map[WorkerState]map[WorkerState]bool{
	WorkerUnknown:     {WorkerIdle: true},
	WorkerIdle:        {WorkerBusy: true, WorkerDispatching: true},
	WorkerDispatching: {WorkerBusy: true, WorkerIdle: true},
	WorkerBusy:        {WorkerIdle: true},
}

func (s WorkerState) checkTransition(next WorkerState) error {
	valid, ok := validWorkerTransitions[s][next]
	if err := check.True(valid && ok, "worker cannot transition from %s to %s", s, next); err != nil {
		return errors.Wrap(ErrIllegalTransition, err.Error())
	}
	return nil
}
