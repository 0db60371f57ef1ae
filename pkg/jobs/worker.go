package jobs

import (
	"sync"
)

// Worker is the handle of a remote process able to execute one job at a time.
type Worker struct {
	rank int

	mu    sync.Mutex
	state WorkerState
	job   int
}

// NewWorker returns a worker in the UNKNOWN state with no job.
func NewWorker(rank int) *Worker {
	return &Worker{rank: rank, state: WorkerUnknown, job: Unbound}
}

// Rank returns the worker's rank.
func (w *Worker) Rank() int { return w.rank }

// State returns the current state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Job returns the id of the bound job, or Unbound.
func (w *Worker) Job() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.job
}

// Transition moves the worker to next. Moving to the current state is a no-op.
func (w *Worker) Transition(next WorkerState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == next {
		return nil
	}
	if err := w.state.checkTransition(next); err != nil {
		return err
	}
	w.state = next
	return nil
}

// Bind records id as the worker's job.
func (w *Worker) Bind(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.job = id
}

// Unbind clears the worker's job.
func (w *Worker) Unbind() {
	w.Bind(Unbound)
}
