package engine

import (
	"context"
	"time"
)

// StepFunc performs one unit of work for a task. It returns done=true when no
// further steps remain. A non-nil error terminates the task.
type StepFunc func(ctx context.Context) (bool, error)

// Task wraps one resumable action as a step function plus a description used
// in logs and error messages.
type Task struct {
	// Description identifies the task in logs (e.g. "CREATE network").
	Description string

	// Run is the step function driven by the runner.
	Run StepFunc
}

// TaskRunner drives a Task to completion one step at a time. It is the single
// cancellation point for an in-flight resource action: the stack engine
// interleaves many runners without one OS thread per resource.
//
// A runner is not safe for concurrent use; the dispatch loop owns it.
type TaskRunner struct {
	task      Task
	started   bool
	done      bool
	cancelled bool
	err       error
}

// NewTaskRunner creates a runner for the given task.
func NewTaskRunner(task Task) *TaskRunner {
	return &TaskRunner{task: task}
}

// Start begins the task by executing its first step. If that step signals no
// further work, the task is immediately done. Calling Start twice is a
// contract violation.
func (r *TaskRunner) Start(ctx context.Context) error {
	if r.started {
		return ErrTaskAlreadyStarted
	}
	r.started = true

	done, err := r.task.Run(ctx)
	if err != nil {
		r.done = true
		r.err = err
		return nil
	}
	if done {
		r.done = true
	}
	return nil
}

// Step executes exactly one unit of work if the task is not already done and
// returns whether the task is now done. Stepping a finished task is a no-op
// returning true. Stepping an unstarted task is a contract violation.
func (r *TaskRunner) Step(ctx context.Context) (bool, error) {
	if !r.started {
		return false, ErrTaskNotStarted
	}
	if r.done {
		return true, nil
	}

	done, err := r.task.Run(ctx)
	if err != nil {
		r.done = true
		r.err = err
		return true, nil
	}
	if done {
		r.done = true
	}
	return r.done, nil
}

// RunToCompletion starts the task if necessary and steps it until done,
// sleeping wait between steps. A zero wait disables the sleep. Context
// cancellation cancels the task at the next step boundary.
func (r *TaskRunner) RunToCompletion(ctx context.Context, wait time.Duration) error {
	if !r.started {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	for !r.done {
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				r.Cancel()
				return r.err
			}
		}
		if _, err := r.Step(ctx); err != nil {
			return err
		}
	}
	return r.err
}

// Cancel marks a started, unfinished task done without running its remaining
// steps. Cancellation is cooperative: any step already in flight completes
// first, and compensating cleanup is the responsibility of the action itself.
func (r *TaskRunner) Cancel() {
	if !r.started || r.done {
		return
	}
	r.done = true
	r.cancelled = true
	r.err = NewCancelledError("task cancelled", nil)
}

// Started reports whether Start has been called.
func (r *TaskRunner) Started() bool { return r.started }

// Done reports whether the task has finished, failed, or been cancelled.
func (r *TaskRunner) Done() bool { return r.done }

// Cancelled reports whether the task was cancelled before completion.
func (r *TaskRunner) Cancelled() bool { return r.cancelled }

// Err returns the error recorded by a failed or cancelled task, nil otherwise.
func (r *TaskRunner) Err() error { return r.err }

// Description returns the task's human-readable description.
func (r *TaskRunner) Description() string { return r.task.Description }
