package executor

import (
	"context"
	"fmt"

	"github.com/me/seqflow/pkg/model"
)

// Executor is a pluggable backend that runs a task to completion.
// Run blocks until the external tool exits, then records stdout,
// stderr, the exit code, and located outputs on the task itself.
type Executor interface {
	// Type returns the executor type identifier.
	Type() model.ExecutorType

	// Run executes the task synchronously. A non-nil error means the
	// task could not be launched; a nonzero exit code is not an error
	// at this level and is reported through task.ExitCode.
	Run(ctx context.Context, task *model.Task) error
}

// Registry maps executor types to registered backends.
type Registry struct {
	executors map[model.ExecutorType]Executor

	// forceLocal reroutes container tasks to the local backend,
	// used when no container runtime is available.
	forceLocal bool
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[model.ExecutorType]Executor)}
}

// Register adds an executor, replacing any previous one of the same type.
func (r *Registry) Register(e Executor) {
	r.executors[e.Type()] = e
}

// ForceLocal makes Get return the local executor for every task.
func (r *Registry) ForceLocal() {
	r.forceLocal = true
}

// Get returns the executor for the given type.
func (r *Registry) Get(t model.ExecutorType) (Executor, error) {
	if r.forceLocal {
		t = model.ExecutorTypeLocal
	}
	e, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for type %q", t)
	}
	return e, nil
}
