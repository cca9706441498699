package store

import (
	"context"

	"github.com/me/seqflow/pkg/model"
)

// Store defines the persistence layer for seqflow entities.
// Save operations are upserts keyed by ID so state transitions can be
// written repeatedly as an invocation progresses.
type Store interface {
	// Invocation operations
	SaveInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocation(ctx context.Context, id string) (*model.Invocation, error)
	ListInvocations(ctx context.Context, opts model.ListOptions) ([]*model.Invocation, int, error)

	// Task operations
	SaveTask(ctx context.Context, invocationID string, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasksByInvocation(ctx context.Context, invocationID string) ([]*model.Task, error)
	GetTasksByState(ctx context.Context, state model.TaskState) ([]*model.Task, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Recorder adapts a Store to the engine's persistence hooks.
type Recorder struct {
	S Store
}

// RecordInvocation persists the invocation row and all of its tasks.
func (r Recorder) RecordInvocation(ctx context.Context, inv *model.Invocation) error {
	if err := r.S.SaveInvocation(ctx, inv); err != nil {
		return err
	}
	for i := range inv.Tasks {
		if err := r.S.SaveTask(ctx, inv.ID, &inv.Tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// RecordTask persists a single task state transition.
func (r Recorder) RecordTask(ctx context.Context, invocationID string, task *model.Task) error {
	return r.S.SaveTask(ctx, invocationID, task)
}
