package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/me/seqflow/internal/executor"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// taskJob carries one launched task together with the inputs resolved
// at launch time.
type taskJob struct {
	task   *model.Task
	inputs map[string]any
}

type taskResult struct {
	stepID  string
	outputs map[string]any
	err     error
}

// Run executes a planned invocation. Tasks run concurrently once their
// dependencies complete, bounded by the engine semaphore. The first
// task that fails after exhausting its retries cancels everything still
// in flight and the invocation ends FAILED.
func (e *Engine) Run(ctx context.Context, pl *pipeline.Pipeline, inv *model.Invocation) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inv.State = model.InvocationStateRunning
	e.recordInvocation(ctx, inv)

	taskIdx := make(map[string]*model.Task, len(inv.Tasks))
	skipped := make(map[string]bool)
	for i := range inv.Tasks {
		t := &inv.Tasks[i]
		taskIdx[t.StepID] = t
		if t.State == model.TaskStateSkipped {
			skipped[t.StepID] = true
			e.recordTask(ctx, inv.ID, t)
		}
	}

	// Dependency tracking over runnable tasks only; skipped
	// dependencies count as satisfied.
	pending := make(map[string][]string)
	dependents := make(map[string][]string)
	for stepID, t := range taskIdx {
		if t.State != model.TaskStatePending {
			continue
		}
		var deps []string
		for _, dep := range t.DependsOn {
			if !skipped[dep] {
				deps = append(deps, dep)
			}
		}
		pending[stepID] = deps
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], stepID)
		}
	}

	totalRunnable := len(pending)
	planInputs := e.planInputs(pl, inv.Sample)
	stepOutputs := make(map[string]map[string]any)

	if totalRunnable == 0 {
		return e.finish(ctx, pl, inv, planInputs, stepOutputs, skipped)
	}

	results := make(chan taskResult, totalRunnable)
	inFlight := 0

	launch := func(stepID string) error {
		task := taskIdx[stepID]
		step := pl.Steps[stepID]
		def := pl.Tasks[step.Task]
		inputs, err := resolveStepInputs(stepID, step, def, planInputs, stepOutputs)
		if err != nil {
			return err
		}
		delete(pending, stepID)
		inFlight++
		go func() {
			if !e.sem.Acquire(ctx) {
				results <- taskResult{stepID: stepID, err: ctx.Err()}
				return
			}
			defer e.sem.Release()
			outputs, err := e.runTask(ctx, def, taskJob{task: task, inputs: inputs})
			results <- taskResult{stepID: stepID, outputs: outputs, err: err}
		}()
		return nil
	}

	fail := func(err error) error {
		cancel()
		for inFlight > 0 {
			<-results
			inFlight--
		}
		inv.State = model.InvocationStateFailed
		inv.Error = err.Error()
		now := time.Now().UTC()
		inv.CompletedAt = &now
		e.recordInvocation(context.WithoutCancel(ctx), inv)
		e.logger.Error("invocation failed", "invocation_id", inv.ID, "error", err)
		return model.NewExecutionError(err.Error())
	}

	for stepID, deps := range pending {
		if len(deps) != 0 {
			continue
		}
		if err := launch(stepID); err != nil {
			return fail(err)
		}
	}

	completed := 0
	for completed < totalRunnable {
		select {
		case res := <-results:
			inFlight--
			completed++
			if res.err != nil {
				return fail(res.err)
			}

			stepOutputs[res.stepID] = res.outputs
			e.logger.Debug("step completed",
				"step", res.stepID, "completed", completed, "total", totalRunnable)

			for _, dependent := range dependents[res.stepID] {
				deps, queued := pending[dependent]
				if !queued {
					continue
				}
				var remaining []string
				for _, d := range deps {
					if d != res.stepID {
						remaining = append(remaining, d)
					}
				}
				pending[dependent] = remaining
				if len(remaining) == 0 {
					if err := launch(dependent); err != nil {
						return fail(err)
					}
				}
			}

		case <-ctx.Done():
			return fail(ctx.Err())
		}
	}

	return e.finish(ctx, pl, inv, planInputs, stepOutputs, skipped)
}

// finish collects the output bundle and marks the invocation COMPLETED.
func (e *Engine) finish(ctx context.Context, pl *pipeline.Pipeline, inv *model.Invocation,
	planInputs map[string]any, stepOutputs map[string]map[string]any, skipped map[string]bool) error {

	bundle, err := collectOutputs(pl, planInputs, stepOutputs, skipped)
	if err != nil {
		inv.State = model.InvocationStateFailed
		inv.Error = err.Error()
		now := time.Now().UTC()
		inv.CompletedAt = &now
		e.recordInvocation(ctx, inv)
		return err
	}

	inv.Outputs = bundle
	inv.State = model.InvocationStateCompleted
	now := time.Now().UTC()
	inv.CompletedAt = &now
	e.recordInvocation(ctx, inv)
	e.logger.Info("invocation completed",
		"invocation_id", inv.ID, "outputs", len(bundle), "branches", inv.Branches)
	return nil
}

// runTask renders the command and drives one task through its retry
// budget. Retries reissue the identical command immediately; there is
// no backoff between attempts.
func (e *Engine) runTask(ctx context.Context, def *pipeline.TaskDef, job taskJob) (map[string]any, error) {
	task := job.task
	task.Inputs = job.inputs

	cmd, err := executor.RenderCommand(def.Command, job.inputs)
	if err != nil {
		return nil, e.failTask(ctx, task, fmt.Errorf("step %s: %w", task.StepID, err))
	}
	task.Command = cmd

	exec, err := e.registry.Get(task.ExecutorType)
	if err != nil {
		return nil, e.failTask(ctx, task, fmt.Errorf("step %s: %w", task.StepID, err))
	}

	for {
		task.Outputs = nil
		task.State = model.TaskStateRunning
		if task.StartedAt == nil {
			now := time.Now().UTC()
			task.StartedAt = &now
		}
		e.recordTask(ctx, task.InvocationID, task)
		e.logger.Info("task started",
			"task_id", task.ID, "step", task.StepID, "attempt", task.RetryCount+1)

		runErr := exec.Run(ctx, task)
		if runErr == nil && task.ExitCode != nil && *task.ExitCode == 0 {
			task.State = model.TaskStateSuccess
			now := time.Now().UTC()
			task.CompletedAt = &now
			e.recordTask(ctx, task.InvocationID, task)
			return task.Outputs, nil
		}

		attemptErr := runErr
		if attemptErr == nil {
			if task.ExitCode != nil {
				attemptErr = fmt.Errorf("exit code %d", *task.ExitCode)
			} else {
				attemptErr = fmt.Errorf("executor reported no exit code")
			}
		}

		if ctx.Err() != nil {
			return nil, e.failTask(ctx, task, fmt.Errorf("step %s: %w", task.StepID, ctx.Err()))
		}
		if task.RetriesExhausted() {
			return nil, e.failTask(ctx, task,
				fmt.Errorf("step %s: %w after %d attempts", task.StepID, attemptErr, task.RetryCount+1))
		}

		task.RetryCount++
		task.State = model.TaskStateRetrying
		e.recordTask(ctx, task.InvocationID, task)
		e.logger.Warn("task retrying",
			"task_id", task.ID, "step", task.StepID,
			"attempt", task.RetryCount, "max_retries", task.MaxRetries,
			"error", attemptErr)
	}
}

func (e *Engine) failTask(ctx context.Context, task *model.Task, err error) error {
	task.State = model.TaskStateFailed
	now := time.Now().UTC()
	task.CompletedAt = &now
	e.recordTask(context.WithoutCancel(ctx), task.InvocationID, task)
	return err
}
