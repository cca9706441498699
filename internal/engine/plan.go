package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/me/seqflow/internal/parser"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// Plan validates the pipeline and sample, selects the active branch,
// resolves provided-or-inferred values, and builds the task set for
// one invocation. Steps whose branch did not activate, whose gate
// evaluated false, or that depend on a skipped step are created in the
// SKIPPED state; gate expressions are evaluated exactly once, here.
func (e *Engine) Plan(ctx context.Context, pl *pipeline.Pipeline, sample *model.Sample) (*model.Invocation, error) {
	if apiErr := e.validator.Validate(pl); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := e.selector.Validate(pl, sample); apiErr != nil {
		return nil, apiErr
	}

	active, err := e.selector.Select(pl, sample)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	if err := e.resolveInferred(ctx, sample, active); err != nil {
		return nil, err
	}

	dag, err := parser.BuildDAG(pl)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	planInputs := e.planInputs(pl, sample)

	inv := &model.Invocation{
		ID:           uuid.NewString(),
		PipelineName: pl.Name,
		State:        model.InvocationStatePending,
		Sample:       sample,
		Branches:     active,
		CreatedAt:    time.Now().UTC(),
	}

	skipped := make(map[string]bool)
	activeSet := make(map[string]bool, len(active))
	for _, tag := range active {
		activeSet[tag] = true
	}

	for _, stepID := range dag.Order {
		step := pl.Steps[stepID]
		def := pl.Tasks[step.Task]

		task := model.Task{
			ID:           uuid.NewString(),
			InvocationID: inv.ID,
			StepID:       stepID,
			State:        model.TaskStatePending,
			ExecutorType: def.ExecutorType(),
			Image:        def.Image,
			Resources:    def.Resources,
			DependsOn:    dag.Dependencies(stepID),
			MaxRetries:   def.MaxRetries,
			CreatedAt:    time.Now().UTC(),
		}
		if len(def.Outputs) > 0 {
			task.OutputGlobs = make(map[string]string, len(def.Outputs))
			for name, out := range def.Outputs {
				task.OutputGlobs[name] = out.Glob
			}
		}

		skip, reason, err := e.shouldSkip(step, stepID, activeSet, skipped, planInputs)
		if err != nil {
			return nil, model.NewValidationError(err.Error())
		}
		if skip {
			task.State = model.TaskStateSkipped
			skipped[stepID] = true
			e.logger.Debug("step skipped at plan time", "step", stepID, "reason", reason)
		}

		inv.Tasks = append(inv.Tasks, task)
	}

	e.recordInvocation(ctx, inv)
	return inv, nil
}

// shouldSkip decides at plan time whether a step is gated off. A
// dependency on a skipped step propagates the skip; that is an
// expected outcome of branch selection, not an error. An input with a
// surviving fallback source does not propagate the skip.
func (e *Engine) shouldSkip(step pipeline.Step, stepID string, activeSet, skipped map[string]bool, planInputs map[string]any) (bool, string, error) {
	if step.Branch != "" && !activeSet[step.Branch] {
		return true, fmt.Sprintf("branch %q not selected", step.Branch), nil
	}
	if step.When != "" {
		on, err := e.evaluator.EvaluateBool(step.When, planInputs)
		if err != nil {
			return false, "", fmt.Errorf("step %s gate: %w", stepID, err)
		}
		if !on {
			return true, "gate evaluated false", nil
		}
	}
	for _, si := range step.In {
		dep, _, ok := splitSource(si.Source)
		if !ok || !skipped[dep] {
			continue
		}
		if !fallbackAvailable(si, skipped, planInputs) {
			return true, fmt.Sprintf("depends on skipped step %q", dep), nil
		}
	}
	return false, "", nil
}

// fallbackAvailable reports whether any fallback source of a step
// input survives skip propagation: a step output whose producer was
// not skipped, or a pipeline input with a value.
func fallbackAvailable(si pipeline.StepInput, skipped map[string]bool, planInputs map[string]any) bool {
	for _, fb := range si.Fallbacks {
		if dep, _, ok := splitSource(fb); ok {
			if !skipped[dep] {
				return true
			}
			continue
		}
		if _, ok := planInputs[fb]; ok {
			return true
		}
	}
	return false
}

// resolveInferred applies the provided-or-inferred contract to each
// bound resolver whose branch is active, writing the resolved value
// back onto the sample before any pipeline task is planned.
func (e *Engine) resolveInferred(ctx context.Context, sample *model.Sample, active []string) error {
	activeSet := make(map[string]bool, len(active))
	for _, tag := range active {
		activeSet[tag] = true
	}

	for _, binding := range e.resolvers {
		if len(binding.Branches) > 0 {
			needed := false
			for _, tag := range binding.Branches {
				if activeSet[tag] {
					needed = true
					break
				}
			}
			if !needed {
				continue
			}
		}

		r := binding.Resolver
		provided := ""
		switch r.Field {
		case "strandedness":
			provided = sample.Strandedness
		case "encoding":
			provided = sample.Encoding
		default:
			if v, ok := sample.Scalars[r.Field]; ok {
				provided = fmt.Sprintf("%v", v)
			}
		}

		res, err := r.Resolve(ctx, sample, provided)
		if err != nil {
			return model.NewExecutionError(err.Error())
		}

		switch r.Field {
		case "strandedness":
			sample.Strandedness = res.Value
		case "encoding":
			sample.Encoding = res.Value
		default:
			if sample.Scalars == nil {
				sample.Scalars = make(map[string]any)
			}
			sample.Scalars[r.Field] = res.Value
		}
		e.logger.Info("resolved sample property",
			"field", r.Field, "value", res.Value, "source", res.Source)
	}

	return nil
}

// planInputs merges declared input defaults under the sample values.
// Gates and command templates both evaluate against this map.
func (e *Engine) planInputs(pl *pipeline.Pipeline, sample *model.Sample) map[string]any {
	inputs := make(map[string]any)
	for id, param := range pl.Inputs {
		if param.Default != nil {
			inputs[id] = param.Default
		}
	}
	for k, v := range sample.Inputs() {
		inputs[k] = v
	}
	return inputs
}
