package parser

import (
	"fmt"
	"log/slog"

	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// Validator performs semantic validation on a parsed pipeline document.
// Sample-level validation (experiment enum, companion inputs) happens
// later, at invocation planning time.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator with the given logger.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("component", "validator")}
}

// Validate checks semantic correctness of a pipeline document.
// Returns nil if valid, or a *model.APIError with FieldError details.
func (v *Validator) Validate(pl *pipeline.Pipeline) *model.APIError {
	var errs []model.FieldError

	errs = append(errs, v.validateOutputsPresent(pl)...)
	errs = append(errs, v.validateTaskRefs(pl)...)
	errs = append(errs, v.validateStepIO(pl)...)
	errs = append(errs, v.validateBranchTags(pl)...)
	errs = append(errs, v.validateOutputSources(pl)...)
	errs = append(errs, v.validateDAG(pl)...)

	if len(errs) == 0 {
		return nil
	}
	return model.NewValidationError("pipeline validation failed", errs...)
}

func (v *Validator) validateOutputsPresent(pl *pipeline.Pipeline) []model.FieldError {
	if len(pl.Outputs) == 0 {
		return []model.FieldError{{Field: "outputs", Message: "pipeline must have at least one output"}}
	}
	return nil
}

func (v *Validator) validateTaskRefs(pl *pipeline.Pipeline) []model.FieldError {
	var errs []model.FieldError
	for stepID, step := range pl.Steps {
		if step.Task == "" {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("steps.%s.task", stepID),
				Message: fmt.Sprintf("step %q is missing 'task' reference", stepID),
			})
			continue
		}
		if _, ok := pl.Tasks[step.Task]; !ok {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("steps.%s.task", stepID),
				Message: fmt.Sprintf("task reference %q not found", step.Task),
			})
		}
	}
	return errs
}

func (v *Validator) validateStepIO(pl *pipeline.Pipeline) []model.FieldError {
	var errs []model.FieldError

	// Build set of valid sources.
	validSources := make(map[string]bool)
	for id := range pl.Inputs {
		validSources[id] = true
	}
	for stepID, step := range pl.Steps {
		for _, outID := range step.Out {
			validSources[stepID+"/"+outID] = true
		}
	}

	for stepID, step := range pl.Steps {
		task := pl.Tasks[step.Task]

		for inID, si := range step.In {
			if si.Source == "" && si.Default == nil {
				errs = append(errs, model.FieldError{
					Field:   fmt.Sprintf("steps.%s.in.%s", stepID, inID),
					Message: fmt.Sprintf("step %q input %q has no source and no default", stepID, inID),
				})
				continue
			}
			if si.Source != "" && !validSources[si.Source] {
				errs = append(errs, model.FieldError{
					Field:   fmt.Sprintf("steps.%s.in.%s.source", stepID, inID),
					Message: fmt.Sprintf("source %q does not match any pipeline input or step output", si.Source),
				})
			}
			if len(si.Fallbacks) > 0 && si.Source == "" {
				errs = append(errs, model.FieldError{
					Field:   fmt.Sprintf("steps.%s.in.%s.fallback", stepID, inID),
					Message: fmt.Sprintf("step %q input %q declares a fallback without a source", stepID, inID),
				})
			}
			for _, fb := range si.Fallbacks {
				if !validSources[fb] {
					errs = append(errs, model.FieldError{
						Field:   fmt.Sprintf("steps.%s.in.%s.fallback", stepID, inID),
						Message: fmt.Sprintf("fallback %q does not match any pipeline input or step output", fb),
					})
				}
			}
			if task != nil {
				if _, ok := task.Inputs[inID]; !ok {
					errs = append(errs, model.FieldError{
						Field:   fmt.Sprintf("steps.%s.in.%s", stepID, inID),
						Message: fmt.Sprintf("task %q declares no input %q", step.Task, inID),
					})
				}
			}
		}

		// Exposed outputs must be declared by the task.
		if task != nil {
			for _, outID := range step.Out {
				if _, ok := task.Outputs[outID]; !ok {
					errs = append(errs, model.FieldError{
						Field:   fmt.Sprintf("steps.%s.out", stepID),
						Message: fmt.Sprintf("task %q declares no output %q", step.Task, outID),
					})
				}
			}
		}
	}

	return errs
}

func (v *Validator) validateBranchTags(pl *pipeline.Pipeline) []model.FieldError {
	var errs []model.FieldError
	for stepID, step := range pl.Steps {
		if step.Branch == "" {
			continue
		}
		if _, ok := pl.Branches[step.Branch]; !ok {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("steps.%s.branch", stepID),
				Message: fmt.Sprintf("branch tag %q has no gate expression", step.Branch),
			})
		}
	}
	return errs
}

func (v *Validator) validateOutputSources(pl *pipeline.Pipeline) []model.FieldError {
	var errs []model.FieldError

	// Valid sources: step outputs and pipeline inputs (passthrough).
	validSources := make(map[string]bool)
	for stepID, step := range pl.Steps {
		for _, outID := range step.Out {
			validSources[stepID+"/"+outID] = true
		}
	}
	for inputID := range pl.Inputs {
		validSources[inputID] = true
	}

	for id, out := range pl.Outputs {
		if out.Source == "" {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("outputs.%s.source", id),
				Message: fmt.Sprintf("output %q is missing source", id),
			})
			continue
		}
		if !validSources[out.Source] {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("outputs.%s.source", id),
				Message: fmt.Sprintf("source %q does not match any step output or pipeline input", out.Source),
			})
		}
	}

	return errs
}

func (v *Validator) validateDAG(pl *pipeline.Pipeline) []model.FieldError {
	_, err := BuildDAG(pl)
	if err != nil {
		return []model.FieldError{{
			Field:   "steps",
			Message: err.Error(),
		}}
	}
	return nil
}
