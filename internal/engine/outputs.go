package engine

import (
	"fmt"

	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// collectOutputs assembles the final bundle from completed step
// outputs. Optional outputs sourced from skipped steps are left absent
// from the bundle entirely, never set to nil: callers distinguish
// "branch did not run" by key absence. A required output whose
// producer was skipped fails the invocation.
func collectOutputs(pl *pipeline.Pipeline, pipelineInputs map[string]any,
	stepOutputs map[string]map[string]any, skipped map[string]bool) (model.Bundle, error) {

	bundle := make(model.Bundle)
	for name, out := range pl.Outputs {
		stepID, outputID, ok := splitSource(out.Source)
		if !ok {
			// Passthrough of a pipeline-level input.
			if val, present := pipelineInputs[out.Source]; present {
				bundle[name] = val
			} else if !out.Optional {
				return nil, model.NewExecutionError(
					fmt.Sprintf("output %s: pipeline input %q has no value", name, out.Source))
			}
			continue
		}

		if skipped[stepID] {
			if out.Optional {
				continue
			}
			return nil, model.NewExecutionError(
				fmt.Sprintf("output %s: producing step %s was skipped", name, stepID))
		}
		outputs, done := stepOutputs[stepID]
		if !done {
			return nil, model.NewExecutionError(
				fmt.Sprintf("output %s: step %s did not run", name, stepID))
		}
		val, present := outputs[outputID]
		if !present {
			if out.Optional {
				continue
			}
			return nil, model.NewExecutionError(
				fmt.Sprintf("output %s: step %s produced no output %q", name, stepID, outputID))
		}
		bundle[name] = val
	}

	return bundle, nil
}
