package engine

import (
	"fmt"
	"strings"

	"github.com/me/seqflow/pkg/pipeline"
)

// splitSource splits a "step/output" reference. ok is false for bare
// pipeline input names.
func splitSource(source string) (stepID, outputID string, ok bool) {
	if !strings.Contains(source, "/") {
		return "", "", false
	}
	parts := strings.SplitN(source, "/", 2)
	return parts[0], parts[1], true
}

// resolveStepInputs assembles the input value map for one task run:
// task descriptor defaults first, then the step wiring on top, drawing
// from upstream step outputs or the pipeline-level inputs. When the
// primary source names an output of a step that was gated off, the
// fallback chain is tried in order.
func resolveStepInputs(stepID string, step pipeline.Step, def *pipeline.TaskDef,
	pipelineInputs map[string]any, stepOutputs map[string]map[string]any) (map[string]any, error) {

	inputs := make(map[string]any)
	for name, in := range def.Inputs {
		if in.Default != nil {
			inputs[name] = in.Default
		}
	}

	for name, si := range step.In {
		val, ok, err := lookupSource(si.Source, pipelineInputs, stepOutputs)
		if err != nil {
			return nil, fmt.Errorf("step %s: input %s: %w", stepID, name, err)
		}
		for _, fb := range si.Fallbacks {
			if ok {
				break
			}
			val, ok, err = lookupSource(fb, pipelineInputs, stepOutputs)
			if err != nil {
				return nil, fmt.Errorf("step %s: input %s: %w", stepID, name, err)
			}
		}
		if ok {
			inputs[name] = val
			continue
		}
		if si.Default != nil {
			inputs[name] = si.Default
			continue
		}
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("step %s: input %s: no value for source %q and no default", stepID, name, si.Source)
		}
	}

	return inputs, nil
}

// lookupSource resolves one source reference. ok is false when the
// source names an output of a step that did not run, or a pipeline
// input with no value; the caller decides whether a fallback or a
// default covers it. A completed step missing the named output is a
// hard error.
func lookupSource(source string, pipelineInputs map[string]any,
	stepOutputs map[string]map[string]any) (any, bool, error) {

	if source == "" {
		return nil, false, nil
	}
	if depID, outputID, ok := splitSource(source); ok {
		outputs, done := stepOutputs[depID]
		if !done {
			return nil, false, nil
		}
		val, present := outputs[outputID]
		if !present {
			return nil, false, fmt.Errorf("upstream step %s produced no output %q", depID, outputID)
		}
		return val, true, nil
	}
	val, ok := pipelineInputs[source]
	return val, ok, nil
}
