// Package pipeline holds the typed representation of a pipeline
// document: task descriptors wrapping external tools, and a workflow of
// task calls with gated branches. It is the intermediate form between
// raw YAML and model.Invocation.
package pipeline

// Pipeline is a typed workflow-definition document.
type Pipeline struct {
	Name    string
	Doc     string
	Inputs  map[string]InputParam
	Outputs map[string]OutputParam
	Steps   map[string]Step
	Tasks   map[string]*TaskDef

	// Branches maps a branch tag to the gate expression that activates
	// it. Steps carry a Branch tag; a step with no tag always runs.
	Branches map[string]string
}

// InputParam is a declared pipeline input.
// Handles both shorthand ("bam: File") and expanded form.
type InputParam struct {
	Type    string
	Doc     string
	Default any
	// Enum restricts a string input to an enumerated set. Membership is
	// checked before any task executes.
	Enum []string
}

// Optional returns true if the input type is optional (suffixed with ?)
// or a default is declared.
func (p InputParam) Optional() bool {
	if p.Default != nil {
		return true
	}
	n := len(p.Type)
	return n > 0 && p.Type[n-1] == '?'
}

// OutputParam is a declared pipeline output.
type OutputParam struct {
	Type   string
	Source string // "step/output" or a bare input name (passthrough)
	Doc    string
	// Optional marks outputs that are absent when their producing
	// branch does not execute.
	Optional bool
}

// Step is one task call in the pipeline DAG.
type Step struct {
	// Task names the TaskDef this step invokes.
	Task string
	// In wires step inputs: value is "step/output" or a pipeline input name.
	In map[string]StepInput
	// Out lists the task outputs this step exposes downstream.
	Out []string
	// When is a gate expression; empty means unconditional.
	When string
	// Branch tags the step as part of a named branch. Steps sharing a
	// tag are activated or skipped together.
	Branch string
}

// StepInput is a normalized step input.
// Handles both shorthand ("bam: markdup/bam") and expanded form.
type StepInput struct {
	Source string
	// Fallbacks are alternative sources tried in order when Source
	// names an output of a step that was gated off. The first one whose
	// producer ran (or that names a pipeline input) wins, so optional
	// preprocessing steps can feed a consumer that still runs when they
	// do not.
	Fallbacks []string
	Default   any
}
