package parser

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// Parser converts raw pipeline YAML into typed pipeline structs.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// ParseFile reads and parses a pipeline document from disk.
func (p *Parser) ParseFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	return p.Parse(data)
}

// Parse parses a pipeline YAML document.
func (p *Parser) Parse(data []byte) (*pipeline.Pipeline, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	return p.parsePipeline(raw)
}

// parsePipeline parses an already-unmarshaled pipeline document.
func (p *Parser) parsePipeline(raw map[string]any) (*pipeline.Pipeline, error) {
	pl := &pipeline.Pipeline{
		Name:     stringField(raw, "name"),
		Doc:      stringField(raw, "doc"),
		Inputs:   make(map[string]pipeline.InputParam),
		Outputs:  make(map[string]pipeline.OutputParam),
		Steps:    make(map[string]pipeline.Step),
		Tasks:    make(map[string]*pipeline.TaskDef),
		Branches: make(map[string]string),
	}

	if pl.Name == "" {
		return nil, fmt.Errorf("pipeline is missing 'name'")
	}

	// Parse inputs: supports both shorthand and expanded form.
	inputs := normalizeToMap(raw["inputs"])
	for id, v := range inputs {
		switch val := v.(type) {
		case string:
			pl.Inputs[id] = pipeline.InputParam{Type: val}
		case map[string]any:
			pl.Inputs[id] = pipeline.InputParam{
				Type:    stringField(val, "type"),
				Doc:     stringField(val, "doc"),
				Default: val["default"],
				Enum:    stringSlice(val, "enum"),
			}
		default:
			return nil, fmt.Errorf("input %q: unexpected type %T", id, v)
		}
	}

	// Parse branch gate expressions.
	if branches, ok := raw["branches"].(map[string]any); ok {
		for tag, expr := range branches {
			s, ok := expr.(string)
			if !ok {
				return nil, fmt.Errorf("branch %q: gate must be a string expression", tag)
			}
			pl.Branches[tag] = s
		}
	}

	// Parse task descriptors.
	tasks := normalizeToMap(raw["tasks"])
	for id, v := range tasks {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("task %q: expected map, got %T", id, v)
		}
		td, err := p.parseTask(id, m)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", id, err)
		}
		pl.Tasks[id] = td
	}

	// Parse steps.
	steps := normalizeToMap(raw["steps"])
	for id, v := range steps {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q: expected map, got %T", id, v)
		}
		step, err := parseStep(m)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", id, err)
		}
		pl.Steps[id] = step
	}

	// Parse outputs.
	outputs := normalizeToMap(raw["outputs"])
	for id, v := range outputs {
		switch val := v.(type) {
		case string:
			pl.Outputs[id] = pipeline.OutputParam{Source: val}
		case map[string]any:
			pl.Outputs[id] = pipeline.OutputParam{
				Type:     stringField(val, "type"),
				Source:   stringField(val, "source"),
				Doc:      stringField(val, "doc"),
				Optional: boolField(val, "optional"),
			}
		default:
			return nil, fmt.Errorf("output %q: unexpected type %T", id, v)
		}
	}

	p.logger.Debug("parsed pipeline", "name", pl.Name,
		"steps", len(pl.Steps), "tasks", len(pl.Tasks))

	return pl, nil
}

// parseStep parses a single step from a raw map.
func parseStep(raw map[string]any) (pipeline.Step, error) {
	step := pipeline.Step{
		Task:   stringField(raw, "task"),
		Out:    stringSlice(raw, "out"),
		When:   stringField(raw, "when"),
		Branch: stringField(raw, "branch"),
		In:     make(map[string]pipeline.StepInput),
	}

	in := normalizeToMap(raw["in"])
	for id, v := range in {
		switch val := v.(type) {
		case string:
			step.In[id] = pipeline.StepInput{Source: val}
		case map[string]any:
			step.In[id] = pipeline.StepInput{
				Source:    stringField(val, "source"),
				Fallbacks: fallbackField(val, "fallback"),
				Default:   val["default"],
			}
		default:
			return step, fmt.Errorf("input %q: unexpected type %T", id, v)
		}
	}

	return step, nil
}

// parseTask parses a single task descriptor from a raw map.
func (p *Parser) parseTask(id string, raw map[string]any) (*pipeline.TaskDef, error) {
	td := &pipeline.TaskDef{
		ID:      id,
		Doc:     stringField(raw, "doc"),
		Image:   stringField(raw, "image"),
		Command: stringSlice(raw, "command"),
		Inputs:  make(map[string]pipeline.TaskInput),
		Outputs: make(map[string]pipeline.TaskOutput),
	}

	if len(td.Command) == 0 {
		return nil, fmt.Errorf("missing 'command'")
	}

	if et := stringField(raw, "executor"); et != "" {
		td.Executor = model.ExecutorType(et)
	}

	// Parse inputs: supports both shorthand and expanded form.
	inputs := normalizeToMap(raw["inputs"])
	for inID, v := range inputs {
		switch val := v.(type) {
		case string:
			td.Inputs[inID] = pipeline.TaskInput{Type: val}
		case map[string]any:
			td.Inputs[inID] = pipeline.TaskInput{
				Type:    stringField(val, "type"),
				Doc:     stringField(val, "doc"),
				Default: val["default"],
			}
		default:
			return nil, fmt.Errorf("input %q: unexpected type %T", inID, v)
		}
	}

	// Parse outputs. Every output needs a glob so the engine can locate
	// the file the external tool produced.
	outputs := normalizeToMap(raw["outputs"])
	for outID, v := range outputs {
		switch val := v.(type) {
		case string:
			td.Outputs[outID] = pipeline.TaskOutput{Type: "File", Glob: val}
		case map[string]any:
			td.Outputs[outID] = pipeline.TaskOutput{
				Type: stringField(val, "type"),
				Glob: stringField(val, "glob"),
			}
		default:
			return nil, fmt.Errorf("output %q: unexpected type %T", outID, v)
		}
	}

	// Parse resource requests.
	if res, ok := raw["resources"].(map[string]any); ok {
		r, err := parseResources(res)
		if err != nil {
			return nil, err
		}
		td.Resources = r
	}

	td.MaxRetries = intField(raw, "max_retries")

	return td, nil
}

// parseResources parses a resource request block.
// Memory and disk accept either bare GB counts or humanized sizes.
func parseResources(raw map[string]any) (model.Resources, error) {
	var r model.Resources

	if v, ok := raw["memory"]; ok {
		n, err := pipeline.ParseMemory(v)
		if err != nil {
			return r, err
		}
		r.MemoryGB = n
	}
	if v, ok := raw["disk"]; ok {
		n, err := pipeline.ParseMemory(v)
		if err != nil {
			return r, err
		}
		r.DiskGB = n
	}
	r.Cores = intField(raw, "cores")

	return r, nil
}

// --- Helper functions ---

// normalizeToMap converts array-style definitions to map-style.
// Both forms are accepted: [{id: x, type: File}] and {x: {type: File}}.
func normalizeToMap(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case []any:
		result := make(map[string]any)
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					result[id] = m
				}
			}
		}
		return result
	}
	return make(map[string]any)
}

// stringField safely extracts a string from a map.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// stringSlice safely extracts a []string from a map value.
// The YAML decoder produces []any, not []string.
func stringSlice(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		var result []string
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		if len(result) == 0 {
			return nil
		}
		return result
	}
	return nil
}

// fallbackField extracts a step-input fallback chain. A single string
// and a list of strings are both accepted.
func fallbackField(m map[string]any, key string) []string {
	if s, ok := m[key].(string); ok {
		return []string{s}
	}
	return stringSlice(m, key)
}

// boolField safely extracts a bool from a map.
func boolField(m map[string]any, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

// intField safely extracts an int from a map.
// The YAML decoder may produce int or float64.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
