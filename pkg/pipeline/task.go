package pipeline

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/me/seqflow/pkg/model"
)

// TaskDef is a task descriptor: a thin declarative wrapper around one
// external tool invocation. The engine does not interpret the tool's
// behavior; it substitutes inputs into the command template and locates
// the declared outputs afterwards.
type TaskDef struct {
	ID    string
	Doc   string
	Image string

	// Command is the invocation template. Elements containing {param}
	// placeholders are substituted from resolved inputs.
	Command []string

	Inputs  map[string]TaskInput
	Outputs map[string]TaskOutput

	Resources  model.Resources
	MaxRetries int

	// Executor overrides the runtime ("local" or "container").
	// Empty defaults to container when Image is set, local otherwise.
	Executor model.ExecutorType
}

// TaskInput is a declared typed input of a task descriptor.
type TaskInput struct {
	Type    string
	Doc     string
	Default any
}

// TaskOutput declares an output file the external tool is expected to
// produce, located by glob in the task work directory.
type TaskOutput struct {
	Type string
	Glob string
}

// ExecutorType resolves the effective executor backend for the task.
func (t *TaskDef) ExecutorType() model.ExecutorType {
	if t.Executor != "" {
		return t.Executor
	}
	if t.Image != "" {
		return model.ExecutorTypeContainer
	}
	return model.ExecutorTypeLocal
}

// ParseMemory converts a human-readable size ("4 GB", "512MB") or a bare
// GB count into whole gigabytes, rounding partial gigabytes up.
func ParseMemory(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case float64:
		return int(val), nil
	case string:
		bytes, err := humanize.ParseBytes(val)
		if err != nil {
			return 0, fmt.Errorf("parse memory %q: %w", val, err)
		}
		const gb = 1 << 30
		n := bytes / gb
		if bytes%gb != 0 {
			n++
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("parse memory: unexpected type %T", v)
	}
}
