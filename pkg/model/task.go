package model

import "time"

// Task is a concrete, schedulable invocation of one pipeline step.
// It records the resolved input values, the resource request, and the
// output file paths located after the external tool exits.
type Task struct {
	ID           string       `json:"id"`
	InvocationID string       `json:"invocation_id"`
	StepID       string       `json:"step_id"`
	State        TaskState    `json:"state"`
	ExecutorType ExecutorType `json:"executor_type"`

	// Image is the container image reference declared by the task
	// descriptor. Opaque to the engine; passed through to the executor.
	Image string `json:"image,omitempty"`

	// Command is the fully substituted command line.
	Command []string `json:"command,omitempty"`

	// Inputs holds the resolved input values keyed by parameter name.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs maps declared output names to located file paths.
	Outputs map[string]any `json:"outputs,omitempty"`

	// OutputGlobs maps declared output names to the glob patterns used
	// to locate them in the task work directory.
	OutputGlobs map[string]string `json:"output_globs,omitempty"`

	Resources Resources `json:"resources"`

	DependsOn   []string   `json:"depends_on,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	WorkDir     string     `json:"-"`
	Stdout      string     `json:"-"`
	Stderr      string     `json:"-"`
	ExitCode    *int       `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Resources is the runtime resource request a task declares.
// The values are hints handed to the executor, not enforced limits.
type Resources struct {
	MemoryGB int `json:"memory_gb,omitempty"`
	DiskGB   int `json:"disk_gb,omitempty"`
	Cores    int `json:"cores,omitempty"`
}

// RetriesExhausted returns true once the task has consumed its retry budget.
func (t *Task) RetriesExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}
