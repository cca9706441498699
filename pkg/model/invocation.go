package model

import "time"

// Invocation is a specific execution of a pipeline against one sample.
type Invocation struct {
	ID           string          `json:"id"`
	PipelineName string          `json:"pipeline_name"`
	State        InvocationState `json:"state"`
	Sample       *Sample         `json:"sample"`

	// Branches holds the branch tags activated for this invocation.
	Branches []string `json:"branches,omitempty"`

	// Outputs is the final bundle. Keys of skipped branches are absent.
	Outputs Bundle `json:"outputs,omitempty"`

	// Error carries the failure message for FAILED invocations.
	Error string `json:"error,omitempty"`

	Tasks       []Task      `json:"tasks,omitempty"`
	TaskSummary TaskSummary `json:"task_summary,omitempty"` // Computed field, not stored
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// TaskSummary provides an aggregate count of task states within an Invocation.
type TaskSummary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Running  int `json:"running"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Retrying int `json:"retrying"`
}

// ComputeTaskSummary calculates the TaskSummary from a slice of Tasks.
func ComputeTaskSummary(tasks []Task) TaskSummary {
	s := TaskSummary{Total: len(tasks)}
	for _, t := range tasks {
		switch t.State {
		case TaskStatePending:
			s.Pending++
		case TaskStateRunning:
			s.Running++
		case TaskStateSuccess:
			s.Success++
		case TaskStateFailed:
			s.Failed++
		case TaskStateSkipped:
			s.Skipped++
		case TaskStateRetrying:
			s.Retrying++
		}
	}
	return s
}
