package model

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	TaskStatePending  TaskState = "PENDING"
	TaskStateRunning  TaskState = "RUNNING"
	TaskStateSuccess  TaskState = "SUCCESS"
	TaskStateFailed   TaskState = "FAILED"
	TaskStateRetrying TaskState = "RETRYING"
	TaskStateSkipped  TaskState = "SKIPPED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task is in a final state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailed, TaskStateSkipped:
		return true
	}
	return false
}

// ValidTaskTransitions defines the allowed state transitions for Tasks.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskStatePending:  {TaskStateRunning, TaskStateSkipped},
	TaskStateRunning:  {TaskStateSuccess, TaskStateFailed, TaskStateRetrying},
	TaskStateRetrying: {TaskStateRunning},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvocationState represents the lifecycle state of an Invocation.
type InvocationState string

const (
	InvocationStatePending   InvocationState = "PENDING"
	InvocationStateRunning   InvocationState = "RUNNING"
	InvocationStateCompleted InvocationState = "COMPLETED"
	InvocationStateFailed    InvocationState = "FAILED"
)

// String returns the string representation of the invocation state.
func (s InvocationState) String() string {
	return string(s)
}

// IsTerminal returns true if the invocation is in a final state.
func (s InvocationState) IsTerminal() bool {
	return s == InvocationStateCompleted || s == InvocationStateFailed
}

// ExecutorType identifies which executor backend runs a Task.
type ExecutorType string

const (
	ExecutorTypeLocal     ExecutorType = "local"
	ExecutorTypeContainer ExecutorType = "container"
)
